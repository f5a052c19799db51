// Package notify delivers parent alerts for analyses that flag
// ParentNotificationRequired. Alerts are HMAC-signed webhooks posted to
// the guardian dashboard endpoint.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/safety"
)

type ParentAlert struct {
	RequestID        string           `json:"request_id"`
	ChildAge         int              `json:"child_age"`
	RiskLevel        safety.RiskLevel `json:"risk_level"`
	TriggeredReasons []string         `json:"triggered_reasons"`
	OccurredAt       time.Time        `json:"occurred_at"`
}

type Dispatcher struct {
	url        string
	secret     string
	httpClient *http.Client
	alerts     chan ParentAlert
}

func NewDispatcher(url, secret string) *Dispatcher {
	d := &Dispatcher{
		url:    url,
		secret: secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		alerts: make(chan ParentAlert, 1000),
	}
	go d.processLoop()
	return d
}

// Notify enqueues an alert for a flagged result. Dropped alerts are
// logged; delivery must never block the analysis path.
func (d *Dispatcher) Notify(result *safety.AnalysisResult, childAge int) {
	if !result.ParentNotificationRequired {
		return
	}

	reasons := make([]string, 0, 4)
	for _, lr := range result.LayerResults {
		reasons = append(reasons, lr.TriggeredReasons...)
	}

	alert := ParentAlert{
		RequestID:        result.RequestID,
		ChildAge:         childAge,
		RiskLevel:        result.OverallRiskLevel,
		TriggeredReasons: reasons,
		OccurredAt:       time.Now().UTC(),
	}

	select {
	case d.alerts <- alert:
	default:
		slog.Warn("parent alert queue full, dropping", "request_id", alert.RequestID)
	}
}

func (d *Dispatcher) processLoop() {
	for alert := range d.alerts {
		d.deliver(alert)
	}
}

func (d *Dispatcher) deliver(alert ParentAlert) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	payload, err := json.Marshal(alert)
	if err != nil {
		slog.Error("parent alert marshal failed", "error", err)
		return
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", d.url, bytes.NewReader(payload))
	if err != nil {
		slog.Error("parent alert request creation failed", "error", err)
		return
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Alert-Event", "safety.parent_notification")
	httpReq.Header.Set("X-Alert-Signature", sign(payload, d.secret))

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		slog.Error("parent alert delivery failed", "error", err, "request_id", alert.RequestID)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		slog.Warn("parent alert received non-success response", "status", resp.StatusCode, "request_id", alert.RequestID)
	}
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}
