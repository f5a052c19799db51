package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/audit"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/config"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/notify"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/queue"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/safety"
)

type SafetyHandler struct {
	engine   *safety.Engine
	audit    *audit.Service
	queue    *queue.Client
	notifier *notify.Dispatcher
}

func NewSafetyHandler(engine *safety.Engine, auditSvc *audit.Service, qc *queue.Client, notifier *notify.Dispatcher) *SafetyHandler {
	return &SafetyHandler{engine: engine, audit: auditSvc, queue: qc, notifier: notifier}
}

// Analyze runs the full layer stack over one piece of content.
func (h *SafetyHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text     string        `json:"text"`
		ChildAge int           `json:"child_age"`
		History  []safety.Turn `json:"history,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text required"})
		return
	}
	if req.ChildAge <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "child_age required"})
		return
	}

	result, err := h.engine.Analyze(r.Context(), req.Text, req.ChildAge, req.History)
	if err != nil {
		if errors.Is(err, safety.ErrInputTooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if h.audit != nil {
		if err := h.audit.RecordResult(r.Context(), result, req.ChildAge); err != nil {
			slog.Error("audit record failed", "error", err, "request_id", result.RequestID)
		}
	}
	if h.notifier != nil {
		h.notifier.Notify(result, req.ChildAge)
	}

	writeJSON(w, http.StatusOK, result)
}

// AnalyzeBatch scans several items in one call. With async=true the batch
// is enqueued for the worker instead of being scanned inline.
func (h *SafetyHandler) AnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []struct {
			Text     string        `json:"text"`
			ChildAge int           `json:"child_age"`
			History  []safety.Turn `json:"history,omitempty"`
		} `json:"items"`
		Async bool `json:"async,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "items required"})
		return
	}

	reqs := make([]safety.AnalysisRequest, len(req.Items))
	for i, item := range req.Items {
		if item.Text == "" || item.ChildAge <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "item " + strconv.Itoa(i) + ": text and child_age required",
			})
			return
		}
		reqs[i] = safety.AnalysisRequest{
			Text:      item.Text,
			ChildAge:  item.ChildAge,
			History:   item.History,
			RequestID: uuid.NewString(),
		}
	}

	if req.Async {
		if h.queue == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "async scanning not configured"})
			return
		}
		batchID := uuid.NewString()
		if err := h.queue.EnqueueBatchScan(queue.BatchScanPayload{BatchID: batchID, Requests: reqs}); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"batch_id": batchID,
			"items":    len(reqs),
		})
		return
	}

	results := h.engine.AnalyzeBatch(r.Context(), reqs)
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// Metrics returns engine counters as JSON. Prometheus scraping uses /metrics.
func (h *SafetyHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Metrics())
}

// safetyConfigDTO is the admin wire form of the engine configuration. It
// speaks the configuration surface's names, with the processing budget in
// milliseconds rather than a Duration.
type safetyConfigDTO struct {
	Version             int64                        `json:"version,omitempty"`
	ToxicityThreshold   float64                      `json:"toxicity_threshold"`
	HighRiskThreshold   float64                      `json:"high_risk_threshold"`
	CriticalThreshold   float64                      `json:"critical_threshold"`
	StrictMode          bool                         `json:"strict_mode"`
	NotifyParentsOnRisk bool                         `json:"notify_parents_on_risk"`
	MaxProcessingTimeMs float64                      `json:"max_processing_time_ms"`
	MaxInputLength      int                          `json:"max_input_length"`
	CombineRule         string                       `json:"combine_rule"`
	RepetitionTrigger   int                          `json:"repetition_trigger"`
	HistoryWindow       int                          `json:"history_window"`
	SessionTurnCeiling  int                          `json:"session_turn_ceiling"`
	PatternsPath        string                       `json:"patterns_path,omitempty"`
	AgeBandOverrides    map[string]thresholdDeltaDTO `json:"age_band_overrides,omitempty"`
}

type thresholdDeltaDTO struct {
	Toxicity float64 `json:"toxicity"`
	HighRisk float64 `json:"high_risk"`
	Critical float64 `json:"critical"`
}

func newSafetyConfigDTO(cfg config.SafetyConfig) safetyConfigDTO {
	dto := safetyConfigDTO{
		Version:             cfg.Version,
		ToxicityThreshold:   cfg.ToxicityThreshold,
		HighRiskThreshold:   cfg.HighRiskThreshold,
		CriticalThreshold:   cfg.CriticalThreshold,
		StrictMode:          cfg.StrictMode,
		NotifyParentsOnRisk: cfg.NotifyParentsOnRisk,
		MaxProcessingTimeMs: float64(cfg.MaxProcessingTime) / float64(time.Millisecond),
		MaxInputLength:      cfg.MaxInputLength,
		CombineRule:         cfg.CombineRule,
		RepetitionTrigger:   cfg.RepetitionTrigger,
		HistoryWindow:       cfg.HistoryWindow,
		SessionTurnCeiling:  cfg.SessionTurnCeiling,
		PatternsPath:        cfg.PatternsPath,
	}
	if len(cfg.AgeBandOverrides) > 0 {
		dto.AgeBandOverrides = make(map[string]thresholdDeltaDTO, len(cfg.AgeBandOverrides))
		for band, d := range cfg.AgeBandOverrides {
			dto.AgeBandOverrides[band] = thresholdDeltaDTO{Toxicity: d.Toxicity, HighRisk: d.HighRisk, Critical: d.Critical}
		}
	}
	return dto
}

func (d safetyConfigDTO) toConfig() config.SafetyConfig {
	cfg := config.SafetyConfig{
		ToxicityThreshold:   d.ToxicityThreshold,
		HighRiskThreshold:   d.HighRiskThreshold,
		CriticalThreshold:   d.CriticalThreshold,
		StrictMode:          d.StrictMode,
		NotifyParentsOnRisk: d.NotifyParentsOnRisk,
		MaxProcessingTime:   time.Duration(d.MaxProcessingTimeMs * float64(time.Millisecond)),
		MaxInputLength:      d.MaxInputLength,
		CombineRule:         d.CombineRule,
		RepetitionTrigger:   d.RepetitionTrigger,
		HistoryWindow:       d.HistoryWindow,
		SessionTurnCeiling:  d.SessionTurnCeiling,
		PatternsPath:        d.PatternsPath,
	}
	if len(d.AgeBandOverrides) > 0 {
		cfg.AgeBandOverrides = make(map[string]config.ThresholdDelta, len(d.AgeBandOverrides))
		for band, o := range d.AgeBandOverrides {
			cfg.AgeBandOverrides[band] = config.ThresholdDelta{Toxicity: o.Toxicity, HighRisk: o.HighRisk, Critical: o.Critical}
		}
	}
	return cfg
}

// GetConfig exposes the active thresholds for operator inspection.
func (h *SafetyHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSafetyConfigDTO(h.engine.Config()))
}

// ReloadConfig atomically swaps thresholds and invalidates the cache. The
// posted version field is ignored; the engine assigns the next version.
func (h *SafetyHandler) ReloadConfig(w http.ResponseWriter, r *http.Request) {
	var dto safetyConfigDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.engine.ReloadConfig(dto.toConfig()); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	slog.Info("safety config reloaded", "version", h.engine.Config().Version)
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "reloaded", "version": h.engine.Config().Version})
}

// Events lists recent flagged analyses from the audit trail.
func (h *SafetyHandler) Events(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "audit trail not configured"})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be 1..500"})
			return
		}
		limit = n
	}

	events, err := h.audit.RecentEvents(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}
