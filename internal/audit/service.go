// Package audit persists safety events: blocked content, high-risk
// detections and parent-alert flags. Notification delivery itself is
// handled outside this service; only the record is kept here.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/safety"
)

type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

// SafetyEvent is one persisted analysis outcome worth keeping.
type SafetyEvent struct {
	RequestID        string                `json:"request_id"`
	ChildAge         int                   `json:"child_age"`
	RiskLevel        safety.RiskLevel      `json:"risk_level"`
	IsSafe           bool                  `json:"is_safe"`
	TriggeredReasons []string              `json:"triggered_reasons"`
	ParentAlert      bool                  `json:"parent_alert"`
	Modifications    []safety.Modification `json:"modifications,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
}

// RecordResult stores an event for any analysis that blocked content,
// detected at least medium risk or flagged a parent alert. Safe results
// are not persisted.
func (s *Service) RecordResult(ctx context.Context, result *safety.AnalysisResult, childAge int) error {
	if result.IsSafe && result.OverallRiskLevel < safety.RiskMedium && !result.ParentNotificationRequired {
		return nil
	}

	var reasons []string
	for _, lr := range result.LayerResults {
		reasons = append(reasons, lr.TriggeredReasons...)
	}
	reasonsJSON, _ := json.Marshal(reasons)
	modsJSON, _ := json.Marshal(result.RequiredModifications)

	_, err := s.db.Exec(ctx,
		`INSERT INTO safety_events (request_id, child_age, risk_level, is_safe, triggered_reasons, parent_alert, modifications)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		result.RequestID, childAge, result.OverallRiskLevel.String(), result.IsSafe,
		reasonsJSON, result.ParentNotificationRequired, modsJSON,
	)
	if err != nil {
		return fmt.Errorf("insert safety event: %w", err)
	}
	return nil
}

// RecentEvents returns the latest events, newest first.
func (s *Service) RecentEvents(ctx context.Context, limit int) ([]SafetyEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT request_id, child_age, risk_level, is_safe, triggered_reasons, parent_alert, modifications, created_at
		 FROM safety_events ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query safety events: %w", err)
	}
	defer rows.Close()

	var events []SafetyEvent
	for rows.Next() {
		var (
			ev          SafetyEvent
			level       string
			reasonsJSON []byte
			modsJSON    []byte
		)
		if err := rows.Scan(&ev.RequestID, &ev.ChildAge, &level, &ev.IsSafe, &reasonsJSON, &ev.ParentAlert, &modsJSON, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan safety event: %w", err)
		}
		_ = json.Unmarshal(reasonsJSON, &ev.TriggeredReasons)
		_ = json.Unmarshal(modsJSON, &ev.Modifications)
		_ = ev.RiskLevel.UnmarshalJSON([]byte(`"` + level + `"`))
		events = append(events, ev)
	}
	return events, rows.Err()
}

// EnsureSchema creates the events table if it does not exist.
func (s *Service) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS safety_events (
			id BIGSERIAL PRIMARY KEY,
			request_id TEXT NOT NULL,
			child_age INT NOT NULL,
			risk_level TEXT NOT NULL,
			is_safe BOOLEAN NOT NULL,
			triggered_reasons JSONB NOT NULL DEFAULT '[]',
			parent_alert BOOLEAN NOT NULL DEFAULT FALSE,
			modifications JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create safety_events table: %w", err)
	}
	return nil
}
