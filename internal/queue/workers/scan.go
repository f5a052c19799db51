package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/audit"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/notify"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/queue"
	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/safety"
)

// ScanWorker runs queued batch scans through the engine and records the
// outcomes in the audit store.
type ScanWorker struct {
	engine   *safety.Engine
	audit    *audit.Service
	notifier *notify.Dispatcher
}

func NewScanWorker(engine *safety.Engine, auditSvc *audit.Service, notifier *notify.Dispatcher) *ScanWorker {
	return &ScanWorker{engine: engine, audit: auditSvc, notifier: notifier}
}

func (w *ScanWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.BatchScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal batch scan payload: %w", err)
	}

	results := w.engine.AnalyzeBatch(ctx, payload.Requests)

	var blocked int
	for i, result := range results {
		if !result.IsSafe {
			blocked++
		}
		if w.notifier != nil {
			w.notifier.Notify(result, payload.Requests[i].ChildAge)
		}
		if w.audit == nil {
			continue
		}
		if err := w.audit.RecordResult(ctx, result, payload.Requests[i].ChildAge); err != nil {
			slog.Warn("failed to record safety event",
				"batch_id", payload.BatchID, "request_id", result.RequestID, "error", err)
		}
	}

	slog.Info("batch scan complete",
		"batch_id", payload.BatchID, "items", len(results), "blocked", blocked)
	return nil
}
