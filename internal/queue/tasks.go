package queue

import "github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/safety"

const (
	TypeBatchScan = "safety:batch_scan"
)

// BatchScanPayload carries a batch of analysis requests through the queue.
// Results are written to the safety-event audit store by the worker.
type BatchScanPayload struct {
	BatchID  string                   `json:"batch_id"`
	Requests []safety.AnalysisRequest `json:"requests"`
}
