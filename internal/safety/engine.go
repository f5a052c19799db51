package safety

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/JAAFAR1996/ai-teddy-bear--sub008/internal/config"
)

// layer is one analysis stage. Implementations must be safe for concurrent
// use and must respect ctx cancellation.
type layer interface {
	Name() string
	Analyze(ctx context.Context, req AnalysisRequest, cfg *config.SafetyConfig, patterns *PatternIndex) (LayerResult, error)
}

// snapshot bundles the config with the pattern index built from it, so a
// request always sees a consistent pair. Readers in flight keep using the
// snapshot they started with across reloads.
type snapshot struct {
	cfg      config.SafetyConfig
	patterns *PatternIndex
}

// Engine is the multi-layer content-safety analyzer. One instance serves
// all concurrent requests; the only mutable shared state is the cache and
// the atomically swapped config snapshot.
type Engine struct {
	snap    atomic.Pointer[snapshot]
	layers  []layer
	cache   *ContentCache
	metrics *Metrics
	workers int
}

// Options configures engine construction. Zero values fall back to
// sensible defaults; nil scorers mean deterministic-only layers.
type Options struct {
	ToxicityScorer    Scorer
	EmotionClassifier EmotionClassifier
	PatternCategories []PatternCategory
	CacheTTL          time.Duration
	CacheCapacity     int
	RemoteCache       RemoteCache
	Workers           int
	Registry          prometheus.Registerer
}

func NewEngine(cfg config.SafetyConfig, opts Options) (*Engine, error) {
	if err := validateBands(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	snap, err := buildSnapshot(cfg, opts.PatternCategories)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 8
	}

	e := &Engine{
		layers: []layer{
			NewToxicityLayer(opts.ToxicityScorer),
			NewAgeAppropriatenessLayer(),
			NewContextLayer(),
			NewEmotionalImpactLayer(opts.EmotionClassifier),
			NewEducationalValueLayer(),
		},
		cache:   NewContentCache(opts.CacheTTL, opts.CacheCapacity, opts.RemoteCache),
		metrics: NewMetrics(opts.Registry),
		workers: workers,
	}
	e.snap.Store(snap)
	return e, nil
}

func buildSnapshot(cfg config.SafetyConfig, categories []PatternCategory) (*snapshot, error) {
	if categories == nil {
		if cfg.PatternsPath != "" {
			loaded, err := LoadPatternCategories(cfg.PatternsPath)
			if err != nil {
				return nil, err
			}
			categories = loaded
		} else {
			categories = DefaultPatternCategories()
		}
	}
	patterns, err := NewPatternIndex(categories)
	if err != nil {
		return nil, err
	}
	return &snapshot{cfg: cfg, patterns: patterns}, nil
}

// Analyze runs the full layered analysis for one piece of text. It always
// returns within the configured processing budget plus small overhead: per
// layer failures and timeouts degrade the result, they never propagate.
// The only caller-visible error is oversized input.
func (e *Engine) Analyze(ctx context.Context, text string, childAge int, history []Turn) (*AnalysisResult, error) {
	return e.AnalyzeRequest(ctx, AnalysisRequest{
		Text:      text,
		ChildAge:  childAge,
		History:   history,
		RequestID: uuid.NewString(),
	})
}

// AnalyzeRequest is Analyze with an explicit request, preserving a caller
// supplied request ID.
func (e *Engine) AnalyzeRequest(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	snap := e.snap.Load()

	if len(req.Text) > snap.cfg.MaxInputLength {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrInputTooLarge, len(req.Text), snap.cfg.MaxInputLength)
	}

	start := time.Now()
	fp := Fingerprint(req.Text, req.ChildAge, snap.cfg.Version)

	result, cached, err := e.cache.GetOrCompute(ctx, fp, func() (*AnalysisResult, error) {
		return e.run(ctx, req, snap), nil
	})
	if err != nil {
		return nil, err
	}
	if cached {
		e.metrics.CacheHits.Inc()
	}

	e.metrics.recordResult(result, float64(time.Since(start).Microseconds())/1000.0)
	return result, nil
}

// run executes the five layers concurrently under the shared deadline and
// aggregates whatever completed. Layers that error, panic or miss the
// deadline count as failed; a failed risk layer forces at least HIGH.
func (e *Engine) run(ctx context.Context, req AnalysisRequest, snap *snapshot) *AnalysisResult {
	start := time.Now()

	// The computation may be shared by concurrent callers through the
	// cache's single flight, so one caller cancelling must not degrade
	// the result for the others. Only the engine budget bounds the run.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snap.cfg.MaxProcessingTime)
	defer cancel()

	type outcome struct {
		name string
		res  LayerResult
		err  error
	}

	outcomes := make(chan outcome, len(e.layers))
	for _, l := range e.layers {
		go func(l layer) {
			defer func() {
				if r := recover(); r != nil {
					outcomes <- outcome{name: l.Name(), err: fmt.Errorf("layer panic: %v", r)}
				}
			}()
			res, err := l.Analyze(ctx, req, &snap.cfg, snap.patterns)
			outcomes <- outcome{name: l.Name(), res: res, err: err}
		}(l)
	}

	layerResults := make(map[string]LayerResult, len(e.layers))
	var failed []string

	pending := len(e.layers)
collect:
	for pending > 0 {
		select {
		case o := <-outcomes:
			pending--
			if o.err != nil {
				e.metrics.LayerFailures.WithLabelValues(o.name, "error").Inc()
				slog.Warn("analysis layer failed", "layer", o.name, "request_id", req.RequestID, "error", o.err)
				if o.name != LayerEducational {
					failed = append(failed, o.name)
				}
				continue
			}
			layerResults[o.name] = o.res
		case <-ctx.Done():
			break collect
		}
	}

	if pending > 0 {
		// Deadline hit: every risk layer still outstanding is a timeout.
		for _, name := range riskLayers {
			if _, ok := layerResults[name]; ok {
				continue
			}
			if containsString(failed, name) {
				continue
			}
			failed = append(failed, name)
			e.metrics.LayerFailures.WithLabelValues(name, "timeout").Inc()
		}
		slog.Warn("analysis deadline exceeded",
			"request_id", req.RequestID,
			"budget", snap.cfg.MaxProcessingTime,
			"completed", len(layerResults))
	}

	result := Aggregate(req, layerResults, failed, &snap.cfg)
	result.ProcessingTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
	return result
}

// AnalyzeBatch analyzes items concurrently with bounded workers, preserving
// input order. Item failures are isolated: a failing item yields the
// fail-safe CRITICAL result instead of aborting its siblings.
func (e *Engine) AnalyzeBatch(ctx context.Context, reqs []AnalysisRequest) []*AnalysisResult {
	results := make([]*AnalysisResult, len(reqs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("batch item panic", "request_id", req.RequestID, "panic", r)
					snap := e.snap.Load()
					results[i] = FailSafeResult(req, &snap.cfg)
				}
			}()
			res, err := e.AnalyzeRequest(ctx, req)
			if err != nil {
				snap := e.snap.Load()
				results[i] = FailSafeResult(req, &snap.cfg)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ReloadConfig validates and atomically swaps the active configuration.
// In-flight requests keep their snapshot; the version bump makes every old
// cache fingerprint miss naturally.
func (e *Engine) ReloadConfig(cfg config.SafetyConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	old := e.snap.Load()
	cfg.Version = old.cfg.Version + 1

	snap, err := buildSnapshot(cfg, nil)
	if err != nil {
		return err
	}
	e.snap.Store(snap)
	e.cache.Invalidate()

	slog.Info("safety config reloaded", "version", cfg.Version)
	return nil
}

// Config returns the active configuration snapshot.
func (e *Engine) Config() config.SafetyConfig {
	return e.snap.Load().cfg
}

// Metrics returns the cumulative engine counters.
func (e *Engine) Metrics() MetricsSnapshot {
	hits, misses := e.cache.Stats()
	return e.metrics.snapshot(hits, misses)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
