package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/tracker"
)

// ErrStaleFix indicates the fix was recorded too long ago to act on.
var ErrStaleFix = errors.New("location fix is stale")

// IngestJob runs location fixes through the geofence tracker.
type IngestJob struct {
	config  IngestConfig
	tracker *tracker.Tracker
	logger  zerolog.Logger

	metrics *IngestMetrics

	// now is the clock, overridable for tests.
	now func() time.Time
}

// IngestMetrics tracks ingest job statistics.
type IngestMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalFixes       int64
	ProcessedFixes   int64
	StaleFixes       int64
	InvalidFixes     int64
	DroppedInFlight  int64
	FailedFixes      int64
	TransitionEvents int64

	// Timings
	LastFixAt       time.Time
	LastFixDuration time.Duration
}

// IngestJobConfig holds configuration for creating an IngestJob.
type IngestJobConfig struct {
	Config  IngestConfig
	Tracker *tracker.Tracker
	Logger  zerolog.Logger
}

// NewIngestJob creates a new location fix ingest processor.
func NewIngestJob(cfg IngestJobConfig) *IngestJob {
	return &IngestJob{
		config:  cfg.Config.withDefaults(),
		tracker: cfg.Tracker,
		logger:  cfg.Logger,
		metrics: &IngestMetrics{},
		now:     time.Now,
	}
}

// Process runs one fix through the tracker and returns the transitions it
// produced. Stale fixes and fixes dropped because a previous one for the same
// user is still processing are not errors to the caller.
func (j *IngestJob) Process(ctx context.Context, fix tracker.Fix) ([]tracker.Event, error) {
	startTime := j.now()
	atomic.AddInt64(&j.metrics.TotalFixes, 1)

	if !fix.RecordedAt.IsZero() && startTime.Sub(fix.RecordedAt) > j.config.MaxStale {
		atomic.AddInt64(&j.metrics.StaleFixes, 1)
		j.logger.Debug().
			Str("user_id", fix.UserID).
			Time("recorded_at", fix.RecordedAt).
			Msg("dropping stale location fix")
		return nil, ErrStaleFix
	}

	fixCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	events, err := j.tracker.ProcessFix(fixCtx, fix)
	if err != nil {
		switch {
		case errors.Is(err, tracker.ErrFixInFlight):
			atomic.AddInt64(&j.metrics.DroppedInFlight, 1)
		case errors.Is(err, tracker.ErrInvalidFix):
			atomic.AddInt64(&j.metrics.InvalidFixes, 1)
		default:
			atomic.AddInt64(&j.metrics.FailedFixes, 1)
		}
		return nil, err
	}

	atomic.AddInt64(&j.metrics.ProcessedFixes, 1)
	atomic.AddInt64(&j.metrics.TransitionEvents, int64(len(events)))
	j.recordTiming(startTime)

	return events, nil
}

// BatchResult contains the outcome of a batch ingest run.
type BatchResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	TotalFixes  int
	Processed   int
	Dropped     int
	Failed      int
	Transitions int
}

// RunBatch replays a set of fixes through the tracker with a worker pool.
// Used for backfill after an outage; live fixes arrive one at a time via
// Process.
func (j *IngestJob) RunBatch(ctx context.Context, fixes []tracker.Fix) *BatchResult {
	startTime := j.now()
	result := &BatchResult{
		StartTime:  startTime,
		TotalFixes: len(fixes),
	}

	j.logger.Info().
		Int("total_fixes", len(fixes)).
		Int("concurrency", j.config.Concurrency).
		Msg("starting location fix batch ingest")

	fixChan := make(chan tracker.Fix, len(fixes))
	resultChan := make(chan fixOutcome, len(fixes))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.ingestWorker(ctx, fixChan, resultChan)
		}()
	}

	for _, f := range fixes {
		fixChan <- f
	}
	close(fixChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for out := range resultChan {
		switch {
		case out.err == nil:
			result.Processed++
			result.Transitions += out.events
		case errors.Is(out.err, ErrStaleFix), errors.Is(out.err, tracker.ErrFixInFlight):
			result.Dropped++
		default:
			result.Failed++
		}
	}

	result.EndTime = j.now()
	result.Duration = result.EndTime.Sub(startTime)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("processed", result.Processed).
		Int("dropped", result.Dropped).
		Int("failed", result.Failed).
		Int("transitions", result.Transitions).
		Msg("location fix batch ingest completed")

	return result
}

type fixOutcome struct {
	events int
	err    error
}

func (j *IngestJob) ingestWorker(ctx context.Context, fixes <-chan tracker.Fix, results chan<- fixOutcome) {
	for fix := range fixes {
		select {
		case <-ctx.Done():
			results <- fixOutcome{err: ctx.Err()}
		default:
			events, err := j.Process(ctx, fix)
			results <- fixOutcome{events: len(events), err: err}
		}
	}
}

func (j *IngestJob) recordTiming(startTime time.Time) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()
	j.metrics.LastFixAt = startTime
	j.metrics.LastFixDuration = j.now().Sub(startTime)
}

// GetMetrics returns a copy of the current metrics.
func (j *IngestJob) GetMetrics() IngestMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return IngestMetrics{
		TotalFixes:       atomic.LoadInt64(&j.metrics.TotalFixes),
		ProcessedFixes:   atomic.LoadInt64(&j.metrics.ProcessedFixes),
		StaleFixes:       atomic.LoadInt64(&j.metrics.StaleFixes),
		InvalidFixes:     atomic.LoadInt64(&j.metrics.InvalidFixes),
		DroppedInFlight:  atomic.LoadInt64(&j.metrics.DroppedInFlight),
		FailedFixes:      atomic.LoadInt64(&j.metrics.FailedFixes),
		TransitionEvents: atomic.LoadInt64(&j.metrics.TransitionEvents),
		LastFixAt:        j.metrics.LastFixAt,
		LastFixDuration:  j.metrics.LastFixDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *IngestJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_fixes":       m.TotalFixes,
		"processed_fixes":   m.ProcessedFixes,
		"stale_fixes":       m.StaleFixes,
		"invalid_fixes":     m.InvalidFixes,
		"dropped_in_flight": m.DroppedInFlight,
		"failed_fixes":      m.FailedFixes,
		"transition_events": m.TransitionEvents,
		"last_fix_at":       m.LastFixAt,
		"last_fix_duration": m.LastFixDuration.String(),
	}
}
