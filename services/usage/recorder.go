package usage

import (
	"context"
	"sync"
	"time"

	"github.com/voyagerhq/llm-gateway/models"
	"github.com/voyagerhq/llm-gateway/repositories"
	"go.uber.org/zap"
)

// Config holds recorder tuning.
type Config struct {
	BufferSize  int
	WorkerCount int
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize:  10000,
		WorkerCount: 4,
	}
}

// Recorder persists usage records asynchronously through a buffered channel
// and a small worker pool, keeping the request path free of storage latency.
// Metrics are observed synchronously on Record so the metrics endpoint never
// lags behind the buffer.
type Recorder struct {
	repo        repositories.UsageRepository
	metrics     *Metrics
	logger      *zap.Logger
	recordChan  chan *models.UsageRecord
	workerCount int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	stopped     bool
	dropped     uint64
	mu          sync.Mutex
}

// NewRecorder creates a recorder draining into repo.
func NewRecorder(repo repositories.UsageRepository, metrics *Metrics, logger *zap.Logger, cfg Config) *Recorder {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultConfig().WorkerCount
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Recorder{
		repo:        repo,
		metrics:     metrics,
		logger:      logger,
		recordChan:  make(chan *models.UsageRecord, cfg.BufferSize),
		workerCount: cfg.WorkerCount,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the worker pool. Idempotent; a stopped recorder stays
// stopped.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true

	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.logger.Info("usage recorder started", zap.Int("workers", r.workerCount))
}

// Stop drains the buffer and waits for the workers to exit. Records arriving
// after Stop are dropped, never sent on the closed channel.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.started = false
	r.stopped = true
	r.mu.Unlock()

	close(r.recordChan)
	r.wg.Wait()
	r.cancel()
	r.logger.Info("usage recorder stopped", zap.Uint64("dropped", r.dropped))
}

// Record enqueues one usage record without blocking. When the buffer is full,
// or the recorder has already stopped, the record is counted as dropped rather
// than stalling a request; metrics still observe it either way.
func (r *Recorder) Record(rec *models.UsageRecord) {
	if r.metrics != nil {
		r.metrics.Observe(rec)
	}

	// The send happens under the mutex so it cannot race the close in Stop.
	r.mu.Lock()
	if r.stopped {
		r.dropped++
		dropped := r.dropped
		r.mu.Unlock()
		r.logger.Warn("recorder stopped, record dropped",
			zap.String("request_id", rec.RequestID.String()),
			zap.Uint64("total_dropped", dropped))
		return
	}
	select {
	case r.recordChan <- rec:
		r.mu.Unlock()
	default:
		r.dropped++
		dropped := r.dropped
		r.mu.Unlock()
		r.logger.Warn("usage buffer full, record dropped",
			zap.String("request_id", rec.RequestID.String()),
			zap.Uint64("total_dropped", dropped))
	}
}

func (r *Recorder) worker(id int) {
	defer r.wg.Done()

	for rec := range r.recordChan {
		writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := r.repo.Insert(writeCtx, rec); err != nil {
			r.logger.Error("failed to persist usage record",
				zap.Int("worker", id),
				zap.String("request_id", rec.RequestID.String()),
				zap.Error(err))
		}
		cancel()
	}
}
