package refresh

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job re-fetches one cached search. Jobs with the same Key are not queued
// twice while one is pending or running.
type Job struct {
	Key string
	Run func(ctx context.Context) error
}

type Refresher struct {
	ch      chan Job
	inFly   sync.Map // key -> struct{}
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup

	mu     sync.RWMutex // guards closed and sends on ch
	closed bool
}

func New(capacity int, workerCount int, timeout time.Duration, logger *zap.Logger) *Refresher {
	if capacity <= 0 {
		capacity = 256
	}
	if workerCount <= 0 {
		workerCount = 2
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Refresher{ch: make(chan Job, capacity), timeout: timeout, logger: logger.Named("refresh")}
	for i := 0; i < workerCount; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Enqueue schedules j and reports whether it was accepted. Jobs offered after
// Close are rejected.
func (r *Refresher) Enqueue(j Job) bool {
	if j.Run == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	if _, exists := r.inFly.LoadOrStore(j.Key, struct{}{}); exists {
		return false
	}
	select {
	case r.ch <- j:
		return true
	default:
		// drop if saturated
		r.inFly.Delete(j.Key)
		r.logger.Warn("refresh queue full, dropping job", zap.String("key", j.Key))
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (r *Refresher) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Refresher) worker() {
	defer r.wg.Done()
	for j := range r.ch {
		r.run(j)
	}
}

func (r *Refresher) run(j Job) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer func() {
		r.inFly.Delete(j.Key)
		cancel()
	}()
	start := time.Now()
	if err := j.Run(ctx); err != nil {
		r.logger.Warn("refresh failed", zap.String("key", j.Key), zap.Error(err))
		return
	}
	r.logger.Debug("refreshed", zap.String("key", j.Key), zap.Duration("took", time.Since(start)))
}
