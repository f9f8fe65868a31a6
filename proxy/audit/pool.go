// Package audit provides an asynchronous worker pool that records a summary
// of every relayed request. The pool keeps summary logging and counters off
// the proxy's hot path so the client-proxy-upstream interaction stays fully
// transparent.
package audit

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	defaultNumWorkers   uint = 2
	defaultJobQueueSize uint = 256
)

// Record is one relayed request's summary.
type Record struct {
	RequestID string
	Method    string
	Path      string
	Status    int
	Streaming bool
	Injected  []string
	Duration  time.Duration
}

// Config is the configuration options for the audit pool.
type Config struct {
	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered record channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes audit records asynchronously via a worker pool.
type Pool struct {
	queue  chan Record
	wg     sync.WaitGroup
	logger *zap.Logger

	relayed  atomic.Uint64
	injected atomic.Uint64
	dropped  atomic.Uint64
}

// Stats is a snapshot of the pool's counters.
type Stats struct {
	// Relayed counts records processed by the workers.
	Relayed uint64

	// Injected counts relayed requests that had at least one sampling
	// parameter written into their body.
	Injected uint64

	// Dropped counts records discarded because the queue was full.
	Dropped uint64
}

// NewPool creates a Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	p := &Pool{
		queue:  make(chan Record, c.QueueSize),
		logger: c.Logger,
	}

	p.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go p.worker(i)
	}

	return p, nil
}

// Enqueue submits a record for processing. Returns true if enqueued, false
// if the queue is full and the record was dropped; the relay never blocks on
// auditing.
func (p *Pool) Enqueue(rec Record) bool {
	select {
	case p.queue <- rec:
		return true
	default:
		p.dropped.Add(1)
		p.logger.Warn("audit queue full, record dropped",
			zap.String("request_id", rec.RequestID),
			zap.String("path", rec.Path),
		)
		return false
	}
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Relayed:  p.relayed.Load(),
		Injected: p.injected.Load(),
		Dropped:  p.dropped.Load(),
	}
}

// Close signals workers to stop and waits for queued records to drain.
// Call this during graceful shutdown after the HTTP server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker continuously pulls records off the queue.
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("audit worker started", zap.Uint("worker_id", id))

	for rec := range p.queue {
		p.process(rec)
	}

	p.logger.Debug("audit worker stopped", zap.Uint("worker_id", id))
}

func (p *Pool) process(rec Record) {
	p.relayed.Add(1)
	if len(rec.Injected) > 0 {
		p.injected.Add(1)
	}

	p.logger.Info("request relayed",
		zap.String("request_id", rec.RequestID),
		zap.String("method", rec.Method),
		zap.String("path", rec.Path),
		zap.Int("status", rec.Status),
		zap.Bool("streaming", rec.Streaming),
		zap.Strings("injected", rec.Injected),
		zap.Duration("duration", rec.Duration),
	)
}
