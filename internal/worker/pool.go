package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"geno-backend/internal/metrics"
	"geno-backend/internal/models"
)

const (
	defaultQueueSize = 256
	writeTimeout     = 5 * time.Second
)

type exchangeRepository interface {
	Create(ctx context.Context, e *models.Exchange) error
}

// Pool writes exchange audit records in the background so that a slow
// database never delays a chat reply. Records that do not fit in the queue
// are dropped and counted.
type Pool struct {
	repo        exchangeRepository
	metrics     *metrics.Metrics
	jobs        chan models.Exchange
	workerCount int

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

func NewPool(repo exchangeRepository, m *metrics.Metrics, workerCount, queueSize int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 1 {
		queueSize = defaultQueueSize
	}
	return &Pool{
		repo:        repo,
		metrics:     m,
		jobs:        make(chan models.Exchange, queueSize),
		workerCount: workerCount,
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	log.Info().Int("workers", p.workerCount).Msg("Started audit worker goroutines")
}

// Record queues e for writing. It never blocks.
func (p *Pool) Record(e models.Exchange) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.drop(e, "pool stopped")
		return
	}

	select {
	case p.jobs <- e:
	default:
		p.drop(e, "queue full")
	}
}

func (p *Pool) drop(e models.Exchange, reason string) {
	p.metrics.AuditDropped()
	log.Warn().
		Str("session_id", e.SessionID).
		Str("request_id", e.RequestID).
		Str("reason", reason).
		Msg("Dropped exchange audit record")
}

// Stop stops accepting records and waits for queued ones to be written,
// giving up once ctx is done.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for e := range p.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := p.repo.Create(ctx, &e)
		cancel()

		if err != nil {
			log.Error().Err(err).
				Int("worker", id).
				Str("session_id", e.SessionID).
				Str("request_id", e.RequestID).
				Msg("Failed to write exchange audit record")
		}
	}

	log.Debug().Int("worker", id).Msg("Audit worker shutting down")
}
