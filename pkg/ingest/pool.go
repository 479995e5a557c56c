package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/models"
)

// PoolConfig tunes the polling worker pool, mirroring the teacher's
// config.QueueConfig shape (worker count, poll interval, orphan staleness).
type PoolConfig struct {
	WorkerCount    int
	PollInterval   time.Duration
	MaxRetries     int
	StaleAfter     time.Duration // ListStuckProcessing threshold
	OrphanInterval time.Duration
}

// DefaultPoolConfig returns sensible single-node defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		WorkerCount:    4,
		PollInterval:   2 * time.Second,
		MaxRetries:     3,
		StaleAfter:     30 * time.Minute,
		OrphanInterval: 5 * time.Minute,
	}
}

// JobQueue is the subset of store.IngestJobRepo the Pool needs: claiming
// work and bookkeeping around failure/retry/orphan recovery.
type JobQueue interface {
	ClaimNext(ctx context.Context) (*models.IngestJob, error)
	IncrementRetry(ctx context.Context, id string) (int, error)
	MarkFailed(ctx context.Context, id string, msg string) error
	ListStuckProcessing(ctx context.Context, staleAfter time.Duration) ([]*models.IngestJob, error)
}

// Pool polls for pending jobs and hands each to the Coordinator, the same
// claim/poll/backoff shape as the teacher's queue.WorkerPool/Worker pair,
// generalized from ent-backed alert sessions to store-backed ingest jobs.
type Pool struct {
	cfg   PoolConfig
	coord *Coordinator
	jobs  JobQueue

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPool builds a Pool backed by coord for job execution and jobs for
// claim/retry bookkeeping.
func NewPool(cfg PoolConfig, coord *Coordinator, jobs JobQueue) *Pool {
	return &Pool{cfg: cfg, coord: coord, jobs: jobs, stopCh: make(chan struct{})}
}

// Start spawns WorkerCount polling goroutines plus one orphan-recovery
// goroutine, matching queue.WorkerPool.Start's shape.
func (p *Pool) Start(ctx context.Context) {
	slog.Info("starting ingest worker pool", "worker_count", p.cfg.WorkerCount)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		id := i
		go p.runWorker(ctx, id)
	}
	p.wg.Add(1)
	go p.runOrphanRecovery(ctx)
}

// Stop signals every worker to stop and waits for in-flight jobs to drain.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	slog.Info("ingest worker pool stopped")
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := slog.With("worker_id", id)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.jobs.ClaimNext(ctx)
		if err != nil {
			if errors.Is(err, apperrors.NotFound) {
				p.sleep(p.cfg.PollInterval)
				continue
			}
			log.Error("claim failed", "error", err)
			p.sleep(time.Second)
			continue
		}

		log.Info("job claimed", "job_id", job.ID)
		if err := p.coord.Run(ctx, job); err != nil {
			p.handleFailure(ctx, job, err)
		}
	}
}

// handleFailure applies §4.4's "failed -> pending via explicit retry"
// transition automatically up to MaxRetries, then leaves the job failed
// for a human to retry explicitly via the API.
func (p *Pool) handleFailure(ctx context.Context, job *models.IngestJob, cause error) {
	slog.Error("job failed", "job_id", job.ID, "error", cause)
	if job.RetryCount >= p.cfg.MaxRetries {
		return
	}
	if _, err := p.jobs.IncrementRetry(ctx, job.ID); err != nil {
		slog.Error("failed to schedule retry", "job_id", job.ID, "error", err)
	}
}

func (p *Pool) sleep(d time.Duration) {
	select {
	case <-p.stopCh:
	case <-time.After(d):
	}
}

// runOrphanRecovery periodically marks failed the jobs stuck in
// "processing" past StaleAfter — a worker that died mid-job without
// finishing it.
func (p *Pool) runOrphanRecovery(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.OrphanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			stuck, err := p.jobs.ListStuckProcessing(ctx, p.cfg.StaleAfter)
			if err != nil {
				slog.Error("orphan scan failed", "error", err)
				continue
			}
			for _, job := range stuck {
				slog.Warn("recovering orphaned job", "job_id", job.ID)
				if err := p.jobs.MarkFailed(ctx, job.ID, "orphaned: exceeded processing staleness threshold"); err != nil {
					slog.Error("failed to mark orphan failed", "job_id", job.ID, "error", err)
				}
			}
		}
	}
}
