package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/certgen/internal/model"
)

// Dispatcher hands a batch job to background execution. Dispatch returns as
// soon as the job is accepted; completion is observed through batch status.
type Dispatcher interface {
	Dispatch(ctx context.Context, job model.BatchJob) error
}

// ItemProcessor executes batch items. BatchService implements it.
type ItemProcessor interface {
	ProcessItem(ctx context.Context, batchID string, index int, req model.CertificateRequest) model.CertificateRecord
	FailItem(ctx context.Context, batchID string, index int, req model.CertificateRequest, cause error) model.CertificateRecord
	Complete(ctx context.Context, batchID string) (*model.BatchProgress, error)
}

// LocalDispatcher runs batch jobs in-process on a fixed set of workers fed
// by a bounded queue. Jobs still queued when the process exits are lost.
type LocalDispatcher struct {
	queue   chan model.BatchJob
	workers int
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewLocalDispatcher(workers, queueSize int, logger zerolog.Logger) *LocalDispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &LocalDispatcher{
		queue:   make(chan model.BatchJob, queueSize),
		workers: workers,
		logger:  logger.With().Str("component", "local-dispatcher").Logger(),
	}
}

// Start launches the workers. It must be called once before jobs can run.
func (d *LocalDispatcher) Start(proc ItemProcessor) {
	for range d.workers {
		d.wg.Add(1)
		go d.work(proc)
	}
	d.logger.Info().Int("workers", d.workers).Int("queue_size", cap(d.queue)).Msg("batch workers started")
}

// Dispatch enqueues job without blocking. It fails with ErrQueueFull when
// the queue is at capacity.
func (d *LocalDispatcher) Dispatch(_ context.Context, job model.BatchJob) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish or for
// ctx to end.
func (d *LocalDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("batch workers still running: %w", ctx.Err())
	}
}

func (d *LocalDispatcher) work(proc ItemProcessor) {
	defer d.wg.Done()
	for job := range d.queue {
		d.run(proc, job)
	}
}

func (d *LocalDispatcher) run(proc ItemProcessor, job model.BatchJob) {
	ctx := context.Background()
	log := d.logger.With().Str("batch_id", job.BatchID).Logger()
	log.Info().Int("items", len(job.Items)).Msg("processing batch")

	limit := job.Parallelism
	if limit < 1 {
		limit = 1
	}
	g := new(errgroup.Group)
	g.SetLimit(limit)
	for i, item := range job.Items {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Int("index", i).Interface("panic", r).Msg("batch item panicked")
					proc.FailItem(ctx, job.BatchID, i, item, fmt.Errorf("panic: %v", r))
				}
			}()
			proc.ProcessItem(ctx, job.BatchID, i, item)
			return nil
		})
	}
	_ = g.Wait()

	if _, err := proc.Complete(ctx, job.BatchID); err != nil {
		log.Error().Err(err).Msg("failed to record batch completion")
	}
}
