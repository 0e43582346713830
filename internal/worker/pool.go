package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"race-timing-ingest/internal/logger"
)

type WorkerPool struct {
	workerCount int
	jobChan     chan func(context.Context) error
	wg          sync.WaitGroup
	log         zerolog.Logger
}

func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &WorkerPool{
		workerCount: workerCount,
		jobChan:     make(chan func(context.Context) error, workerCount*2),
		log:         logger.For("worker-pool"),
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	wp.log.Info().Int("worker_count", wp.workerCount).Msg("Starting worker pool")

	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) Stop() {
	wp.log.Info().Msg("Stopping worker pool")
	close(wp.jobChan)
	wp.wg.Wait()
	wp.log.Info().Msg("Worker pool stopped")
}

func (wp *WorkerPool) Submit(job func(context.Context) error) {
	select {
	case wp.jobChan <- job:
	default:
		wp.log.Warn().Msg("Worker pool job queue full, job dropped")
	}
}

// runJob converts a panicking job into an error so one bad job cannot take
// down the whole worker process.
func (wp *WorkerPool) runJob(ctx context.Context, job func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job(ctx)
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	log := wp.log.With().Int("worker_id", id).Logger()
	log.Debug().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Worker stopping due to context cancellation")
			return
		case job, ok := <-wp.jobChan:
			if !ok {
				log.Debug().Msg("Worker stopping due to closed job channel")
				return
			}

			if err := wp.runJob(ctx, job); err != nil {
				log.Error().Err(err).Msg("Job execution failed")
			}
		}
	}
}
