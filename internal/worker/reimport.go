package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"race-timing-ingest/internal/config"
	"race-timing-ingest/internal/db"
	"race-timing-ingest/internal/logger"
	"race-timing-ingest/internal/model"
	"race-timing-ingest/internal/queue"
	"race-timing-ingest/internal/reimport"
	apperrors "race-timing-ingest/pkg/errors"
)

const reimportWindowLayout = "2006-01-02 15:04:05"

// ReimportWorker drains the reimport queue, re-driving gps samples of a
// window through the checkpoint-crossing detector.
type ReimportWorker struct {
	cfg        *config.Config
	trigger    *reimport.Trigger
	consumer   *queue.Consumer
	workerPool *WorkerPool
	log        zerolog.Logger
}

func NewReimportWorker(
	cfg *config.Config,
	repo db.Repository,
	detector reimport.Detector,
	redisClient *queue.RedisClient,
) *ReimportWorker {
	return &ReimportWorker{
		cfg:        cfg,
		trigger:    reimport.New(repo, detector),
		consumer:   queue.NewConsumer(redisClient, cfg),
		workerPool: NewWorkerPool(cfg.Workers.Reimport.Count),
		log:        logger.For("reimport-worker"),
	}
}

func (w *ReimportWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting reimport worker")
	w.workerPool.Start(ctx)
	return w.consumer.ConsumeReimportQueue(ctx, w.handleMessage)
}

func (w *ReimportWorker) Stop() {
	w.log.Info().Msg("Stopping reimport worker")
	w.workerPool.Stop()
}

func (w *ReimportWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.ReimportJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal reimport job")
		return err
	}

	w.workerPool.Submit(func(ctx context.Context) error {
		return w.processJob(ctx, job)
	})
	return nil
}

func (w *ReimportWorker) processJob(ctx context.Context, job model.ReimportJob) error {
	start, err := time.ParseInLocation(reimportWindowLayout, job.Start, time.Local)
	if err != nil {
		return fmt.Errorf("invalid window start %q: %w", job.Start, err)
	}
	end, err := time.ParseInLocation(reimportWindowLayout, job.End, time.Local)
	if err != nil {
		return fmt.Errorf("invalid window end %q: %w", job.End, err)
	}

	_, err = w.trigger.Run(ctx, job.RaceID, start, end)
	if errors.Is(err, apperrors.ErrNoSamplesInWindow) {
		// reported, nothing to reprocess; not a poisoned job
		return nil
	}
	return err
}
