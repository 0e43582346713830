package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"race-timing-ingest/internal/config"
	"race-timing-ingest/internal/db"
	"race-timing-ingest/internal/format"
	"race-timing-ingest/internal/importer"
	"race-timing-ingest/internal/logger"
	"race-timing-ingest/internal/model"
	"race-timing-ingest/internal/parse"
	"race-timing-ingest/internal/queue"
	"race-timing-ingest/internal/resolve"
	"race-timing-ingest/internal/storage"
)

// ImportWorker drains the import queue: it downloads the uploaded reader
// file, detects or applies its format, resolves chips against the race's
// index and drives the chunked batch import, recording the run's audit row.
type ImportWorker struct {
	cfg        *config.Config
	repo       db.Repository
	storage    storage.Storage
	parser     *parse.Parser
	consumer   *queue.Consumer
	workerPool *WorkerPool
	log        zerolog.Logger
}

func NewImportWorker(
	cfg *config.Config,
	repo db.Repository,
	store storage.Storage,
	redisClient *queue.RedisClient,
) *ImportWorker {
	return &ImportWorker{
		cfg:        cfg,
		repo:       repo,
		storage:    store,
		parser:     parse.NewParser(),
		consumer:   queue.NewConsumer(redisClient, cfg),
		workerPool: NewWorkerPool(cfg.Workers.Import.Count),
		log:        logger.For("import-worker"),
	}
}

func (w *ImportWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting import worker")
	w.workerPool.Start(ctx)
	return w.consumer.ConsumeImportQueue(ctx, w.handleMessage)
}

func (w *ImportWorker) Stop() {
	w.log.Info().Msg("Stopping import worker")
	w.workerPool.Stop()
}

func (w *ImportWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.ImportJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal import job")
		return err
	}

	w.log.Info().Str("run_id", job.RunID).Int64("race_id", job.RaceID).Str("file_key", job.FileKey).Msg("Processing import job")

	w.workerPool.Submit(func(ctx context.Context) error {
		return w.processRun(ctx, job)
	})

	return nil
}

// raceStore scopes the repository's bulk insert to one race for the importer.
type raceStore struct {
	repo   db.Repository
	raceID int64
}

func (s raceStore) InsertReadings(ctx context.Context, readings []model.TimingReading) (int, error) {
	return s.repo.InsertReadings(ctx, s.raceID, readings)
}

func (w *ImportWorker) processRun(ctx context.Context, job model.ImportJob) error {
	log := w.log.With().Str("run_id", job.RunID).Logger()

	if err := w.repo.UpdateImportRun(ctx, job.RunID, model.ImportRunRunning, nil, nil); err != nil {
		log.Error().Err(err).Msg("Failed to mark run as running")
		return err
	}

	result, err := w.runImport(ctx, job, log)
	if err != nil {
		errorMsg := err.Error()
		if updErr := w.repo.UpdateImportRun(ctx, job.RunID, model.ImportRunFailed, result, &errorMsg); updErr != nil {
			log.Error().Err(updErr).Msg("Failed to record failed run")
		}
		return err
	}

	status := model.ImportRunImported
	if result.Errors > 0 || result.Unresolved > 0 {
		status = model.ImportRunWithErrors
	}
	if err := w.repo.UpdateImportRun(ctx, job.RunID, status, result, nil); err != nil {
		log.Error().Err(err).Msg("Failed to record run result")
		return err
	}

	log.Info().
		Int("imported", result.Imported).
		Int("duplicates", result.Duplicates).
		Int("errors", result.Errors).
		Int("unresolved", result.Unresolved).
		Msg("Import run finished")
	return nil
}

func (w *ImportWorker) runImport(ctx context.Context, job model.ImportJob, log zerolog.Logger) (*model.ImportResult, error) {
	reader, err := w.storage.Download(ctx, job.FileKey)
	if err != nil {
		return nil, fmt.Errorf("failed to download timing file: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing file: %w", err)
	}

	defaultDate, err := parseDefaultDate(job.DefaultDate)
	if err != nil {
		return nil, err
	}

	lines := parse.SplitLines(string(data))
	parsed, err := w.parseLines(lines, job, defaultDate)
	if err != nil {
		return nil, err
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("timing file contains no data lines")
	}

	index, err := w.repo.ChipIndex(ctx, job.RaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chip index: %w", err)
	}

	defaults := resolve.Defaults{
		RaceDistanceID: job.RaceDistanceID,
		TimingPointID:  job.TimingPointID,
	}
	resolved := resolve.NewResolver(index).Resolve(parsed, defaults)
	unresolved := resolve.CountUnresolved(resolved)
	readings := resolve.BuildReadings(resolved, defaults)

	log.Debug().Int("lines", len(parsed)).Int("resolved", len(readings)).Int("unresolved", unresolved).Msg("File parsed and resolved")

	imp := importer.New(raceStore{repo: w.repo, raceID: job.RaceID}, w.cfg.Import.ChunkSize)
	return imp.Run(ctx, readings, unresolved, func(done, total, percent int) {
		log.Debug().Int("done", done).Int("total", total).Int("percent", percent).Msg("Import progress")
	})
}

func (w *ImportWorker) parseLines(lines []string, job model.ImportJob, defaultDate time.Time) ([]model.ParsedLine, error) {
	if job.Simple != nil {
		return w.parser.ParseSimple(lines, *job.Simple, defaultDate), nil
	}

	sample := firstNonBlank(lines)
	if sample == "" {
		return nil, fmt.Errorf("timing file is empty")
	}

	detected, err := format.Detect(sample)
	if err != nil {
		return nil, fmt.Errorf("format detection failed, re-submit with an explicit column mapping: %w", err)
	}

	return w.parser.ParseDetected(lines, detected, defaultDate), nil
}

func firstNonBlank(lines []string) string {
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

func parseDefaultDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.ParseInLocation("2006-01-02", value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid default date %q: %w", value, err)
	}
	return parsed, nil
}
