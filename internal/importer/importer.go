// Package importer performs bounded, idempotent bulk writes of resolved
// readings against the event store. The import is at-least-once per chunk,
// never atomic across a whole file: chunks already committed stay committed
// when the operator abandons a run.
package importer

import (
	"context"

	"github.com/rs/zerolog"

	"race-timing-ingest/internal/logger"
	"race-timing-ingest/internal/model"
	apperrors "race-timing-ingest/pkg/errors"
)

// Store is the event-store write contract. InsertReadings returns the number
// of rows actually written (stores may coalesce) and surfaces uniqueness
// violations as a DuplicateError, distinct from generic failures.
type Store interface {
	InsertReadings(ctx context.Context, readings []model.TimingReading) (int, error)
}

// ProgressFunc reports chunk completion as a percentage for UI responsiveness.
type ProgressFunc func(done, total, percent int)

type Importer struct {
	store     Store
	chunkSize int
	log       zerolog.Logger
}

func New(store Store, chunkSize int) *Importer {
	if chunkSize <= 0 {
		chunkSize = 100
	}
	return &Importer{
		store:     store,
		chunkSize: chunkSize,
		log:       logger.For("importer"),
	}
}

// Run writes readings in fixed-size chunks, tallying per-chunk outcomes.
// unresolved is supplied by the caller, computed once from the full parsed
// set. A chunk rejected by the store's uniqueness constraint counts its whole
// size as duplicates; any other store failure counts it as errors and the
// remaining chunks proceed. Only transport faults abort the run, returning
// whatever totals were accumulated. Bad data never raises.
func (im *Importer) Run(ctx context.Context, readings []model.TimingReading, unresolved int, progress ProgressFunc) (*model.ImportResult, error) {
	result := &model.ImportResult{
		Total:      len(readings) + unresolved,
		Unresolved: unresolved,
	}

	done := 0
	for start := 0; start < len(readings); start += im.chunkSize {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		end := start + im.chunkSize
		if end > len(readings) {
			end = len(readings)
		}
		chunk := readings[start:end]

		written, err := im.store.InsertReadings(ctx, chunk)
		switch {
		case err == nil:
			result.Imported += written
		case apperrors.IsDuplicate(err):
			result.Duplicates += len(chunk)
			im.log.Debug().Int("chunk_size", len(chunk)).Msg("Chunk already imported")
		case apperrors.IsRetryable(err):
			im.log.Error().Err(err).Int("done", done).Msg("Transport fault, aborting remaining chunks")
			return result, err
		default:
			result.Errors += len(chunk)
			im.log.Warn().Err(err).Int("chunk_size", len(chunk)).Msg("Chunk write failed")
		}

		done += len(chunk)
		if progress != nil {
			progress(done, len(readings), done*100/len(readings))
		}
	}

	im.log.Info().
		Int("total", result.Total).
		Int("imported", result.Imported).
		Int("duplicates", result.Duplicates).
		Int("errors", result.Errors).
		Int("unresolved", result.Unresolved).
		Msg("Import run completed")

	return result, nil
}
