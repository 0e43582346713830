package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"race-timing-ingest/internal/model"
	apperrors "race-timing-ingest/pkg/errors"
)

type stubStore struct {
	chunks   [][]model.TimingReading
	failWith func(chunk int) error
}

func (s *stubStore) InsertReadings(ctx context.Context, readings []model.TimingReading) (int, error) {
	chunk := len(s.chunks)
	s.chunks = append(s.chunks, readings)
	if s.failWith != nil {
		if err := s.failWith(chunk); err != nil {
			return 0, err
		}
	}
	return len(readings), nil
}

func makeReadings(n int) []model.TimingReading {
	readings := make([]model.TimingReading, n)
	for i := range readings {
		readings[i] = model.TimingReading{BibNumber: i + 1, ChipCode: "CHIP"}
	}
	return readings
}

func TestRunChunksAndProgress(t *testing.T) {
	store := &stubStore{}
	im := New(store, 100)

	var percents []int
	result, err := im.Run(context.Background(), makeReadings(250), 5, func(done, total, percent int) {
		percents = append(percents, percent)
	})

	assert.NoError(t, err)
	assert.Len(t, store.chunks, 3)
	assert.Len(t, store.chunks[0], 100)
	assert.Len(t, store.chunks[1], 100)
	assert.Len(t, store.chunks[2], 50)

	assert.Equal(t, 255, result.Total)
	assert.Equal(t, 250, result.Imported)
	assert.Equal(t, 5, result.Unresolved)
	assert.Equal(t, 0, result.Duplicates)
	assert.Equal(t, 0, result.Errors)

	assert.Equal(t, []int{40, 80, 100}, percents)
}

func TestRunDuplicateChunkCountedNotFailed(t *testing.T) {
	store := &stubStore{
		failWith: func(chunk int) error {
			if chunk == 1 {
				return apperrors.NewDuplicateError(errors.New("Duplicate entry"))
			}
			return nil
		},
	}
	im := New(store, 100)

	result, err := im.Run(context.Background(), makeReadings(250), 0, nil)

	assert.NoError(t, err)
	assert.Equal(t, 150, result.Imported)
	assert.Equal(t, 100, result.Duplicates)
	assert.Equal(t, 0, result.Errors)
}

func TestRunStoreErrorContinues(t *testing.T) {
	store := &stubStore{
		failWith: func(chunk int) error {
			if chunk == 0 {
				return errors.New("constraint violated")
			}
			return nil
		},
	}
	im := New(store, 100)

	result, err := im.Run(context.Background(), makeReadings(250), 0, nil)

	assert.NoError(t, err)
	assert.Len(t, store.chunks, 3)
	assert.Equal(t, 150, result.Imported)
	assert.Equal(t, 100, result.Errors)
}

func TestRunTransportFaultAborts(t *testing.T) {
	store := &stubStore{
		failWith: func(chunk int) error {
			if chunk == 1 {
				return apperrors.NewRetryableError(errors.New("connection refused"), "event store unreachable")
			}
			return nil
		},
	}
	im := New(store, 100)

	result, err := im.Run(context.Background(), makeReadings(250), 0, nil)

	assert.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	// third chunk never attempted, committed work is reported
	assert.Len(t, store.chunks, 2)
	assert.Equal(t, 100, result.Imported)
}

func TestRunCancelledContext(t *testing.T) {
	store := &stubStore{}
	im := New(store, 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := im.Run(ctx, makeReadings(250), 0, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.chunks)
	assert.Equal(t, 0, result.Imported)
}

func TestRunEmptyInput(t *testing.T) {
	store := &stubStore{}
	im := New(store, 100)

	result, err := im.Run(context.Background(), nil, 3, nil)

	assert.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Unresolved)
	assert.Empty(t, store.chunks)
}
