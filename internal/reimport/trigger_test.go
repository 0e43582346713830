package reimport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"race-timing-ingest/internal/model"
	apperrors "race-timing-ingest/pkg/errors"
)

type stubSamples struct {
	ids []int64
	err error

	gotRace  int64
	gotStart time.Time
	gotEnd   time.Time
}

func (s *stubSamples) SampleIDsInWindow(ctx context.Context, raceID int64, start, end time.Time) ([]int64, error) {
	s.gotRace = raceID
	s.gotStart = start
	s.gotEnd = end
	return s.ids, s.err
}

type stubDetector struct {
	result *model.ReimportResult
	err    error

	gotIDs   []int64
	gotForce bool
}

func (d *stubDetector) Reprocess(ctx context.Context, raceID int64, sampleIDs []int64, force bool) (*model.ReimportResult, error) {
	d.gotIDs = sampleIDs
	d.gotForce = force
	return d.result, d.err
}

func window() (time.Time, time.Time) {
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.Local)
	return start, start.Add(30 * time.Minute)
}

func TestRunReprocessesWindow(t *testing.T) {
	samples := &stubSamples{ids: []int64{101, 102, 103}}
	detector := &stubDetector{result: &model.ReimportResult{Processed: 3, Created: 2}}
	trigger := New(samples, detector)
	start, end := window()

	result, err := trigger.Run(context.Background(), 1, start, end)

	assert.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, int64(1), samples.gotRace)
	assert.Equal(t, start, samples.gotStart)
	assert.Equal(t, end, samples.gotEnd)
	assert.Equal(t, []int64{101, 102, 103}, detector.gotIDs)
	assert.True(t, detector.gotForce)
}

func TestRunEmptyWindow(t *testing.T) {
	samples := &stubSamples{}
	detector := &stubDetector{}
	trigger := New(samples, detector)
	start, end := window()

	result, err := trigger.Run(context.Background(), 1, start, end)

	assert.ErrorIs(t, err, apperrors.ErrNoSamplesInWindow)
	assert.Equal(t, &model.ReimportResult{}, result)
	assert.Nil(t, detector.gotIDs)
}

func TestRunSampleQueryError(t *testing.T) {
	samples := &stubSamples{err: errors.New("store down")}
	trigger := New(samples, &stubDetector{})
	start, end := window()

	result, err := trigger.Run(context.Background(), 1, start, end)

	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestRunDetectorError(t *testing.T) {
	samples := &stubSamples{ids: []int64{101}}
	detector := &stubDetector{err: errors.New("detector unavailable")}
	trigger := New(samples, detector)
	start, end := window()

	result, err := trigger.Run(context.Background(), 1, start, end)

	assert.Error(t, err)
	assert.Nil(t, result)
}
