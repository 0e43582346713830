package capture

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"race-timing-ingest/internal/model"
)

type fakeRemote struct {
	online         bool
	nextID         int64
	sent           []model.TimingReading
	readingsBatch  []model.TimingReading
	statusBatch    []model.TimingReading
	batchErr       error
	onReadingBatch func()
}

func (r *fakeRemote) Online(ctx context.Context) bool { return r.online }

func (r *fakeRemote) SendReading(ctx context.Context, reading model.TimingReading) (int64, error) {
	r.sent = append(r.sent, reading)
	r.nextID++
	return r.nextID, nil
}

func (r *fakeRemote) SendStatusEvent(ctx context.Context, event model.TimingReading) (int64, error) {
	return r.SendReading(ctx, event)
}

func (r *fakeRemote) SendReadingBatch(ctx context.Context, readings []model.TimingReading) (*model.BatchResponse, error) {
	if r.onReadingBatch != nil {
		r.onReadingBatch()
	}
	if r.batchErr != nil {
		return nil, r.batchErr
	}
	r.readingsBatch = append(r.readingsBatch, readings...)
	return &model.BatchResponse{Success: true, Inserted: len(readings)}, nil
}

func (r *fakeRemote) SendStatusBatch(ctx context.Context, events []model.TimingReading) (*model.BatchResponse, error) {
	if r.batchErr != nil {
		return nil, r.batchErr
	}
	r.statusBatch = append(r.statusBatch, events...)
	return &model.BatchResponse{Success: true, Inserted: len(events)}, nil
}

func newTestSession(t *testing.T, remote Remote) (*Session, QueueStore, QueueStore) {
	t.Helper()
	dir := t.TempDir()
	readings := NewFileQueueStore(filepath.Join(dir, "readings.jsonl"))
	statuses := NewFileQueueStore(filepath.Join(dir, "statuses.jsonl"))
	session := NewSession(SessionOptions{
		DeviceID: "handheld-01",
		RaceID:   1,
	}, readings, statuses, remote)
	return session, readings, statuses
}

func TestCaptureOfflineQueuesLocally(t *testing.T) {
	remote := &fakeRemote{online: false}
	session, readings, _ := newTestSession(t, remote)
	ctx := context.Background()

	for _, bib := range []int{11, 22, 33} {
		entry, err := session.CaptureReading(ctx, bib, 1, "")
		assert.NoError(t, err)
		assert.False(t, entry.Synced)
		assert.NotEmpty(t, entry.LocalID)
	}

	pending, err := readings.Len(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 3, pending)
	assert.Empty(t, remote.sent)

	recent := session.Recent()
	assert.Len(t, recent, 3)
	for _, entry := range recent {
		assert.False(t, entry.Synced)
	}
}

func TestCaptureOnlineWritesThrough(t *testing.T) {
	remote := &fakeRemote{online: true}
	session, readings, _ := newTestSession(t, remote)
	ctx := context.Background()

	entry, err := session.CaptureReading(ctx, 11, 2, "lead group")

	assert.NoError(t, err)
	assert.True(t, entry.Synced)
	assert.Equal(t, int64(1), entry.ServerID)
	assert.Len(t, remote.sent, 1)
	assert.Equal(t, 2, remote.sent[0].LapNumber)

	pending, err := readings.Len(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestCaptureRejectsBadBib(t *testing.T) {
	session, _, _ := newTestSession(t, &fakeRemote{})

	_, err := session.CaptureReading(context.Background(), 0, 1, "")

	assert.Error(t, err)
	assert.Empty(t, session.Recent())
}

func TestStatusEventsUseSeparateQueue(t *testing.T) {
	remote := &fakeRemote{online: false}
	session, readings, statuses := newTestSession(t, remote)
	ctx := context.Background()

	_, err := session.CaptureReading(ctx, 11, 1, "")
	assert.NoError(t, err)
	entry, err := session.CaptureStatus(ctx, 22, model.StatusDNF, "cramp at km 30")
	assert.NoError(t, err)
	assert.True(t, entry.Reading.IsStatusEvent())

	readingCount, _ := readings.Len(ctx)
	statusCount, _ := statuses.Len(ctx)
	assert.Equal(t, 1, readingCount)
	assert.Equal(t, 1, statusCount)
}

func TestFlushDrainsQueuesAndMarksSynced(t *testing.T) {
	remote := &fakeRemote{online: false}
	session, readings, statuses := newTestSession(t, remote)
	ctx := context.Background()

	session.CaptureReading(ctx, 11, 1, "")
	session.CaptureReading(ctx, 22, 1, "")
	session.CaptureStatus(ctx, 33, model.StatusDNF, "")

	remote.online = true
	result, err := session.Flush(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 2, result.ReadingsSynced)
	assert.Equal(t, 1, result.StatusEventsSynced)
	assert.Len(t, remote.readingsBatch, 2)
	assert.Len(t, remote.statusBatch, 1)

	readingCount, _ := readings.Len(ctx)
	statusCount, _ := statuses.Len(ctx)
	assert.Equal(t, 0, readingCount)
	assert.Equal(t, 0, statusCount)

	for _, entry := range session.Recent() {
		assert.True(t, entry.Synced)
	}
}

func TestFlushFailureLeavesQueueIntact(t *testing.T) {
	remote := &fakeRemote{online: false}
	session, readings, _ := newTestSession(t, remote)
	ctx := context.Background()

	session.CaptureReading(ctx, 11, 1, "")
	session.CaptureReading(ctx, 22, 1, "")

	remote.batchErr = errors.New("connection reset")
	_, err := session.Flush(ctx)

	assert.Error(t, err)
	pending, _ := readings.Len(ctx)
	assert.Equal(t, 2, pending)
	for _, entry := range session.Recent() {
		assert.False(t, entry.Synced)
	}
}

func TestFlushPreservesCaptureTimestamps(t *testing.T) {
	remote := &fakeRemote{online: false}
	session, _, _ := newTestSession(t, remote)
	ctx := context.Background()

	entry, _ := session.CaptureReading(ctx, 11, 1, "")

	remote.online = true
	_, err := session.Flush(ctx)

	assert.NoError(t, err)
	assert.Len(t, remote.readingsBatch, 1)
	assert.Equal(t, entry.Reading.Timestamp.String(), remote.readingsBatch[0].Timestamp.String())
}

func TestFlushKeepsCaptureRecordedDuringSync(t *testing.T) {
	remote := &fakeRemote{online: false}
	session, readings, _ := newTestSession(t, remote)
	ctx := context.Background()

	session.CaptureReading(ctx, 11, 1, "")

	// a capture lands while the bulk send is in flight, after the drain
	// snapshot was taken
	remote.online = true
	remote.onReadingBatch = func() {
		remote.online = false
		_, err := session.CaptureReading(ctx, 99, 1, "")
		assert.NoError(t, err)
	}

	result, err := session.Flush(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 1, result.ReadingsSynced)
	assert.Len(t, remote.readingsBatch, 1)
	assert.Equal(t, 11, remote.readingsBatch[0].BibNumber)

	pending, err := readings.Len(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, pending)

	// the late capture goes out on the next flush
	remote.onReadingBatch = nil
	remote.online = true
	result, err = session.Flush(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 1, result.ReadingsSynced)
	assert.Len(t, remote.readingsBatch, 2)
	assert.Equal(t, 99, remote.readingsBatch[1].BibNumber)
}

func TestEditReadingRequeuesLatestCopy(t *testing.T) {
	remote := &fakeRemote{online: false}
	session, readings, _ := newTestSession(t, remote)
	ctx := context.Background()

	entry, _ := session.CaptureReading(ctx, 11, 1, "")

	edited, err := session.EditReading(ctx, entry.LocalID, func(r *model.TimingReading) {
		r.BibNumber = 111
	})
	assert.NoError(t, err)
	assert.False(t, edited.Synced)
	assert.Equal(t, 111, edited.Reading.BibNumber)

	// two copies on disk still count as one pending entry
	pending, _ := readings.Len(ctx)
	assert.Equal(t, 1, pending)

	remote.online = true
	result, err := session.Flush(ctx)

	assert.NoError(t, err)
	assert.Equal(t, 1, result.ReadingsSynced)
	assert.Len(t, remote.readingsBatch, 1)
	assert.Equal(t, 111, remote.readingsBatch[0].BibNumber)
}

func TestEditSyncedReadingCarriesServerID(t *testing.T) {
	remote := &fakeRemote{online: true}
	session, _, _ := newTestSession(t, remote)
	ctx := context.Background()

	entry, _ := session.CaptureReading(ctx, 11, 1, "")
	assert.True(t, entry.Synced)

	remote.online = false
	edited, err := session.EditReading(ctx, entry.LocalID, func(r *model.TimingReading) {
		r.BibNumber = 111
	})
	assert.NoError(t, err)
	assert.Equal(t, entry.ServerID, edited.Reading.ID)

	remote.online = true
	_, err = session.Flush(ctx)
	assert.NoError(t, err)

	// the batch row targets the existing server record
	assert.Len(t, remote.readingsBatch, 1)
	assert.Equal(t, entry.ServerID, remote.readingsBatch[0].ID)
}

func TestEditUnknownLocalID(t *testing.T) {
	session, _, _ := newTestSession(t, &fakeRemote{})

	_, err := session.EditReading(context.Background(), "missing", func(r *model.TimingReading) {})

	assert.Error(t, err)
}
