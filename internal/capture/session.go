// Package capture records timing readings and race-status events on a field
// device that may be offline. Every capture is written to the device first:
// the in-memory recent list updates immediately, a write-through to the
// remote store is attempted only when connected, and anything unacknowledged
// lands in a durable local queue for a later sync.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"race-timing-ingest/internal/logger"
	"race-timing-ingest/internal/model"
)

// Remote is the slice of the platform API a capture session talks to.
type Remote interface {
	SendReading(ctx context.Context, r model.TimingReading) (int64, error)
	SendStatusEvent(ctx context.Context, r model.TimingReading) (int64, error)
	SendReadingBatch(ctx context.Context, rs []model.TimingReading) (*model.BatchResponse, error)
	SendStatusBatch(ctx context.Context, rs []model.TimingReading) (*model.BatchResponse, error)
	Online(ctx context.Context) bool
}

// Session owns one device's capture state: two independent pending queues
// (plain readings; status events) and the optimistic recent list the
// operator sees. The queues are exclusively owned by this session;
// only this session's Flush drains them.
type Session struct {
	deviceID      string
	raceID        int64
	timingPointID *int64
	readings      QueueStore
	statuses      QueueStore
	remote        Remote
	sendTimeout   time.Duration

	mu     sync.Mutex
	recent []model.PendingEntry

	log zerolog.Logger
}

type SessionOptions struct {
	DeviceID      string
	RaceID        int64
	TimingPointID *int64
	SendTimeout   time.Duration
}

func NewSession(opts SessionOptions, readings, statuses QueueStore, remote Remote) *Session {
	timeout := opts.SendTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Session{
		deviceID:      opts.DeviceID,
		raceID:        opts.RaceID,
		timingPointID: opts.TimingPointID,
		readings:      readings,
		statuses:      statuses,
		remote:        remote,
		sendTimeout:   timeout,
		log:           logger.For("capture").With().Str("device_id", opts.DeviceID).Logger(),
	}
}

// CaptureReading records a lap crossing for a bib. The timestamp is taken at
// capture time and is authoritative: sync never overwrites it.
func (s *Session) CaptureReading(ctx context.Context, bib int, lap int, notes string) (model.PendingEntry, error) {
	if bib <= 0 {
		return model.PendingEntry{}, fmt.Errorf("bib number must be positive, got %d", bib)
	}
	if lap <= 0 {
		lap = 1
	}

	reading := model.TimingReading{
		BibNumber:      bib,
		TimingPointID:  s.timingPointID,
		Timestamp:      model.NewLocalTime(time.Now()),
		ReadingType:    model.ReadingTypeManual,
		LapNumber:      lap,
		ReaderDeviceID: s.deviceID,
	}
	if notes != "" {
		reading.Notes = &notes
	}

	return s.capture(ctx, reading, s.readings, s.remote.SendReading)
}

// CaptureStatus records a race-status event (DNF/DNS/DSQ/withdrawn). Status
// events are never mixed with timing splits: they go to their own queue and
// their own endpoint.
func (s *Session) CaptureStatus(ctx context.Context, bib int, code model.StatusCode, notes string) (model.PendingEntry, error) {
	if bib <= 0 {
		return model.PendingEntry{}, fmt.Errorf("bib number must be positive, got %d", bib)
	}

	status := code
	event := model.TimingReading{
		BibNumber:      bib,
		TimingPointID:  s.timingPointID,
		Timestamp:      model.NewLocalTime(time.Now()),
		ReadingType:    model.ReadingTypeStatusChange,
		StatusCode:     &status,
		LapNumber:      1,
		ReaderDeviceID: s.deviceID,
	}
	if notes != "" {
		event.Notes = &notes
	}

	return s.capture(ctx, event, s.statuses, s.remote.SendStatusEvent)
}

func (s *Session) capture(ctx context.Context, reading model.TimingReading, queue QueueStore, send func(context.Context, model.TimingReading) (int64, error)) (model.PendingEntry, error) {
	entry := model.PendingEntry{
		LocalID: uuid.NewString(),
		Reading: reading,
	}

	// the operator sees their own action immediately, sync state or not
	s.mu.Lock()
	s.recent = append(s.recent, entry)
	s.mu.Unlock()

	if s.remote.Online(ctx) {
		sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
		id, err := send(sendCtx, reading)
		cancel()
		if err == nil {
			entry.ServerID = id
			entry.Synced = true
			s.updateRecent(entry)
			return entry, nil
		}
		s.log.Warn().Err(err).Int("bib", reading.BibNumber).Msg("Write-through failed, queueing locally")
	}

	if err := queue.Append(ctx, entry); err != nil {
		return entry, fmt.Errorf("failed to queue captured event: %w", err)
	}
	return entry, nil
}

// EditReading applies a local correction (bib, time) to a captured entry
// before or after it synced. The entry is marked unsynced again and
// re-queued; if it already carries a server id the next flush overwrites the
// server row instead of duplicating it.
func (s *Session) EditReading(ctx context.Context, localID string, apply func(*model.TimingReading)) (model.PendingEntry, error) {
	s.mu.Lock()
	idx := -1
	for i := range s.recent {
		if s.recent[i].LocalID == localID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return model.PendingEntry{}, fmt.Errorf("no captured entry with local id %s", localID)
	}

	entry := s.recent[idx]
	apply(&entry.Reading)
	entry.Reading.ID = entry.ServerID
	entry.Synced = false
	s.recent[idx] = entry
	s.mu.Unlock()

	queue := s.readings
	if entry.Reading.IsStatusEvent() {
		queue = s.statuses
	}
	if err := queue.Append(ctx, entry); err != nil {
		return entry, fmt.Errorf("failed to re-queue edited entry: %w", err)
	}
	return entry, nil
}

// Recent returns a copy of the optimistic capture list with current synced flags.
func (s *Session) Recent() []model.PendingEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.PendingEntry, len(s.recent))
	copy(out, s.recent)
	return out
}

func (s *Session) PendingCounts(ctx context.Context) (readings int, statuses int, err error) {
	readings, err = s.readings.Len(ctx)
	if err != nil {
		return 0, 0, err
	}
	statuses, err = s.statuses.Len(ctx)
	if err != nil {
		return 0, 0, err
	}
	return readings, statuses, nil
}

func (s *Session) updateRecent(entry model.PendingEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.recent {
		if s.recent[i].LocalID == entry.LocalID {
			s.recent[i] = entry
			return
		}
	}
}

type FlushResult struct {
	ReadingsSynced     int `json:"readings_synced"`
	StatusEventsSynced int `json:"status_events_synced"`
}

// Flush drains both pending queues against the remote store. Each queue is
// one bulk write preserving original capture timestamps: on success the
// drained entries are cleared and their rows marked synced, on failure the
// queue is left intact for a later retry. Entries captured after the drain
// snapshot survive the clear and go out on the next flush.
func (s *Session) Flush(ctx context.Context) (*FlushResult, error) {
	result := &FlushResult{}

	readingsSynced, readingsErr := s.flushQueue(ctx, s.readings, s.remote.SendReadingBatch)
	result.ReadingsSynced = readingsSynced

	statusesSynced, statusesErr := s.flushQueue(ctx, s.statuses, s.remote.SendStatusBatch)
	result.StatusEventsSynced = statusesSynced

	if readingsErr != nil || statusesErr != nil {
		return result, errors.Join(readingsErr, statusesErr)
	}

	s.log.Info().
		Int("readings", result.ReadingsSynced).
		Int("status_events", result.StatusEventsSynced).
		Msg("Pending queues flushed")
	return result, nil
}

func (s *Session) flushQueue(ctx context.Context, queue QueueStore, send func(context.Context, []model.TimingReading) (*model.BatchResponse, error)) (int, error) {
	drained, err := queue.DrainAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to drain pending queue: %w", err)
	}
	entries := dedupe(drained)
	if len(entries) == 0 {
		return 0, nil
	}

	payload := make([]model.TimingReading, len(entries))
	for i, entry := range entries {
		reading := entry.Reading
		reading.ID = entry.ServerID
		payload[i] = reading
	}

	resp, err := send(ctx, payload)
	if err != nil {
		return 0, err
	}
	if !resp.Success {
		return 0, fmt.Errorf("remote rejected pending batch: %s", resp.Message)
	}

	// remove only the drained snapshot; captures appended while the bulk
	// send was in flight stay queued
	if err := queue.ClearThrough(ctx, len(drained)); err != nil {
		return 0, fmt.Errorf("failed to clear pending queue after sync: %w", err)
	}

	s.mu.Lock()
	synced := make(map[string]bool, len(entries))
	for _, entry := range entries {
		synced[entry.LocalID] = true
	}
	for i := range s.recent {
		if synced[s.recent[i].LocalID] {
			s.recent[i].Synced = true
		}
	}
	s.mu.Unlock()

	return len(entries), nil
}
