// Package resolve maps parsed chip readings to participant bibs through the
// race's chip index. Resolution is a pure function of (parsed lines, index,
// defaults): re-running it after a roster fix or a default change yields the
// same output for the same input and never mutates the source lines.
package resolve

import (
	"race-timing-ingest/internal/model"
	apperrors "race-timing-ingest/pkg/errors"
)

// Defaults are the operator-selected fallbacks applied during resolution.
type Defaults struct {
	RaceDistanceID *int64
	TimingPointID  *int64
}

type Resolver struct {
	index []model.ChipIndexEntry
}

// NewResolver wraps a read-only chip index snapshot loaded once per import
// session. A stale snapshot is acceptable: resolution is cheap to re-run.
func NewResolver(index []model.ChipIndexEntry) *Resolver {
	return &Resolver{index: index}
}

// Resolve returns a new slice with resolved bib and distance filled in.
// Lines already tagged with a parse error pass through untouched. A chip
// absent from the index is retained with an error, never guessed, so the
// operator can fix roster data and re-run without re-uploading the file.
func (r *Resolver) Resolve(lines []model.ParsedLine, defaults Defaults) []model.ParsedLine {
	resolved := make([]model.ParsedLine, len(lines))
	for i, line := range lines {
		resolved[i] = r.resolveLine(line, defaults)
	}
	return resolved
}

func (r *Resolver) resolveLine(line model.ParsedLine, defaults Defaults) model.ParsedLine {
	if line.HasError {
		return line
	}

	// an explicit embedded bib from a with-bib layout is trusted as-is
	if line.BibNumber > 0 {
		line.ResolvedBib = line.BibNumber
		line.ResolvedDistanceID = defaults.RaceDistanceID
		return line
	}

	for _, entry := range r.index {
		if entry.Matches(line.ChipCode) {
			line.ResolvedBib = entry.BibNumber
			if entry.RaceDistanceID != nil {
				line.ResolvedDistanceID = entry.RaceDistanceID
			} else {
				line.ResolvedDistanceID = defaults.RaceDistanceID
			}
			return line
		}
	}

	line.HasError = true
	line.ErrorMessage = apperrors.ErrChipNotResolved.Error()
	return line
}

// CountUnresolved counts lines that cannot be imported, computed once up
// front from the full set, independent of later chunking.
func CountUnresolved(lines []model.ParsedLine) int {
	unresolved := 0
	for _, line := range lines {
		if line.HasError || line.ResolvedBib <= 0 {
			unresolved++
		}
	}
	return unresolved
}

// BuildReadings converts cleanly resolved lines into canonical readings for
// the event store. Errored and unresolved lines are excluded.
func BuildReadings(lines []model.ParsedLine, defaults Defaults) []model.TimingReading {
	readings := make([]model.TimingReading, 0, len(lines))
	for _, line := range lines {
		if line.HasError || line.ResolvedBib <= 0 {
			continue
		}
		readings = append(readings, model.TimingReading{
			BibNumber:      line.ResolvedBib,
			TimingPointID:  defaults.TimingPointID,
			RaceDistanceID: line.ResolvedDistanceID,
			ChipCode:       line.ChipCode,
			Timestamp:      line.Timestamp,
			ReadingType:    model.ReadingTypeAutomatic,
			LapNumber:      1,
			ReaderDeviceID: line.ReaderID,
		})
	}
	return readings
}
