package resolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"race-timing-ingest/internal/model"
)

func testIndex() []model.ChipIndexEntry {
	distance := int64(10)
	return []model.ChipIndexEntry{
		{BibNumber: 12, ChipCode: "CHIP012"},
		{BibNumber: 34, ChipCode: "CHIP034", ChipCode3: "ab12", RaceDistanceID: &distance},
	}
}

func TestResolveByChipCode(t *testing.T) {
	resolver := NewResolver(testIndex())

	lines := []model.ParsedLine{{ChipCode: "CHIP012"}}
	resolved := resolver.Resolve(lines, Defaults{})

	assert.Equal(t, 12, resolved[0].ResolvedBib)
	assert.False(t, resolved[0].HasError)
}

func TestResolveAlternateSlotCaseInsensitive(t *testing.T) {
	resolver := NewResolver(testIndex())

	resolved := resolver.Resolve([]model.ParsedLine{{ChipCode: "AB12"}}, Defaults{})

	assert.Equal(t, 34, resolved[0].ResolvedBib)
	assert.NotNil(t, resolved[0].ResolvedDistanceID)
	assert.Equal(t, int64(10), *resolved[0].ResolvedDistanceID)
}

func TestResolveDistanceDefaultApplied(t *testing.T) {
	resolver := NewResolver(testIndex())
	fallback := int64(99)

	resolved := resolver.Resolve([]model.ParsedLine{{ChipCode: "CHIP012"}}, Defaults{RaceDistanceID: &fallback})

	// entry has no distance of its own, operator default wins
	assert.NotNil(t, resolved[0].ResolvedDistanceID)
	assert.Equal(t, int64(99), *resolved[0].ResolvedDistanceID)
}

func TestResolveEmbeddedBibTrusted(t *testing.T) {
	resolver := NewResolver(testIndex())

	resolved := resolver.Resolve([]model.ParsedLine{{ChipCode: "UNKNOWN", BibNumber: 7}}, Defaults{})

	assert.Equal(t, 7, resolved[0].ResolvedBib)
	assert.False(t, resolved[0].HasError)
}

func TestResolveUnknownChipRetainedWithError(t *testing.T) {
	resolver := NewResolver(testIndex())

	resolved := resolver.Resolve([]model.ParsedLine{{ChipCode: "NOPE"}}, Defaults{})

	assert.Len(t, resolved, 1)
	assert.True(t, resolved[0].HasError)
	assert.Equal(t, 0, resolved[0].ResolvedBib)
}

func TestResolveParseErrorsPassThrough(t *testing.T) {
	resolver := NewResolver(testIndex())

	lines := []model.ParsedLine{{ChipCode: "CHIP012", HasError: true, ErrorMessage: "unparsable time"}}
	resolved := resolver.Resolve(lines, Defaults{})

	assert.True(t, resolved[0].HasError)
	assert.Equal(t, "unparsable time", resolved[0].ErrorMessage)
	assert.Equal(t, 0, resolved[0].ResolvedBib)
}

func TestResolveIsIdempotent(t *testing.T) {
	resolver := NewResolver(testIndex())

	lines := []model.ParsedLine{{ChipCode: "CHIP012"}, {ChipCode: "NOPE"}}
	first := resolver.Resolve(lines, Defaults{})
	second := resolver.Resolve(first, Defaults{})

	assert.Equal(t, first, second)
	// source lines are never mutated
	assert.Equal(t, 0, lines[0].ResolvedBib)
}

func TestCountUnresolved(t *testing.T) {
	lines := []model.ParsedLine{
		{ResolvedBib: 12},
		{HasError: true},
		{ResolvedBib: 0},
	}

	assert.Equal(t, 2, CountUnresolved(lines))
}

func TestBuildReadings(t *testing.T) {
	point := int64(3)
	timestamp := model.NewLocalTime(time.Date(2025, 6, 1, 10, 15, 30, 0, time.Local))
	lines := []model.ParsedLine{
		{ChipCode: "CHIP012", ReaderID: "1", ResolvedBib: 12, Timestamp: timestamp},
		{ChipCode: "NOPE", HasError: true},
	}

	readings := BuildReadings(lines, Defaults{TimingPointID: &point})

	assert.Len(t, readings, 1)
	assert.Equal(t, 12, readings[0].BibNumber)
	assert.Equal(t, model.ReadingTypeAutomatic, readings[0].ReadingType)
	assert.Equal(t, 1, readings[0].LapNumber)
	assert.Equal(t, &point, readings[0].TimingPointID)
	assert.Equal(t, "1", readings[0].ReaderDeviceID)
}
