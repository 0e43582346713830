package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocalTimeJSONRoundTrip(t *testing.T) {
	original := NewLocalTime(time.Date(2025, 6, 1, 10, 15, 30, 123*int(time.Millisecond), time.Local))

	data, err := json.Marshal(original)
	assert.NoError(t, err)
	assert.Equal(t, `"2025-06-01 10:15:30.123"`, string(data))

	var decoded LocalTime
	assert.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Equal(original.Time))
}

func TestLocalTimeUnmarshalWithoutMillis(t *testing.T) {
	var decoded LocalTime

	assert.NoError(t, json.Unmarshal([]byte(`"2025-06-01 10:15:30"`), &decoded))
	assert.Equal(t, "2025-06-01 10:15:30.000", decoded.String())
}

func TestLocalTimeUnmarshalNull(t *testing.T) {
	var decoded LocalTime

	assert.NoError(t, json.Unmarshal([]byte(`null`), &decoded))
	assert.True(t, decoded.IsZero())
}

func TestIsStatusEvent(t *testing.T) {
	code := StatusDNF
	split := TimingReading{BibNumber: 11, ReadingType: ReadingTypeManual}
	status := TimingReading{BibNumber: 11, ReadingType: ReadingTypeStatusChange, StatusCode: &code}

	assert.False(t, split.IsStatusEvent())
	assert.True(t, status.IsStatusEvent())
}

func TestSplitsExcludesStatusEvents(t *testing.T) {
	code := StatusDNF
	readings := []TimingReading{
		{BibNumber: 11, ReadingType: ReadingTypeAutomatic},
		{BibNumber: 22, ReadingType: ReadingTypeStatusChange, StatusCode: &code},
		{BibNumber: 33, ReadingType: ReadingTypeManual},
	}

	splits := Splits(readings)

	assert.Len(t, splits, 2)
	assert.Equal(t, 11, splits[0].BibNumber)
	assert.Equal(t, 33, splits[1].BibNumber)
}

func TestChipIndexEntryMatches(t *testing.T) {
	distance := int64(10)
	entry := ChipIndexEntry{
		BibNumber:      34,
		ChipCode:       "CHIP034",
		ChipCode3:      "ab12",
		RaceDistanceID: &distance,
	}

	assert.True(t, entry.Matches("CHIP034"))
	assert.True(t, entry.Matches("chip034"))
	assert.True(t, entry.Matches("AB12"))
	assert.False(t, entry.Matches("CHIP035"))
	assert.False(t, entry.Matches(""))
}
