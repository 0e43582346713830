package format

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"race-timing-ingest/internal/model"
	apperrors "race-timing-ingest/pkg/errors"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		wantType   model.FormatType
		wantBib    bool
		wantDate   bool
		dateFormat model.DateFormat
	}{
		{
			name:       "chip only with zero third column",
			line:       `1,CHIP123,0,"10:15:30.123"`,
			wantType:   model.FormatChipOnly,
			dateFormat: model.DateTimeOnly,
		},
		{
			name:       "chip duplicated",
			line:       `1,CHIP123,CHIP123,"10:15:30.123"`,
			wantType:   model.FormatChipDuplicated,
			dateFormat: model.DateTimeOnly,
		},
		{
			name:       "embedded bib number",
			line:       `1,CHIP123,42,"10:15:30.123"`,
			wantType:   model.FormatWithBib,
			wantBib:    true,
			dateFormat: model.DateTimeOnly,
		},
		{
			name:       "eu date in time column",
			line:       `1,CHIP123,0,"01/06/2025 10:15:30.123"`,
			wantType:   model.FormatChipOnly,
			wantDate:   true,
			dateFormat: model.DateTimeEU,
		},
		{
			name:       "iso date in time column",
			line:       `1,CHIP123,0,"2025-06-01 10:15:30"`,
			wantType:   model.FormatChipOnly,
			wantDate:   true,
			dateFormat: model.DateTimeISO,
		},
		{
			name:       "unknown third column falls back to chip only",
			line:       `1,CHIP123,??,"10:15:30"`,
			wantType:   model.FormatChipOnly,
			dateFormat: model.DateTimeOnly,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detected, err := Detect(tt.line)

			assert.NoError(t, err)
			assert.Equal(t, tt.wantType, detected.Type)
			assert.Equal(t, tt.wantBib, detected.HasBibNumber)
			assert.Equal(t, tt.wantDate, detected.HasDate)
			assert.Equal(t, tt.dateFormat, detected.DateFormat)
		})
	}
}

func TestDetectTooFewColumns(t *testing.T) {
	_, err := Detect("CHIP123,10:15:30")

	assert.ErrorIs(t, err, apperrors.ErrFormatNotDetected)
}

func TestDetectUnknownThirdColumnNote(t *testing.T) {
	detected, err := Detect(`1,CHIP123,??,"10:15:30"`)

	assert.NoError(t, err)
	assert.NotEmpty(t, detected.Note)
}
