package roster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xuri/excelize/v2"

	"race-timing-ingest/internal/model"
	apperrors "race-timing-ingest/pkg/errors"
)

func buildWorkbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()

	file := excelize.NewFile()
	defer file.Close()

	sheet := file.GetSheetList()[0]
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		assert.NoError(t, err)
		assert.NoError(t, file.SetSheetRow(sheet, cell, &row))
	}

	buf, err := file.WriteToBuffer()
	assert.NoError(t, err)
	return buf.Bytes()
}

func TestParseWorkbook(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"bib_number", "chip_code", "chip_code_2", "race_distance_id"},
		{"12", "CHIP012", "", "10"},
		{"", "", "", ""},
		{"34", "CHIP034", "AB12", ""},
	})

	entries, err := NewParser().Parse(context.Background(), data)

	assert.NoError(t, err)
	assert.Len(t, entries, 2)

	assert.Equal(t, 12, entries[0].BibNumber)
	assert.Equal(t, "CHIP012", entries[0].ChipCode)
	assert.NotNil(t, entries[0].RaceDistanceID)
	assert.Equal(t, int64(10), *entries[0].RaceDistanceID)

	assert.Equal(t, 34, entries[1].BibNumber)
	assert.Equal(t, "AB12", entries[1].ChipCode2)
	assert.Nil(t, entries[1].RaceDistanceID)
}

func TestParseWorkbookMissingRequiredColumn(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"bib_number", "transponder"},
		{"12", "CHIP012"},
	})

	_, err := NewParser().Parse(context.Background(), data)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "chip_code")
}

func TestParseWorkbookNoDataRows(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"bib_number", "chip_code"},
	})

	_, err := NewParser().Parse(context.Background(), data)

	assert.ErrorIs(t, err, apperrors.ErrInvalidFileFormat)
}

func TestParseWorkbookBadBib(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"bib_number", "chip_code"},
		{"twelve", "CHIP012"},
	})

	_, err := NewParser().Parse(context.Background(), data)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
}

func TestParseWorkbookNotAnExcelFile(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), []byte("bib_number,chip_code\n12,CHIP012"))

	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	validator := NewValidator()
	ctx := context.Background()

	tests := []struct {
		name    string
		entries []model.ChipIndexEntry
		wantErr bool
	}{
		{
			name: "valid entries",
			entries: []model.ChipIndexEntry{
				{BibNumber: 12, ChipCode: "CHIP012"},
				{BibNumber: 34, ChipCode: "CHIP034", ChipCode3: "AB12"},
			},
		},
		{
			name:    "empty roster",
			wantErr: true,
		},
		{
			name:    "non-positive bib",
			entries: []model.ChipIndexEntry{{BibNumber: 0, ChipCode: "CHIP012"}},
			wantErr: true,
		},
		{
			name:    "missing primary chip",
			entries: []model.ChipIndexEntry{{BibNumber: 12}},
			wantErr: true,
		},
		{
			name:    "chip code with invalid characters",
			entries: []model.ChipIndexEntry{{BibNumber: 12, ChipCode: "CHIP 012"}},
			wantErr: true,
		},
		{
			name: "duplicate bib",
			entries: []model.ChipIndexEntry{
				{BibNumber: 12, ChipCode: "CHIP012"},
				{BibNumber: 12, ChipCode: "CHIP013"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(ctx, tt.entries)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
