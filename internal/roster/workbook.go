// Package roster ingests chip-assignment workbooks uploaded by organizers:
// one row per participant with a bib and up to five chip codes. The parsed
// entries feed the chip index the resolver matches readings against.
package roster

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"race-timing-ingest/internal/model"
	apperrors "race-timing-ingest/pkg/errors"
)

// RosterSource parses and validates one uploaded chip-assignment document.
type RosterSource interface {
	Parse(ctx context.Context, data []byte) ([]model.ChipIndexEntry, error)
	Validate(ctx context.Context, entries []model.ChipIndexEntry) error
}

type ExcelRoster struct {
	parser    *Parser
	validator *Validator
}

func NewExcelRoster() RosterSource {
	return &ExcelRoster{
		parser:    NewParser(),
		validator: NewValidator(),
	}
}

func (r *ExcelRoster) Parse(ctx context.Context, data []byte) ([]model.ChipIndexEntry, error) {
	return r.parser.Parse(ctx, data)
}

func (r *ExcelRoster) Validate(ctx context.Context, entries []model.ChipIndexEntry) error {
	return r.validator.Validate(ctx, entries)
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

var chipColumns = []string{"chip_code", "chip_code_2", "chip_code_3", "chip_code_4", "chip_code_5"}

func (p *Parser) Parse(ctx context.Context, data []byte) ([]model.ChipIndexEntry, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperrors.ErrInvalidFileFormat
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}

	if len(rows) < 2 { // Header + at least one data row
		return nil, apperrors.ErrInvalidFileFormat
	}

	columnMap := make(map[string]int)
	for i, col := range rows[0] {
		columnMap[strings.ToLower(strings.TrimSpace(col))] = i
	}

	for _, col := range []string{"bib_number", "chip_code"} {
		if _, exists := columnMap[col]; !exists {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	var entries []model.ChipIndexEntry
	for i, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}

		entry, err := p.parseRow(row, columnMap)
		if err != nil {
			return nil, fmt.Errorf("error parsing row %d: %w", i+2, err)
		}
		entries = append(entries, *entry)
	}

	return entries, nil
}

func (p *Parser) parseRow(row []string, columnMap map[string]int) (*model.ChipIndexEntry, error) {
	getValue := func(colName string) string {
		if idx, exists := columnMap[colName]; exists && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	bibStr := getValue("bib_number")
	if bibStr == "" {
		return nil, fmt.Errorf("bib_number is required")
	}
	bib, err := strconv.Atoi(bibStr)
	if err != nil {
		return nil, fmt.Errorf("invalid bib_number value: %s", bibStr)
	}

	entry := &model.ChipIndexEntry{
		BibNumber: bib,
		ChipCode:  getValue("chip_code"),
		ChipCode2: getValue("chip_code_2"),
		ChipCode3: getValue("chip_code_3"),
		ChipCode4: getValue("chip_code_4"),
		ChipCode5: getValue("chip_code_5"),
	}

	if distStr := getValue("race_distance_id"); distStr != "" {
		dist, err := strconv.ParseInt(distStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid race_distance_id value: %s", distStr)
		}
		entry.RaceDistanceID = &dist
	}

	return entry, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
