package model

import (
	apperrors "race-timing-ingest/pkg/errors"
)

type FormatType string

const (
	FormatChipOnly       FormatType = "CHIP_ONLY"
	FormatChipDuplicated FormatType = "CHIP_DUPLICATED"
	FormatWithBib        FormatType = "WITH_BIB"
)

type DateFormat string

const (
	DateTimeOnly DateFormat = "TIME_ONLY"
	DateTimeEU   DateFormat = "DATE_TIME_EU"  // DD/MM/YYYY
	DateTimeUS   DateFormat = "DATE_TIME_US"  // MM/DD/YYYY
	DateTimeISO  DateFormat = "DATE_TIME_ISO" // YYYY-MM-DD
)

type TimeFormat string

const (
	TimeHMS   TimeFormat = "HMS"
	TimeHMSMs TimeFormat = "HMS_MS"
)

// DetectedFormat describes the column layout inferred from a sample line of
// a reader export file.
type DetectedFormat struct {
	Type         FormatType `json:"type"`
	HasDate      bool       `json:"has_date"`
	HasBibNumber bool       `json:"has_bib_number"`
	DateFormat   DateFormat `json:"date_format"`
	Note         string     `json:"note,omitempty"`
}

// SimpleFormat is the operator-supplied column mapping used when automatic
// detection fails or the export is non-standard.
type SimpleFormat struct {
	Separator  string     `json:"separator"`
	ChipColumn int        `json:"chip_column"` // 1-based
	TimeColumn int        `json:"time_column"` // 1-based
	DateFormat DateFormat `json:"date_format"`
	TimeFormat TimeFormat `json:"time_format"`
}

var validSeparators = map[string]bool{",": true, ";": true, "\t": true, " ": true}

// Validate bounds an operator-supplied mapping before it is queued, so a bad
// commit request is rejected at the API instead of failing in a worker.
func (f SimpleFormat) Validate() error {
	if !validSeparators[f.Separator] {
		return apperrors.ValidationError{
			Field:   "separator",
			Value:   f.Separator,
			Message: "must be one of comma, semicolon, tab or space",
		}
	}
	if f.ChipColumn < 1 || f.ChipColumn > 5 {
		return apperrors.ValidationError{
			Field:   "chip_column",
			Value:   f.ChipColumn,
			Message: "must be between 1 and 5",
		}
	}
	if f.TimeColumn < 1 || f.TimeColumn > 5 {
		return apperrors.ValidationError{
			Field:   "time_column",
			Value:   f.TimeColumn,
			Message: "must be between 1 and 5",
		}
	}
	switch f.DateFormat {
	case DateTimeOnly, DateTimeEU, DateTimeUS, DateTimeISO:
	default:
		return apperrors.ValidationError{
			Field:   "date_format",
			Value:   string(f.DateFormat),
			Message: "unknown date format",
		}
	}
	switch f.TimeFormat {
	case "", TimeHMS, TimeHMSMs:
	default:
		return apperrors.ValidationError{
			Field:   "time_format",
			Value:   string(f.TimeFormat),
			Message: "unknown time format",
		}
	}
	return nil
}

// ParsedLine is the transient per-line result of parsing plus resolution.
// It is never persisted: readings are built from it and the line discarded.
type ParsedLine struct {
	Raw                string    `json:"raw"`
	LineNumber         int       `json:"line_number"`
	ReaderID           string    `json:"reader_id,omitempty"`
	ChipCode           string    `json:"chip_code,omitempty"`
	BibNumber          int       `json:"bib_number,omitempty"` // embedded bib, WITH_BIB layouts only
	Timestamp          LocalTime `json:"timestamp"`
	ResolvedBib        int       `json:"resolved_bib,omitempty"`
	ResolvedDistanceID *int64    `json:"resolved_distance_id,omitempty"`
	HasError           bool      `json:"has_error"`
	ErrorMessage       string    `json:"error_message,omitempty"`
}
