// Package parse turns raw reader export lines into reading candidates.
// Malformed lines are tagged with an error instead of aborting the file:
// a whole-file parse always completes and the operator sees per-line reasons.
package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"race-timing-ingest/internal/model"
)

var (
	trailingDigits = regexp.MustCompile(`(\d+)$`)
	clockPattern   = regexp.MustCompile(`^(\d{1,2}):(\d{2}):(\d{2})(?:[.,](\d{1,3}))?$`)
)

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// ParseDetected parses all lines of a file using a detected format.
// defaultDate supplies the calendar date for time-only exports. Blank lines
// are dropped before parsing; bad lines come back with HasError set.
func (p *Parser) ParseDetected(lines []string, f model.DetectedFormat, defaultDate time.Time) []model.ParsedLine {
	parsed := make([]model.ParsedLine, 0, len(lines))
	for i, raw := range lines {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		parsed = append(parsed, p.parseDetectedLine(raw, i+1, f, defaultDate))
	}
	return parsed
}

func (p *Parser) parseDetectedLine(raw string, lineNumber int, f model.DetectedFormat, defaultDate time.Time) model.ParsedLine {
	line := model.ParsedLine{Raw: raw, LineNumber: lineNumber}

	columns := strings.Split(raw, ",")
	if len(columns) < 4 {
		return tagError(line, "fewer than 4 columns")
	}

	line.ReaderID = strings.TrimSpace(columns[0])
	line.ChipCode = stripQuotes(columns[1])
	if line.ReaderID == "" || line.ChipCode == "" {
		return tagError(line, "missing reader id or chip code")
	}

	if f.HasBibNumber {
		if m := trailingDigits.FindStringSubmatch(strings.TrimSpace(columns[2])); m != nil {
			bib, err := strconv.Atoi(m[1])
			if err == nil {
				line.BibNumber = bib
			}
		}
	}

	timestamp, err := parseTimestamp(stripQuotes(columns[3]), f.DateFormat, defaultDate)
	if err != nil {
		return tagError(line, err.Error())
	}
	line.Timestamp = model.NewLocalTime(timestamp)

	return line
}

// ParseSimple parses with an operator-supplied column mapping, used when
// detection failed or the export is non-standard. Columns are 1-based.
func (p *Parser) ParseSimple(lines []string, f model.SimpleFormat, defaultDate time.Time) []model.ParsedLine {
	parsed := make([]model.ParsedLine, 0, len(lines))
	for i, raw := range lines {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		parsed = append(parsed, p.parseSimpleLine(raw, i+1, f, defaultDate))
	}
	return parsed
}

func (p *Parser) parseSimpleLine(raw string, lineNumber int, f model.SimpleFormat, defaultDate time.Time) model.ParsedLine {
	line := model.ParsedLine{Raw: raw, LineNumber: lineNumber}

	// the mapping is validated at the API boundary, but a job may carry an
	// older or hand-built one; bad mappings tag lines, they never panic
	if f.Separator == "" || f.ChipColumn < 1 || f.TimeColumn < 1 {
		return tagError(line, "invalid column mapping")
	}

	columns := strings.Split(raw, f.Separator)
	need := f.ChipColumn
	if f.TimeColumn > need {
		need = f.TimeColumn
	}
	if len(columns) < need {
		return tagError(line, fmt.Sprintf("fewer than %d columns", need))
	}

	line.ChipCode = stripQuotes(columns[f.ChipColumn-1])
	if line.ChipCode == "" {
		return tagError(line, "missing chip code")
	}

	timeValue := stripQuotes(columns[f.TimeColumn-1])
	if f.TimeFormat == model.TimeHMS && hasMillis(timeValue) {
		return tagError(line, "milliseconds not expected for this time format")
	}

	timestamp, err := parseTimestamp(timeValue, f.DateFormat, defaultDate)
	if err != nil {
		return tagError(line, err.Error())
	}
	line.Timestamp = model.NewLocalTime(timestamp)

	return line
}

func hasMillis(value string) bool {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return false
	}
	return strings.ContainsAny(fields[len(fields)-1], ".,")
}

// SplitLines splits file content into lines, tolerating both CRLF and LF.
func SplitLines(content string) []string {
	return strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
}

func tagError(line model.ParsedLine, message string) model.ParsedLine {
	line.HasError = true
	line.ErrorMessage = message
	return line
}

func stripQuotes(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}

// parseTimestamp combines an optional embedded date with the clock part.
// Values are naive local wall-clock; no timezone conversion happens anywhere
// in the pipeline.
func parseTimestamp(value string, df model.DateFormat, defaultDate time.Time) (time.Time, error) {
	datePart := ""
	clockPart := value
	if fields := strings.Fields(value); len(fields) == 2 {
		datePart, clockPart = fields[0], fields[1]
	}

	day := defaultDate
	if df != model.DateTimeOnly {
		if datePart == "" {
			return time.Time{}, fmt.Errorf("expected embedded date in %q", value)
		}
		parsed, err := parseDate(datePart, df)
		if err != nil {
			return time.Time{}, err
		}
		day = parsed
	} else if datePart != "" {
		return time.Time{}, fmt.Errorf("unexpected date in time-only column %q", value)
	}
	if day.IsZero() {
		return time.Time{}, fmt.Errorf("no default date for time-only value %q", value)
	}

	m := clockPattern.FindStringSubmatch(clockPart)
	if m == nil {
		return time.Time{}, fmt.Errorf("unparsable time %q", clockPart)
	}

	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	second, _ := strconv.Atoi(m[3])
	millis := 0
	if m[4] != "" {
		// pad so ".5" means 500ms, not 5ms
		millis, _ = strconv.Atoi(m[4] + strings.Repeat("0", 3-len(m[4])))
	}

	if hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("invalid time of day %q", clockPart)
	}

	return time.Date(day.Year(), day.Month(), day.Day(),
		hour, minute, second, millis*int(time.Millisecond), time.Local), nil
}

func parseDate(value string, df model.DateFormat) (time.Time, error) {
	var layout string
	switch df {
	case model.DateTimeEU:
		layout = "02/01/2006"
	case model.DateTimeUS:
		layout = "01/02/2006"
	case model.DateTimeISO:
		layout = "2006-01-02"
	default:
		return time.Time{}, fmt.Errorf("unknown date format %q", df)
	}

	parsed, err := time.ParseInLocation(layout, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparsable date %q: %w", value, err)
	}
	return parsed, nil
}
