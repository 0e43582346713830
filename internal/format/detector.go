// Package format classifies reader export files from a single sample line.
// Exports are comma-separated with at least four columns:
//
//	ID_Lector,Chip,{0|Chip|Dorsal},"[date ]HH:MM:SS[.mmm]"
//
// Column 3 disambiguates the layout and column 4 carries the time, with an
// optional embedded date in EU or ISO shape.
package format

import (
	"regexp"
	"strings"

	"race-timing-ingest/internal/model"
	apperrors "race-timing-ingest/pkg/errors"
)

var digitsOnly = regexp.MustCompile(`^\d+$`)

// layoutRule maps the shape of column 3 to a format tag. Rules are checked
// in order; new layouts are added here rather than in a conditional chain.
type layoutRule struct {
	matches func(chip, third string) bool
	format  model.FormatType
	hasBib  bool
	note    string
}

var layoutRules = []layoutRule{
	{
		matches: func(chip, third string) bool { return third == "0" },
		format:  model.FormatChipOnly,
	},
	{
		matches: func(chip, third string) bool { return third == chip },
		format:  model.FormatChipDuplicated,
	},
	{
		matches: func(chip, third string) bool { return digitsOnly.MatchString(third) },
		format:  model.FormatWithBib,
		hasBib:  true,
	},
	{
		matches: func(chip, third string) bool { return true },
		format:  model.FormatChipOnly,
		note:    "unknown third column",
	},
}

// Detect classifies the column layout and timestamp shape of a sample line,
// normally the first non-blank line of the uploaded file. It returns
// ErrFormatNotDetected when fewer than four columns are present; the caller
// then falls back to an operator-supplied SimpleFormat.
func Detect(line string) (model.DetectedFormat, error) {
	columns := strings.Split(line, ",")
	if len(columns) < 4 {
		return model.DetectedFormat{}, apperrors.ErrFormatNotDetected
	}

	chip := strings.TrimSpace(columns[1])
	third := strings.TrimSpace(columns[2])

	var detected model.DetectedFormat
	for _, rule := range layoutRules {
		if rule.matches(chip, third) {
			detected = model.DetectedFormat{
				Type:         rule.format,
				HasBibNumber: rule.hasBib,
				Note:         rule.note,
			}
			break
		}
	}

	detected.HasDate, detected.DateFormat = detectDateShape(columns[3])
	return detected, nil
}

// detectDateShape inspects the time column (quotes stripped) for an embedded
// date. A slash means DD/MM/YYYY; a dash in a value longer than a bare time
// means YYYY-MM-DD. Anything else is time-only and needs a caller-supplied
// default date.
func detectDateShape(timeColumn string) (bool, model.DateFormat) {
	v := strings.Trim(strings.TrimSpace(timeColumn), `"`)

	switch {
	case strings.Contains(v, "/"):
		return true, model.DateTimeEU
	case strings.Contains(v, "-") && len(v) > 12 && leadingYear(v):
		return true, model.DateTimeISO
	default:
		return false, model.DateTimeOnly
	}
}

func leadingYear(v string) bool {
	if len(v) < 4 {
		return false
	}
	return digitsOnly.MatchString(v[:4])
}
