package roster

import (
	"context"
	"regexp"

	"race-timing-ingest/internal/model"
	apperrors "race-timing-ingest/pkg/errors"
)

type Validator struct {
	chipCodeRegex *regexp.Regexp
}

func NewValidator() *Validator {
	return &Validator{
		chipCodeRegex: regexp.MustCompile(`^[A-Za-z0-9]{2,20}$`),
	}
}

func (v *Validator) Validate(ctx context.Context, entries []model.ChipIndexEntry) error {
	if len(entries) == 0 {
		return apperrors.ErrInvalidFileFormat
	}

	seenBibs := make(map[int]bool, len(entries))
	for _, entry := range entries {
		if err := v.validateEntry(entry); err != nil {
			return err
		}
		if seenBibs[entry.BibNumber] {
			return apperrors.ValidationError{
				Field:   "bib_number",
				Value:   entry.BibNumber,
				Message: "duplicate bib in workbook",
			}
		}
		seenBibs[entry.BibNumber] = true
	}

	return nil
}

func (v *Validator) validateEntry(entry model.ChipIndexEntry) error {
	if entry.BibNumber <= 0 {
		return apperrors.ValidationError{
			Field:   "bib_number",
			Value:   entry.BibNumber,
			Message: "must be a positive number",
		}
	}

	if entry.ChipCode == "" {
		return apperrors.ValidationError{
			Field:   "chip_code",
			Value:   entry.ChipCode,
			Message: "primary chip code cannot be empty",
		}
	}

	for _, code := range entry.Codes() {
		if code == "" {
			continue
		}
		if !v.chipCodeRegex.MatchString(code) {
			return apperrors.ValidationError{
				Field:   "chip_code",
				Value:   code,
				Message: "must be 2-20 alphanumeric characters",
			}
		}
	}

	return nil
}
