package model

import "strings"

// ChipIndexEntry maps a participant bib to the chip codes assigned to it.
// A participant can carry up to five alternate chips (spare tags, bike vs.
// shoe mounts), all resolving to the same bib.
type ChipIndexEntry struct {
	BibNumber      int    `json:"bib_number" db:"bib_number"`
	ChipCode       string `json:"chip_code" db:"chip_code"`
	ChipCode2      string `json:"chip_code_2,omitempty" db:"chip_code_2"`
	ChipCode3      string `json:"chip_code_3,omitempty" db:"chip_code_3"`
	ChipCode4      string `json:"chip_code_4,omitempty" db:"chip_code_4"`
	ChipCode5      string `json:"chip_code_5,omitempty" db:"chip_code_5"`
	RaceDistanceID *int64 `json:"race_distance_id,omitempty" db:"race_distance_id"`
}

func (e ChipIndexEntry) Codes() []string {
	return []string{e.ChipCode, e.ChipCode2, e.ChipCode3, e.ChipCode4, e.ChipCode5}
}

// Matches reports whether code equals any of the entry's chip slots.
// Chip comparison is case-insensitive; readers are inconsistent about casing.
func (e ChipIndexEntry) Matches(code string) bool {
	if code == "" {
		return false
	}
	for _, c := range e.Codes() {
		if c != "" && strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}
