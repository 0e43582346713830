package model

import "time"

type ImportRunStatus string

const (
	ImportRunUploaded   ImportRunStatus = "UPLOADED"
	ImportRunRunning    ImportRunStatus = "RUNNING"
	ImportRunImported   ImportRunStatus = "IMPORTED"
	ImportRunWithErrors ImportRunStatus = "IMPORTED_WITH_ERRORS"
	ImportRunFailed     ImportRunStatus = "FAILED"
)

// ImportResult is the operator-facing audit of one import run. Counts are
// accumulated as chunks complete and never retroactively corrected.
type ImportResult struct {
	Total      int `json:"total"`
	Imported   int `json:"imported"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
	Unresolved int `json:"unresolved"`
}

type ImportRun struct {
	ID           string          `json:"id" db:"id"`
	RaceID       int64           `json:"race_id" db:"race_id"`
	FileKey      string          `json:"file_key" db:"file_key"`
	Status       ImportRunStatus `json:"status" db:"status"`
	Result       *ImportResult   `json:"result,omitempty" db:"result"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}
