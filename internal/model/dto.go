package model

// ImportJob is the queue message that drives one import run.
type ImportJob struct {
	RunID          string        `json:"run_id"`
	RaceID         int64         `json:"race_id"`
	FileKey        string        `json:"file_key"`
	DefaultDate    string        `json:"default_date"` // YYYY-MM-DD, combined with time-only columns
	TimingPointID  *int64        `json:"timing_point_id,omitempty"`
	RaceDistanceID *int64        `json:"race_distance_id,omitempty"`
	Simple         *SimpleFormat `json:"simple,omitempty"` // explicit mode, skips detection
}

// ReimportJob re-drives raw GPS samples in a window through the checkpoint
// crossing detector.
type ReimportJob struct {
	RaceID int64  `json:"race_id"`
	Start  string `json:"start"` // local wall-clock, YYYY-MM-DD HH:MM:SS
	End    string `json:"end"`
}

type ReadingBatch struct {
	RaceID   int64           `json:"race_id"`
	Readings []TimingReading `json:"readings"`
}

type ReadingRequest struct {
	RaceID  int64         `json:"race_id"`
	Reading TimingReading `json:"reading"`
}

type BatchResponse struct {
	Success  bool   `json:"success"`
	Inserted int    `json:"inserted"`
	Message  string `json:"message,omitempty"`
}

type ReadingResponse struct {
	ID int64 `json:"id"`
}

// ReimportResult is what the checkpoint-crossing detector reports back after
// reprocessing a sample id list.
type ReimportResult struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
}

type AuthTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}
