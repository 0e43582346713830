package model

import "time"

type ReadingType string

const (
	ReadingTypeManual       ReadingType = "MANUAL"
	ReadingTypeAutomatic    ReadingType = "AUTOMATIC"
	ReadingTypeStatusChange ReadingType = "STATUS_CHANGE"
)

type StatusCode string

const (
	StatusDNF       StatusCode = "DNF"
	StatusDNS       StatusCode = "DNS"
	StatusDSQ       StatusCode = "DSQ"
	StatusWithdrawn StatusCode = "WITHDRAWN"
)

// LocalTime is a timezone-naive wall-clock instant. Capture devices and
// reader files report local time without a zone, and the platform stores it
// verbatim, so it is serialized without any zone conversion.
type LocalTime struct {
	time.Time
}

const localTimeLayout = "2006-01-02 15:04:05.000"

func NewLocalTime(t time.Time) LocalTime {
	return LocalTime{Time: t}
}

func (t LocalTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Format(localTimeLayout) + `"`), nil
}

func (t *LocalTime) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.ParseInLocation(localTimeLayout, s, time.Local)
	if err != nil {
		// older devices send timestamps without milliseconds
		parsed, err = time.ParseInLocation("2006-01-02 15:04:05", s, time.Local)
		if err != nil {
			return err
		}
	}
	t.Time = parsed
	return nil
}

func (t LocalTime) String() string {
	return t.Format(localTimeLayout)
}

// TimingReading is the canonical unit written to the event store: one
// chip/bib-resolved crossing or one race-status event.
type TimingReading struct {
	ID             int64       `json:"id,omitempty" db:"id"`
	BibNumber      int         `json:"bib_number" db:"bib_number"`
	TimingPointID  *int64      `json:"timing_point_id,omitempty" db:"timing_point_id"`
	RaceDistanceID *int64      `json:"race_distance_id,omitempty" db:"race_distance_id"`
	RegistrationID *int64      `json:"registration_id,omitempty" db:"registration_id"`
	ChipCode       string      `json:"chip_code,omitempty" db:"chip_code"`
	Timestamp      LocalTime   `json:"timestamp" db:"timestamp"`
	ReadingType    ReadingType `json:"reading_type" db:"reading_type"`
	StatusCode     *StatusCode `json:"status_code,omitempty" db:"status_code"`
	LapNumber      int         `json:"lap_number" db:"lap_number"`
	IsProcessed    bool        `json:"is_processed" db:"is_processed"`
	Notes          *string     `json:"notes,omitempty" db:"notes"`
	ReaderDeviceID string      `json:"reader_device_id,omitempty" db:"reader_device_id"`
	OperatorUserID *int64      `json:"operator_user_id,omitempty" db:"operator_user_id"`
}

// IsStatusEvent reports whether the reading marks a race-status change
// (DNF/DNS/DSQ/withdrawn) rather than a lap crossing.
func (r TimingReading) IsStatusEvent() bool {
	return r.StatusCode != nil
}

// Splits returns only the lap-crossing readings. Status events must never be
// fed into lap or split computations.
func Splits(readings []TimingReading) []TimingReading {
	splits := make([]TimingReading, 0, len(readings))
	for _, r := range readings {
		if !r.IsStatusEvent() {
			splits = append(splits, r)
		}
	}
	return splits
}
