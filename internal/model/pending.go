package model

// PendingEntry is the device-local durable record of one captured reading or
// status event. It survives restarts in the session's queue store until the
// remote store acknowledges it.
type PendingEntry struct {
	LocalID  string        `json:"local_id"`
	ServerID int64         `json:"server_id,omitempty"` // set once acknowledged; edits with a server id overwrite remote state
	Reading  TimingReading `json:"reading"`
	Synced   bool          `json:"synced"`
}
