package domain

import "time"

// HeartbeatKeyPoller is the single heartbeat cell written by the batch poller.
const HeartbeatKeyPoller = "job_poller"

// Heartbeat is a process-wide liveness cell: single writer (the poller),
// multiple readers (health checks). One row per key.
type Heartbeat struct {
	Key      string    `gorm:"type:text;primaryKey" json:"key"`
	BeatenAt time.Time `gorm:"not null" json:"beaten_at"`
}

// TableName returns the database table name for Heartbeat.
func (Heartbeat) TableName() string {
	return "heartbeats"
}

// Age returns how long ago the heartbeat was written.
func (h *Heartbeat) Age(now time.Time) time.Duration {
	return now.Sub(h.BeatenAt)
}
