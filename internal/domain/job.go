package domain

import (
	"encoding/json"
	"time"
)

// JobStatus represents the lifecycle status of a background job.
// Transitions are monotonic: pending -> running -> {completed, failed, cancelled}.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// JobType identifies which handler runs a job. The set is closed; a job with
// an unregistered type fails at dispatch time.
type JobType string

const (
	JobTypeGitHubSync      JobType = "github_sync"
	JobTypeJiraSync        JobType = "jira_sync"
	JobTypeAgentSync       JobType = "agent_sync"
	JobTypeReport          JobType = "report_generation"
	JobTypeReviewAnalysis  JobType = "review_analysis"
	JobTypeGoalRecompute   JobType = "goal_recompute"
	JobTypePeriodicInsight JobType = "periodic_insight"
)

// ValidJobType reports whether t names a known job type.
func ValidJobType(t JobType) bool {
	switch t {
	case JobTypeGitHubSync, JobTypeJiraSync, JobTypeAgentSync,
		JobTypeReport, JobTypeReviewAnalysis, JobTypeGoalRecompute,
		JobTypePeriodicInsight:
		return true
	}
	return false
}

// JobLogEntry is a single line of a job's append-only log.
type JobLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // info, warn, error
	Message   string    `json:"message"`
}

// Job is a persisted unit of deferred work. Config, Result, and Logs are
// serialized JSON columns; the engine never inspects Config beyond handing it
// to the handler registered for the job's type.
type Job struct {
	ID            string    `gorm:"type:text;primaryKey" json:"id"`
	Type          JobType   `gorm:"type:text;not null;index" json:"type"`
	Status        JobStatus `gorm:"type:text;not null;index;default:pending" json:"status"`
	Progress      int       `gorm:"default:0" json:"progress"`
	StatusMessage string    `json:"status_message,omitempty"`
	Logs          string    `gorm:"type:text" json:"-"`
	Config        string    `gorm:"type:text" json:"-"`
	Result        string    `gorm:"type:text" json:"-"`
	Error         string    `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName returns the database table name for Job.
func (Job) TableName() string {
	return "jobs"
}

// ParsedLogs decodes the serialized log entries. An empty or unset Logs
// column yields an empty slice, never an error.
func (j *Job) ParsedLogs() []JobLogEntry {
	if j.Logs == "" {
		return []JobLogEntry{}
	}
	var entries []JobLogEntry
	if err := json.Unmarshal([]byte(j.Logs), &entries); err != nil {
		return []JobLogEntry{}
	}
	return entries
}

// ParsedConfig decodes the opaque config payload into a generic map.
func (j *Job) ParsedConfig() map[string]any {
	return parseJSONObject(j.Config)
}

// ParsedResult decodes the result payload. Nil until the job completes.
func (j *Job) ParsedResult() map[string]any {
	return parseJSONObject(j.Result)
}

func parseJSONObject(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}
