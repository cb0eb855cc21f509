package domain

import "time"

// Insight is a generated periodic summary over the evidence collected in a
// period ("2024-Q1", "2024-05"). One row per period; regeneration updates in
// place.
type Insight struct {
	ID            string    `gorm:"type:text;primaryKey" json:"id"`
	Period        string    `gorm:"not null;uniqueIndex" json:"period"`
	Content       string    `gorm:"type:text" json:"content"`
	EvidenceCount int       `json:"evidence_count"`
	Model         string    `json:"model,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for Insight.
func (Insight) TableName() string {
	return "insights"
}

// Goal tracks progress toward a target count of matched evidence for one
// criterion. Progress is recomputed by the goal_recompute job.
type Goal struct {
	ID           string    `gorm:"type:text;primaryKey" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	CriterionID  string    `gorm:"not null;index" json:"criterion_id"`
	TargetCount  int       `gorm:"default:0" json:"target_count"`
	CurrentCount int       `gorm:"default:0" json:"current_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for Goal.
func (Goal) TableName() string {
	return "goals"
}
