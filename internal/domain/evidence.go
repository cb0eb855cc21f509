package domain

import "time"

// Evidence is a performance-evidence record. It references at most one remote
// item through SourceKey (e.g. "acme/api#42" or "PLAT-17"); standalone
// evidence entered through the CRUD surface has an empty SourceKind/SourceKey.
type Evidence struct {
	ID         string     `gorm:"type:text;primaryKey" json:"id"`
	SourceKind RemoteKind `gorm:"index" json:"source_kind,omitempty"`
	SourceKey  string     `gorm:"uniqueIndex" json:"source_key,omitempty"`

	Title         string     `json:"title"`
	Summary       string     `gorm:"type:text" json:"summary"`
	Category      string     `gorm:"index" json:"category"`
	ScopeEstimate string     `json:"scope_estimate,omitempty"`
	OccurredAt    *time.Time `json:"occurred_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Evidence.
func (Evidence) TableName() string {
	return "evidence"
}

// Criterion is a scored review criterion evidence is matched against.
// Criteria live in the relational store and are mirrored into the vector
// index so matching can rank by embedding similarity.
type Criterion struct {
	ID          string    `gorm:"type:text;primaryKey" json:"id"`
	Name        string    `gorm:"not null;uniqueIndex" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Weight      float64   `gorm:"default:1" json:"weight"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Criterion.
func (Criterion) TableName() string {
	return "criteria"
}

// CriterionMatch links a piece of evidence to a criterion with a confidence
// score. Upserted by (evidence, criterion) so re-syncs never duplicate.
type CriterionMatch struct {
	ID          string    `gorm:"type:text;primaryKey" json:"id"`
	EvidenceID  string    `gorm:"not null;uniqueIndex:idx_match_pair" json:"evidence_id"`
	CriterionID string    `gorm:"not null;uniqueIndex:idx_match_pair;index" json:"criterion_id"`
	Confidence  float64   `json:"confidence"`
	Rationale   string    `gorm:"type:text" json:"rationale,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for CriterionMatch.
func (CriterionMatch) TableName() string {
	return "criterion_matches"
}
