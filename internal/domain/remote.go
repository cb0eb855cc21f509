package domain

import "time"

// RemoteKind distinguishes the two kinds of synced remote items.
type RemoteKind string

const (
	RemoteKindPullRequest RemoteKind = "pull_request"
	RemoteKindTicket      RemoteKind = "ticket"
)

// PullRequest is a synced GitHub pull request, keyed by repo+number.
// Re-syncing updates the row in place; the natural key is never duplicated.
type PullRequest struct {
	ID     string `gorm:"type:text;primaryKey" json:"id"`
	Owner  string `gorm:"not null;uniqueIndex:idx_pr_key" json:"owner"`
	Repo   string `gorm:"not null;uniqueIndex:idx_pr_key" json:"repo"`
	Number int    `gorm:"not null;uniqueIndex:idx_pr_key" json:"number"`

	Title     string     `json:"title"`
	Body      string     `gorm:"type:text" json:"body,omitempty"`
	Author    string     `json:"author"`
	State     string     `json:"state"`
	URL       string     `json:"url"`
	Comments  int        `json:"comments"`
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
	MergedAt  *time.Time `json:"merged_at,omitempty"`

	RemoteCreatedAt time.Time `json:"remote_created_at"`
	RemoteUpdatedAt time.Time `json:"remote_updated_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for PullRequest.
func (PullRequest) TableName() string {
	return "pull_requests"
}

// Ticket is a synced Jira issue, keyed by projectKey+ticketNumber.
type Ticket struct {
	ID         string `gorm:"type:text;primaryKey" json:"id"`
	ProjectKey string `gorm:"not null;uniqueIndex:idx_ticket_key" json:"project_key"`
	Number     int    `gorm:"not null;uniqueIndex:idx_ticket_key" json:"number"`

	Title    string `json:"title"`
	Body     string `gorm:"type:text" json:"body,omitempty"`
	Author   string `json:"author"`
	Assignee string `json:"assignee,omitempty"`
	State    string `json:"state"`
	IssueURL string `json:"issue_url"`
	Comments int    `json:"comments"`

	RemoteCreatedAt time.Time `json:"remote_created_at"`
	RemoteUpdatedAt time.Time `json:"remote_updated_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for Ticket.
func (Ticket) TableName() string {
	return "tickets"
}

// CrossLink records a discovered relationship between a pull request and a
// ticket (e.g. a Jira key mentioned in a PR body). Upserted by the key pair.
type CrossLink struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	PRKey     string    `gorm:"not null;uniqueIndex:idx_crosslink_pair" json:"pr_key"`
	TicketKey string    `gorm:"not null;uniqueIndex:idx_crosslink_pair" json:"ticket_key"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for CrossLink.
func (CrossLink) TableName() string {
	return "cross_links"
}
