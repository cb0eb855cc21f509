// Package source defines the remote-item source contract used by the sync
// pipeline, and the adapters that implement it for GitHub and Jira.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/perfdesk/perfdesk/internal/domain"
)

// Scope narrows a discovery run: which repos or projects, and how far back.
type Scope struct {
	// Targets are "owner/repo" strings for GitHub, project keys for Jira.
	Targets []string `json:"scope"`
	// Since filters out items not updated after this instant. Zero means no
	// date filter.
	Since time.Time `json:"since"`
}

// ItemRef is the natural key of a remote item — the externally-stable
// identifier the pipeline deduplicates on.
type ItemRef struct {
	Kind domain.RemoteKind

	// Pull request coordinates.
	Owner string
	Repo  string

	// Ticket coordinates.
	Project string

	Number int
}

// Key renders the canonical natural-key string: "owner/repo#42" for pull
// requests, "PROJ-42" for tickets.
func (r ItemRef) Key() string {
	if r.Kind == domain.RemoteKindTicket {
		return fmt.Sprintf("%s-%d", r.Project, r.Number)
	}
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// RemoteItem is a fully enriched remote item, ready for analysis and
// persistence.
type RemoteItem struct {
	Ref ItemRef

	Title    string
	Body     string
	Author   string
	Assignee string
	State    string
	URL      string
	Labels   []string

	Comments  int
	Additions int
	Deletions int

	CreatedAt time.Time
	UpdatedAt time.Time
	MergedAt  *time.Time
}

// Source enumerates and enriches remote items of one kind. Both operations
// are side-effect-free and safe to re-run.
type Source interface {
	// Kind identifies what the source produces.
	Kind() domain.RemoteKind
	// Discover lists the natural keys in scope. A Discover failure is the
	// only per-source error that fails a whole sync job.
	Discover(ctx context.Context, scope Scope) ([]ItemRef, error)
	// Enrich fetches the full item for one natural key.
	Enrich(ctx context.Context, ref ItemRef) (*RemoteItem, error)
}
