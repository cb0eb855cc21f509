// Package github implements the pull-request source over the GitHub REST API.
package github

import (
	"context"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/perfdesk/perfdesk/internal/domain"
	"github.com/perfdesk/perfdesk/internal/logger"
	"github.com/perfdesk/perfdesk/internal/source"
)

const perPage = 100

// Adapter discovers and enriches pull requests. Both operations are
// read-only against the GitHub API.
type Adapter struct {
	client *gh.Client
	logger *logger.Logger
}

// New creates an adapter authenticated with a personal access token. An
// empty token falls back to unauthenticated access (rate-limited, public
// repos only).
func New(ctx context.Context, token string, log *logger.Logger) *Adapter {
	httpClient := oauth2.NewClient(ctx, nil)
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, ts)
	}
	return &Adapter{
		client: gh.NewClient(httpClient),
		logger: log.WithField(logger.FieldComponent, "source.github"),
	}
}

// Kind identifies what the source produces.
func (a *Adapter) Kind() domain.RemoteKind {
	return domain.RemoteKindPullRequest
}

// Discover lists the natural keys of pull requests updated within scope.
// Targets must be "owner/repo" strings.
func (a *Adapter) Discover(ctx context.Context, scope source.Scope) ([]source.ItemRef, error) {
	var refs []source.ItemRef
	for _, target := range scope.Targets {
		owner, repo, err := splitTarget(target)
		if err != nil {
			return nil, err
		}

		opts := &gh.PullRequestListOptions{
			State:       "all",
			Sort:        "updated",
			Direction:   "desc",
			ListOptions: gh.ListOptions{PerPage: perPage},
		}
		for {
			prs, resp, err := a.client.PullRequests.List(ctx, owner, repo, opts)
			if err != nil {
				return nil, fmt.Errorf("list pull requests for %s: %w", target, err)
			}

			reachedCutoff := false
			for _, pr := range prs {
				if !scope.Since.IsZero() && pr.GetUpdatedAt().Time.Before(scope.Since) {
					reachedCutoff = true
					break
				}
				refs = append(refs, source.ItemRef{
					Kind:   domain.RemoteKindPullRequest,
					Owner:  owner,
					Repo:   repo,
					Number: pr.GetNumber(),
				})
			}
			if reachedCutoff || resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}
	}

	a.logger.WithField(logger.FieldCount, len(refs)).Debug("discovered pull requests")
	return refs, nil
}

// Enrich fetches the full pull request for one natural key.
func (a *Adapter) Enrich(ctx context.Context, ref source.ItemRef) (*source.RemoteItem, error) {
	pr, _, err := a.client.PullRequests.Get(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return nil, fmt.Errorf("get pull request %s: %w", ref.Key(), err)
	}

	item := &source.RemoteItem{
		Ref:       ref,
		Title:     pr.GetTitle(),
		Body:      pr.GetBody(),
		Author:    pr.GetUser().GetLogin(),
		State:     pr.GetState(),
		URL:       pr.GetHTMLURL(),
		Comments:  pr.GetComments() + pr.GetReviewComments(),
		Additions: pr.GetAdditions(),
		Deletions: pr.GetDeletions(),
		CreatedAt: pr.GetCreatedAt().Time,
		UpdatedAt: pr.GetUpdatedAt().Time,
	}
	if pr.MergedAt != nil {
		merged := pr.GetMergedAt().Time
		item.MergedAt = &merged
	}
	for _, label := range pr.Labels {
		item.Labels = append(item.Labels, label.GetName())
	}
	return item, nil
}

func splitTarget(target string) (owner, repo string, err error) {
	parts := strings.SplitN(target, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo target %q, expected owner/repo", target)
	}
	return parts[0], parts[1], nil
}
