// Package jira implements the ticket source over the Jira Cloud REST API.
package jira

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/perfdesk/perfdesk/internal/domain"
	"github.com/perfdesk/perfdesk/internal/logger"
	"github.com/perfdesk/perfdesk/internal/source"
)

const (
	searchPageSize = 100
	jiraTimeLayout = "2006-01-02T15:04:05.000-0700"
)

// Config holds Jira connection settings.
type Config struct {
	BaseURL  string
	Email    string
	APIToken string
}

// Adapter discovers and enriches Jira issues. Both operations are read-only
// JQL/REST calls.
type Adapter struct {
	client  *resty.Client
	baseURL string
	logger  *logger.Logger
}

// New creates an adapter using basic auth (email + API token), the Jira
// Cloud authentication scheme.
func New(cfg *Config, log *logger.Logger) *Adapter {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetBasicAuth(cfg.Email, cfg.APIToken).
		SetHeader("Accept", "application/json").
		SetTimeout(30 * time.Second)

	return &Adapter{
		client:  client,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  log.WithField(logger.FieldComponent, "source.jira"),
	}
}

// Kind identifies what the source produces.
func (a *Adapter) Kind() domain.RemoteKind {
	return domain.RemoteKindTicket
}

type searchResponse struct {
	StartAt    int `json:"startAt"`
	MaxResults int `json:"maxResults"`
	Total      int `json:"total"`
	Issues     []struct {
		Key string `json:"key"`
	} `json:"issues"`
}

// Discover lists the natural keys of issues updated within scope. Targets
// must be Jira project keys.
func (a *Adapter) Discover(ctx context.Context, scope source.Scope) ([]source.ItemRef, error) {
	var refs []source.ItemRef
	for _, project := range scope.Targets {
		jql := fmt.Sprintf("project = %q", project)
		if !scope.Since.IsZero() {
			jql += fmt.Sprintf(" AND updated >= %q", scope.Since.Format("2006-01-02"))
		}
		jql += " ORDER BY updated DESC"

		startAt := 0
		for {
			var result searchResponse
			resp, err := a.client.R().
				SetContext(ctx).
				SetQueryParams(map[string]string{
					"jql":        jql,
					"fields":     "key",
					"startAt":    strconv.Itoa(startAt),
					"maxResults": strconv.Itoa(searchPageSize),
				}).
				SetResult(&result).
				Get("/rest/api/2/search")
			if err != nil {
				return nil, fmt.Errorf("search issues for %s: %w", project, err)
			}
			if resp.IsError() {
				return nil, fmt.Errorf("search issues for %s: HTTP %d: %s", project, resp.StatusCode(), resp.String())
			}

			for _, issue := range result.Issues {
				ref, err := parseIssueKey(issue.Key)
				if err != nil {
					a.logger.WithError(err).Warn("skipping unparseable issue key")
					continue
				}
				refs = append(refs, ref)
			}

			startAt += len(result.Issues)
			if startAt >= result.Total || len(result.Issues) == 0 {
				break
			}
		}
	}

	a.logger.WithField(logger.FieldCount, len(refs)).Debug("discovered tickets")
	return refs, nil
}

type issueResponse struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
		Created     string `json:"created"`
		Updated     string `json:"updated"`
		Status      struct {
			Name string `json:"name"`
		} `json:"status"`
		Creator struct {
			DisplayName string `json:"displayName"`
		} `json:"creator"`
		Assignee *struct {
			DisplayName string `json:"displayName"`
		} `json:"assignee"`
		Comment struct {
			Total int `json:"total"`
		} `json:"comment"`
		Labels []string `json:"labels"`
	} `json:"fields"`
}

// Enrich fetches the full issue for one natural key.
func (a *Adapter) Enrich(ctx context.Context, ref source.ItemRef) (*source.RemoteItem, error) {
	var result issueResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("fields", "summary,description,status,creator,assignee,comment,labels,created,updated").
		SetResult(&result).
		Get("/rest/api/2/issue/" + ref.Key())
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", ref.Key(), err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("get issue %s: HTTP %d: %s", ref.Key(), resp.StatusCode(), resp.String())
	}

	item := &source.RemoteItem{
		Ref:      ref,
		Title:    result.Fields.Summary,
		Body:     result.Fields.Description,
		Author:   result.Fields.Creator.DisplayName,
		State:    result.Fields.Status.Name,
		URL:      a.baseURL + "/browse/" + ref.Key(),
		Comments: result.Fields.Comment.Total,
		Labels:   result.Fields.Labels,
	}
	if result.Fields.Assignee != nil {
		item.Assignee = result.Fields.Assignee.DisplayName
	}
	if t, err := time.Parse(jiraTimeLayout, result.Fields.Created); err == nil {
		item.CreatedAt = t
	}
	if t, err := time.Parse(jiraTimeLayout, result.Fields.Updated); err == nil {
		item.UpdatedAt = t
	}
	return item, nil
}

// parseIssueKey splits "PROJ-42" into its project and number parts.
func parseIssueKey(key string) (source.ItemRef, error) {
	idx := strings.LastIndex(key, "-")
	if idx <= 0 {
		return source.ItemRef{}, fmt.Errorf("invalid issue key %q", key)
	}
	number, err := strconv.Atoi(key[idx+1:])
	if err != nil {
		return source.ItemRef{}, fmt.Errorf("invalid issue key %q", key)
	}
	return source.ItemRef{
		Kind:    domain.RemoteKindTicket,
		Project: key[:idx],
		Number:  number,
	}, nil
}
