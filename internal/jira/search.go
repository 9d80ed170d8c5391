package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	neturl "net/url"
	"strconv"
	"strings"

	"github.com/antigravity-dev/sprintreport/internal/hierarchy"
)

const searchPath = "/rest/api/2/search"

// searchResponse is the relevant subset of the Jira search response.
type searchResponse struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []issue `json:"issues"`
}

var _ hierarchy.Source = (*Client)(nil)

// Search returns every issue matching jql. A search matching more than the
// configured max_issues fails with ErrTooManyIssues instead of returning a
// partial result.
func (c *Client) Search(ctx context.Context, jql string) ([]hierarchy.RawIssue, error) {
	var all []hierarchy.RawIssue
	for page, err := range c.Pages(ctx, jql) {
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
	}
	c.logger.Debug("jira search complete", "jql", jql, "count", len(all))
	return all, nil
}

// Pages yields search results one page at a time. Pages are only requested
// as the caller consumes them; iteration stops after the first error.
//
// The server may return fewer issues than asked for, so paging advances by
// what each response holds and ends on an empty page or once the reported
// total has been read.
func (c *Client) Pages(ctx context.Context, jql string) iter.Seq2[[]hierarchy.RawIssue, error] {
	return func(yield func([]hierarchy.RawIssue, error) bool) {
		fetched := 0
		for {
			limit := min(c.cfg.PageSize, c.cfg.MaxIssues-fetched)
			if limit <= 0 {
				yield(nil, fmt.Errorf("search %q: more than %d issues: %w", jql, c.cfg.MaxIssues, ErrTooManyIssues))
				return
			}

			resp, err := c.searchPage(ctx, jql, fetched, limit)
			if err != nil {
				yield(nil, err)
				return
			}
			if resp.Total > c.cfg.MaxIssues {
				yield(nil, fmt.Errorf("search %q: %d issues, more than %d: %w", jql, resp.Total, c.cfg.MaxIssues, ErrTooManyIssues))
				return
			}

			page := make([]hierarchy.RawIssue, 0, len(resp.Issues))
			for _, is := range resp.Issues {
				r, err := c.toRaw(is)
				if err != nil {
					yield(nil, err)
					return
				}
				page = append(page, r)
			}
			fetched += len(page)
			c.logger.Debug("jira pagination", "jql", jql, "issuesSoFar", fetched, "total", resp.Total)

			if len(page) == 0 {
				return
			}
			if !yield(page, nil) {
				return
			}
			if resp.Total > 0 && fetched >= resp.Total {
				return
			}
		}
	}
}

func (c *Client) searchPage(ctx context.Context, jql string, startAt, maxResults int) (*searchResponse, error) {
	params := neturl.Values{}
	params.Set("jql", jql)
	params.Set("startAt", strconv.Itoa(startAt))
	params.Set("maxResults", strconv.Itoa(maxResults))
	params.Set("expand", "changelog")
	params.Set("fields", strings.Join(c.fieldList(), ","))

	body, err := c.get(ctx, searchPath, params)
	if err != nil {
		return nil, fmt.Errorf("search %q at %d: %w", jql, startAt, err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse jira search response: %w", err)
	}
	return &resp, nil
}
