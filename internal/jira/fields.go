package jira

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/antigravity-dev/sprintreport/internal/hierarchy"
)

// jiraTimeLayout is the timestamp format used by Jira Server and Cloud.
const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

type issue struct {
	Key       string                     `json:"key"`
	Fields    map[string]json.RawMessage `json:"fields"`
	Changelog *changelog                 `json:"changelog,omitempty"`
}

type changelog struct {
	Histories []history `json:"histories"`
}

type history struct {
	Created string        `json:"created"`
	Items   []historyItem `json:"items"`
}

type historyItem struct {
	Field    string `json:"field"`
	ToString string `json:"toString"`
}

type named struct {
	Name string `json:"name"`
}

type status struct {
	Name           string `json:"name"`
	StatusCategory named  `json:"statusCategory"`
}

type user struct {
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// fieldList names the fields requested from search.
func (c *Client) fieldList() []string {
	return []string{
		"summary", "issuetype", "status", "assignee",
		c.cfg.RankField, c.cfg.EpicField, c.cfg.FeatureField,
	}
}

// toRaw maps a Jira issue onto the tracker-neutral record.
func (c *Client) toRaw(is issue) (hierarchy.RawIssue, error) {
	r := hierarchy.RawIssue{
		Key: is.Key,
		URL: c.BrowseURL(is.Key),
	}

	var issueType named
	var st status
	var assignee *user

	decoders := []struct {
		field string
		into  any
	}{
		{"summary", &r.Summary},
		{"issuetype", &issueType},
		{"status", &st},
		{"assignee", &assignee},
		{c.cfg.RankField, &r.Rank},
	}
	for _, d := range decoders {
		if err := decodeField(is.Fields, d.field, d.into); err != nil {
			return hierarchy.RawIssue{}, fmt.Errorf("issue %s: %w", is.Key, err)
		}
	}

	epicKey, err := keyField(is.Fields, c.cfg.EpicField)
	if err != nil {
		return hierarchy.RawIssue{}, fmt.Errorf("issue %s: %w", is.Key, err)
	}
	featureKey, err := keyField(is.Fields, c.cfg.FeatureField)
	if err != nil {
		return hierarchy.RawIssue{}, fmt.Errorf("issue %s: %w", is.Key, err)
	}

	r.Type = issueType.Name
	r.Status = st.Name
	r.StatusCategory = st.StatusCategory.Name
	r.EpicKey = epicKey
	r.FeatureKey = featureKey
	if assignee != nil {
		r.Assignee = &hierarchy.Assignee{
			Name:        assignee.Name,
			DisplayName: assignee.DisplayName,
			Email:       assignee.EmailAddress,
		}
	}

	if is.Changelog != nil {
		for _, h := range is.Changelog.Histories {
			at, err := time.Parse(jiraTimeLayout, h.Created)
			if err != nil {
				c.logger.Debug("skipping history entry with bad timestamp", "key", is.Key, "created", h.Created)
				continue
			}
			for _, item := range h.Items {
				r.History = append(r.History, hierarchy.Change{At: at, Field: item.Field, To: item.ToString})
			}
		}
	}
	return r, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func decodeField(fields map[string]json.RawMessage, name string, into any) error {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("decode field %s: %w", name, err)
	}
	return nil
}

// keyField reads an issue reference stored either as a plain key or as an
// object carrying a "key" member.
func keyField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return "", nil
	}
	raw = bytes.TrimSpace(raw)
	if raw[0] == '{' {
		var ref struct {
			Key string `json:"key"`
		}
		if err := json.Unmarshal(raw, &ref); err != nil {
			return "", fmt.Errorf("decode field %s: %w", name, err)
		}
		return ref.Key, nil
	}
	var key string
	if err := json.Unmarshal(raw, &key); err != nil {
		return "", fmt.Errorf("decode field %s: %w", name, err)
	}
	return key, nil
}
