// Package youtrack uploads aggregated work records to the YouTrack
// work-item API.
package youtrack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/petr-muller/clocksync/internal/timesheet"
)

// placeholderToken marks an issue id whose numeric suffix was not known at
// tracking time and must be supplied by the operator before upload.
const placeholderToken = "..."

// PlaceholderResolver turns an issue id containing the placeholder token
// into a final id. The default implementation prompts the operator; tests
// and non-interactive runs plug in a static one.
type PlaceholderResolver interface {
	Resolve(candidate string) (string, error)
}

// Client talks to the YouTrack REST API.
type Client struct {
	endpoint   string
	suffix     string
	token      string
	location   *time.Location
	resolver   PlaceholderResolver
	httpClient *http.Client
}

// NewClient creates a client for the given base endpoint. The suffix is the
// path fragment between the base URL and the REST resources, usually
// "youtrack/api".
func NewClient(endpoint, suffix, token string, location *time.Location, resolver PlaceholderResolver) *Client {
	return &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		suffix:     strings.Trim(suffix, "/"),
		token:      token,
		location:   location,
		resolver:   resolver,
		httpClient: &http.Client{},
	}
}

type workItemRequest struct {
	UsesMarkdown bool          `json:"usesMarkdown"`
	Text         string        `json:"text"`
	Date         int64         `json:"date"`
	Duration     durationValue `json:"duration"`
	Type         *typeRef      `json:"type,omitempty"`
}

type durationValue struct {
	Presentation string `json:"presentation"`
}

type typeRef struct {
	ID string `json:"id"`
}

type workItem struct {
	ID   string `json:"id"`
	Date int64  `json:"date"`
	Text string `json:"text"`
}

// Upload creates one work item per per-issue record in the sheet. Records
// that already exist on the tracker (same text and date) are skipped, so a
// partially uploaded sheet can be re-run safely. The first failing create
// aborts the remaining loop.
func (c *Client) Upload(ctx context.Context, sheet *timesheet.Sheet) error {
	logrus.Info("Upload to YouTrack started ...")

	for _, key := range sheet.Keys() {
		record := sheet.Lookup(key)
		if strings.HasPrefix(key, timesheet.SumPrefix) || record.Date == "" {
			continue
		}
		if len(record.Issues) == 0 {
			logrus.Debugf("record %q has no issue id, skipping", key)
			continue
		}

		if err := c.uploadRecord(ctx, record); err != nil {
			return err
		}
	}

	logrus.Info("... Upload to YouTrack finished!")
	return nil
}

func (c *Client) uploadRecord(ctx context.Context, record *timesheet.Record) error {
	day, err := time.ParseInLocation("2006-01-02", record.Date, c.location)
	if err != nil {
		return fmt.Errorf("failed to parse record date %q: %w", record.Date, err)
	}
	dateMs := day.UnixMilli()

	text := "- " + strings.Join(record.Descriptions, "\n- ")

	issueID := record.Issues[0]
	if strings.Contains(issueID, placeholderToken) {
		logrus.Infof("for descriptions -> %s", strings.Join(record.Descriptions, ", "))
		resolved, err := c.resolver.Resolve(issueID)
		if err != nil {
			return fmt.Errorf("failed to resolve placeholder in %q: %w", issueID, err)
		}
		issueID = resolved
		record.Issues[0] = resolved
	}

	request := workItemRequest{
		UsesMarkdown: true,
		Text:         text,
		Date:         dateMs,
		Duration:     durationValue{Presentation: record.Duration.Presentation()},
	}

	if record.IssueType != "" {
		typeID, err := c.workItemTypeID(ctx, issueID, record.IssueType)
		if err != nil {
			return err
		}
		if typeID != "" {
			request.Type = &typeRef{ID: typeID}
		}
	}

	exists, err := c.workItemExists(ctx, issueID, text, record.Date, dateMs)
	if err != nil {
		return err
	}
	if exists {
		logrus.Infof("===>> Issue %s for date %s is already uploaded", issueID, record.Date)
		return nil
	}

	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal work item: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.url("issues/%s/timeTracking/workItems", issueID), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	c.setHeaders(req)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("work item creation request failed: %w", err)
	}
	defer res.Body.Close()

	resBody, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("work item creation failed with code %d because of %q", res.StatusCode, string(resBody))
	}

	logrus.Infof("  - Issue %s was uploaded, process next ...", issueID)
	return nil
}

// workItemExists queries the tracker for a work item with the same text and
// date, authored by the API user. A non-OK answer is treated as "not found";
// only transport failures are surfaced.
func (c *Client) workItemExists(ctx context.Context, issueID, text, date string, dateMs int64) (bool, error) {
	params := url.Values{}
	params.Set("fields", "id,date,text")
	params.Set("query", fmt.Sprintf(`work: "%s" issue: %s work date: %s`, text, issueID, date))
	params.Set("author", "me")
	params.Set("creator", "me")
	params.Set("start", strconv.FormatInt(dateMs, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("workItems?%s", params.Encode()), nil)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	c.setHeaders(req)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("work item query failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return false, nil
	}

	var items []workItem
	if err := json.NewDecoder(res.Body).Decode(&items); err != nil {
		return false, nil
	}

	for _, item := range items {
		logrus.Debugf("  - compare :: %q :: %q", item.Text, text)
		logrus.Debugf("  - compare :: %d :: %d", item.Date, dateMs)
		if item.Text == text && item.Date == dateMs {
			return true, nil
		}
	}
	return false, nil
}

// workItemTypeID resolves a work-item type name to its id: the issue names
// its project, the project settings list the available types. A missing
// project or type yields an empty id, not an error.
func (c *Client) workItemTypeID(ctx context.Context, issueID, typeName string) (string, error) {
	projectID, err := c.projectID(ctx, issueID)
	if err != nil || projectID == "" {
		return "", err
	}

	var types []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	ok, err := c.getJSON(ctx, c.url("admin/projects/%s/timeTrackingSettings/workItemTypes?fields=id,name", projectID), &types)
	if err != nil || !ok {
		return "", err
	}

	for _, t := range types {
		if t.Name == typeName {
			return t.ID, nil
		}
	}
	return "", nil
}

func (c *Client) projectID(ctx context.Context, issueID string) (string, error) {
	var project struct {
		ID string `json:"id"`
	}
	ok, err := c.getJSON(ctx, c.url("issues/%s/project?fields=id,name", issueID), &project)
	if err != nil || !ok {
		return "", err
	}
	return project.ID, nil
}

// getJSON performs an authenticated GET. The boolean reports whether the
// call answered OK with a decodable body; transport failures are errors.
func (c *Client) getJSON(ctx context.Context, url string, target any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	c.setHeaders(req)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("request to youtrack failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return false, nil
	}
	if err := json.NewDecoder(res.Body).Decode(target); err != nil {
		return false, nil
	}
	return true, nil
}

func (c *Client) url(format string, args ...any) string {
	return fmt.Sprintf("%s/%s/%s", c.endpoint, c.suffix, fmt.Sprintf(format, args...))
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Cache-Control", "no-cache")
}
