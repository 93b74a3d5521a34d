// Package clockify is a thin client for the Clockify time-tracking API.
package clockify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Client talks to the Clockify REST API. Calls are blocking round-trips
// with no timeout; a failed fetch is fatal for the whole run, so there is
// nothing to salvage by cutting it short.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for the given endpoint and API key.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// TimeEntries fetches the hydrated time entries of a user between two
// wall-clock boundaries, formatted as "YYYY-MM-DDT00:00:00.000Z" and
// "YYYY-MM-DDT23:59:59.000Z".
func (c *Client) TimeEntries(ctx context.Context, workspaceID, userID, start, end string, pageSize int) ([]TimeEntry, error) {
	params := url.Values{}
	params.Set("hydrated", "true")
	params.Set("page-size", strconv.Itoa(pageSize))
	params.Set("start", start)
	params.Set("end", end)

	path := fmt.Sprintf("%s/workspaces/%s/user/%s/time-entries?%s", c.endpoint, workspaceID, userID, params.Encode())

	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var entries []TimeEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("time entries response could not be parsed as a list: %w", err)
	}

	return entries, nil
}

// User fetches the identifiers of the authenticated user, which are needed
// as inputs for the time-entries calls.
func (c *Client) User(ctx context.Context) (*UserInfo, error) {
	body, err := c.get(ctx, c.endpoint+"/user")
	if err != nil {
		return nil, err
	}

	var info UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}

	return &info, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to clockify failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read clockify response: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clockify call failed with code %d because of %q", res.StatusCode, string(body))
	}

	return body, nil
}
