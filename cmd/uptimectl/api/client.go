package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hamed0406/uptimewatch/internal/domain"
	"github.com/hamed0406/uptimewatch/internal/incident"
	"github.com/hamed0406/uptimewatch/internal/scheduler"
)

type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type MonitorInput struct {
	OwnerID          string `json:"owner_id"`
	Name             string `json:"name"`
	URL              string `json:"url"`
	FrequencySeconds int    `json:"frequency_seconds"`
	IsActive         *bool  `json:"is_active,omitempty"`
}

type IncidentFilter struct {
	Text   string
	Status string
	Sort   string
	Order  string
}

func (c *Client) Stats() (*scheduler.Stats, error) {
	var s scheduler.Stats
	if err := c.do(http.MethodGet, "/api/scheduler/stats", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) Flush() ([]string, error) {
	var resp struct {
		Dispatched []string `json:"dispatched"`
	}
	if err := c.do(http.MethodPost, "/api/scheduler/flush", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Dispatched, nil
}

// ListMonitors lists an owner's monitors, or every active one when owner is empty.
func (c *Client) ListMonitors(owner string) ([]domain.Monitor, error) {
	path := "/api/monitors"
	if owner != "" {
		path += "?owner=" + url.QueryEscape(owner)
	}
	var ms []domain.Monitor
	if err := c.do(http.MethodGet, path, nil, &ms); err != nil {
		return nil, err
	}
	return ms, nil
}

func (c *Client) PutMonitor(id string, in MonitorInput) (*domain.Monitor, error) {
	var m domain.Monitor
	if err := c.do(http.MethodPut, "/api/monitors/"+url.PathEscape(id), in, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) SetActive(id string, active bool) (*domain.Monitor, error) {
	action := "deactivate"
	if active {
		action = "activate"
	}
	var m domain.Monitor
	if err := c.do(http.MethodPost, "/api/monitors/"+url.PathEscape(id)+"/"+action, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) DeleteMonitor(id string) error {
	return c.do(http.MethodDelete, "/api/monitors/"+url.PathEscape(id), nil, nil)
}

func (c *Client) MonitorIncidents(id string) ([]domain.Incident, error) {
	var incs []domain.Incident
	if err := c.do(http.MethodGet, "/api/monitors/"+url.PathEscape(id)+"/incidents", nil, &incs); err != nil {
		return nil, err
	}
	return incs, nil
}

func (c *Client) UserIncidents(owner string, f IncidentFilter) ([]domain.Incident, error) {
	q := url.Values{}
	for k, v := range map[string]string{"q": f.Text, "status": f.Status, "sort": f.Sort, "order": f.Order} {
		if v != "" {
			q.Set(k, v)
		}
	}
	path := "/api/users/" + url.PathEscape(owner) + "/incidents"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var incs []domain.Incident
	if err := c.do(http.MethodGet, path, nil, &incs); err != nil {
		return nil, err
	}
	return incs, nil
}

func (c *Client) UserSummary(owner string) (*incident.UserSummary, error) {
	var s incident.UserSummary
	if err := c.do(http.MethodGet, "/api/users/"+url.PathEscape(owner)+"/incidents/summary", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) do(method, path string, body, v any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, r)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
