package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/api"
	"github.com/dd0wney/cluso-waternet/pkg/engine"
)

// client polls the waternetd HTTP API
type client struct {
	base string
	http *http.Client
}

func newClient(base string, timeout time.Duration) *client {
	return &client{base: base, http: &http.Client{Timeout: timeout}}
}

func (c *client) zones(ctx context.Context) ([]engine.ZoneSummary, error) {
	var out []engine.ZoneSummary
	if err := c.do(ctx, http.MethodGet, "/dmas", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) alerts(ctx context.Context) ([]alerts.Alert, error) {
	var out api.AlertsResponse
	if err := c.do(ctx, http.MethodGet, "/alerts", nil, &out); err != nil {
		return nil, err
	}
	return out.Alerts, nil
}

func (c *client) ack(ctx context.Context, id, actor string) (alerts.Alert, error) {
	var out alerts.Alert
	err := c.do(ctx, http.MethodPost, "/alerts/"+url.PathEscape(id)+"/ack", api.ActorRequest{Actor: actor}, &out)
	return out, err
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Message != "" {
			return fmt.Errorf("%s %s: %s", method, path, e.Message)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
