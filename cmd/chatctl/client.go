package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// envelope mirrors the gateway's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type gatewayClient struct {
	http *resty.Client
}

func newGatewayClient(server, apiKey string, timeout time.Duration) *gatewayClient {
	c := resty.New().
		SetBaseURL(server).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &gatewayClient{http: c}
}

func (c *gatewayClient) post(path string, body, out any) error {
	resp, err := c.http.R().SetBody(body).Post(path)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	return decodeEnvelope(resp, out)
}

func (c *gatewayClient) get(path string, query map[string]string, out any) error {
	resp, err := c.http.R().SetQueryParams(query).Get(path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	return decodeEnvelope(resp, out)
}

func decodeEnvelope(resp *resty.Response, out any) error {
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("unexpected response (HTTP %d): %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	if !env.Success {
		if env.Error == "" {
			env.Error = resp.Status()
		}
		return fmt.Errorf("gateway error (HTTP %d): %s", resp.StatusCode(), env.Error)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
