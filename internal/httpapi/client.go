package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/noetl/noetl/internal/apperrors"
	"github.com/noetl/noetl/internal/bus"
	"github.com/noetl/noetl/internal/claim"
	"github.com/noetl/noetl/internal/command"
)

// Client implements worker.ControlPlaneClient over this package's own
// REST surface, so a worker process talks to the orchestrator the same
// way any other caller of this API would.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewClient builds a control-plane client against baseURL (e.g.
// "http://orchestrator:8080"). authToken is sent as a bearer token when
// non-empty; pass "" when the deployment runs with auth disabled.
func NewClient(baseURL, authToken string) *Client {
	return &Client{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewTransientError("control plane request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.NewTransientError("control plane response", err)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("control plane %s %s: status %d: %s", method, path, resp.StatusCode, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func (c *Client) RegisterWorker(ctx context.Context, workerID, poolName, hostname string) error {
	return c.do(ctx, http.MethodPost, "/api/worker/pool/register", map[string]string{
		"worker_id": workerID, "pool_name": poolName, "hostname": hostname,
	}, nil)
}

func (c *Client) Heartbeat(ctx context.Context, workerID, poolName string) error {
	return c.do(ctx, http.MethodPost, "/api/worker/pool/heartbeat", map[string]string{
		"worker_id": workerID, "pool_name": poolName,
	}, nil)
}

func (c *Client) DeregisterWorker(ctx context.Context, workerID, poolName string) error {
	return c.do(ctx, http.MethodDelete, "/api/worker/pool/deregister", map[string]string{
		"worker_id": workerID, "pool_name": poolName,
	}, nil)
}

func (c *Client) ClaimCommand(ctx context.Context, executionID int64, commandID, workerID string) (claim.Outcome, error) {
	var resp struct {
		Outcome string `json:"outcome"`
		EventID int64  `json:"event_id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/commands/claim", map[string]any{
		"execution_id": executionID, "command_id": commandID, "worker_id": workerID,
	}, &resp)
	if err != nil {
		return claim.AlreadyClaimed, err
	}
	if resp.Outcome == "claimed" {
		return claim.Claimed, nil
	}
	return claim.AlreadyClaimed, nil
}

// PollCommand asks the control plane for the oldest unclaimed command,
// the bus-optional fallback (§4.8). ok is false when nothing is
// pending.
func (c *Client) PollCommand(ctx context.Context) (n bus.Notification, ok bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/commands/poll", nil)
	if err != nil {
		return bus.Notification{}, false, err
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return bus.Notification{}, false, apperrors.NewTransientError("control plane request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return bus.Notification{}, false, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return bus.Notification{}, false, apperrors.NewTransientError("control plane response", err)
	}
	if resp.StatusCode >= 300 {
		return bus.Notification{}, false, fmt.Errorf("control plane poll: status %d: %s", resp.StatusCode, respBody)
	}
	if err := json.Unmarshal(respBody, &n); err != nil {
		return bus.Notification{}, false, err
	}
	return n, true, nil
}

func (c *Client) FetchCommand(ctx context.Context, eventID int64) (command.Command, error) {
	var cmd command.Command
	err := c.do(ctx, http.MethodGet, "/api/commands/by-event/"+strconv.FormatInt(eventID, 10), nil, &cmd)
	return cmd, err
}

func (c *Client) EmitEvent(ctx context.Context, executionID int64, eventType string, payload any) error {
	return c.do(ctx, http.MethodPost, "/api/executions/"+strconv.FormatInt(executionID, 10)+"/events", map[string]any{
		"event_type": eventType, "payload": payload,
	}, nil)
}

func (c *Client) SetVariable(ctx context.Context, executionID int64, name string, value any) error {
	return c.do(ctx, http.MethodPost, "/api/vars/"+strconv.FormatInt(executionID, 10), map[string]any{
		"name": name, "value": value,
	}, nil)
}
