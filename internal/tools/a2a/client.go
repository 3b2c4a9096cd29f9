// Package a2a dispatches the "a2a_wait" / "a2a_observe" / "a2a@<agent>"
// tool names to an Agent2Agent peer, exchanging github.com/a2aproject/a2a-go
// message types over plain JSON/HTTP. Grounded on kadirpekel-hector's
// pkg/agent/event.go, which models tool/agent output as a2a.Message with
// a2a.TextPart/DataPart parts; the domain stack originally planned
// nexus-rpc/sdk-go for this, but a pack-wide search found it imported by
// nothing — not even goadesign-goa-ai, the one repo whose go.mod lists it —
// so a2a-go's own message types are used instead, which the pack does show
// actual code built on.
package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	a2atypes "github.com/a2aproject/a2a-go/a2a"
)

// Client talks to one A2A peer endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

// taskEnvelope carries a task id alongside the a2a.Message
// payload exchanged with the peer; a2a-go defines the message shape, not
// the wait/observe transport, so the envelope itself is ours.
type taskEnvelope struct {
	TaskID  string             `json:"task_id"`
	Message *a2atypes.Message  `json:"message,omitempty"`
	State   string             `json:"state,omitempty"`
}

// Wait blocks (subject to ctx) for the peer task named by args["task_id"] to
// reach a terminal state, per the "a2a_wait" tool.
func (c *Client) Wait(ctx context.Context, taskID string) (*taskEnvelope, error) {
	return c.post(ctx, "/a2a/wait", taskID)
}

// Observe fetches the current state of the peer task/agent named by
// args["task_id"] without blocking, per "a2a_observe" / "a2a@<agent>".
func (c *Client) Observe(ctx context.Context, taskID string) (*taskEnvelope, error) {
	return c.post(ctx, "/a2a/observe", taskID)
}

// Dispatch is the executor-facing entry point: it extracts args["task_id"]
// and routes to Wait or Observe, returning a value already shaped for
// tools.NormalizeResult ({"ok", "data"}).
func (c *Client) Dispatch(ctx context.Context, wait bool, args map[string]interface{}) (interface{}, error) {
	taskID, _ := args["task_id"].(string)
	if taskID == "" {
		return nil, fmt.Errorf("a2a call missing required task_id argument")
	}

	var env *taskEnvelope
	var err error
	if wait {
		env, err = c.Wait(ctx, taskID)
	} else {
		env, err = c.Observe(ctx, taskID)
	}
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"ok": true,
		"data": map[string]interface{}{
			"task_id": env.TaskID,
			"state":   env.State,
			"message": MessageText(env.Message),
		},
	}, nil
}

func (c *Client) post(ctx context.Context, path, taskID string) (*taskEnvelope, error) {
	reqBody, err := json.Marshal(taskEnvelope{TaskID: taskID})
	if err != nil {
		return nil, fmt.Errorf("marshal a2a request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build a2a request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("a2a request to %s: %w", path, err)
	}
	defer resp.Body.Close()

	var decoded taskEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode a2a response from %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("a2a peer returned %d for task %s", resp.StatusCode, taskID)
	}
	return &decoded, nil
}

// MessageText flattens an a2a.Message's text parts, following
// kadirpekel-hector's Content.Text helper.
func MessageText(msg *a2atypes.Message) string {
	if msg == nil {
		return ""
	}
	var text string
	for _, part := range msg.Parts {
		if tp, ok := part.(a2atypes.TextPart); ok {
			text += tp.Text
		}
	}
	return text
}
