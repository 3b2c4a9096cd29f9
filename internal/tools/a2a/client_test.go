package a2a

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	a2atypes "github.com/a2aproject/a2a-go/a2a"
)

func TestClientDispatchWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/a2a/wait" {
			t.Fatalf("expected /a2a/wait, got %s", r.URL.Path)
		}
		var req taskEnvelope
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(taskEnvelope{TaskID: req.TaskID, State: "completed"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	result, err := c.Dispatch(context.Background(), true, map[string]interface{}{"task_id": "task-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	envelope := result.(map[string]interface{})
	data := envelope["data"].(map[string]interface{})
	if data["task_id"] != "task-1" {
		t.Fatalf("expected task-1, got %v", data["task_id"])
	}
	if data["state"] != "completed" {
		t.Fatalf("expected completed state, got %v", data["state"])
	}
}

func TestClientDispatchObserve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/a2a/observe" {
			t.Fatalf("expected /a2a/observe, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(taskEnvelope{TaskID: "task-2", State: "running"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	result, err := c.Dispatch(context.Background(), false, map[string]interface{}{"task_id": "task-2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	envelope := result.(map[string]interface{})
	data := envelope["data"].(map[string]interface{})
	if data["state"] != "running" {
		t.Fatalf("expected running state, got %v", data["state"])
	}
}

func TestClientDispatchMissingTaskID(t *testing.T) {
	c := NewClient("http://example.invalid", time.Second)
	if _, err := c.Dispatch(context.Background(), true, map[string]interface{}{}); err == nil {
		t.Fatalf("expected error for missing task_id")
	}
}

func TestClientPostErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(taskEnvelope{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if _, err := c.Dispatch(context.Background(), true, map[string]interface{}{"task_id": "t"}); err == nil {
		t.Fatalf("expected error for 5xx response")
	}
}

func TestMessageTextFlattensTextParts(t *testing.T) {
	msg := a2atypes.NewMessage(a2atypes.MessageRoleAgent, a2atypes.TextPart{Text: "hello "}, a2atypes.TextPart{Text: "world"})
	if got := MessageText(msg); got != "hello world" {
		t.Fatalf("expected concatenated text, got %q", got)
	}
}

func TestMessageTextNil(t *testing.T) {
	if got := MessageText(nil); got != "" {
		t.Fatalf("expected empty string for nil message, got %q", got)
	}
}
