// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	return NewClient(server.URL, server.Client()), server
}

// =============================================================================
// REST OPERATION TESTS
// =============================================================================

func TestClient_History(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/conv-1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method %s", r.Method)
		}
		w.Write([]byte(`{"code":0,"msg":"ok","data":[
			{"id":41,"role":"user","textContent":"hi","createdAt":"2025-01-01T00:00:00Z"},
			{"id":97,"role":"assistant","textContent":"hello","reasoningContent":"greet","createdAt":"2025-01-01T00:00:01Z"}
		]}`))
	}))
	defer server.Close()

	messages, err := client.History(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].ID != 41 || messages[0].Content != "hi" {
		t.Errorf("first message mangled: %+v", messages[0])
	}
	if messages[1].ReasoningContent != "greet" || !messages[1].ReasoningFinished {
		t.Errorf("reasoning not mapped: %+v", messages[1])
	}
}

func TestClient_ListConversations(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "1" || r.URL.Query().Get("size") != "20" {
			t.Errorf("pagination params missing: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"code":0,"data":[{"id":"a","title":"First"},{"id":"b","title":""}]}`))
	}))
	defer server.Close()

	list, err := client.ListConversations(context.Background(), 1, 20)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "a" {
		t.Errorf("directory mangled: %+v", list)
	}
	if list[1].GetTitle() == "" {
		t.Error("blank title should fall back to a default")
	}
}

func TestClient_RenameAndDelete(t *testing.T) {
	var gotMethod, gotPath string
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.Write([]byte(`{"code":0}`))
	}))
	defer server.Close()

	if err := client.Rename(context.Background(), "c1", "New title"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/conversations/c1" {
		t.Errorf("Rename sent %s %s", gotMethod, gotPath)
	}

	if err := client.Delete(context.Background(), "c1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("Delete sent %s", gotMethod)
	}
}

// =============================================================================
// ERROR TAXONOMY TESTS
// =============================================================================

func TestClient_EnvelopeErrorCode(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":1003,"msg":"quota exceeded"}`))
	}))
	defer server.Close()

	_, err := client.History(context.Background(), "c")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Code != 1003 || apiErr.Message != "quota exceeded" {
		t.Errorf("envelope error not surfaced: %+v", apiErr)
	}
}

func TestClient_StatusErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuthFailed},
		{http.StatusForbidden, ErrAuthFailed},
		{http.StatusNotFound, ErrConversationNotFound},
	}

	for _, tt := range tests {
		client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(`{"code":9,"msg":"nope"}`))
		}))

		_, err := client.WithMaxRetries(0).History(context.Background(), "c")
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.want, err)
		}
		server.Close()
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"code":0,"data":[]}`))
	}))
	defer server.Close()

	_, err := client.History(context.Background(), "c")
	if err != nil {
		t.Fatalf("History should succeed after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("made %d calls, want 3", calls.Load())
	}
}

func TestClient_DoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := client.History(context.Background(), "c")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("made %d calls, want 1", calls.Load())
	}
}

func TestClient_ContextCancelStopsRetry(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.History(ctx, "c")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestCalculateBackoff(t *testing.T) {
	if d := calculateBackoff(1); d != retryBaseDelay {
		t.Errorf("attempt 1 delay = %v", d)
	}
	if d := calculateBackoff(2); d != 2*retryBaseDelay {
		t.Errorf("attempt 2 delay = %v", d)
	}
	if d := calculateBackoff(20); d != retryMaxDelay {
		t.Errorf("large attempt should cap at %v, got %v", retryMaxDelay, d)
	}
}

func TestTrimTrailingSlash(t *testing.T) {
	if got := trimTrailingSlash("https://api.example.com///"); got != "https://api.example.com" {
		t.Errorf("got %q", got)
	}
	if got := trimTrailingSlash("https://api.example.com"); got != "https://api.example.com" {
		t.Errorf("got %q", got)
	}
}
