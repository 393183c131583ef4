// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"testing"
	"time"
)

// =============================================================================
// TIMELINE TESTS
// =============================================================================

func TestTimeline_AppendAssignsMonotonicIDs(t *testing.T) {
	tl := NewTimeline()

	var ids []int
	for i := 0; i < 5; i++ {
		ids = append(ids, tl.Append(NewUserMessage("hello")))
	}

	seen := make(map[int]bool)
	prev := 0
	for _, id := range ids {
		if id <= prev {
			t.Errorf("ids not strictly increasing: %v", ids)
		}
		if seen[id] {
			t.Errorf("duplicate id %d", id)
		}
		seen[id] = true
		prev = id
	}
}

func TestTimeline_AppendAfterServerIDs(t *testing.T) {
	tl := NewTimelineFrom([]Message{
		{ID: 41, Role: RoleUser, Content: "a"},
		{ID: 97, Role: RoleAssistant, Content: "b"},
	})

	id := tl.Append(NewUserMessage("c"))
	if id != 98 {
		t.Errorf("Append id = %d, want 98", id)
	}
}

func TestTimeline_AmendLastGrowsContent(t *testing.T) {
	tl := NewTimeline()
	tl.Append(NewUserMessage("hi"))
	tl.Append(NewAssistantPlaceholder())

	for _, delta := range []string{"Hello", ", ", "world"} {
		d := delta
		ok := tl.AmendLast(IsAssistantLast, func(m Message) Message {
			return m.AppendDelta(d)
		})
		if !ok {
			t.Fatal("AmendLast refused an assistant tail")
		}
	}

	last, _ := tl.Last()
	if last.Content != "Hello, world" {
		t.Errorf("Content = %q, want concatenation in receipt order", last.Content)
	}
	if !last.IsStreaming {
		t.Error("AmendDelta should not clear IsStreaming")
	}
}

func TestTimeline_AmendLastPinsIdentity(t *testing.T) {
	tl := NewTimeline()
	tl.Append(NewAssistantPlaceholder())
	before, _ := tl.Last()

	tl.AmendLast(nil, func(m Message) Message {
		m.ID = 999
		m.Role = RoleUser
		m.Content = "x"
		return m
	})

	after, _ := tl.Last()
	if after.ID != before.ID || after.Role != before.Role {
		t.Errorf("AmendLast changed identity: %d/%s -> %d/%s",
			before.ID, before.Role, after.ID, after.Role)
	}
	if after.Content != "x" {
		t.Error("AmendLast should still apply the content change")
	}
}

func TestTimeline_AmendLastNoOpCases(t *testing.T) {
	tl := NewTimeline()
	if tl.AmendLast(nil, func(m Message) Message { return m }) {
		t.Error("AmendLast on empty timeline should be a no-op")
	}

	tl.Append(NewUserMessage("hi"))
	ok := tl.AmendLast(IsAssistantLast, func(m Message) Message {
		return m.AppendDelta("nope")
	})
	if ok {
		t.Error("AmendLast should not fire when predicate fails")
	}
	last, _ := tl.Last()
	if last.Content != "hi" {
		t.Error("failed predicate must leave the message untouched")
	}
}

func TestTimeline_ReplaceAllIsAtomic(t *testing.T) {
	tl := NewTimeline()
	tl.Append(NewUserMessage("old"))

	history := []Message{
		{ID: 1, Role: RoleUser, Content: "a"},
		{ID: 2, Role: RoleAssistant, Content: "b"},
	}
	tl.ReplaceAll(history)

	if tl.Len() != 2 {
		t.Fatalf("Len = %d, want 2", tl.Len())
	}

	// Mutating the caller's slice must not reach the timeline.
	history[0].Content = "mutated"
	snap := tl.Snapshot()
	if snap[0].Content != "a" {
		t.Error("ReplaceAll should copy, not alias, the input slice")
	}
}

func TestTimeline_SnapshotIsACopy(t *testing.T) {
	tl := NewTimeline()
	tl.Append(NewUserMessage("hello"))

	snap := tl.Snapshot()
	snap[0].Content = "mutated"

	again := tl.Snapshot()
	if again[0].Content != "hello" {
		t.Error("Snapshot must not expose internal storage")
	}
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessage_ReasoningRouting(t *testing.T) {
	m := NewAssistantPlaceholder()

	m = m.AppendReasoningDelta("thinking")
	if !m.IsReasoning || m.ReasoningFinished {
		t.Error("reasoning delta should open the reasoning phase")
	}
	if m.Content != "" {
		t.Error("reasoning delta must not leak into Content")
	}

	m = m.AppendDelta("answer")
	if !m.ReasoningFinished {
		t.Error("first content delta should close the reasoning phase")
	}
	if m.ReasoningContent != "thinking" || m.Content != "answer" {
		t.Errorf("streams mixed: content=%q reasoning=%q", m.Content, m.ReasoningContent)
	}
}

func TestMessage_FinishStreaming(t *testing.T) {
	m := NewAssistantPlaceholder().AppendReasoningDelta("hm").AppendDelta("ok")
	m = m.FinishStreaming()

	if m.IsStreaming {
		t.Error("FinishStreaming should clear IsStreaming")
	}
	if !m.ReasoningFinished {
		t.Error("FinishStreaming should close an open reasoning phase")
	}
}

func TestMessage_WithErrorText(t *testing.T) {
	m := NewAssistantPlaceholder().AppendDelta("partial")
	m = m.WithErrorText("An error occurred: timeout")

	if m.IsStreaming {
		t.Error("error text should terminate streaming")
	}
	if m.Content != "An error occurred: timeout" {
		t.Errorf("Content = %q", m.Content)
	}
}

func TestMessage_Preview(t *testing.T) {
	tests := []struct {
		content string
		maxLen  int
		want    string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"line\nbreak", 20, "line break"},
		{"日本語のテスト", 5, "日本..."},
	}

	for _, tc := range tests {
		got := Message{Content: tc.content}.Preview(tc.maxLen)
		if got != tc.want {
			t.Errorf("Preview(%q, %d) = %q, want %q", tc.content, tc.maxLen, got, tc.want)
		}
	}
}

func TestConversationSummary_GetTitle(t *testing.T) {
	s := ConversationSummary{CreatedAt: time.Now()}
	if s.GetTitle() != DefaultTitle {
		t.Errorf("GetTitle() = %q, want placeholder", s.GetTitle())
	}
	s.Title = "Trip planning"
	if s.GetTitle() != "Trip planning" {
		t.Errorf("GetTitle() = %q", s.GetTitle())
	}
}
