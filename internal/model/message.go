// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single entry in a conversation timeline.
//
// IDs are integers unique within one conversation. For locally created
// messages the timeline assigns them; history fetched from the server
// carries server-issued ids, which are authoritative from then on.
type Message struct {
	// Identity
	ID        int       `json:"id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`

	// Content. While IsStreaming is true, Content grows by delta appends;
	// once streaming ends it is frozen.
	Content string `json:"content"`

	// ReasoningContent is the optional "thinking" sub-stream of an
	// assistant message. It accumulates independently of Content.
	ReasoningContent string `json:"reasoning_content,omitempty"`

	// Streaming state
	IsStreaming       bool `json:"is_streaming,omitempty"`
	IsReasoning       bool `json:"is_reasoning,omitempty"`
	ReasoningFinished bool `json:"reasoning_finished,omitempty"`
}

// NewUserMessage creates a terminal (non-streaming) user message.
// The id is assigned by the timeline on Append.
func NewUserMessage(content string) Message {
	return Message{
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewAssistantPlaceholder creates an empty assistant message that expects
// streamed deltas.
func NewAssistantPlaceholder() Message {
	return Message{
		Role:        RoleAssistant,
		CreatedAt:   time.Now(),
		IsStreaming: true,
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// AppendDelta returns a copy with the delta concatenated onto Content.
// A content delta also closes an open reasoning phase.
func (m Message) AppendDelta(delta string) Message {
	m.Content += delta
	if m.IsReasoning && !m.ReasoningFinished {
		m.ReasoningFinished = true
	}
	return m
}

// AppendReasoningDelta returns a copy with the delta concatenated onto
// ReasoningContent and the reasoning phase marked active.
func (m Message) AppendReasoningDelta(delta string) Message {
	m.ReasoningContent += delta
	m.IsReasoning = true
	return m
}

// FinishStreaming returns a copy with all streaming flags cleared.
func (m Message) FinishStreaming() Message {
	m.IsStreaming = false
	if m.IsReasoning {
		m.ReasoningFinished = true
	}
	return m
}

// WithErrorText returns a terminal copy whose content is replaced by the
// given error text.
func (m Message) WithErrorText(text string) Message {
	m.Content = text
	m.IsStreaming = false
	return m
}

// IsBlank reports whether the message has no visible content.
func (m Message) IsBlank() bool {
	return strings.TrimSpace(m.Content) == "" && strings.TrimSpace(m.ReasoningContent) == ""
}

// Preview returns a truncated single-line preview of the content.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	content := strings.ReplaceAll(m.Content, "\n", " ")
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// =============================================================================
// CONVERSATION SUMMARY
// =============================================================================

// DefaultTitle is the placeholder title for a conversation the server has
// not yet named.
const DefaultTitle = "New conversation"

// ConversationSummary is one row of the conversation directory.
type ConversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetTitle returns the title or the placeholder when unset.
func (s ConversationSummary) GetTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return DefaultTitle
}
