// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// TIMELINE TYPE
// =============================================================================

// Timeline is the ordered, append-only message log of one conversation.
//
// Display order is insertion order; the timeline is never re-sorted by
// timestamp. Timeline is not safe for concurrent use: the session
// controller serializes all mutations (single-writer discipline).
type Timeline struct {
	messages []Message
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{}
}

// NewTimelineFrom creates a timeline seeded with existing history.
func NewTimelineFrom(messages []Message) *Timeline {
	t := &Timeline{}
	t.ReplaceAll(messages)
	return t
}

// =============================================================================
// MUTATION PRIMITIVES
// =============================================================================

// Append adds a message at the end and returns the id it was assigned.
// Ids are max(existing ids, 0) + 1; this keeps them strictly increasing
// and unique even when server history carries its own numbering.
func (t *Timeline) Append(msg Message) int {
	msg.ID = t.NextID()
	t.messages = append(t.messages, msg)
	return msg.ID
}

// AmendLast replaces the last message with transform(last) when it
// satisfies pred; otherwise it is a no-op. Returns whether an amend
// happened.
//
// This is the sole mutation path for streamed deltas, which guarantees a
// delta can only ever affect the most recent message. Identity is pinned:
// the transform cannot change ID or Role.
func (t *Timeline) AmendLast(pred func(Message) bool, transform func(Message) Message) bool {
	if len(t.messages) == 0 {
		return false
	}
	last := t.messages[len(t.messages)-1]
	if pred != nil && !pred(last) {
		return false
	}
	amended := transform(last)
	amended.ID = last.ID
	amended.Role = last.Role
	t.messages[len(t.messages)-1] = amended
	return true
}

// ReplaceAll swaps the whole message list atomically. Used when adopting
// history from the local store or the network; never applied partially.
func (t *Timeline) ReplaceAll(messages []Message) {
	t.messages = make([]Message, len(messages))
	copy(t.messages, messages)
}

// =============================================================================
// READ ACCESS
// =============================================================================

// Snapshot returns a copy of the message list for the UI projection.
func (t *Timeline) Snapshot() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Last returns the most recent message, if any.
func (t *Timeline) Last() (Message, bool) {
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// Len returns the number of messages.
func (t *Timeline) Len() int {
	return len(t.messages)
}

// NextID returns the id the next appended message will receive.
func (t *Timeline) NextID() int {
	max := 0
	for _, m := range t.messages {
		if m.ID > max {
			max = m.ID
		}
	}
	return max + 1
}

// IsAssistantLast reports whether the last message is an assistant message.
// Late or duplicate frames after completion still land on it; the
// streaming flag only gates the first transition away from the
// placeholder, not delta application.
func IsAssistantLast(m Message) bool {
	return m.Role == RoleAssistant
}
