// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

// Intent is a user-originated request applied to the controller. The set
// is closed; each variant is a small value struct.
type Intent interface {
	isIntent()
}

// LoadConversations refreshes the conversation directory, cached list
// first, then the network.
type LoadConversations struct{}

// SelectConversation makes a conversation the focused one and loads its
// history. Selecting the already-focused conversation is a no-op.
type SelectConversation struct {
	ID    string
	Title string
}

// NewConversation switches to a blank, not-yet-created conversation.
type NewConversation struct{}

// UpdateInput replaces the draft input text.
type UpdateInput struct {
	Text string
}

// SendMessage submits the given text as a user message on the focused
// conversation and opens the reply stream.
type SendMessage struct {
	Text string
}

// ToggleReasoning flips whether sends request a visible thinking phase.
type ToggleReasoning struct{}

// ToggleSearch flips whether sends request web search.
type ToggleSearch struct{}

// RenameConversation changes a conversation's title on the server and in
// the directory.
type RenameConversation struct {
	ID    string
	Title string
}

// DeleteConversation removes a conversation on the server, from the
// directory, and from local storage.
type DeleteConversation struct {
	ID string
}

func (LoadConversations) isIntent()  {}
func (SelectConversation) isIntent() {}
func (NewConversation) isIntent()    {}
func (UpdateInput) isIntent()        {}
func (SendMessage) isIntent()        {}
func (ToggleReasoning) isIntent()    {}
func (ToggleSearch) isIntent()       {}
func (RenameConversation) isIntent() {}
func (DeleteConversation) isIntent() {}
