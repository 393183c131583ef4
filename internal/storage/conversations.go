// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"

	"github.com/driftapp/driftchat/internal/model"
)

// Key layout inside the KV. Summaries live under one fixed key;
// each conversation's messages under its own key.
const (
	summariesKey          = "summaries"
	conversationKeyPrefix = "conversation:"
)

// =============================================================================
// CONVERSATION STORE
// =============================================================================

// ConversationStore persists per-conversation message lists and the
// directory summary list. It is safe for concurrent use as long as
// distinct conversations are written by distinct callers; a single
// conversation has a single writer (the session controller).
type ConversationStore struct {
	kv KV
}

// NewConversationStore wraps a KV driver.
func NewConversationStore(kv KV) *ConversationStore {
	return &ConversationStore{kv: kv}
}

// =============================================================================
// MESSAGE PERSISTENCE
// =============================================================================

// SaveMessages persists the full message list for a conversation.
func (s *ConversationStore) SaveMessages(conversationID string, messages []model.Message) error {
	key := conversationKey(conversationID)
	data, err := json.Marshal(messages)
	if err != nil {
		return storageErr("save", key, err)
	}
	return storageErr("save", key, s.kv.Put(key, data))
}

// LoadMessages returns the persisted message list, or an empty list when
// the conversation has never been saved.
func (s *ConversationStore) LoadMessages(conversationID string) ([]model.Message, error) {
	key := conversationKey(conversationID)
	data, err := s.kv.Get(key)
	if errors.Is(err, ErrKeyNotFound) {
		return []model.Message{}, nil
	}
	if err != nil {
		return nil, storageErr("load", key, err)
	}

	var messages []model.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, storageErr("load", key, err)
	}
	return messages, nil
}

// DeleteMessages removes a conversation's persisted messages.
func (s *ConversationStore) DeleteMessages(conversationID string) error {
	key := conversationKey(conversationID)
	return storageErr("delete", key, s.kv.Delete(key))
}

// =============================================================================
// SUMMARY PERSISTENCE
// =============================================================================

// SaveSummaries persists the conversation directory list.
func (s *ConversationStore) SaveSummaries(list []model.ConversationSummary) error {
	data, err := json.Marshal(list)
	if err != nil {
		return storageErr("save", summariesKey, err)
	}
	return storageErr("save", summariesKey, s.kv.Put(summariesKey, data))
}

// LoadSummaries returns the persisted directory list, empty when absent.
func (s *ConversationStore) LoadSummaries() ([]model.ConversationSummary, error) {
	data, err := s.kv.Get(summariesKey)
	if errors.Is(err, ErrKeyNotFound) {
		return []model.ConversationSummary{}, nil
	}
	if err != nil {
		return nil, storageErr("load", summariesKey, err)
	}

	var list []model.ConversationSummary
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, storageErr("load", summariesKey, err)
	}
	return list, nil
}

// Close releases the underlying driver.
func (s *ConversationStore) Close() error {
	return s.kv.Close()
}

func conversationKey(id string) string {
	return conversationKeyPrefix + id
}
