// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable local persistence of conversations.
//
// Persistence is a string-keyed blob store (KV) with two drivers: atomic
// JSON files (the default) and SQLite. ConversationStore layers the
// per-conversation message lists and the directory summary list on top.
//
// Storage is best-effort relative to the in-memory timeline: every failure
// surfaces as a *StorageError for the caller to log, never as a crash, and
// a failed write does not roll back an applied in-memory change.
package storage
