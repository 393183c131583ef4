// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns the conversation state machine. A single Controller
// goroutine applies every intent and every stream frame in arrival order,
// so the rest of the program only ever sees consistent snapshots.
package session
