// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// The central type is Timeline, an append-only log of messages for one
// conversation. The session controller is its only writer; every streamed
// delta reaches the timeline through AmendLast, which can only touch the
// most recent message.
package model
