// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the conversation backend clients: a JSON/REST
// client for history and directory operations, and a streaming client that
// turns one outgoing message into an ordered sequence of server-sent-event
// frames.
//
// Authentication is out of scope; callers hand in an already-authorized
// *http.Client and this package never inspects credentials.
package api
