// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading for driftchat.
//
// Supports both TOML and JSON configuration formats, with sensible
// defaults, environment variable overrides, validation, and live reload.
//
// Configuration file locations (in order of precedence):
//   - ~/.driftchat/config.toml
//   - ~/.driftchat/config.json
//   - Built-in defaults
package config
