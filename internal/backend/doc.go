// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend implements the HTTP client for the assistant backend: one
// non-streaming completion call, one chunked (newline-delimited JSON)
// completion stream, the edit/retry intent calls, attempt switching, and
// message deletion.
//
// The backend is an external collaborator; this package owns the wire shapes
// and translates HTTP failures into the typed errors the engine's failure
// taxonomy is built on.
package backend
