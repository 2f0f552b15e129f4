// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides local conversation persistence for braid.
//
// History is the SQLite-backed store: conversations and every message
// attempt, including thread linkage and the active-attempt flag, survive
// restarts. Only messages with durable server ids are written; in-flight
// placeholders never reach disk.
//
// The package also exports conversations to markdown for sharing outside
// the client.
package storage
