// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// and attempt threads.
//
// A message at a given conversational position may have several competing
// versions ("attempts") produced by edits and retries. Attempts at one
// position are linked into a chain through PreviousThreadID, exactly one
// of which is active at any time. Messages are created with a provisional
// client-minted identifier and later promoted to the durable identifier
// assigned by the backend; the IDCell type is the single place the current
// identifier lives, so no caller ever captures a stale id.
package model
