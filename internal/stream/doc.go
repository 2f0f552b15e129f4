// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream drives the chunked read loop for one in-flight assistant
// response: it accumulates content fragments in arrival order, triggers
// progressive redraws from the full accumulated buffer, detects the terminal
// conditions (completion, server-reported error, transport error, timeout),
// and hands the finalized outcome to its caller.
//
// A Session is single-use. Terminal states are final; any subsequent attempt
// needs a new session. At most one session is active per conversation view;
// the engine enforces that by aborting the previous session before starting
// the next.
package stream
