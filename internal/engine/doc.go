// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine composes the threading and streaming machinery into the
// conversation engine the rendering layer talks to.
//
// One Engine exists per open conversation view. It owns the single mutable
// active-stream reference, sequences the two-step intent/completion pipeline
// for edits and retries, selects the streamed or non-streaming completion
// strategy per request, and fans progress out to the rendering layer through
// the Notifier interface. Opening a different conversation means closing the
// engine, which deterministically aborts any in-flight work.
package engine
