// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package thread owns the attempt model for conversational positions: which
// attempt is active at each position, how many attempts exist, and the
// bounds for forward/backward navigation.
//
// The backend is the source of truth for the active attempt. Switching never
// flips state optimistically; the flag moves only after the backend confirms
// the switch, and a second switch issued while one is in flight is rejected.
package thread
