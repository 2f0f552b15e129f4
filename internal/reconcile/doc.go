// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reconcile maps provisional message identifiers to the durable
// identifiers the backend assigns once a round trip completes, and rewrites
// every dependent reference keyed by the provisional id in one step.
package reconcile
