// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides shared lipgloss styles for the braid TUI.
package styles

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7D79F6"}
	ColorUser    = lipgloss.AdaptiveColor{Light: "#0969DA", Dark: "#58A6FF"}
	ColorAgent   = lipgloss.AdaptiveColor{Light: "#1A7F37", Dark: "#3FB950"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#F85149"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#D29922"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#656D76", Dark: "#8B949E"}
)

// Message styles
var (
	UserLabel = lipgloss.NewStyle().
			Foreground(ColorUser).
			Bold(true)

	AgentLabel = lipgloss.NewStyle().
			Foreground(ColorAgent).
			Bold(true)

	SystemLabel = lipgloss.NewStyle().
			Foreground(ColorWarning).
			Bold(true)

	ErrorText = lipgloss.NewStyle().
			Foreground(ColorError)

	MutedText = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// InterruptedMarker renders the "response interrupted" trailer under
	// partial content.
	InterruptedMarker = lipgloss.NewStyle().
				Foreground(ColorWarning).
				Italic(true)

	// AttemptIndicator renders the "< 2/3 >" navigation hint.
	AttemptIndicator = lipgloss.NewStyle().
				Foreground(ColorPrimary).
				Bold(true)
)

// Chrome styles
var (
	HeaderBar = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true).
			Padding(0, 1)

	StatusBar = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Padding(0, 1)

	InputBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted).
			Padding(0, 1)
)
