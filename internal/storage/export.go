// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/braid-tui/internal/model"
	"github.com/jeranaias/braid-tui/internal/util"
)

// =============================================================================
// MARKDOWN EXPORT
// =============================================================================

// ExportMarkdown renders the active thread of a conversation as markdown.
// Superseded attempts are left out; only what the user currently sees is
// exported.
func ExportMarkdown(conv *model.Conversation) string {
	var sb strings.Builder

	title := conv.Title
	if title == "" {
		title = "Conversation"
	}
	sb.WriteString("# " + title + "\n\n")
	if !conv.CreatedAt.IsZero() {
		sb.WriteString("Started: " + conv.CreatedAt.Format(time.RFC3339) + "\n\n")
	}
	sb.WriteString("---\n\n")

	for _, msg := range conv.ActiveMessages() {
		if msg.IsStreaming {
			continue
		}

		label := "**" + msg.Role.DisplayName() + "**"
		if msg.Role == model.RoleAssistant && msg.Attribution.Model != "" {
			label = "**" + msg.Attribution.Model + "**"
		}
		sb.WriteString(label + " (" + msg.Timestamp.Format("15:04") + "):\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")

		if msg.Interrupted {
			sb.WriteString("\n*Interrupted: " + msg.InterruptReason + "*\n")
		}
		for _, cit := range msg.Citations {
			sb.WriteString("\n> " + cit.Title + " <" + cit.URI + ">\n")
		}
		sb.WriteString("\n---\n\n")
	}

	return sb.String()
}

// WriteExport writes the markdown export into dir and returns the file path.
// The write is atomic so a crash never leaves a half-written export.
func WriteExport(dir string, conv *model.Conversation) (string, error) {
	name := conv.ID
	if name == "" {
		name = "conversation-" + time.Now().Format("20060102-150405")
	}
	path := filepath.Join(dir, name+".md")

	if err := util.AtomicWriteFile(path, []byte(ExportMarkdown(conv)), 0644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}
