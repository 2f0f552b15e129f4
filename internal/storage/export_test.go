// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/braid-tui/internal/model"
)

func exportFixture() *model.Conversation {
	conv := model.NewConversation()
	conv.ID = "conv_1"
	conv.Title = "Picking a keyboard"

	user := durableMessage("msg_1", model.RoleUser, "which switches?", 0, 1, true)
	old := durableMessage("msg_2", model.RoleAssistant, "superseded take", 1, 1, false)
	answer := durableMessage("msg_3", model.RoleAssistant, "tactile, probably", 1, 2, true)
	answer.Attribution = model.Attribution{Model: "large-v3"}
	answer.Citations = []model.Citation{{Title: "Switch guide", URI: "https://example.com/guide"}}

	for _, msg := range []*model.Message{user, old, answer} {
		conv.AddMessage(msg)
	}
	return conv
}

func TestExportMarkdown(t *testing.T) {
	out := ExportMarkdown(exportFixture())

	assert.Contains(t, out, "# Picking a keyboard")
	assert.Contains(t, out, "which switches?")
	assert.Contains(t, out, "**large-v3**", "assistant label should carry the model name")
	assert.Contains(t, out, "tactile, probably")
	assert.Contains(t, out, "<https://example.com/guide>")
	assert.NotContains(t, out, "superseded take", "inactive attempts stay out of the export")
}

func TestExportMarkdownInterrupted(t *testing.T) {
	conv := model.NewConversation()
	msg := durableMessage("msg_1", model.RoleAssistant, "partial", 0, 1, true)
	msg.Interrupted = true
	msg.InterruptReason = "Connection lost"
	conv.AddMessage(msg)

	out := ExportMarkdown(conv)
	assert.Contains(t, out, "*Interrupted: Connection lost*")
}

func TestWriteExport(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteExport(dir, exportFixture())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "conv_1.md"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "# Picking a keyboard")
}

func TestWriteExportUnsavedConversation(t *testing.T) {
	dir := t.TempDir()
	conv := model.NewConversation()
	conv.AddMessage(durableMessage("msg_1", model.RoleUser, "hello", 0, 1, true))

	path, err := WriteExport(dir, conv)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path) || filepath.Dir(path) == dir)
	assert.Contains(t, filepath.Base(path), "conversation-")
}
