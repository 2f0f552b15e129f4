// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// MaxUnitSize is the maximum allowed size for a single stream unit line.
const MaxUnitSize = 64 * 1024

// =============================================================================
// STREAM OPEN
// =============================================================================

// OpenCompletionStream opens the chunked completion read for a request
// descriptor. An error here means the transport could not be opened at all —
// no unit has been read — so the caller may fall back to the non-streaming
// path for this one request.
//
// The returned reader stays open until Close or until the terminal unit; its
// lifetime is bounded by ctx.
func (c *Client) OpenCompletionStream(ctx context.Context, desc RequestDescriptor) (*StreamReader, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/completions/stream",
		bytes.NewReader(desc.Payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "application/x-ndjson")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamingClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		resp.Body.Close()
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}

	return NewStreamReader(resp.Body), nil
}

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader parses newline-delimited JSON units from an open completion
// stream. Units are returned strictly in arrival order; malformed lines are
// skipped so one corrupt unit does not abort the stream.
type StreamReader struct {
	body   io.ReadCloser
	reader *bufio.Reader
}

// NewStreamReader wraps a response body in a unit reader.
func NewStreamReader(body io.ReadCloser) *StreamReader {
	return &StreamReader{
		body:   body,
		reader: bufio.NewReader(body),
	}
}

// Next reads the next unit. It returns io.EOF when the backend closes the
// stream after the done unit.
func (s *StreamReader) Next() (*StreamUnit, error) {
	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(bytes.TrimSpace(line)) == 0 {
				return nil, io.EOF
			}
			if err != io.EOF {
				return nil, err
			}
			// Process a final unterminated line before surfacing EOF.
		}

		if len(line) > MaxUnitSize {
			return nil, fmt.Errorf("stream unit too large: %d bytes", len(line))
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if err == io.EOF {
				return nil, io.EOF
			}
			continue
		}

		var unit StreamUnit
		if jsonErr := json.Unmarshal(line, &unit); jsonErr != nil {
			// Skip malformed lines.
			if err == io.EOF {
				return nil, io.EOF
			}
			continue
		}
		return &unit, nil
	}
}

// Close releases the underlying transport read. Safe to call more than once.
func (s *StreamReader) Close() error {
	return s.body.Close()
}
