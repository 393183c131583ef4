// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// MaxEventSize is the maximum allowed size for a single SSE event (64KB).
const MaxEventSize = 64 * 1024

// streamOpenLimiter paces how fast streams may be (re)opened. The transport
// never retries an open stream itself - frames are not replay-safe - so
// this only slows down a controller hammering a failing backend.
var streamOpenLimiter = rate.NewLimiter(rate.Limit(2), 4)

// =============================================================================
// FRAME TYPES
// =============================================================================

// FrameType discriminates the frames a reply stream can carry.
type FrameType string

const (
	// FrameNewConversation announces the server-assigned conversation id,
	// sent once when the send targeted a not-yet-created conversation.
	FrameNewConversation FrameType = "newConversation"

	// FrameMessage carries a reply-content delta.
	FrameMessage FrameType = "message"

	// FrameReasoning carries a thinking-phase delta.
	FrameReasoning FrameType = "reasoning"
)

// Frame is one discrete unit delivered over the reply stream.
//
// A terminal transport failure is delivered as exactly one Frame with Err
// set, after which the channel closes; no frames follow an error. Normal
// completion closes the channel without an error frame.
type Frame struct {
	Type           FrameType
	ConversationID string // set for FrameNewConversation
	Delta          string // set for FrameMessage / FrameReasoning
	Err            error  // terminal transport failure
}

// frameDTO is the wire shape inside an SSE data line.
type frameDTO struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId,omitempty"`
	TextContent    string `json:"textContent,omitempty"`
}

// SendRequest is the payload of one outgoing user message.
type SendRequest struct {
	// ConversationID is omitted for a conversation the server has not
	// created yet; the server then mints one and announces it in a
	// newConversation frame.
	ConversationID   string `json:"conversationId,omitempty"`
	ParentID         int    `json:"parentId"`
	TextContent      string `json:"textContent"`
	ReasoningEnabled bool   `json:"reasoningEnabled"`
	SearchEnabled    bool   `json:"searchEnabled"`

	// ClientID lets the server deduplicate a resent request.
	ClientID string `json:"clientId,omitempty"`
}

// NewSendRequest builds the payload for one send, reading the toggles that
// are current at call time.
func NewSendRequest(conversationID, text string, reasoning, search bool) SendRequest {
	return SendRequest{
		ConversationID:   conversationID,
		TextContent:      text,
		ReasoningEnabled: reasoning,
		SearchEnabled:    search,
		ClientID:         uuid.NewString(),
	}
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a byte stream into
// (id, event-type, data) triples.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader wraps r for SSE parsing.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadEvent reads the next event. Returns io.EOF when the stream ends.
// Multi-line data fields are joined with newlines per the SSE spec;
// comment lines and unknown fields are ignored.
func (s *SSEReader) ReadEvent() (id, eventType string, data []byte, err error) {
	var dataLines [][]byte
	size := 0

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(dataLines) > 0 {
				return id, eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			return "", "", nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Blank line terminates the event.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return id, eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte("id:")):
			id = string(bytes.TrimSpace(line[3:]))
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(bytes.TrimSpace(line[6:]))
		case bytes.HasPrefix(line, []byte("data:")):
			d := bytes.TrimSpace(line[5:])
			size += len(d)
			if size > MaxEventSize {
				return "", "", nil, fmt.Errorf("sse event too large: %d bytes", size)
			}
			dataLines = append(dataLines, d)
		}
	}
}

// =============================================================================
// STREAMING SEND
// =============================================================================

// Send posts one user message and returns the reply stream.
//
// Frames arrive in server emission order; the transport performs no
// reordering, coalescing, or retrying. The channel closes after normal
// completion, after a single terminal error frame, or when ctx is
// cancelled. Cancel ctx to abandon the stream.
func (c *Client) Send(ctx context.Context, req SendRequest) (<-chan Frame, error) {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	frames := make(chan Frame, 64)
	go func() {
		defer close(frames)

		if err := streamOpenLimiter.Wait(ctx); err != nil {
			emitFrame(ctx, frames, Frame{Err: err})
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/conversations/stream", bytes.NewReader(bodyBytes))
		if err != nil {
			emitFrame(ctx, frames, Frame{Err: fmt.Errorf("failed to create request: %w", err)})
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("Cache-Control", "no-cache")

		resp, err := c.streamClient.Do(httpReq)
		if err != nil {
			emitFrame(ctx, frames, Frame{Err: fmt.Errorf("request failed: %w", err)})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxEventSize))
			emitFrame(ctx, frames, Frame{Err: statusError(resp.StatusCode, body)})
			return
		}

		c.readFrames(ctx, resp.Body, frames)
	}()

	return frames, nil
}

// readFrames pumps parsed frames until the stream ends or fails.
func (c *Client) readFrames(ctx context.Context, body io.Reader, frames chan<- Frame) {
	reader := NewSSEReader(body)

	for {
		select {
		case <-ctx.Done():
			emitFrame(ctx, frames, Frame{Err: ctx.Err()})
			return
		default:
		}

		_, _, data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				return
			}
			emitFrame(ctx, frames, Frame{Err: fmt.Errorf("stream read failed: %w", err)})
			return
		}

		if bytes.Equal(data, []byte("[DONE]")) {
			return
		}

		var dto frameDTO
		if err := json.Unmarshal(data, &dto); err != nil {
			// A malformed frame is skipped, not fatal; the stream may
			// still carry the rest of the reply.
			continue
		}

		frame := Frame{
			Type:           FrameType(dto.Type),
			ConversationID: dto.ConversationID,
			Delta:          dto.TextContent,
		}
		switch frame.Type {
		case FrameNewConversation, FrameMessage, FrameReasoning:
			if !emitFrame(ctx, frames, frame) {
				return
			}
		default:
			// Unknown frame types are a forward-compatibility hatch.
		}
	}
}

// emitFrame delivers a frame unless the consumer is gone.
func emitFrame(ctx context.Context, frames chan<- Frame, f Frame) bool {
	select {
	case frames <- f:
		return true
	case <-ctx.Done():
		return false
	}
}
