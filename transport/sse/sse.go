// Package sse binds the streaming channel to the assistant backend's
// server-sent events endpoint. This is the web client's transport.
package sse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	lucide "github.com/henribesnard/lucide-chat"
)

// Client opens streaming sends over HTTP with a text/event-stream response.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the backend at baseURL. The underlying HTTP
// client carries no timeout: stream lifetime is bounded by the request
// context instead.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// Open issues the send and returns the event stream backed by the response
// body.
func (c *Client) Open(ctx context.Context, req lucide.StreamRequest) (lucide.EventStream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling stream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/stream", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("opening stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var errResp struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil && errResp.Error != "" {
			return nil, fmt.Errorf("stream rejected: %s", errResp.Error)
		}
		return nil, fmt.Errorf("stream rejected with status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	// One chunk event can exceed the scanner's default 64 KiB token limit.
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	return &stream{body: resp.Body, scanner: scanner}, nil
}

// maxEventSize caps a single event line.
const maxEventSize = 1 << 20

// stream parses "data: {json}" lines into events. The end of the response
// body is the end of the stream.
type stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func (s *stream) Recv() (lucide.Event, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		ev, err := lucide.DecodeEvent([]byte(payload))
		if errors.Is(err, lucide.ErrUnknownEvent) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return ev, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (s *stream) Close() error {
	return s.body.Close()
}
