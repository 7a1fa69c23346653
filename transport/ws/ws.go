// Package ws binds the streaming channel to the assistant backend's
// WebSocket endpoint. This is the mobile client's transport.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	lucide "github.com/henribesnard/lucide-chat"
)

// Client opens streaming sends over a WebSocket connection, one connection
// per send.
type Client struct {
	baseURL string
	dialer  *websocket.Dialer
}

// NewClient creates a client for the backend at baseURL (http or ws scheme).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dialer:  websocket.DefaultDialer,
	}
}

// Open dials the endpoint, writes the stream request as the first frame and
// returns the event stream backed by the connection.
func (c *Client) Open(ctx context.Context, req lucide.StreamRequest) (lucide.EventStream, error) {
	endpoint, err := c.endpointURL()
	if err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing stream: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("writing stream request: %w", err)
	}

	return &stream{conn: conn}, nil
}

func (c *Client) endpointURL() (string, error) {
	u, err := url.Parse(c.baseURL + "/v1/chat/ws")
	if err != nil {
		return "", fmt.Errorf("parsing stream url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}

// stream reads one JSON event envelope per frame. A normal close from the
// server is the end of the stream.
type stream struct {
	conn *websocket.Conn
}

func (s *stream) Recv() (lucide.Event, error) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}

		ev, err := lucide.DecodeEvent(data)
		if errors.Is(err, lucide.ErrUnknownEvent) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return ev, nil
	}
}

func (s *stream) Close() error {
	return s.conn.Close()
}
