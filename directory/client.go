// Package directory implements the REST client for the conversation
// listing/read/update service.
package directory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	lucide "github.com/henribesnard/lucide-chat"
)

// Client talks to the assistant backend's conversation endpoints.
type Client struct {
	http *resty.Client
}

// New creates a client for the backend at baseURL.
func New(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(15 * time.Second),
	}
}

// List returns conversation summaries for one archive-state partition.
func (c *Client) List(ctx context.Context, archived bool) ([]lucide.ConversationSummary, error) {
	var out []lucide.ConversationSummary
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("archived", strconv.FormatBool(archived)).
		SetResult(&out).
		Get("/v1/conversations")
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("listing conversations: %s", resp.Status())
	}
	return out, nil
}

// Get returns the message transcript for one conversation.
func (c *Client) Get(ctx context.Context, id string) ([]lucide.Message, error) {
	var out struct {
		Messages []lucide.Message `json:"messages"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetPathParam("id", id).
		Get("/v1/conversations/{id}")
	if err != nil {
		return nil, fmt.Errorf("fetching conversation %s: %w", id, err)
	}
	if resp.StatusCode() == 404 {
		return nil, lucide.ErrConversationNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetching conversation %s: %s", id, resp.Status())
	}
	return out.Messages, nil
}

// Update applies a partial update to one conversation.
func (c *Client) Update(ctx context.Context, id string, patch lucide.ConversationPatch) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(patch).
		SetPathParam("id", id).
		Patch("/v1/conversations/{id}")
	if err != nil {
		return fmt.Errorf("updating conversation %s: %w", id, err)
	}
	if resp.StatusCode() == 404 {
		return lucide.ErrConversationNotFound
	}
	if resp.IsError() {
		return fmt.Errorf("updating conversation %s: %s", id, resp.Status())
	}
	return nil
}
