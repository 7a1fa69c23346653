// Package anthropic adapts the Anthropic Messages API to the server's
// streaming provider interface.
package anthropic

import (
	"context"
	"fmt"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	lucide "github.com/henribesnard/lucide-chat"
	"github.com/henribesnard/lucide-chat/server"
)

const defaultModel = "claude-sonnet-4-20250514"

type Provider struct {
	client anthropic.Client
	model  string
}

type Option func(*Provider)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  defaultModel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Stream(ctx context.Context, history []lucide.Message, language, tier string) (server.TokenStream, error) {
	messages := make([]anthropic.MessageParam, 0, len(history))
	for _, msg := range history {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == lucide.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	maxTokens := int64(1024)
	if tier == "detailed" {
		maxTokens = 4096
	}

	stream := p.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt(language, tier)},
		},
		Messages: messages,
	})

	return &tokenStream{stream: stream}, nil
}

func systemPrompt(language, tier string) string {
	prompt := "You are a knowledgeable football assistant. Answer questions about " +
		"leagues, matches, teams and players accurately and concisely."
	if language != "" {
		prompt += fmt.Sprintf(" Answer in the language with ISO code %q.", language)
	}
	if tier == "detailed" {
		prompt += " Give thorough answers with relevant statistics and context."
	}
	return prompt
}

type tokenStream struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

func (t *tokenStream) Recv() (string, error) {
	for t.stream.Next() {
		event := t.stream.Current()
		delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
			return text.Text, nil
		}
	}
	if err := t.stream.Err(); err != nil {
		return "", fmt.Errorf("receiving message event: %w", err)
	}
	return "", io.EOF
}

func (t *tokenStream) Close() error {
	return t.stream.Close()
}
