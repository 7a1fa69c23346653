// Package openai adapts the OpenAI chat completion API to the server's
// streaming provider interface.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	oai "github.com/sashabaranov/go-openai"

	lucide "github.com/henribesnard/lucide-chat"
	"github.com/henribesnard/lucide-chat/server"
)

const defaultModel = "gpt-4o"

type Provider struct {
	client *oai.Client
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
		client: oai.NewClient(apiKey),
		model:  defaultModel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Stream(ctx context.Context, history []lucide.Message, language, tier string) (server.TokenStream, error) {
	messages := make([]oai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, oai.ChatCompletionMessage{
		Role:    oai.ChatMessageRoleSystem,
		Content: systemPrompt(language, tier),
	})
	for _, msg := range history {
		role := oai.ChatMessageRoleUser
		if msg.Role == lucide.RoleAssistant {
			role = oai.ChatMessageRoleAssistant
		}
		messages = append(messages, oai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, oai.ChatCompletionRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating completion stream: %w", err)
	}

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
	stream *oai.ChatCompletionStream
}

func (t *tokenStream) Recv() (string, error) {
	for {
		resp, err := t.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("receiving completion chunk: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

func (t *tokenStream) Close() error {
	return t.stream.Close()
}
