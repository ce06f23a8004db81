package generator

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/maheshrc27/postflow/internal/apperr"
)

type AnthropicGenerator struct {
	client *anthropic.Client
	model  anthropic.Model
}

func NewAnthropicGenerator(apiKey, model string, opts ...option.RequestOption) *AnthropicGenerator {
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	return &AnthropicGenerator{
		client: &client,
		model:  anthropic.Model(model),
	}
}

func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (*Generated, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(req))),
		},
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.TransportError, err, "anthropic API error")
	}
	if len(resp.Content) == 0 {
		return nil, apperr.New(apperr.ProtocolError, "no response from anthropic")
	}

	return parse(resp.Content[0].Text, string(g.model))
}
