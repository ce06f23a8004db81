package generator

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/maheshrc27/postflow/internal/apperr"
)

type OpenAIGenerator struct {
	client *openai.Client
	model  openai.ChatModel
}

func NewOpenAIGenerator(apiKey, model string, opts ...option.RequestOption) *OpenAIGenerator {
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIGenerator{
		client: &client,
		model:  openai.ChatModel(model),
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (*Generated, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt(req)),
		},
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.TransportError, err, "openai API error")
	}
	if len(resp.Choices) == 0 {
		return nil, apperr.New(apperr.ProtocolError, "no response from openai")
	}

	return parse(resp.Choices[0].Message.Content, string(g.model))
}
