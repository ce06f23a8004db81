// Package generator produces social post text for a topic through an LLM provider.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
)

type Request struct {
	Topic       string
	Platform    models.Platform
	Tone        string
	MaxLength   int
	MaxHashtags int
}

type Generated struct {
	Text     string   `json:"text"`
	Hashtags []string `json:"hashtags"`
	Model    string   `json:"model"`
}

type Generator interface {
	Generate(ctx context.Context, req Request) (*Generated, error)
}

const systemPrompt = `You write social media posts.

Rules:
1. Stay within the character limit you are given, hashtags included
2. Match the requested tone
3. Do not invent facts, numbers or quotes
4. Put hashtags only in the "hashtags" list, without the # sign

Output as JSON only, no other text:
{
  "text": "the post body",
  "hashtags": ["tag1", "tag2"]
}`

func userPrompt(req Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\nPlatform: %s\n", req.Topic, req.Platform)
	if req.Tone != "" {
		fmt.Fprintf(&sb, "Tone: %s\n", req.Tone)
	}
	if req.MaxLength > 0 {
		fmt.Fprintf(&sb, "Character limit: %d\n", req.MaxLength)
	}
	if req.MaxHashtags > 0 {
		fmt.Fprintf(&sb, "At most %d hashtags\n", req.MaxHashtags)
	}
	return sb.String()
}

func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	// Some model responses include extra prose around JSON.
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}

func parse(content, model string) (*Generated, error) {
	content = cleanJSONResponse(content)

	var out Generated
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, apperr.Wrap(apperr.ProtocolError, err, "failed to parse generated content")
	}
	out.Text = strings.TrimSpace(out.Text)
	if out.Text == "" {
		return nil, apperr.New(apperr.ProtocolError, "generator returned empty text")
	}
	for i, tag := range out.Hashtags {
		out.Hashtags[i] = strings.TrimPrefix(strings.TrimSpace(tag), "#")
	}
	out.Model = model
	return &out, nil
}

func validate(req Request) error {
	if strings.TrimSpace(req.Topic) == "" {
		return apperr.New(apperr.InvalidInput, "topic is required")
	}
	return nil
}
