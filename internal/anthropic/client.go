package anthropic

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultMaxTokens = 4096
	systemPrompt     = "You are a precise language teacher. You always answer with a single JSON object."
)

type Client struct {
	api       sdk.Client
	model     string
	maxTokens int64
}

// NewClient builds a client for model. Retries are disabled: a retried
// analysis would append a second history row.
func NewClient(apiKey, model string, opts ...option.RequestOption) *Client {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	return &Client{
		api:       sdk.NewClient(append(base, opts...)...),
		model:     model,
		maxTokens: defaultMaxTokens,
	}
}

// Generate sends prompt as a single user turn and returns the text reply.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := c.api.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("api call: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("empty response content")
	}
	return sb.String(), nil
}
