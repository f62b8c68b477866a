package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// maxReplyTokens bounds every completion the reviewer requests.
const maxReplyTokens = 4096

// Anthropic implements Provider using the Anthropic Messages API.
type Anthropic struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewAnthropic creates an Anthropic provider with the given API key and
// model. An empty key falls back to the SDK's environment lookup.
func NewAnthropic(apiKey, model string) *Anthropic {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Anthropic{
		api:   &client,
		model: anthropic.Model(model),
	}
}

func (a *Anthropic) send(ctx context.Context, system, user string) (*anthropic.Message, error) {
	msg, err := a.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: maxReplyTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("anthropic API call: %w", err)}
	}
	return msg, nil
}

func messageText(msg *anthropic.Message) (string, error) {
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in API response")
}

// Chat sends a prompt pair and returns the text reply.
func (a *Anthropic) Chat(ctx context.Context, system, user string) (string, error) {
	msg, err := a.send(ctx, system, user)
	if err != nil {
		return "", err
	}
	return messageText(msg)
}

// ChatJSON sends a prompt pair and decodes the JSON reply into out.
func (a *Anthropic) ChatJSON(ctx context.Context, system, user string, out any) error {
	text, err := a.Chat(ctx, system, user)
	if err != nil {
		return err
	}
	return DecodeJSON(text, out)
}

// ChatWithUsage is Chat plus token usage from the API response.
func (a *Anthropic) ChatWithUsage(ctx context.Context, system, user string) (string, Usage, error) {
	msg, err := a.send(ctx, system, user)
	if err != nil {
		return "", Usage{}, err
	}
	text, err := messageText(msg)
	if err != nil {
		return "", Usage{}, err
	}
	usage := Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	return text, usage, nil
}

// TestConnection sends a minimal prompt to confirm the API is reachable.
func (a *Anthropic) TestConnection(ctx context.Context) bool {
	_, err := a.Chat(ctx, "Reply with the single word: ok", "ping")
	return err == nil
}
