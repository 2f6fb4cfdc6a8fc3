package assistant

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const DefaultModel = "gpt-4o-mini"

// OpenAI completes prompts with the chat completion API.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(apiKey, model string) *OpenAI {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAI{client: openai.NewClient(apiKey), model: model}
}

func (o *OpenAI) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
