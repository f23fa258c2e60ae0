package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"memcontext-be/pkg/llm"

	goopenai "github.com/sashabaranov/go-openai"
)

// Provider talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, Volcano Ark, DeepSeek, SiliconFlow...).
type Provider struct {
	client    *goopenai.Client
	ModelName string
	BaseURL   string
}

var _ llm.LLMProvider = &Provider{}

func NewProvider(apiKey, baseURL, modelName string) *Provider {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Provider{
		client:    goopenai.NewClientWithConfig(cfg),
		ModelName: modelName,
		BaseURL:   cfg.BaseURL,
	}
}

func (p *Provider) request(history []llm.Message, opts []llm.Option) goopenai.ChatCompletionRequest {
	options := llm.Apply(llm.Options{Temperature: 0.7}, opts...)

	model := p.ModelName
	if options.Model != "" {
		model = options.Model
	}

	msgs := make([]goopenai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		role := m.Role
		if role == "model" {
			role = goopenai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	return goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
	}
}

func (p *Provider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.request(history, opts))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *Provider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

func (p *Provider) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (<-chan string, <-chan error) {
	content := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		defer close(content)

		req := p.request(history, opts)
		req.Stream = true

		stream, err := p.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			errc <- fmt.Errorf("open completion stream: %w", err)
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errc <- fmt.Errorf("read completion stream: %w", err)
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case content <- delta:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	return content, errc
}
