package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/cloo-solutions/unirank/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const DefaultChatModel = openai.GPT4oMini

var (
	// ErrNoMessages is returned when a completion is requested without messages
	ErrNoMessages = errors.New("at least one message is required")
	// ErrEmptyCompletion is returned when the model answers with no choices
	ErrEmptyCompletion = errors.New("no completion choices returned")
	// ErrInvalidGenerationConfig is returned for out-of-range sampling parameters
	ErrInvalidGenerationConfig = errors.New("invalid generation config")
)

// ChatAPI is the subset of the go-openai client used for completions.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// GenerationConfig holds the sampling parameters of one completion.
// TopK is validated and carried for providers that accept it; the OpenAI chat
// API has no such parameter so it is not sent.
type GenerationConfig struct {
	Model           string
	MaxOutputTokens int
	Temperature     float32
	TopP            float32
	TopK            int
}

// DefaultGenerationConfig mirrors the deployment defaults.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Model:           DefaultChatModel,
		MaxOutputTokens: 500,
		Temperature:     0.5,
		TopP:            0.9,
		TopK:            20,
	}
}

func (g GenerationConfig) Validate() error {
	switch {
	case g.Model == "":
		return fmt.Errorf("%w: model is required", ErrInvalidGenerationConfig)
	case g.MaxOutputTokens <= 0:
		return fmt.Errorf("%w: max output tokens must be positive", ErrInvalidGenerationConfig)
	case g.Temperature < 0 || g.Temperature > 1:
		return fmt.Errorf("%w: temperature must be within [0, 1]", ErrInvalidGenerationConfig)
	case g.TopP < 0 || g.TopP > 1:
		return fmt.Errorf("%w: top_p must be within [0, 1]", ErrInvalidGenerationConfig)
	case g.TopK < 0:
		return fmt.Errorf("%w: top_k cannot be negative", ErrInvalidGenerationConfig)
	}
	return nil
}

// ChatClient sends chat completions.
type ChatClient struct {
	api     ChatAPI
	limiter *rate.Limiter
}

// NewChatClient creates a chat client sharing the optional limiter.
func NewChatClient(api ChatAPI, limiter *rate.Limiter) *ChatClient {
	return &ChatClient{api: api, limiter: limiter}
}

// NewChatClientWithConfig builds a chat client from the same Config as the embeddings client.
func NewChatClientWithConfig(cfg Config) *ChatClient {
	return NewChatClient(NewAPIClient(cfg.APIKey, cfg.BaseURL), cfg.Limiter)
}

// Complete returns the text of the first choice.
func (c *ChatClient) Complete(ctx context.Context, messages []domain.Message, cfg GenerationConfig) (string, error) {
	if len(messages) == 0 {
		return "", ErrNoMessages
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, buildChatRequest(messages, cfg))
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	return resp.Choices[0].Message.Content, nil
}

func buildChatRequest(messages []domain.Message, cfg GenerationConfig) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    toOpenAIRole(m.Role),
			Content: m.Content,
		})
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		// go-openai drops a zero temperature from the payload
		temperature = math.SmallestNonzeroFloat32
	}

	return openai.ChatCompletionRequest{
		Model:       cfg.Model,
		Messages:    msgs,
		MaxTokens:   cfg.MaxOutputTokens,
		Temperature: temperature,
		TopP:        cfg.TopP,
	}
}

func toOpenAIRole(role string) string {
	switch strings.ToLower(role) {
	case domain.RoleSystem:
		return openai.ChatMessageRoleSystem
	case domain.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
