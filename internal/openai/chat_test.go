package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/cloo-solutions/unirank/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockChatAPI struct {
	mock.Mock
}

func (m *MockChatAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.ChatCompletionResponse), args.Error(1)
}

func completion(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
	}
}

func TestChatClient_Complete_Success(t *testing.T) {
	mockAPI := new(MockChatAPI)
	client := NewChatClient(mockAPI, nil)

	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: "You answer ranking questions."},
		{Role: domain.RoleUser, Content: "Where is Harvard?"},
	}
	cfg := DefaultGenerationConfig()

	mockAPI.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		return req.Model == cfg.Model &&
			req.MaxTokens == 500 &&
			req.TopP == 0.9 &&
			len(req.Messages) == 2 &&
			req.Messages[0].Role == openai.ChatMessageRoleSystem &&
			req.Messages[1].Role == openai.ChatMessageRoleUser
	})).Return(completion("Harvard is ranked 3."), nil)

	answer, err := client.Complete(context.Background(), messages, cfg)

	require.NoError(t, err)
	assert.Equal(t, "Harvard is ranked 3.", answer)
	mockAPI.AssertExpectations(t)
}

func TestChatClient_Complete_APIError(t *testing.T) {
	mockAPI := new(MockChatAPI)
	client := NewChatClient(mockAPI, nil)
	apiErr := errors.New("503 service unavailable")

	mockAPI.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(openai.ChatCompletionResponse{}, apiErr)

	_, err := client.Complete(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "q"}}, DefaultGenerationConfig())

	assert.ErrorIs(t, err, apiErr)
}

func TestChatClient_Complete_NoChoices(t *testing.T) {
	mockAPI := new(MockChatAPI)
	client := NewChatClient(mockAPI, nil)

	mockAPI.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(openai.ChatCompletionResponse{}, nil)

	_, err := client.Complete(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "q"}}, DefaultGenerationConfig())

	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestChatClient_Complete_Validation(t *testing.T) {
	mockAPI := new(MockChatAPI)
	client := NewChatClient(mockAPI, nil)

	_, err := client.Complete(context.Background(), nil, DefaultGenerationConfig())
	assert.ErrorIs(t, err, ErrNoMessages)

	cfg := DefaultGenerationConfig()
	cfg.Temperature = 1.2
	_, err = client.Complete(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "q"}}, cfg)
	assert.ErrorIs(t, err, ErrInvalidGenerationConfig)

	mockAPI.AssertNotCalled(t, "CreateChatCompletion", mock.Anything, mock.Anything)
}

func TestGenerationConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *GenerationConfig)
		valid  bool
	}{
		{"Defaults", func(g *GenerationConfig) {}, true},
		{"ZeroTemperature", func(g *GenerationConfig) { g.Temperature = 0 }, true},
		{"NoModel", func(g *GenerationConfig) { g.Model = "" }, false},
		{"NoTokens", func(g *GenerationConfig) { g.MaxOutputTokens = 0 }, false},
		{"NegativeTopK", func(g *GenerationConfig) { g.TopK = -1 }, false},
		{"TopPAboveOne", func(g *GenerationConfig) { g.TopP = 1.1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := DefaultGenerationConfig()
			tt.mutate(&g)
			if tt.valid {
				assert.NoError(t, g.Validate())
			} else {
				assert.ErrorIs(t, g.Validate(), ErrInvalidGenerationConfig)
			}
		})
	}
}

func TestBuildChatRequest_ZeroTemperatureIsSent(t *testing.T) {
	cfg := DefaultGenerationConfig()
	cfg.Temperature = 0

	req := buildChatRequest([]domain.Message{{Role: domain.RoleAssistant, Content: "a"}}, cfg)

	assert.Greater(t, req.Temperature, float32(0))
	assert.Equal(t, openai.ChatMessageRoleAssistant, req.Messages[0].Role)
}
