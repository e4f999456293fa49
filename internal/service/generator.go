package service

import (
	"context"
	"strings"

	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/cloo-solutions/unirank/internal/openai"
)

// Generator produces the final answer from an assembled prompt.
type Generator struct {
	chat ChatCompleter
	cfg  openai.GenerationConfig
}

func NewGenerator(chat ChatCompleter, cfg openai.GenerationConfig) *Generator {
	return &Generator{chat: chat, cfg: cfg}
}

// Generate returns the trimmed answer. Failures and blank answers carry
// GENERATION_SERVICE_ERROR.
func (g *Generator) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	out, err := g.chat.Complete(ctx, prompt.Messages, g.cfg)
	if err != nil {
		return "", domain.Wrap(domain.ErrGenerationFailed, err)
	}

	answer := strings.TrimSpace(out)
	if answer == "" {
		return "", domain.ErrEmptyGeneration
	}
	return answer, nil
}
