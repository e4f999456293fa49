package service

import (
	"context"
	"strings"

	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/cloo-solutions/unirank/internal/openai"
	"github.com/cloo-solutions/unirank/internal/prompts"
	"golang.org/x/sync/errgroup"
)

// Compressor reduces retrieved chunks to the spans relevant to the query.
type Compressor interface {
	Compress(ctx context.Context, query string, results domain.RetrievalResult) (domain.CompressedContext, error)
}

// ChatCompleter sends one chat completion.
type ChatCompleter interface {
	Complete(ctx context.Context, messages []domain.Message, cfg openai.GenerationConfig) (string, error)
}

// PassthroughCompressor keeps every retrieved chunk verbatim.
type PassthroughCompressor struct{}

func (PassthroughCompressor) Compress(_ context.Context, _ string, results domain.RetrievalResult) (domain.CompressedContext, error) {
	return domain.PassagesFromResults(results), nil
}

// LLMCompressorConfig controls the extraction calls.
type LLMCompressorConfig struct {
	Generation  openai.GenerationConfig
	Concurrency int
}

// LLMCompressor asks a chat model to extract the relevant part of every chunk,
// dropping chunks the model marks as irrelevant.
type LLMCompressor struct {
	chat   ChatCompleter
	prompt prompts.CompressionPrompt
	cfg    LLMCompressorConfig
}

func NewLLMCompressor(chat ChatCompleter, prompt prompts.CompressionPrompt, cfg LLMCompressorConfig) *LLMCompressor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	// extraction should not be creative
	cfg.Generation.Temperature = 0
	return &LLMCompressor{chat: chat, prompt: prompt, cfg: cfg}
}

// Compress extracts chunks concurrently while keeping retrieval order. Any model
// failure fails the whole call with COMPRESSION_SERVICE_ERROR.
func (c *LLMCompressor) Compress(ctx context.Context, query string, results domain.RetrievalResult) (domain.CompressedContext, error) {
	if len(results) == 0 {
		return domain.CompressedContext{Compressed: true}, nil
	}

	extracted := make([]string, len(results))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for i, r := range results {
		g.Go(func() error {
			msg := domain.Message{Role: domain.RoleUser, Content: c.prompt.Render(query, r.Chunk.Text)}
			out, err := c.chat.Complete(gctx, []domain.Message{msg}, c.cfg.Generation)
			if err != nil {
				return err
			}
			extracted[i] = strings.TrimSpace(out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.CompressedContext{}, domain.Wrap(domain.ErrCompressionFailed, err)
	}

	passages := make([]domain.Passage, 0, len(results))
	for i, r := range results {
		text := extracted[i]
		if text == "" || strings.EqualFold(text, c.prompt.NoOutput) {
			continue
		}
		passages = append(passages, domain.Passage{Record: r.Chunk.Record(), Text: text})
	}

	return domain.CompressedContext{Passages: passages, Compressed: true}, nil
}
