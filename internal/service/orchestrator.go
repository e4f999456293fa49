package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/cloo-solutions/unirank/internal/logging"
	"github.com/cloo-solutions/unirank/internal/telemetry"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// ApologyMessage is returned to users when a query fails. It is deliberately
// different from a "not found in the rankings" answer.
const ApologyMessage = "Sorry, I couldn't look up the rankings right now. Please try again in a moment."

// AnswerGenerator produces an answer from an assembled prompt.
type AnswerGenerator interface {
	Generate(ctx context.Context, prompt domain.Prompt) (string, error)
}

// OrchestratorConfig holds per-stage timeouts and capacity limits.
// A zero timeout disables that limit.
type OrchestratorConfig struct {
	EmbedTimeout    time.Duration
	RetrieveTimeout time.Duration
	CompressTimeout time.Duration
	GenerateTimeout time.Duration
	QueryTimeout    time.Duration
	MaxInFlight     int64
	K               int
}

// DefaultOrchestratorConfig returns the deployment defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		EmbedTimeout:    10 * time.Second,
		RetrieveTimeout: 5 * time.Second,
		CompressTimeout: 20 * time.Second,
		GenerateTimeout: 30 * time.Second,
		QueryTimeout:    60 * time.Second,
		MaxInFlight:     32,
		K:               DefaultRetrievalK,
	}
}

// AnswerInput is one query and the caller's session history.
type AnswerInput struct {
	Query     string
	SessionID string
	History   *domain.History
}

// AnswerOutput is the outcome of one query. Trace is always set.
type AnswerOutput struct {
	Answer string
	State  domain.QueryState
	Prompt domain.Prompt
	Trace  *domain.QueryTrace
}

// Orchestrator runs the answering pipeline:
// embed, retrieve, compress, assemble, generate.
type Orchestrator struct {
	retriever  *Retriever
	compressor Compressor
	assembler  *PromptAssembler
	generator  AnswerGenerator
	queryLog   QueryLogRepository
	logger     *slog.Logger
	sem        *semaphore.Weighted
	cfg        OrchestratorConfig
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithQueryLog records every finished query.
func WithQueryLog(repo QueryLogRepository) OrchestratorOption {
	return func(o *Orchestrator) { o.queryLog = repo }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

func NewOrchestrator(
	retriever *Retriever,
	compressor Compressor,
	assembler *PromptAssembler,
	generator AnswerGenerator,
	cfg OrchestratorConfig,
	opts ...OrchestratorOption,
) *Orchestrator {
	if compressor == nil {
		compressor = PassthroughCompressor{}
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultOrchestratorConfig().MaxInFlight
	}
	o := &Orchestrator{
		retriever:  retriever,
		compressor: compressor,
		assembler:  assembler,
		generator:  generator,
		cfg:        cfg,
		sem:        semaphore.NewWeighted(cfg.MaxInFlight),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.OrDiscard(o.logger)
	return o
}

// PromptVersion returns the active prompt template version.
func (o *Orchestrator) PromptVersion() string {
	return o.assembler.Version()
}

// AnswerQuery never fails: a FAILED query yields ApologyMessage.
func (o *Orchestrator) AnswerQuery(ctx context.Context, query string, history *domain.History) string {
	out, err := o.Answer(ctx, AnswerInput{Query: query, History: history})
	if err != nil || out.Answer == "" {
		return ApologyMessage
	}
	return out.Answer
}

// Answer runs one query through the pipeline. On failure the error carries the
// failing stage's DomainError code and the returned output holds the FAILED trace.
// A successful answer is appended to input.History.
func (o *Orchestrator) Answer(ctx context.Context, input AnswerInput) (*AnswerOutput, error) {
	trace := &domain.QueryTrace{ID: uuid.NewString(), StartedAt: time.Now().UTC()}
	trace.Enter(domain.QueryStateReceived)
	out := &AnswerOutput{State: domain.QueryStateReceived, Trace: trace}

	ctx = logging.WithQueryID(ctx, trace.ID)
	if input.SessionID != "" {
		ctx = logging.WithSessionID(ctx, input.SessionID)
	}
	ctx, span := telemetry.StartSpan(ctx, "Orchestrator.Answer", telemetry.SpanAttributes{
		QueryID:   trace.ID,
		SessionID: input.SessionID,
		Operation: "answer",
	})
	defer span.End()

	defer func() {
		trace.Duration = time.Since(trace.StartedAt)
		out.State = trace.Current()
		o.record(ctx, input, trace)
	}()

	query := strings.TrimSpace(input.Query)
	if query == "" {
		return out, o.fail(ctx, trace, domain.QueryStateReceived, domain.ErrEmptyQuery)
	}

	ctx, cancel := withTimeout(ctx, o.cfg.QueryTimeout)
	defer cancel()

	if err := o.sem.Acquire(ctx, 1); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out, o.fail(ctx, trace, domain.QueryStateReceived, domain.Wrap(domain.ErrTooManyQueries, err))
		}
		return out, o.fail(ctx, trace, domain.QueryStateReceived, domain.Wrap(domain.ErrQueryCanceled, err))
	}
	defer o.sem.Release(1)

	turns := input.History.Turns()

	o.enter(ctx, trace, domain.QueryStateEmbedding)
	vec, err := runStage(ctx, o.cfg.EmbedTimeout, domain.QueryStateEmbedding, trace, func(ctx context.Context) ([]float32, error) {
		return o.retriever.EmbedQuery(ctx, query)
	})
	if err != nil {
		return out, o.fail(ctx, trace, domain.QueryStateEmbedding, err)
	}

	o.enter(ctx, trace, domain.QueryStateRetrieving)
	results, err := runStage(ctx, o.cfg.RetrieveTimeout, domain.QueryStateRetrieving, trace, func(ctx context.Context) (domain.RetrievalResult, error) {
		return o.retriever.Search(ctx, vec, o.cfg.K)
	})
	if err != nil {
		return out, o.fail(ctx, trace, domain.QueryStateRetrieving, err)
	}
	trace.RetrievedCount = len(results)

	var compressed domain.CompressedContext
	if len(results) == 0 {
		o.logger.InfoContext(ctx, "no chunks retrieved, answering without context")
	} else {
		o.enter(ctx, trace, domain.QueryStateCompressing)
		compressed, err = runStage(ctx, o.cfg.CompressTimeout, domain.QueryStateCompressing, trace, func(ctx context.Context) (domain.CompressedContext, error) {
			return o.compressor.Compress(ctx, query, results)
		})
		if err != nil {
			o.logger.InfoContext(ctx, "compression failed, using uncompressed chunks",
				slog.String("error_code", domain.ErrorCode(err)),
				slog.String("error", err.Error()))
			trace.CompressionFallback = true
			compressed = domain.PassagesFromResults(results)
		}
	}
	trace.PassageCount = len(compressed.Passages)
	trace.EmptyContext = compressed.IsEmpty()

	o.enter(ctx, trace, domain.QueryStateAssembling)
	prompt := o.assembler.AssembleWithTemplate(compressed, query, turns)
	out.Prompt = prompt

	o.enter(ctx, trace, domain.QueryStateGenerating)
	answer, err := runStage(ctx, o.cfg.GenerateTimeout, domain.QueryStateGenerating, trace, func(ctx context.Context) (string, error) {
		return o.generator.Generate(ctx, prompt)
	})
	if err != nil {
		return out, o.fail(ctx, trace, domain.QueryStateGenerating, err)
	}

	o.enter(ctx, trace, domain.QueryStateAnswered)
	out.Answer = answer
	if input.History != nil {
		input.History.Append(domain.ConversationTurn{Query: query, Answer: answer})
	}
	return out, nil
}

func (o *Orchestrator) enter(ctx context.Context, trace *domain.QueryTrace, state domain.QueryState) {
	trace.Enter(state)
	telemetry.StateBreadcrumb(ctx, state)
	o.logger.DebugContext(ctx, "query state", slog.String("state", string(state)))
}

func (o *Orchestrator) fail(ctx context.Context, trace *domain.QueryTrace, stage domain.QueryState, err error) error {
	trace.FailedStage = stage
	trace.ErrorCode = domain.ErrorCode(err)
	if trace.ErrorCode == "" {
		trace.ErrorCode = domain.ErrCodeInternalError
	}
	trace.Enter(domain.QueryStateFailed)
	telemetry.StateBreadcrumb(ctx, domain.QueryStateFailed)

	if errors.Is(err, domain.ErrQueryCanceled) {
		o.logger.InfoContext(ctx, "query canceled", slog.String("stage", string(stage)))
		return err
	}

	o.logger.WarnContext(ctx, "query failed",
		slog.String("stage", string(stage)),
		slog.String("error_code", trace.ErrorCode),
		slog.String("error", err.Error()))
	if trace.ErrorCode != domain.ErrCodeValidation {
		telemetry.CaptureError(ctx, err, map[string]string{"stage": string(stage), "query_id": trace.ID})
	}
	return err
}

func (o *Orchestrator) record(ctx context.Context, input AnswerInput, trace *domain.QueryTrace) {
	o.logger.InfoContext(ctx, "query finished",
		slog.String("state", string(trace.Current())),
		slog.Int("retrieved", trace.RetrievedCount),
		slog.Int("passages", trace.PassageCount),
		slog.Bool("compression_fallback", trace.CompressionFallback),
		slog.Int64("duration_ms", trace.Duration.Milliseconds()))

	if o.queryLog == nil {
		return
	}
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	entry := NewQueryLogEntry(input.SessionID, strings.TrimSpace(input.Query), o.assembler.Version(), trace)
	if err := o.queryLog.CreateQueryLog(logCtx, entry); err != nil {
		o.logger.WarnContext(ctx, "failed to write query log", slog.String("error", err.Error()))
	}
}

// runStage runs fn under the stage timeout inside a child span.
func runStage[T any](ctx context.Context, timeout time.Duration, stage domain.QueryState, trace *domain.QueryTrace, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := telemetry.StartSpan(ctx, "Orchestrator."+string(stage), telemetry.SpanAttributes{
		QueryID: trace.ID,
		Stage:   string(stage),
	})
	defer span.End()

	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	v, err := fn(ctx)
	span.SetError(err)
	return v, err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
