package jobs

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cloo-solutions/unirank/internal/logging"
	"github.com/cloo-solutions/unirank/internal/service"
)

// IngestionRunner re-indexes changed ranking files.
type IngestionRunner interface {
	Run(ctx context.Context, force bool) (*service.IngestionReport, error)
}

// IngestionProcessor polls the ranking source location and re-ingests files
// whose checksum changed. Runs never overlap.
type IngestionProcessor struct {
	runner IngestionRunner
	logger *slog.Logger
	mu     sync.Mutex
}

func NewIngestionProcessor(runner IngestionRunner, logger *slog.Logger) *IngestionProcessor {
	return &IngestionProcessor{runner: runner, logger: logging.OrDiscard(logger)}
}

// Tick runs one incremental ingestion pass. A pass that is still running
// makes the call a no-op.
func (p *IngestionProcessor) Tick(ctx context.Context) error {
	if !p.mu.TryLock() {
		p.logger.DebugContext(ctx, "ingestion already running, skipping tick")
		return nil
	}
	defer p.mu.Unlock()

	report, err := p.runner.Run(ctx, false)
	if report != nil && report.Ingested() > 0 {
		p.logger.InfoContext(ctx, "ranking sources re-ingested",
			slog.String("location", report.Location),
			slog.Int("files", report.Ingested()),
			slog.Int("chunks", report.Chunks()))
	}
	return err
}
