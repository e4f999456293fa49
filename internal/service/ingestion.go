package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/cloo-solutions/unirank/internal/logging"
	"github.com/cloo-solutions/unirank/internal/telemetry"
)

// IngestionConfig controls how ranking files are indexed.
type IngestionConfig struct {
	IndexName string
	Chunking  ChunkConfig
}

// ObjectReport describes the ingestion of one ranking file.
type ObjectReport struct {
	Key      string
	Checksum string
	Skipped  bool
	Removed  bool
	Deleted  int64
	Records  int
	Invalid  int
	Chunks   int
	Written  int
	Problems []string
	Sources  []string
	Ingested time.Time
	Duration time.Duration
	Err      error
}

// IngestionReport summarizes one ingestion run.
type IngestionReport struct {
	Location string
	Objects  []ObjectReport
}

// Ingested returns the number of files that were (re)indexed.
func (r *IngestionReport) Ingested() int {
	n := 0
	for _, o := range r.Objects {
		if !o.Skipped && !o.Removed && o.Err == nil {
			n++
		}
	}
	return n
}

// Chunks returns the number of chunks written during the run.
func (r *IngestionReport) Chunks() int {
	n := 0
	for _, o := range r.Objects {
		n += o.Written
	}
	return n
}

// IngestionService loads ranking files, chunks and embeds their records, and
// replaces each file's chunks in the index atomically. The index mirrors the
// source location: chunks of files that disappeared from it are removed.
type IngestionService struct {
	loader     SourceLoader
	embeddings EmbeddingClient
	txRunner   TxRunner
	states     SourceStateRepository
	cfg        IngestionConfig
	logger     *slog.Logger
}

func NewIngestionService(
	loader SourceLoader,
	embeddings EmbeddingClient,
	txRunner TxRunner,
	states SourceStateRepository,
	cfg IngestionConfig,
	logger *slog.Logger,
) *IngestionService {
	if cfg.Chunking.MaxChars <= 0 {
		cfg.Chunking = DefaultChunkConfig()
	}
	return &IngestionService{
		loader:     loader,
		embeddings: embeddings,
		txRunner:   txRunner,
		states:     states,
		cfg:        cfg,
		logger:     logging.OrDiscard(logger),
	}
}

// Run ingests every file whose checksum changed since its last ingestion, or
// every file when force is set. A failing file does not stop the run; the
// returned error joins all file failures.
func (s *IngestionService) Run(ctx context.Context, force bool) (*IngestionReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Run", telemetry.SpanAttributes{Operation: "ingest"})
	defer span.End()

	report := &IngestionReport{Location: s.loader.Location()}

	objects, err := s.loader.List(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list ranking sources at %s: %w", report.Location, err)
	}

	states, err := s.states.ListStates(ctx, s.cfg.IndexName)
	if err != nil {
		return report, fmt.Errorf("failed to load ingestion state: %w", err)
	}

	var errs []error
	listed := make(map[string]bool, len(objects))
	for _, obj := range objects {
		listed[obj.Key] = true
	}
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		if prev, ok := states[obj.Key]; ok && !force && prev.Checksum == obj.Checksum {
			report.Objects = append(report.Objects, ObjectReport{Key: obj.Key, Checksum: obj.Checksum, Skipped: true})
			s.logger.DebugContext(ctx, "ranking source unchanged", slog.String("key", obj.Key))
			continue
		}

		rep, err := s.IngestObject(ctx, obj)
		rep.Err = err
		report.Objects = append(report.Objects, rep)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to ingest ranking source",
				slog.String("key", obj.Key),
				slog.String("error", err.Error()))
			telemetry.CaptureError(ctx, err, map[string]string{"source": obj.Key})
			errs = append(errs, fmt.Errorf("%s: %w", obj.Key, err))
		}
	}

	if ctx.Err() == nil {
		for _, key := range sortedStateKeys(states) {
			if listed[key] {
				continue
			}
			rep, err := s.removeObject(ctx, key)
			rep.Err = err
			report.Objects = append(report.Objects, rep)
			if err != nil {
				s.logger.ErrorContext(ctx, "failed to remove ranking source",
					slog.String("key", key),
					slog.String("error", err.Error()))
				telemetry.CaptureError(ctx, err, map[string]string{"source": key})
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}

	s.logger.InfoContext(ctx, "ingestion finished",
		slog.String("location", report.Location),
		slog.Int("files", len(objects)),
		slog.Int("ingested", report.Ingested()),
		slog.Int("chunks", report.Chunks()))

	err = errors.Join(errs...)
	span.SetError(err)
	return report, err
}

// IngestObject indexes one ranking file regardless of its recorded checksum.
func (s *IngestionService) IngestObject(ctx context.Context, obj SourceObject) (ObjectReport, error) {
	start := time.Now()
	rep := ObjectReport{Key: obj.Key, Checksum: obj.Checksum}

	raw, err := s.loader.Read(ctx, obj.Key)
	if err != nil {
		return rep, fmt.Errorf("failed to read ranking source: %w", err)
	}

	file, err := domain.ParseRankingFile(raw)
	if err != nil {
		return rep, err
	}
	rep.Records = len(file.Data)

	var chunks []domain.Chunk
	sources := make(map[string]bool)
	for i, record := range file.Data {
		if err := domain.ValidateRankingRecord(record); err != nil {
			rep.Invalid++
			rep.Problems = append(rep.Problems, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		for _, chunk := range ChunkRecord(record, s.cfg.Chunking) {
			vec, err := s.embeddings.GenerateEmbedding(ctx, chunk.Text)
			if err != nil {
				return rep, domain.Wrap(domain.ErrEmbeddingFailed, fmt.Errorf("record %d: %w", i, err))
			}
			chunk.Embedding = vec
			chunk.ObjectKey = obj.Key
			chunks = append(chunks, chunk)
			sources[record.Source] = true
			rep.Chunks++
		}
	}

	for _, p := range rep.Problems {
		s.logger.WarnContext(ctx, "skipped invalid ranking record", slog.String("key", obj.Key), slog.String("problem", p))
	}

	rep.Sources = make([]string, 0, len(sources))
	for source := range sources {
		rep.Sources = append(rep.Sources, source)
	}
	sort.Strings(rep.Sources)

	now := time.Now().UTC()
	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		written, err := repos.Chunks().ReplaceObject(ctx, obj.Key, chunks)
		if err != nil {
			return err
		}
		rep.Written = written
		return repos.Sources().SaveState(ctx, domain.SourceState{
			IndexName:   s.cfg.IndexName,
			Key:         obj.Key,
			Checksum:    obj.Checksum,
			RecordCount: rep.Records - rep.Invalid,
			ChunkCount:  rep.Written,
			IngestedAt:  now,
		})
	})
	if err != nil {
		// rolled back
		rep.Written = 0
		return rep, err
	}

	if rep.Written != rep.Chunks {
		s.logger.WarnContext(ctx, "written chunk count differs from built chunks",
			slog.String("key", obj.Key),
			slog.Int("built", rep.Chunks),
			slog.Int("written", rep.Written))
	}

	rep.Ingested = now
	rep.Duration = time.Since(start)
	s.logger.InfoContext(ctx, "ranking source ingested",
		slog.String("key", obj.Key),
		slog.Int("records", rep.Records),
		slog.Int("invalid", rep.Invalid),
		slog.Int("chunks", rep.Written))
	return rep, nil
}

// removeObject drops the chunks and state of a file that is no longer listed.
func (s *IngestionService) removeObject(ctx context.Context, key string) (ObjectReport, error) {
	rep := ObjectReport{Key: key, Removed: true}
	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		deleted, err := repos.Chunks().DeleteObject(ctx, key)
		if err != nil {
			return err
		}
		rep.Deleted = deleted
		return repos.Sources().DeleteState(ctx, s.cfg.IndexName, key)
	})
	if err != nil {
		rep.Deleted = 0
		return rep, err
	}

	s.logger.InfoContext(ctx, "ranking source removed",
		slog.String("key", key),
		slog.Int64("chunks", rep.Deleted))
	return rep, nil
}

func sortedStateKeys(states map[string]domain.SourceState) []string {
	keys := make([]string, 0, len(states))
	for k := range states {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
