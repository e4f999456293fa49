package service

import (
	"strings"
	"unicode"

	"github.com/cloo-solutions/unirank/internal/domain"
)

// ChunkConfig controls how ranking documents are split before embedding.
// MaxChars and Overlap are counted in runes.
type ChunkConfig struct {
	MaxChars  int
	MinChars  int
	Overlap   int
	MaxChunks int
}

// DefaultChunkConfig splits at 500 runes with a 200 rune overlap.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars:  500,
		MinChars:  250,
		Overlap:   200,
		MaxChunks: 0,
	}
}

// ChunkRecord builds the chunks of one ranking record's document. Every chunk
// carries the record's metadata; embeddings are filled in later.
func ChunkRecord(record domain.RankingRecord, cfg ChunkConfig) []domain.Chunk {
	texts := chunkText(record.Text(), cfg)
	chunks := make([]domain.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, domain.Chunk{
			Source:     record.Source,
			Rank:       record.Rank,
			University: record.University,
			Country:    record.Country,
			ChunkIndex: i,
			Text:       text,
		})
	}
	return chunks
}

func chunkText(text string, cfg ChunkConfig) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if cfg.MaxChars <= 0 {
		cfg = DefaultChunkConfig()
	}
	runes := []rune(clean)
	if len(runes) <= cfg.MaxChars {
		return []string{clean}
	}

	chunks := make([]string, 0, 8)
	start := 0
	for start < len(runes) {
		if cfg.MaxChunks > 0 && len(chunks) >= cfg.MaxChunks {
			break
		}

		end := start + cfg.MaxChars
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			cut := end
			minCut := start + cfg.MinChars
			if minCut > end {
				minCut = start
			}
			for i := end; i > minCut; i-- {
				if unicode.IsSpace(runes[i-1]) {
					cut = i
					break
				}
			}
			end = cut
		}

		if end <= start {
			break
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}

		nextStart := end
		if cfg.Overlap > 0 {
			if end-start > cfg.Overlap {
				nextStart = end - cfg.Overlap
			}
		}
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	return chunks
}
