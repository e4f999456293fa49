package domain

import (
	"fmt"
	"time"
)

// Chunk is a bounded span of ranking text with the originating record's metadata.
type Chunk struct {
	ID         string
	ObjectKey  string // ranking file the chunk was cut from
	Source     string
	Rank       RankValue
	University string
	Country    string
	ChunkIndex int
	Text       string
	Embedding  []float32
	CreatedAt  time.Time
}

// Record returns the metadata of the record the chunk was cut from.
func (c Chunk) Record() RankingRecord {
	return RankingRecord{
		Source:     c.Source,
		Rank:       c.Rank,
		University: c.University,
		Country:    c.Country,
	}
}

// ScoredChunk is a retrieved chunk with its similarity to the query.
type ScoredChunk struct {
	Chunk Chunk
	Score float32
}

// RetrievalResult is ordered by descending score.
type RetrievalResult []ScoredChunk

// Passage is the query-relevant text of one retrieved chunk.
type Passage struct {
	Record RankingRecord
	Text   string
}

// CompressedContext holds the passages that go into the prompt.
// Compressed is false when the passages are the raw retrieved chunks.
type CompressedContext struct {
	Passages   []Passage
	Compressed bool
}

// IsEmpty reports whether no passage survived retrieval and compression.
func (c CompressedContext) IsEmpty() bool {
	return len(c.Passages) == 0
}

// PassagesFromResults keeps every retrieved chunk verbatim.
func PassagesFromResults(results RetrievalResult) CompressedContext {
	passages := make([]Passage, 0, len(results))
	for _, r := range results {
		passages = append(passages, Passage{Record: r.Chunk.Record(), Text: r.Chunk.Text})
	}
	return CompressedContext{Passages: passages, Compressed: false}
}

// ValidateChunk validates a Chunk before it is written to the index
func ValidateChunk(c *Chunk, dimensions int) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}
	if c.Source == "" {
		return fmt.Errorf("chunk Source is required")
	}
	if c.Text == "" {
		return fmt.Errorf("chunk Text is required")
	}
	if c.ChunkIndex < 0 {
		return fmt.Errorf("chunk ChunkIndex cannot be negative")
	}
	if dimensions > 0 && len(c.Embedding) != dimensions {
		return fmt.Errorf("chunk Embedding has %d dimensions, expected %d", len(c.Embedding), dimensions)
	}
	return nil
}
