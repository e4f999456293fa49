package domain

import (
	"fmt"
	"regexp"
	"time"
)

var indexNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,47}$`)

// IndexSpec describes a vector index. Dimensions and Metric are fixed at creation.
type IndexSpec struct {
	Name       string
	Dimensions int
	Metric     SimilarityMetric
}

// IndexInfo is a registered index.
type IndexInfo struct {
	IndexSpec
	CreatedAt time.Time
}

// Validate checks the spec before any DDL is issued.
func (s IndexSpec) Validate() error {
	if !indexNamePattern.MatchString(s.Name) {
		return NewDomainErrorWithCause(ErrCodeConfiguration, "invalid index name",
			fmt.Errorf("%q must match %s", s.Name, indexNamePattern))
	}
	if s.Dimensions <= 0 || s.Dimensions > 16000 {
		return NewDomainErrorWithCause(ErrCodeConfiguration, "invalid index dimensions",
			fmt.Errorf("%d is outside 1..16000", s.Dimensions))
	}
	if !s.Metric.Valid() {
		return Wrap(ErrInvalidMetric, fmt.Errorf("%q", s.Metric))
	}
	return nil
}

// CheckCompatible compares a registered index against the expected deployment spec.
func (i IndexInfo) CheckCompatible(expected IndexSpec) error {
	if i.Dimensions != expected.Dimensions {
		return Wrap(ErrIndexDimensionMismatch,
			fmt.Errorf("index %q has %d dimensions, configured %d", i.Name, i.Dimensions, expected.Dimensions))
	}
	if i.Metric != expected.Metric {
		return Wrap(ErrIndexMetricMismatch,
			fmt.Errorf("index %q uses %s, configured %s", i.Name, i.Metric, expected.Metric))
	}
	return nil
}

// SearchFilter narrows nearest-neighbour search. A zero MaxRank disables the rank cut-off.
type SearchFilter struct {
	MaxRank int
}

// SourceState records the last ingestion of one ranking source object.
type SourceState struct {
	IndexName   string
	Key         string
	Checksum    string
	RecordCount int
	ChunkCount  int
	IngestedAt  time.Time
}
