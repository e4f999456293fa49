package domain

import (
	"fmt"
	"strings"
)

// SimilarityMetric is fixed when a vector index is created.
type SimilarityMetric string

const (
	MetricCosine    SimilarityMetric = "cosine"
	MetricEuclidean SimilarityMetric = "euclidean"
)

// ParseSimilarityMetric normalizes a configured metric name.
func ParseSimilarityMetric(s string) (SimilarityMetric, error) {
	m := SimilarityMetric(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", Wrap(ErrInvalidMetric, fmt.Errorf("%q (expected cosine or euclidean)", s))
	}
	return m, nil
}

// Valid reports whether m is a supported metric.
func (m SimilarityMetric) Valid() bool {
	switch m {
	case MetricCosine, MetricEuclidean:
		return true
	}
	return false
}

// DistanceOperator returns the pgvector operator for the metric.
func (m SimilarityMetric) DistanceOperator() string {
	if m == MetricEuclidean {
		return "<->"
	}
	return "<=>"
}

// OperatorClass returns the pgvector index operator class for the metric.
func (m SimilarityMetric) OperatorClass() string {
	if m == MetricEuclidean {
		return "vector_l2_ops"
	}
	return "vector_cosine_ops"
}

// Score converts a distance into a similarity where higher is closer.
func (m SimilarityMetric) Score(distance float64) float32 {
	if m == MetricEuclidean {
		return float32(1.0 / (1.0 + distance))
	}
	return float32(1.0 - distance)
}
