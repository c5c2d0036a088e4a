package gallery

import (
	"fmt"
	"math"
	"strings"

	"github.com/coder/hnsw"
)

// Metric selects the distance function used for matching. It is fixed for the
// lifetime of a store.
type Metric string

const (
	// Euclidean is the L2 distance between raw vectors.
	Euclidean Metric = "euclidean"
	// Cosine is 1 - cosine similarity, in [0, 2].
	Cosine Metric = "cosine"
)

// ParseMetric parses a metric name; the empty string selects Euclidean.
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case "", Euclidean:
		return Euclidean, nil
	case Cosine:
		return Cosine, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q (want euclidean or cosine)", s)
	}
}

// Distance returns the distance between a and b. Vectors of different length
// get +Inf; callers validate dimensions before comparing.
func (m Metric) Distance(a, b []float32) float64 {
	if m == Cosine {
		return CosineDistance(a, b)
	}
	return EuclideanDistance(a, b)
}

// DistanceWithin is Distance with an early exit. It reports false once the
// Euclidean partial sum proves the distance exceeds bound; otherwise the
// returned value equals Distance(a, b). Cosine distances are always computed
// in full.
func (m Metric) DistanceWithin(a, b []float32, bound float64) (float64, bool) {
	if m == Cosine || math.IsInf(bound, 1) || len(a) != len(b) {
		return m.Distance(a, b), true
	}
	// Slack keeps rounding in bound*bound from cutting off a value equal to bound.
	limit := bound * bound * (1 + 1e-9)
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
		if sum > limit {
			return math.Inf(1), false
		}
	}
	return math.Sqrt(sum), true
}

func (m Metric) graphDistance() hnsw.DistanceFunc {
	if m == Cosine {
		return hnsw.CosineDistance
	}
	return hnsw.EuclideanDistance
}

// EuclideanDistance computes the L2 distance between two vectors.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// CosineDistance computes the cosine distance between two vectors
// Returns a value between 0 (identical) and 2 (opposite)
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 2.0
	}

	// sqrt(normA*normB) keeps identical vectors at exactly 1.
	similarity := dotProduct / math.Sqrt(normA*normB)
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return 1 - similarity
}
