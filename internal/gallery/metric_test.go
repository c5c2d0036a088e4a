package gallery

import (
	"errors"
	"math"
	"testing"

	"github.com/kozaktomas/faceid/internal/apperr"
)

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"unit apart", []float32{0, 0}, []float32{1, 0}, 1},
		{"3-4-5", []float32{0, 0}, []float32{3, 4}, 5},
		{"length mismatch", []float32{1}, []float32{1, 2}, math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EuclideanDistance(tt.a, tt.b)
			if got != tt.expected {
				t.Errorf("EuclideanDistance() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", []float32{0.3, 0.1, 0.7}, []float32{0.3, 0.1, 0.7}, 0},
		{"scaled", []float32{1, 2}, []float32{2, 4}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 2},
		{"empty", []float32{}, []float32{}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineDistance(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("CosineDistance() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMetricDistanceIsSymmetric(t *testing.T) {
	a := []float32{0.12, -0.5, 0.33, 0.9}
	b := []float32{-0.2, 0.41, 0.05, 0.6}
	for _, m := range []Metric{Euclidean, Cosine} {
		if m.Distance(a, b) != m.Distance(b, a) {
			t.Errorf("%s distance is not symmetric", m)
		}
		if m.Distance(a, a) != 0 {
			t.Errorf("%s distance of a vector to itself = %v, want 0", m, m.Distance(a, a))
		}
	}
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		input   string
		want    Metric
		wantErr bool
	}{
		{"", Euclidean, false},
		{"euclidean", Euclidean, false},
		{" Cosine ", Cosine, false},
		{"manhattan", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMetric(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMetric(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMetric(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEmbeddingValidate(t *testing.T) {
	tests := []struct {
		name    string
		e       Embedding
		wantErr bool
	}{
		{"valid", Embedding{0.1, 0.2}, false},
		{"empty", Embedding{}, true},
		{"nil", nil, true},
		{"zero norm", Embedding{0, 0, 0}, true},
		{"nan", Embedding{float32(math.NaN()), 1}, true},
		{"inf", Embedding{float32(math.Inf(1)), 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.e.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperr.ErrInvalidEmbedding) {
				t.Errorf("Validate() error = %v, want invalid embedding", err)
			}
		})
	}
}

func TestLevelEnrollable(t *testing.T) {
	for l := Level(-1); l <= 4; l++ {
		want := l >= 1 && l <= 3
		if l.Enrollable() != want {
			t.Errorf("Level(%d).Enrollable() = %v, want %v", l, l.Enrollable(), want)
		}
	}
}
