// Package matcher decides which enrolled identity, if any, a probe embedding
// belongs to.
package matcher

import (
	"math"

	"github.com/kozaktomas/faceid/internal/apperr"
	"github.com/kozaktomas/faceid/internal/gallery"
)

// Default policy for the Euclidean metric.
const (
	DefaultThreshold      = 0.6
	DefaultTieTolerance   = 1e-6
	DefaultCandidateLimit = 64
)

// Matcher holds the decision policy. The zero value is not useful; use New or
// set Threshold explicitly. A Matcher is safe for concurrent use.
type Matcher struct {
	// Threshold is the largest distance still accepted as a match.
	Threshold float64
	// TieTolerance marks the result ambiguous when the runner-up identity is
	// within this distance of the best one.
	TieTolerance float64
	// IndexMinSamples enables HNSW candidate ordering for galleries with more
	// samples than this. Zero disables the index. The index never changes a
	// result, it only tightens the bound used to cut the exact scan short.
	IndexMinSamples int
	// CandidateLimit is the number of graph neighbours fetched per probe.
	CandidateLimit int
}

// New returns a Matcher with the given threshold and default tie tolerance.
func New(threshold float64) *Matcher {
	return &Matcher{
		Threshold:      threshold,
		TieTolerance:   DefaultTieTolerance,
		CandidateLimit: DefaultCandidateLimit,
	}
}

// Result is the outcome of one match. Distance and Level are only meaningful
// when Matched is true.
type Result struct {
	Matched   bool
	Identity  *gallery.Identity
	Distance  float64
	Level     gallery.Level
	Ambiguous bool
	// Closest is the smallest identity distance seen, +Inf for an empty gallery.
	Closest float64
}

// Name returns the matched identity's name, or "".
func (r Result) Name() string {
	if r.Identity == nil {
		return ""
	}
	return r.Identity.Name
}

// Match compares probe against every identity in g using the threshold and
// default tie tolerance.
func Match(probe gallery.Embedding, g *gallery.Gallery, threshold float64) (Result, error) {
	return New(threshold).Match(probe, g)
}

// Match compares probe against g. An identity's distance is the distance to
// its nearest sample. "No match" is a result, never an error; errors are
// reserved for malformed probes.
func (m *Matcher) Match(probe gallery.Embedding, g *gallery.Gallery) (Result, error) {
	if err := probe.Validate(); err != nil {
		return Result{}, err
	}
	if g == nil || g.Len() == 0 {
		return Result{Closest: math.Inf(1)}, nil
	}
	if dim := g.Dimension(); dim != 0 && len(probe) != dim {
		return Result{}, apperr.Newf(apperr.CodeInvalidEmbedding,
			"probe dimension %d does not match gallery dimension %d", len(probe), dim)
	}

	identities := g.Identities()
	metric := g.Metric()

	best, second := math.Inf(1), math.Inf(1)
	bestPos := -1
	score := func(pos int, d float64) {
		switch {
		case d < best:
			second = best
			best = d
			bestPos = pos
		case d < second:
			second = d
		}
	}

	// Graph neighbours are scored first so the runner-up bound is tight
	// before the full pass. Every identity is still visited.
	var scored []bool
	if positions := m.candidates(probe, g); positions != nil {
		scored = make([]bool, len(identities))
		for _, pos := range positions {
			scored[pos] = true
			score(pos, identityDistance(metric, probe, &identities[pos], math.Inf(1)))
		}
	}
	for pos := range identities {
		if scored != nil && scored[pos] {
			continue
		}
		score(pos, identityDistance(metric, probe, &identities[pos], second))
	}

	if bestPos < 0 {
		return Result{Closest: best}, nil
	}
	if second-best <= m.TieTolerance {
		return Result{Ambiguous: true, Closest: best}, nil
	}
	if best > m.Threshold {
		return Result{Closest: best}, nil
	}

	id := &identities[bestPos]
	return Result{
		Matched:  true,
		Identity: id,
		Distance: best,
		Level:    id.Level,
		Closest:  best,
	}, nil
}

// candidates returns identity positions suggested by the snapshot's HNSW
// graph, or nil when the index is disabled for g.
func (m *Matcher) candidates(probe gallery.Embedding, g *gallery.Gallery) []int {
	if m.IndexMinSamples <= 0 || g.SampleCount() <= m.IndexMinSamples {
		return nil
	}
	limit := m.CandidateLimit
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	positions := g.Index().Candidates(probe, limit)
	if len(positions) == 0 {
		return nil
	}
	return positions
}

// identityDistance returns the distance from probe to id's nearest sample.
// Samples provably farther than bound are abandoned early; when every sample
// is, the result is +Inf. Anything at or below bound is exact.
func identityDistance(metric gallery.Metric, probe gallery.Embedding, id *gallery.Identity, bound float64) float64 {
	best := math.Inf(1)
	for _, s := range id.Samples {
		d, ok := metric.DistanceWithin(probe, s.Embedding, math.Min(bound, best))
		if ok && d < best {
			best = d
		}
	}
	return best
}
