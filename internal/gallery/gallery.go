package gallery

import (
	"sort"
	"sync"
)

// Gallery is an immutable snapshot of the store used for matching.
// Callers must not modify the returned identities or their samples.
type Gallery struct {
	identities []Identity
	dim        int
	metric     Metric
	samples    int

	indexOnce sync.Once
	index     *Index
}

// NewGallery builds a snapshot from identities. Identities are copied and
// sorted by key so iteration order is deterministic.
func NewGallery(identities []Identity, dim int, metric Metric) *Gallery {
	if metric == "" {
		metric = Euclidean
	}
	g := &Gallery{
		identities: make([]Identity, len(identities)),
		dim:        dim,
		metric:     metric,
	}
	for i := range identities {
		g.identities[i] = identities[i].clone()
		g.samples += len(identities[i].Samples)
	}
	sort.Slice(g.identities, func(i, j int) bool {
		return g.identities[i].Key < g.identities[j].Key
	})
	return g
}

// Identities returns the snapshot's identities, sorted by key.
func (g *Gallery) Identities() []Identity {
	return g.identities
}

// Len returns the number of identities.
func (g *Gallery) Len() int {
	return len(g.identities)
}

// SampleCount returns the number of samples across all identities.
func (g *Gallery) SampleCount() int {
	return g.samples
}

// Dimension returns the fixed embedding dimension, or 0 for an empty store
// that has not adopted one yet.
func (g *Gallery) Dimension() int {
	return g.dim
}

// Metric returns the distance metric of the store the snapshot came from.
func (g *Gallery) Metric() Metric {
	return g.metric
}

// Index returns the HNSW candidate index for this snapshot, building it on
// first use.
func (g *Gallery) Index() *Index {
	g.indexOnce.Do(func() {
		g.index = buildIndex(g)
	})
	return g.index
}
