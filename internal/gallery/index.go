package gallery

import (
	"math/rand"
	"sort"

	"github.com/coder/hnsw"
)

// HNSW parameters for face embeddings.
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	HNSWEfSearch = 100

	// hnswSeed seeds level assignment. It does not make the graph reproducible,
	// so nothing may depend on which neighbours a search returns.
	hnswSeed = 42
)

// Index is an approximate nearest-neighbour graph over every sample of a
// snapshot. Its answers are hints: they may miss the true nearest sample, and
// the matcher only uses them to order an exact scan.
type Index struct {
	graph  *hnsw.Graph[int]
	owners []int // node key -> identity position in the snapshot
}

func buildIndex(g *Gallery) *Index {
	graph := hnsw.NewGraph[int]()
	graph.M = HNSWMaxNeighbors
	graph.Ml = 1.0 / float64(HNSWMaxNeighbors)
	graph.EfSearch = HNSWEfSearch
	graph.Distance = g.metric.graphDistance()
	graph.Rng = rand.New(rand.NewSource(hnswSeed)) //nolint:gosec // graph layout, not security

	ix := &Index{graph: graph}
	for pos := range g.identities {
		for _, s := range g.identities[pos].Samples {
			key := len(ix.owners)
			ix.owners = append(ix.owners, pos)
			graph.Add(hnsw.MakeNode(key, []float32(s.Embedding)))
		}
	}
	return ix
}

// Len returns the number of indexed samples.
func (ix *Index) Len() int {
	return len(ix.owners)
}

// Candidates returns the positions of identities owning any of the k samples
// nearest to probe, ascending and without duplicates.
func (ix *Index) Candidates(probe Embedding, k int) []int {
	if ix.Len() == 0 || k <= 0 {
		return nil
	}
	nodes := ix.graph.Search([]float32(probe), k)

	seen := make(map[int]struct{}, len(nodes))
	positions := make([]int, 0, len(nodes))
	for _, n := range nodes {
		pos := ix.owners[n.Key]
		if _, ok := seen[pos]; ok {
			continue
		}
		seen[pos] = struct{}{}
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	return positions
}
