package recognizer

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/coder/hnsw"
)

const (
	// maxNeighbors (M) is the maximum number of neighbors per node.
	maxNeighbors = 16
)

// LabelIndex maps face embeddings to enrollee classifier labels using an
// HNSW graph keyed by sample ID. Labels are resolved through a side map so
// newly enrolled samples become searchable without a rebuild.
type LabelIndex struct {
	graph      *hnsw.Graph[int64]
	savedGraph *hnsw.SavedGraph[int64]
	idToLabel  map[int64]int
	mu         sync.RWMutex
	path       string
}

// NewLabelIndex creates a new empty index.
func NewLabelIndex() *LabelIndex {
	return &LabelIndex{
		idToLabel: make(map[int64]int),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = maxNeighbors
	g.Ml = 1.0 / float64(maxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// Add inserts one sample embedding under a label. Samples with empty
// embeddings are skipped.
func (x *LabelIndex) Add(sampleID int64, label int, embedding []float32) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if len(embedding) == 0 {
		return
	}

	// A loaded index keeps serving searches; new samples go into its graph
	// so they are visible without a rebuild.
	if x.savedGraph != nil {
		x.savedGraph.Add(hnsw.MakeNode(sampleID, embedding))
		x.idToLabel[sampleID] = label
		return
	}

	if x.graph == nil {
		x.graph = newGraph()
	}
	x.graph.Add(hnsw.MakeNode(sampleID, embedding))
	x.idToLabel[sampleID] = label
}

// Match is one nearest-neighbor result.
type Match struct {
	SampleID int64
	Label    int
	Distance float64 // cosine distance in [0, 2]
}

// Search finds the k nearest enrolled samples to the query embedding,
// nearest first.
func (x *LabelIndex) Search(query []float32, k int) ([]Match, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil && x.savedGraph == nil {
		return nil, errors.New("index not initialized")
	}

	var neighbors []hnsw.Node[int64]
	if x.savedGraph != nil {
		neighbors = x.savedGraph.Search(query, k)
	} else {
		neighbors = x.graph.Search(query, k)
	}

	matches := make([]Match, 0, len(neighbors))
	for _, n := range neighbors {
		label, ok := x.idToLabel[n.Key]
		if !ok {
			// Node survives in a loaded graph after its sample was dropped.
			continue
		}
		matches = append(matches, Match{
			SampleID: n.Key,
			Label:    label,
			Distance: cosineDistance(query, n.Value),
		})
	}
	return matches, nil
}

// Count returns the number of indexed samples.
func (x *LabelIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.idToLabel)
}

// IsEmpty reports whether no graph data is loaded.
func (x *LabelIndex) IsEmpty() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.graph == nil && x.savedGraph == nil
}

// SetPath sets the path for saving the index.
func (x *LabelIndex) SetPath(path string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.path = path
}

// Save persists the index to disk. A nil graph removes any stale file.
func (x *LabelIndex) Save() error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.path == "" {
		return nil // No path set
	}

	if x.graph == nil && x.savedGraph == nil {
		_ = os.Remove(x.path)
		return nil
	}

	f, err := os.Create(x.path)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer f.Close()

	if x.savedGraph != nil {
		if err := x.savedGraph.Export(f); err != nil {
			return fmt.Errorf("exporting graph: %w", err)
		}
		return nil
	}
	if err := x.graph.Export(f); err != nil {
		return fmt.Errorf("exporting graph: %w", err)
	}
	return nil
}

// Load loads the index graph from disk. A missing file is not an error; the
// caller rebuilds from stored samples in that case. The label map must be
// repopulated via RebuildLabels.
func (x *LabelIndex) Load(path string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.path = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return fmt.Errorf("failed to load index: %w", err)
	}

	x.savedGraph = saved
	return nil
}

// RebuildLabels repopulates the sample-to-label map after loading a graph
// from disk.
func (x *LabelIndex) RebuildLabels(labels map[int64]int) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.idToLabel = make(map[int64]int, len(labels))
	for id, label := range labels {
		x.idToLabel[id] = label
	}
}

// cosineDistance computes the cosine distance between two vectors
// (1 - cosine similarity). Returns a value between 0 (identical)
// and 2 (opposite).
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0 // Maximum distance for invalid input
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 2.0 // Maximum distance for zero vectors
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return 1 - similarity
}
