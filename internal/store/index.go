package store

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/coder/hnsw"
)

const (
	DefaultEfSearch = 200
	// DefaultExactSearchRows is the row count up to which Search scans every
	// vector instead of walking the graph.
	DefaultExactSearchRows = 10000

	graphM  = 16
	graphMl = 0.25
	// graph candidates per requested hit, re-ranked by exact distance
	graphOversample = 4
)

// Hit is a search result. Distance is the squared Euclidean distance between
// the query and the row's vector.
type Hit struct {
	Row      int
	Distance float32
}

// Index is an HNSW graph over rows 0..Len()-1. Rows are dense: row i is the
// i-th vector added. Index is not safe for concurrent mutation; Store guards it.
type Index struct {
	graph     *hnsw.Graph[uint64]
	vectors   [][]float32
	dims      int
	efSearch  int
	exactRows int
}

func NewIndex(dims, efSearch int) *Index {
	if efSearch <= 0 {
		efSearch = DefaultEfSearch
	}
	return &Index{
		graph:     newGraph(efSearch),
		dims:      dims,
		efSearch:  efSearch,
		exactRows: DefaultExactSearchRows,
	}
}

// SetExactRows sets the row count up to which Search is an exact scan. A
// non-positive n restores DefaultExactSearchRows.
func (x *Index) SetExactRows(n int) {
	if n <= 0 {
		n = DefaultExactSearchRows
	}
	x.exactRows = n
}

func newGraph(efSearch int) *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.EuclideanDistance
	graph.M = graphM
	graph.Ml = graphMl
	graph.EfSearch = efSearch
	return graph
}

// BuildIndex indexes vectors in order.
func BuildIndex(vectors [][]float32, dims, efSearch int) (*Index, error) {
	idx := NewIndex(dims, efSearch)
	for _, vec := range vectors {
		if err := idx.Add(vec); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// Add appends vec as the next row.
func (x *Index) Add(vec []float32) error {
	if len(vec) != x.dims {
		return fmt.Errorf("vector has %d dimensions, index expects %d", len(vec), x.dims)
	}

	v := make([]float32, len(vec))
	copy(v, vec)

	x.graph.Add(hnsw.MakeNode(uint64(len(x.vectors)), v))
	x.vectors = append(x.vectors, v)
	return nil
}

// Search returns the k rows nearest to query, closest first. Ties are broken
// by row number. Up to the exact row limit every vector is scanned; above it
// the graph proposes an oversampled candidate set that is re-ranked by exact
// distance.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != x.dims {
		return nil, fmt.Errorf("query has %d dimensions, index expects %d", len(query), x.dims)
	}

	k = min(k, len(x.vectors))
	if k <= 0 {
		return []Hit{}, nil
	}

	var hits []Hit
	if len(x.vectors) <= x.exactRows {
		hits = x.scan(query, nil)
	} else {
		hits = x.graphSearch(query, k)
	}

	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (x *Index) graphSearch(query []float32, k int) []Hit {
	want := min(max(k*graphOversample, x.efSearch), len(x.vectors))

	seen := make(map[int]bool, want)
	hits := make([]Hit, 0, want)
	for _, node := range x.graph.Search(query, want) {
		row := int(node.Key)
		if row >= len(x.vectors) || seen[row] {
			continue
		}
		seen[row] = true
		hits = append(hits, Hit{Row: row, Distance: squaredL2(query, x.vectors[row])})
	}

	// a short answer from the graph is completed by a full scan
	if len(hits) < k {
		hits = append(hits, x.scan(query, seen)...)
	}
	return hits
}

// scan computes the exact distance to every row not in skip.
func (x *Index) scan(query []float32, skip map[int]bool) []Hit {
	hits := make([]Hit, 0, len(x.vectors))
	for row, vec := range x.vectors {
		if skip[row] {
			continue
		}
		hits = append(hits, Hit{Row: row, Distance: squaredL2(query, vec)})
	}
	return hits
}

func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Row < hits[j].Row
	})
}

func (x *Index) Len() int { return len(x.vectors) }

func (x *Index) Dims() int { return x.dims }

// Export writes the graph. An empty index writes nothing.
func (x *Index) Export(w io.Writer) error {
	if len(x.vectors) == 0 {
		return nil
	}
	if err := x.graph.Export(w); err != nil {
		return fmt.Errorf("export graph: %w", err)
	}
	return nil
}

// ImportIndex reads a graph written by Export holding count rows.
func ImportIndex(r io.Reader, count, dims, efSearch int) (*Index, error) {
	idx := NewIndex(dims, efSearch)
	if count == 0 {
		return idx, nil
	}

	if err := idx.graph.Import(bufio.NewReader(r)); err != nil {
		return nil, fmt.Errorf("import graph: %w", err)
	}
	idx.graph.EfSearch = idx.efSearch

	if n := idx.graph.Len(); n != count {
		return nil, fmt.Errorf("graph holds %d nodes, expected %d", n, count)
	}

	idx.vectors = make([][]float32, count)
	for row := 0; row < count; row++ {
		vec, ok := idx.graph.Lookup(uint64(row))
		if !ok {
			return nil, fmt.Errorf("graph is missing row %d", row)
		}
		if len(vec) != dims {
			return nil, fmt.Errorf("row %d has %d dimensions, expected %d", row, len(vec), dims)
		}
		idx.vectors[row] = []float32(vec)
	}

	return idx, nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
