package database

import (
	"log"
	"sort"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

// GalleryIndex is an immutable nearest-neighbour index over one encoding per student.
// Small galleries are scanned exactly, larger ones go through an HNSW graph whose
// candidates are re-ranked by exact euclidean distance.
type GalleryIndex struct {
	dim     int
	graph   *hnsw.Graph[int64]
	entries []StoredEncoding
}

// NewGalleryIndex builds an index of dim-sized encodings. A dim of 0 takes the size of
// the first usable encoding. Entries with empty vectors are skipped, entries of another
// size are logged and skipped, and a later entry for the same student replaces an earlier one.
func NewGalleryIndex(dim int, encodings []StoredEncoding) *GalleryIndex {
	pos := make(map[string]int, len(encodings))
	entries := make([]StoredEncoding, 0, len(encodings))
	for _, enc := range encodings {
		if len(enc.Vector) == 0 || enc.StudentID == "" {
			continue
		}
		if dim == 0 {
			dim = len(enc.Vector)
		}
		if len(enc.Vector) != dim {
			log.Printf("gallery index: skipping %s: encoding has %d dimensions, index has %d", enc.StudentID, len(enc.Vector), dim)
			continue
		}
		if i, ok := pos[enc.StudentID]; ok {
			entries[i] = enc
			continue
		}
		pos[enc.StudentID] = len(entries)
		entries = append(entries, enc)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].StudentID < entries[j].StudentID })

	idx := &GalleryIndex{dim: dim, entries: entries}
	if len(entries) > constants.GalleryExactScanLimit {
		idx.graph = buildGraph(entries)
	}
	return idx
}

func buildGraph(entries []StoredEncoding) *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = constants.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(constants.HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = constants.HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance

	for i := range entries {
		g.Add(hnsw.MakeNode(int64(i), entries[i].Vector))
	}
	return g
}

// With returns a new index with enc added or replacing the student's previous encoding.
func (g *GalleryIndex) With(enc StoredEncoding) *GalleryIndex {
	encodings := make([]StoredEncoding, 0, len(g.entries)+1)
	encodings = append(encodings, g.entries...)
	encodings = append(encodings, enc)
	return NewGalleryIndex(g.dim, encodings)
}

// Len returns the number of indexed students.
func (g *GalleryIndex) Len() int {
	if g == nil {
		return 0
	}
	return len(g.entries)
}

// StudentIDs returns the indexed student IDs in sorted order.
func (g *GalleryIndex) StudentIDs() []string {
	if g == nil {
		return nil
	}
	ids := make([]string, len(g.entries))
	for i := range g.entries {
		ids[i] = g.entries[i].StudentID
	}
	return ids
}

// Dim returns the encoding size of the index, 0 while it is empty and unsized.
func (g *GalleryIndex) Dim() int {
	if g == nil {
		return 0
	}
	return g.dim
}

// Nearest returns the closest student to query and its distance.
// ok is false when the index is empty or query has the wrong size.
func (g *GalleryIndex) Nearest(query []float32) (studentID string, distance float64, ok bool) {
	if g.Len() == 0 || len(query) != g.dim {
		return "", 0, false
	}

	best := -1
	bestDist := 0.0
	consider := func(i int) {
		d := EuclideanDistance(query, g.entries[i].Vector)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}

	if g.graph == nil {
		for i := range g.entries {
			consider(i)
		}
	} else {
		for _, n := range g.graph.Search(query, constants.GallerySearchCandidates) {
			consider(int(n.Key))
		}
	}

	if best < 0 {
		return "", 0, false
	}
	return g.entries[best].StudentID, bestDist, true
}
