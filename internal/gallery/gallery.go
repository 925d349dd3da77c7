// Package gallery holds the enrolled face encodings and answers nearest-student queries.
// Readers always see a complete index: loads and additions build a new index and swap it in.
package gallery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// ErrNoFace is returned when a reference image contains no detectable face.
var ErrNoFace = errors.New("no face found in reference image")

// ErrNoImage is returned when a student has no reference image.
var ErrNoImage = errors.New("no reference image")

// ErrInvalidStudentID is returned for IDs that cannot name a reference image.
var ErrInvalidStudentID = errors.New("invalid student ID")

var imageExtensions = []string{".jpg", ".jpeg", ".png"}

// Embedder computes face encodings for an image.
type Embedder interface {
	DetectFaces(ctx context.Context, img image.Image) ([]embedding.Face, error)
}

// Gallery is the in-memory set of enrolled encodings.
type Gallery struct {
	dir       string
	threshold float64
	dim       int // expected encoding size, 0 accepts any
	embedder  Embedder
	cache     database.EncodingCache // optional

	index atomic.Pointer[database.GalleryIndex]
	// writeMu serializes LoadAll and AddOne so concurrent writers don't lose updates.
	writeMu sync.Mutex
}

// New creates an empty gallery reading reference images from dir.
// dim is the encoding size of the embedding model (0 accepts any). cache may be nil.
func New(dir string, threshold float64, dim int, embedder Embedder, cache database.EncodingCache) *Gallery {
	g := &Gallery{dir: dir, threshold: threshold, dim: dim, embedder: embedder, cache: cache}
	g.index.Store(database.NewGalleryIndex(dim, nil))
	return g
}

// fits reports whether v has the size the gallery expects.
func (g *Gallery) fits(v []float32) bool {
	return len(v) > 0 && (g.dim == 0 || len(v) == g.dim)
}

// Threshold returns the maximum distance accepted as a match.
func (g *Gallery) Threshold() float64 {
	return g.threshold
}

// Count returns the number of enrolled students.
func (g *Gallery) Count() int {
	return g.index.Load().Len()
}

// StudentIDs returns the enrolled student IDs.
func (g *Gallery) StudentIDs() []string {
	return g.index.Load().StudentIDs()
}

// Query returns the matched student for vec, or Unknown when the gallery is empty
// or the nearest encoding is farther than the threshold.
func (g *Gallery) Query(vec []float32) facematch.Match {
	id, dist, ok := g.index.Load().Nearest(vec)
	if !ok {
		return facematch.Unknown(0)
	}
	if dist > g.threshold {
		return facematch.Unknown(dist)
	}
	return facematch.Matched(id, dist)
}

// LoadResult summarizes a full gallery load.
type LoadResult struct {
	Loaded  int
	Cached  int
	Skipped []string
}

// ReferenceImages lists {studentID: path} for every image in the gallery directory.
// When a student has several images, the first by extension preference wins.
func (g *Gallery) ReferenceImages() (map[string]string, error) {
	entries, err := os.ReadDir(g.dir)
	if err != nil {
		return nil, fmt.Errorf("reading gallery directory: %w", err)
	}

	images := make(map[string]string)
	rank := make(map[string]int)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		r := extensionRank(ext)
		if r < 0 {
			continue
		}
		id := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if prev, ok := rank[id]; ok && prev <= r {
			continue
		}
		images[id] = filepath.Join(g.dir, e.Name())
		rank[id] = r
	}
	return images, nil
}

func extensionRank(ext string) int {
	for i, e := range imageExtensions {
		if e == ext {
			return i
		}
	}
	return -1
}

// LoadAll rebuilds the gallery from every reference image. Images that fail to load or
// contain no face are logged and skipped. progress, if non-nil, is called after each image.
func (g *Gallery) LoadAll(ctx context.Context, progress func(studentID string, err error)) (LoadResult, error) {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	images, err := g.ReferenceImages()
	if err != nil {
		return LoadResult{}, err
	}

	ids := make([]string, 0, len(images))
	for id := range images {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var result LoadResult
	encodings := make([]database.StoredEncoding, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("loading gallery: %w", err)
		}
		enc, cached, err := g.encode(ctx, id, images[id])
		if progress != nil {
			progress(id, err)
		}
		if err != nil {
			log.Printf("gallery: skipping %s: %v", id, err)
			result.Skipped = append(result.Skipped, id)
			continue
		}
		if cached {
			result.Cached++
		}
		encodings = append(encodings, enc)
	}

	idx := database.NewGalleryIndex(g.dim, encodings)
	g.index.Store(idx)
	result.Loaded = idx.Len()
	log.Printf("gallery: loaded %d encodings (%d from cache, %d skipped)", result.Loaded, result.Cached, len(result.Skipped))
	return result, nil
}

// AddOne loads or replaces a single student's encoding. It returns false when the
// student has no reference image or no face could be found.
func (g *Gallery) AddOne(ctx context.Context, studentID string) bool {
	if err := g.Add(ctx, studentID); err != nil {
		log.Printf("gallery: could not add %s: %v", studentID, err)
		return false
	}
	return true
}

// Add is AddOne with the failure reason.
func (g *Gallery) Add(ctx context.Context, studentID string) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	path, err := g.findImage(studentID)
	if err != nil {
		return err
	}
	enc, _, err := g.encode(ctx, studentID, path)
	if err != nil {
		return err
	}
	g.index.Store(g.index.Load().With(enc))
	return nil
}

func (g *Gallery) findImage(studentID string) (string, error) {
	if studentID == "" || strings.ContainsAny(studentID, `/\`) || studentID == "." || studentID == ".." {
		return "", fmt.Errorf("%q: %w", studentID, ErrInvalidStudentID)
	}
	for _, ext := range imageExtensions {
		path := filepath.Join(g.dir, studentID+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%s: %w", studentID, ErrNoImage)
}

// encode returns the encoding of the first face in the image, using the cache when
// the image checksum is unchanged.
func (g *Gallery) encode(ctx context.Context, studentID, path string) (database.StoredEncoding, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is built from the gallery directory
	if err != nil {
		return database.StoredEncoding{}, false, fmt.Errorf("reading %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	if g.cache != nil {
		cached, err := g.cache.GetEncoding(ctx, studentID)
		if err != nil {
			log.Printf("gallery: encoding cache lookup for %s failed: %v", studentID, err)
		} else if cached != nil && cached.Checksum == checksum {
			if g.fits(cached.Vector) {
				return *cached, true, nil
			}
			log.Printf("gallery: cached encoding for %s has %d dimensions, re-embedding", studentID, len(cached.Vector))
		}
	}

	img, err := embedding.Decode(data)
	if err != nil {
		return database.StoredEncoding{}, false, err
	}
	faces, err := g.embedder.DetectFaces(ctx, img)
	if err != nil {
		return database.StoredEncoding{}, false, fmt.Errorf("detecting faces: %w", err)
	}
	if len(faces) == 0 {
		return database.StoredEncoding{}, false, ErrNoFace
	}
	if len(faces) > 1 {
		log.Printf("gallery: %s has %d faces, using the first", studentID, len(faces))
	}

	if !g.fits(faces[0].Embedding) {
		return database.StoredEncoding{}, false, fmt.Errorf("encoding has %d dimensions, expected %d", len(faces[0].Embedding), g.dim)
	}

	enc := database.StoredEncoding{StudentID: studentID, Checksum: checksum, Vector: faces[0].Embedding}
	if g.cache != nil {
		if err := g.cache.SaveEncoding(ctx, enc); err != nil {
			log.Printf("gallery: caching encoding for %s failed: %v", studentID, err)
		}
	}
	return enc, false, nil
}
