// Package vector provides a flat in-memory vector index with exact
// squared-L2 search. Row IDs are sequential append positions.
package vector

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Match is one nearest-neighbor result. Row is the append position of the
// vector; Distance is the squared L2 distance to the query.
type Match struct {
	Row      int
	Distance float64
}

// FlatIndex is a brute-force exact-search index. Vectors are identified by
// their append position, so row N here corresponds to item N in the catalog
// built alongside it.
type FlatIndex struct {
	dimensions int
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewFlatIndex creates a flat index with the given dimension.
func NewFlatIndex(dimensions int) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &FlatIndex{
		dimensions: dimensions,
		vectors:    make([][]float32, 0),
	}, nil
}

// Append adds vectors to the index in order. The first vector appended gets
// row 0, the next row 1, and so on.
func (f *FlatIndex) Append(vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range vectors {
		if len(v) != f.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), f.dimensions)
		}
		vec := make([]float32, f.dimensions)
		copy(vec, v)
		f.vectors = append(f.vectors, vec)
	}
	return nil
}

// Search returns up to k nearest vectors by squared L2 distance, ascending.
// Equal distances are ordered by row ascending. k must be at least 1; fewer
// than k results are returned when the index holds fewer vectors.
func (f *FlatIndex) Search(query []float32, k int) ([]Match, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be at least 1")
	}
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.vectors) == 0 {
		return nil, nil
	}
	matches := make([]Match, len(f.vectors))
	for i, vec := range f.vectors {
		var dist float64
		for j := 0; j < f.dimensions; j++ {
			d := float64(query[j] - vec[j])
			dist += d * d
		}
		matches[i] = Match{Row: i, Distance: dist}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Row < matches[j].Row
	})
	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k], nil
}

// Size returns the number of vectors in the index.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Dimensions returns the vector dimension.
func (f *FlatIndex) Dimensions() int {
	return f.dimensions
}

// Bytes serializes the index. Format: dimension (4), n (4), then each vector
// as dimension*4 little-endian float32 bytes.
func (f *FlatIndex) Bytes() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(f.dimensions)); err != nil {
		return nil, fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(f.vectors))); err != nil {
		return nil, fmt.Errorf("write count: %w", err)
	}
	for _, vec := range f.vectors {
		if _, err := buf.Write(float32SliceToBytes(vec)); err != nil {
			return nil, fmt.Errorf("write vector: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// FromBytes deserializes an index previously produced by Bytes.
func FromBytes(data []byte) (*FlatIndex, error) {
	r := bytes.NewReader(data)
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read dimensions: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	idx, err := NewFlatIndex(int(dim))
	if err != nil {
		return nil, err
	}
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read vector: %w", err)
		}
		idx.vectors = append(idx.vectors, bytesToFloat32Slice(buf))
	}
	return idx, nil
}

// Save writes the index to path, creating the directory if needed.
func (f *FlatIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	data, err := f.Bytes()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write index file: %w", err)
	}
	return nil
}

// Load reads an index from path.
func Load(path string) (*FlatIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index file: %w", err)
	}
	return FromBytes(data)
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
