package vectorstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
)

// bruteIndex is an exhaustive-scan cosine similarity index over float32
// vectors. Entries are keyed by the legacy store's sqlite row sequence,
// so equal scores rank in insertion order. Not safe for concurrent use;
// LegacyStore serializes access.
type bruteIndex struct {
	dim  int
	ids  []int64
	vecs [][]float32
	mags []float64
}

type indexHit struct {
	ID    int64
	Score float64
}

func newBruteIndex(dim int) *bruteIndex {
	return &bruteIndex{dim: dim}
}

func (i *bruteIndex) Len() int { return len(i.ids) }

// Add appends one entry. Zero-magnitude vectors are stored but never
// returned from Query since their cosine score is undefined.
func (i *bruteIndex) Add(id int64, vec []float32) error {
	if len(vec) != i.dim {
		return fmt.Errorf("%w: entry has dimension %d, index expects %d",
			ErrDimensionMismatch, len(vec), i.dim)
	}
	i.ids = append(i.ids, id)
	i.vecs = append(i.vecs, append([]float32(nil), vec...))
	i.mags = append(i.mags, magnitude(vec))
	return nil
}

// Query scores every entry against query and returns up to k hits ordered
// by cosine similarity descending, ids ascending on ties. k <= 0 returns
// all entries.
func (i *bruteIndex) Query(query []float32, k int) ([]indexHit, error) {
	if len(i.vecs) == 0 {
		return nil, nil
	}
	if len(query) != i.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index expects %d",
			ErrDimensionMismatch, len(query), i.dim)
	}
	qm := magnitude(query)
	if qm == 0 {
		return nil, nil
	}

	hits := make([]indexHit, 0, len(i.vecs))
	for j := range i.vecs {
		if i.mags[j] == 0 {
			continue
		}
		score := dot(query, i.vecs[j]) / (qm * i.mags[j])
		if math.IsNaN(score) {
			continue
		}
		hits = append(hits, indexHit{ID: i.ids[j], Score: score})
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].ID < hits[b].ID
	})
	if k > 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// MarshalBinary encodes dim(uint32), n(uint32), then per entry
// id(uint64) and vec(float32[dim]), all little-endian.
func (i *bruteIndex) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 8+len(i.ids)*(8+4*i.dim))
	out = binary.LittleEndian.AppendUint32(out, uint32(i.dim))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(i.ids)))
	for j, id := range i.ids {
		out = binary.LittleEndian.AppendUint64(out, uint64(id))
		for _, v := range i.vecs[j] {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
		}
	}
	return out, nil
}

// UnmarshalBinary restores the index, replacing current contents.
func (i *bruteIndex) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return errors.New("index data too short")
	}
	dim := int(binary.LittleEndian.Uint32(data[0:4]))
	n := int(binary.LittleEndian.Uint32(data[4:8]))
	off := 8

	entrySize := 8 + 4*dim
	if len(data)-off != n*entrySize {
		return fmt.Errorf("index data truncated: have %d bytes, want %d", len(data)-off, n*entrySize)
	}

	ids := make([]int64, n)
	vecs := make([][]float32, n)
	mags := make([]float64, n)
	for j := 0; j < n; j++ {
		ids[j] = int64(binary.LittleEndian.Uint64(data[off : off+8]))
		off += 8
		vec := make([]float32, dim)
		for d := 0; d < dim; d++ {
			vec[d] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
			off += 4
		}
		vecs[j] = vec
		mags[j] = magnitude(vec)
	}

	i.dim = dim
	i.ids = ids
	i.vecs = vecs
	i.mags = mags
	return nil
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func magnitude(v []float32) float64 { return math.Sqrt(dot(v, v)) }
