package rag

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/bizbot-il/bizbot/log"
)

// Index directory layout. The three files are written together; the
// stale sentinel and its lock file live beside them.
const (
	indexFile    = "index"
	metadataFile = "metadata.json"
	configFile   = "config.json"

	// legacyMetadataFile is the old pickled sidecar. Loading pickle is
	// refused; its presence forces a rebuild.
	legacyMetadataFile = "metadata.pkl"
)

// ChunkMeta is the metadata record aligned 1:1 with vector positions.
type ChunkMeta struct {
	EntryID    int64  `json:"entry_id"`
	ChunkIndex int    `json:"chunk_index"`
	Category   string `json:"category"`
	Title      string `json:"title"`
	Text       string `json:"text"`
}

// Hit is one search result.
type Hit struct {
	ChunkMeta
	Score float64
}

// VectorStore is a flat inner-product index over unit-normalized
// vectors, which makes the inner product the cosine similarity.
type VectorStore struct {
	vectors   [][]float32
	metadata  []ChunkMeta
	dimension int
}

// NewVectorStore creates an empty store.
func NewVectorStore() *VectorStore {
	return &VectorStore{dimension: DefaultEmbeddingDim}
}

// Build replaces the index contents. Vectors are normalized on the
// way in so Search can rely on unit length.
func (s *VectorStore) Build(vectors [][]float32, metadata []ChunkMeta) error {
	if len(vectors) != len(metadata) {
		return fmt.Errorf("vector/metadata length mismatch: %d vs %d", len(vectors), len(metadata))
	}
	if len(vectors) == 0 {
		s.vectors = nil
		s.metadata = nil
		return nil
	}

	dim := len(vectors[0])
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
		c := make([]float32, dim)
		copy(c, v)
		normalize(c)
		normalized[i] = c
	}

	s.vectors = normalized
	s.metadata = metadata
	s.dimension = dim
	return nil
}

// Len returns the number of indexed vectors.
func (s *VectorStore) Len() int {
	return len(s.vectors)
}

// Dimension returns the configured vector width.
func (s *VectorStore) Dimension() int {
	return s.dimension
}

// Search returns up to k hits with similarity at or above minScore,
// ordered by similarity descending. An empty index returns nil.
func (s *VectorStore) Search(query []float32, k int, minScore float64) []Hit {
	if len(s.vectors) == 0 || len(query) != s.dimension || k <= 0 {
		return nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalize(q)

	hits := make([]Hit, 0, len(s.vectors))
	for i, v := range s.vectors {
		score := dot(q, v)
		if score < minScore {
			continue
		}
		hits = append(hits, Hit{ChunkMeta: s.metadata[i], Score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Save persists the index as three sibling files, each written to a
// temp file and renamed so readers never observe a torn write.
func (s *VectorStore) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	if err := writeAtomic(filepath.Join(dir, indexFile), encodeVectors(s.vectors)); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}

	meta := s.metadata
	if meta == nil {
		meta = []ChunkMeta{}
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, metadataFile), metaBytes); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	cfgBytes, err := json.Marshal(map[string]int{"dimension": s.dimension})
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, configFile), cfgBytes); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Load restores the index from dir. It returns false, without error,
// when no complete saved index exists; a legacy pickle sidecar is
// refused the same way so the caller rebuilds.
func (s *VectorStore) Load(dir string) (bool, error) {
	if _, err := os.Stat(filepath.Join(dir, legacyMetadataFile)); err == nil {
		log.Log.Warnf("[VectorStore] legacy metadata.pkl found; pickle loading is disabled for security, rebuilding")
		return false, nil
	}

	cfgBytes, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg struct {
		Dimension int `json:"dimension"`
	}
	if err := json.Unmarshal(cfgBytes, &cfg); err != nil || cfg.Dimension <= 0 {
		return false, nil
	}

	metaBytes, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read metadata: %w", err)
	}
	var metadata []ChunkMeta
	if err := json.Unmarshal(metaBytes, &metadata); err != nil {
		return false, nil
	}

	raw, err := os.ReadFile(filepath.Join(dir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read index: %w", err)
	}
	vectors, ok := decodeVectors(raw, cfg.Dimension)
	if !ok || len(vectors) != len(metadata) {
		log.Log.Warnf("[VectorStore] index file inconsistent with metadata, rebuilding")
		return false, nil
	}

	s.vectors = vectors
	s.metadata = metadata
	s.dimension = cfg.Dimension
	return true, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// encodeVectors packs all vectors as consecutive little-endian
// float32 frames.
func encodeVectors(vectors [][]float32) []byte {
	var size int
	for _, v := range vectors {
		size += 4 * len(v)
	}
	buf := make([]byte, 0, size)
	scratch := make([]byte, 4)
	for _, v := range vectors {
		for _, f := range v {
			binary.LittleEndian.PutUint32(scratch, math.Float32bits(f))
			buf = append(buf, scratch...)
		}
	}
	return buf
}

func decodeVectors(raw []byte, dim int) ([][]float32, bool) {
	frame := 4 * dim
	if frame == 0 || len(raw)%frame != 0 {
		return nil, len(raw) == 0
	}
	vectors := make([][]float32, 0, len(raw)/frame)
	for off := 0; off < len(raw); off += frame {
		v := make([]float32, dim)
		for i := range v {
			v[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off+i*4:]))
		}
		vectors = append(vectors, v)
	}
	return vectors, true
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
