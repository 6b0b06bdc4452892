package rag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bizbot-il/bizbot/config"
	"github.com/bizbot-il/bizbot/log"
	"github.com/bizbot-il/bizbot/model"
	"github.com/bizbot-il/bizbot/store"
)

const (
	staleSentinel = ".stale"
	stateLockFile = ".index_state.lock"
)

// Manager owns the vector index lifecycle: build, persist, invalidate
// and query. KB writes mark the index stale via a zero-byte sentinel;
// the next retrieval rebuilds before serving. Sentinel reads and
// writes are serialized across processes with a file lock, rebuilds
// within the process with a mutex.
type Manager struct {
	db       *store.Store
	embedder *Embedder
	vs       *VectorStore
	dir      string

	topK         int
	minRelevance float64
	chunkTokens  int

	rebuildMu sync.Mutex

	// seed is called once when a retrieval finds the KB itself empty,
	// before giving up. Optional.
	seed func(context.Context) error
}

// NewManager creates the index manager and loads any persisted index.
func NewManager(db *store.Store, embedder *Embedder, dir string, cfg config.RAGConfig) (*Manager, error) {
	m := &Manager{
		db:           db,
		embedder:     embedder,
		vs:           NewVectorStore(),
		dir:          dir,
		topK:         cfg.TopK,
		minRelevance: cfg.MinRelevance,
		chunkTokens:  cfg.ChunkMaxTokens,
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	loaded, err := m.vs.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load vector index: %w", err)
	}
	if loaded {
		log.Log.Infof("[RAG] loaded vector index with %d vectors", m.vs.Len())
	}

	return m, nil
}

// SetSeeder registers the empty-KB seed hook used by Retrieve.
func (m *Manager) SetSeeder(seed func(context.Context) error) {
	m.seed = seed
}

// Len reports the number of indexed vectors.
func (m *Manager) Len() int {
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()
	return m.vs.Len()
}

// stateLock takes the cross-process file lock for sentinel access and
// returns the release func.
func (m *Manager) stateLock() (func(), error) {
	f, err := os.OpenFile(filepath.Join(m.dir, stateLockFile), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open index state lock: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to lock index state: %w", err)
	}
	return func() {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}

// MarkStale flags the index as invalid. Called on every KB mutation.
func (m *Manager) MarkStale() {
	unlock, err := m.stateLock()
	if err != nil {
		log.Log.Errorf("[RAG] mark stale: %v", err)
		return
	}
	defer unlock()

	f, err := os.OpenFile(m.stalePath(), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Log.Errorf("[RAG] failed to create stale sentinel: %v", err)
		return
	}
	f.Close()
	now := time.Now()
	_ = os.Chtimes(m.stalePath(), now, now)
}

// IsStale reports whether the sentinel is present.
func (m *Manager) IsStale() bool {
	unlock, err := m.stateLock()
	if err != nil {
		return false
	}
	defer unlock()
	_, statErr := os.Stat(m.stalePath())
	return statErr == nil
}

func (m *Manager) stalePath() string {
	return filepath.Join(m.dir, staleSentinel)
}

// staleToken returns the sentinel mtime in nanoseconds, 0 when the
// sentinel does not exist. Caller must hold the state lock.
func (m *Manager) staleToken() int64 {
	info, err := os.Stat(m.stalePath())
	if err != nil {
		return 0
	}
	return info.ModTime().UnixNano()
}

// clearStaleIf removes the sentinel only when its mtime still equals
// startToken, i.e. no KB write happened during the rebuild.
func (m *Manager) clearStaleIf(startToken int64) {
	unlock, err := m.stateLock()
	if err != nil {
		return
	}
	defer unlock()

	if m.staleToken() == startToken {
		if err := os.Remove(m.stalePath()); err != nil && !os.IsNotExist(err) {
			log.Log.Errorf("[RAG] failed to clear stale sentinel: %v", err)
		}
	}
}

// Rebuild re-indexes all active KB entries incrementally: entries
// whose chunk texts are unchanged reuse their cached embeddings, only
// changed entries are re-embedded, in one batched call.
func (m *Manager) Rebuild(ctx context.Context) error {
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()
	return m.rebuildLocked(ctx)
}

func (m *Manager) rebuildLocked(ctx context.Context) error {
	log.Log.Infof("[RAG] rebuilding vector index")

	unlock, err := m.stateLock()
	if err != nil {
		return err
	}
	startToken := m.staleToken()
	unlock()

	entries, err := m.db.ListKBEntries(true)
	if err != nil {
		return fmt.Errorf("failed to load KB entries: %w", err)
	}

	// Candidate chunks, entry order preserved.
	var allChunks []model.Chunk
	chunksByEntry := make(map[int64][]model.Chunk, len(entries))
	for _, entry := range entries {
		chunks := ChunksForEntry(entry, m.chunkTokens)
		chunksByEntry[entry.ID] = chunks
		allChunks = append(allChunks, chunks...)
	}

	if len(allChunks) == 0 {
		if err := m.vs.Build(nil, nil); err != nil {
			return err
		}
		if err := m.vs.Save(m.dir); err != nil {
			return fmt.Errorf("failed to persist empty index: %w", err)
		}
		m.clearStaleIf(startToken)
		log.Log.Warnf("[RAG] no KB content, built empty index")
		return nil
	}

	stored, err := m.db.AllChunks()
	if err != nil {
		return fmt.Errorf("failed to load stored chunks: %w", err)
	}
	storedByEntry := make(map[int64][]model.Chunk)
	for _, c := range stored {
		storedByEntry[c.EntryID] = append(storedByEntry[c.EntryID], c)
	}

	changed := make(map[int64]bool, len(entries))
	for eid, newChunks := range chunksByEntry {
		changed[eid] = !sameChunkTexts(newChunks, storedByEntry[eid])
	}

	// Assemble the embedding matrix: reuse cached vectors where the
	// entry is unchanged, collect the rest for one batched call. A
	// missing or wrong-width cached vector reclassifies its entry.
	vectors := make([][]float32, len(allChunks))
	var embedPositions []int
	for i, chunk := range allChunks {
		if !changed[chunk.EntryID] {
			if cached, ok := cachedEmbedding(storedByEntry[chunk.EntryID], chunk.Index); ok {
				vectors[i] = cached
				continue
			}
			changed[chunk.EntryID] = true
		}
		embedPositions = append(embedPositions, i)
	}
	// Second pass: entries reclassified after some chunks were already
	// reused must be embedded whole.
	for i, chunk := range allChunks {
		if changed[chunk.EntryID] && vectors[i] != nil {
			vectors[i] = nil
			embedPositions = append(embedPositions, i)
		}
	}

	if len(embedPositions) > 0 {
		texts := make([]string, len(embedPositions))
		for j, pos := range embedPositions {
			texts[j] = allChunks[pos].Text
		}
		fresh, err := m.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed %d chunks: %w", len(texts), err)
		}
		for j, pos := range embedPositions {
			vectors[pos] = fresh[j]
		}
	}

	// A cached dimension that no longer matches the embedder forces a
	// full re-embed; mixed widths cannot share one index.
	if mixedDimensions(vectors) {
		log.Log.Warnf("[RAG] embedding dimension changed, re-embedding all %d chunks", len(allChunks))
		texts := make([]string, len(allChunks))
		for i, chunk := range allChunks {
			texts[i] = chunk.Text
		}
		vectors, err = m.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to re-embed chunks: %w", err)
		}
		for eid := range changed {
			changed[eid] = true
		}
	}

	metadata := make([]ChunkMeta, len(allChunks))
	titleByEntry := make(map[int64]model.KBEntry, len(entries))
	for _, e := range entries {
		titleByEntry[e.ID] = e
	}
	for i, chunk := range allChunks {
		entry := titleByEntry[chunk.EntryID]
		metadata[i] = ChunkMeta{
			EntryID:    chunk.EntryID,
			ChunkIndex: chunk.Index,
			Category:   entry.Category,
			Title:      entry.Title,
			Text:       chunk.Text,
		}
	}

	if err := m.vs.Build(vectors, metadata); err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	if err := m.vs.Save(m.dir); err != nil {
		return fmt.Errorf("failed to persist index: %w", err)
	}

	// Write back chunks (with fresh embedding bytes) for changed
	// entries only.
	embedded := 0
	for i := range allChunks {
		allChunks[i].Embedding = vectors[i]
	}
	byEntry := make(map[int64][]model.Chunk)
	for _, chunk := range allChunks {
		byEntry[chunk.EntryID] = append(byEntry[chunk.EntryID], chunk)
	}
	for eid, chunks := range byEntry {
		if !changed[eid] {
			continue
		}
		if err := m.db.ReplaceChunks(eid, chunks); err != nil {
			return fmt.Errorf("failed to store chunks for entry %d: %w", eid, err)
		}
		embedded += len(chunks)
	}

	m.clearStaleIf(startToken)
	log.Log.Infof("[RAG] rebuild complete: %d chunks indexed, %d re-embedded, %d reused",
		len(allChunks), embedded, len(allChunks)-embedded)
	return nil
}

// Retrieve returns the most relevant chunks for a query. A stale
// index is rebuilt first (double-checked); an empty index gets one
// seed-then-rebuild attempt before returning empty.
func (m *Manager) Retrieve(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 {
		k = m.topK
	}

	if m.IsStale() {
		m.rebuildMu.Lock()
		if m.IsStale() {
			if err := m.rebuildLocked(ctx); err != nil {
				log.Log.Errorf("[RAG] stale rebuild failed, serving existing index: %v", err)
			}
		}
		m.rebuildMu.Unlock()
	}

	m.rebuildMu.Lock()
	empty := m.vs.Len() == 0
	m.rebuildMu.Unlock()
	if empty {
		if m.seed != nil {
			if count, err := m.db.CountKBEntries(false); err == nil && count == 0 {
				if err := m.seed(ctx); err != nil {
					log.Log.Errorf("[RAG] seed failed: %v", err)
				}
			}
		}
		if err := m.Rebuild(ctx); err != nil {
			return nil, err
		}
	}

	queryVec, err := m.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	m.rebuildMu.Lock()
	hits := m.vs.Search(queryVec, k, m.minRelevance)
	m.rebuildMu.Unlock()

	log.Log.Debugf("[RAG] retrieved %d chunks for query %.50q", len(hits), query)
	return hits, nil
}

// FormatContext renders retrieved chunks as numbered, source-labeled
// sections for the LLM context message.
func FormatContext(hits []Hit) string {
	if len(hits) == 0 {
		return "No relevant information found in the knowledge base."
	}

	parts := make([]string, len(hits))
	for i, hit := range hits {
		parts[i] = fmt.Sprintf("--- Context %d (Source: %s — %s) ---\n%s",
			i+1, hit.Category, hit.Title, hit.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Sources returns the deduplicated "category — title" labels of hits,
// in first-seen order.
func Sources(hits []Hit) []string {
	seen := make(map[string]bool, len(hits))
	var labels []string
	for _, hit := range hits {
		label := fmt.Sprintf("%s — %s", hit.Category, hit.Title)
		if !seen[label] {
			seen[label] = true
			labels = append(labels, label)
		}
	}
	return labels
}

func sameChunkTexts(fresh, stored []model.Chunk) bool {
	if len(fresh) != len(stored) || len(stored) == 0 {
		return false
	}
	for i := range fresh {
		if fresh[i].Text != stored[i].Text {
			return false
		}
	}
	return true
}

func cachedEmbedding(stored []model.Chunk, index int) ([]float32, bool) {
	for _, c := range stored {
		if c.Index == index && len(c.Embedding) > 0 {
			return c.Embedding, true
		}
	}
	return nil, false
}

func mixedDimensions(vectors [][]float32) bool {
	if len(vectors) == 0 {
		return false
	}
	dim := len(vectors[0])
	for _, v := range vectors[1:] {
		if len(v) != dim {
			return true
		}
	}
	return false
}
