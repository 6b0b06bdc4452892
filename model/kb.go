package model

import "time"

// KBEntry is one knowledge-base document. Title and category must be
// non-empty; deleting an entry cascades to its chunks.
type KBEntry struct {
	ID       int64
	Category string
	Title    string
	Content  string

	// Active controls whether the entry participates in retrieval
	Active bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk is one retrievable slice of a KB entry. (EntryID, Index) is
// unique. Text already carries the "[category — title]" origin prefix.
type Chunk struct {
	ID      int64
	EntryID int64

	// Index is the zero-based position of this chunk within its entry
	Index int

	Text string

	// Embedding is the cached unit-length vector for Text, nil before the
	// first index rebuild or after the entry's text changed.
	Embedding []float32

	UpdatedAt time.Time
}
