package rag

import (
	"context"
	"math"
	"testing"
)

// Fallback-only embedder (nil client) — the mode every offline test
// and keyless deployment runs in.
func fallbackEmbedder() *Embedder {
	return NewEmbedder(nil, "text-embedding-3-small")
}

func TestEmbedDeterministic(t *testing.T) {
	e := fallbackEmbedder()
	a, err := e.Embed(context.Background(), []string{"hello world"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, err := e.Embed(context.Background(), []string{"hello world"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatal("fallback embedding is not deterministic")
		}
	}
}

func TestEmbedUnitNorm(t *testing.T) {
	e := fallbackEmbedder()
	vectors, err := e.Embed(context.Background(), []string{"one", "two", "three"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for i, v := range vectors {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		if math.Abs(math.Sqrt(sum)-1) > 1e-5 {
			t.Errorf("vector %d norm = %v, want 1", i, math.Sqrt(sum))
		}
	}
}

func TestEmbedDimension(t *testing.T) {
	e := fallbackEmbedder()
	vectors, err := e.Embed(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vectors[0]) != DefaultEmbeddingDim {
		t.Errorf("dimension = %d, want %d", len(vectors[0]), DefaultEmbeddingDim)
	}
}

func TestEmbedDistinctTextsDistinctVectors(t *testing.T) {
	e := fallbackEmbedder()
	vectors, err := e.Embed(context.Background(), []string{"aaa", "bbb"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	same := true
	for i := range vectors[0] {
		if vectors[0][i] != vectors[1][i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical fallback vectors")
	}
}

func TestCleanInput(t *testing.T) {
	tests := []struct{ in, want string }{
		{"line one\nline two", "line one line two"},
		{"  padded  ", "padded"},
		{"", "empty"},
		{"\n\n", "empty"},
	}
	for _, tt := range tests {
		if got := cleanInput(tt.in); got != tt.want {
			t.Errorf("cleanInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	vectors, err := fallbackEmbedder().Embed(context.Background(), nil)
	if err != nil || vectors != nil {
		t.Errorf("expected nil, nil for empty input, got %v, %v", vectors, err)
	}
}
