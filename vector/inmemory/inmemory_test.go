package inmemory

import (
	"context"
	"testing"

	stderrors "errors"

	blackwellerrors "github.com/sweetpotato0/blackwell/errors"
	"github.com/sweetpotato0/blackwell/vector"
)

func TestStoreAddAndSearch(t *testing.T) {
	ctx := context.Background()
	store := New()

	embeddings := []*vector.Embedding{
		{ID: "migraine", Vector: []float32{1, 0, 0}, Text: "migraine with aura", Metadata: map[string]string{"source": "neurology.pdf", "page": "12"}},
		{ID: "tension", Vector: []float32{0.9, 0.1, 0}, Text: "tension-type headache"},
		{ID: "unrelated", Vector: []float32{0, 0, 1}, Text: "ankle sprain management"},
	}
	for _, emb := range embeddings {
		if err := store.AddEmbedding(ctx, emb); err != nil {
			t.Fatalf("AddEmbedding(%s) error: %v", emb.ID, err)
		}
	}

	results, err := store.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	if results[0].ID != "migraine" {
		t.Errorf("top result = %s, want migraine", results[0].ID)
	}
	if results[1].ID != "tension" {
		t.Errorf("second result = %s, want tension", results[1].ID)
	}
	if results[0].Metadata["source"] != "neurology.pdf" {
		t.Errorf("metadata not preserved: %v", results[0].Metadata)
	}
}

func TestStoreSearchTopKLargerThanStore(t *testing.T) {
	ctx := context.Background()
	store := New()
	store.AddEmbedding(ctx, &vector.Embedding{ID: "only", Vector: []float32{1}})

	results, err := store.Search(ctx, []float32{1}, 10)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Search() returned %d results, want 1", len(results))
	}
}

func TestStoreValidation(t *testing.T) {
	ctx := context.Background()
	store := New()

	if err := store.AddEmbedding(ctx, &vector.Embedding{}); !stderrors.Is(err, blackwellerrors.ErrInvalidInput) {
		t.Errorf("AddEmbedding without ID: got %v, want ErrInvalidInput", err)
	}
	if _, err := store.Search(ctx, []float32{1}, 0); !stderrors.Is(err, blackwellerrors.ErrInvalidInput) {
		t.Errorf("Search with topK=0: got %v, want ErrInvalidInput", err)
	}
	if err := store.DeleteEmbedding(ctx, "missing"); !stderrors.Is(err, blackwellerrors.ErrNotFound) {
		t.Errorf("DeleteEmbedding missing: got %v, want ErrNotFound", err)
	}
}

func TestStoreDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	store := New()
	store.AddEmbedding(ctx, &vector.Embedding{ID: "a", Vector: []float32{1}})
	store.AddEmbedding(ctx, &vector.Embedding{ID: "b", Vector: []float32{2}})

	if err := store.DeleteEmbedding(ctx, "a"); err != nil {
		t.Fatalf("DeleteEmbedding() error: %v", err)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("Count() after delete = %d, want 1", n)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if n, _ := store.Count(ctx); n != 0 {
		t.Errorf("Count() after clear = %d, want 0", n)
	}
}
