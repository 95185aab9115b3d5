// Package inmemory provides an in-memory vector store implementation
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sweetpotato0/blackwell/errors"
	"github.com/sweetpotato0/blackwell/vector"
)

// Store is an in-memory implementation of vector.Store
type Store struct {
	mu         sync.RWMutex
	embeddings map[string]*vector.Embedding
}

// New creates a new in-memory vector store
func New() *Store {
	return &Store{
		embeddings: make(map[string]*vector.Embedding),
	}
}

// AddEmbedding adds a new embedding to the store
func (s *Store) AddEmbedding(ctx context.Context, embedding *vector.Embedding) error {
	if embedding == nil || embedding.ID == "" {
		return fmt.Errorf("%w: embedding must have an ID", errors.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.embeddings[embedding.ID] = embedding
	return nil
}

// Search finds the topK embeddings most similar to the query vector
func (s *Store) Search(ctx context.Context, queryVector []float32, topK int) ([]*vector.Embedding, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", errors.ErrInvalidInput)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		embedding *vector.Embedding
		score     float32
	}

	results := make([]scored, 0, len(s.embeddings))
	for _, emb := range s.embeddings {
		results = append(results, scored{
			embedding: emb,
			score:     vector.CosineSimilarity(queryVector, emb.Vector),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	if topK > len(results) {
		topK = len(results)
	}

	out := make([]*vector.Embedding, topK)
	for i := 0; i < topK; i++ {
		out[i] = results[i].embedding
	}
	return out, nil
}

// DeleteEmbedding removes an embedding by ID
func (s *Store) DeleteEmbedding(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.embeddings[id]; !ok {
		return fmt.Errorf("%w: embedding %s", errors.ErrNotFound, id)
	}
	delete(s.embeddings, id)
	return nil
}

// Clear removes all embeddings
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.embeddings = make(map[string]*vector.Embedding)
	return nil
}

// Count returns the number of embeddings in the store
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.embeddings), nil
}
