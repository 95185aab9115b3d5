// Package retrieval indexes clinical reference documents into a vector store
// and answers semantic queries with source-attributed passages.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/sweetpotato0/blackwell/errors"
	"github.com/sweetpotato0/blackwell/vector"
)

// Document is a knowledge source to be chunked and indexed. Source names the
// originating file or URL; Page is optional and carried through to citations.
type Document struct {
	ID      string `json:"id"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
	Source  string `json:"source"`
	Page    string `json:"page,omitempty"`
}

// Passage is a retrieved excerpt with its provenance.
type Passage struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Page    string  `json:"page,omitempty"`
	Score   float32 `json:"score"`
}

// Citation renders the provenance label used in reference lists.
func (p Passage) Citation() string {
	if p.Page != "" {
		return fmt.Sprintf("%s (page %s)", p.Source, p.Page)
	}
	return p.Source
}

// Config controls chunking and search behaviour.
type Config struct {
	ChunkSize int
	Overlap   int
	Separator string
}

// Option customizes retriever config.
type Option func(*Config)

// WithChunkSize overrides the default chunk size (characters).
func WithChunkSize(size int) Option {
	return func(cfg *Config) {
		if size > 0 {
			cfg.ChunkSize = size
		}
	}
}

// WithOverlap configures overlap (characters) between consecutive chunks.
func WithOverlap(overlap int) Option {
	return func(cfg *Config) {
		if overlap >= 0 {
			cfg.Overlap = overlap
		}
	}
}

// WithSeparator sets the logical separator used before windowing.
func WithSeparator(sep string) Option {
	return func(cfg *Config) {
		if sep != "" {
			cfg.Separator = sep
		}
	}
}

// Retriever coordinates chunking, embedding, and similarity search.
type Retriever struct {
	store    vector.Store
	embedder vector.Embedder
	cfg      Config

	docCounter   atomic.Int64
	chunkCounter atomic.Int64
}

// New creates a retriever over the given store and embedder.
func New(store vector.Store, emb vector.Embedder, opts ...Option) *Retriever {
	cfg := Config{
		ChunkSize: 800,
		Overlap:   120,
		Separator: "\n\n",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Retriever{
		store:    store,
		embedder: emb,
		cfg:      cfg,
	}
}

// Index ingests documents: chunk, embed, and store each piece with its
// provenance so search results can be cited without a side lookup.
func (r *Retriever) Index(ctx context.Context, docs ...Document) error {
	if r.store == nil || r.embedder == nil {
		return fmt.Errorf("%w: retriever not fully configured", errors.ErrInternal)
	}

	for _, doc := range docs {
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}
		if doc.ID == "" {
			doc.ID = fmt.Sprintf("doc_%d", r.docCounter.Add(1))
		}

		pieces := r.split(doc.Content)
		vectors, err := r.embedder.EmbedBatch(ctx, pieces)
		if err != nil {
			return fmt.Errorf("embed document %s: %w", doc.ID, err)
		}
		if len(vectors) != len(pieces) {
			return fmt.Errorf("%w: embedder returned %d vectors for %d chunks", errors.ErrInternal, len(vectors), len(pieces))
		}

		for i, piece := range pieces {
			embedding := &vector.Embedding{
				ID:     fmt.Sprintf("%s_chunk_%d", doc.ID, r.chunkCounter.Add(1)),
				Vector: vectors[i],
				Text:   piece,
				Metadata: map[string]string{
					"source": doc.Source,
					"title":  doc.Title,
					"page":   doc.Page,
				},
			}
			if err := r.store.AddEmbedding(ctx, embedding); err != nil {
				return fmt.Errorf("store chunk %s: %w", embedding.ID, err)
			}
		}
	}
	return nil
}

// split breaks content on the separator, then windows oversized parts.
func (r *Retriever) split(content string) []string {
	parts := strings.Split(content, r.cfg.Separator)
	pieces := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		for len(part) > r.cfg.ChunkSize {
			pieces = append(pieces, strings.TrimSpace(part[:r.cfg.ChunkSize]))
			part = part[r.cfg.ChunkSize-r.cfg.Overlap:]
		}
		pieces = append(pieces, strings.TrimSpace(part))
	}
	if len(pieces) == 0 {
		pieces = append(pieces, strings.TrimSpace(content))
	}
	return pieces
}

// Search embeds the query and returns the k most similar passages.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", errors.ErrInvalidInput)
	}
	if k <= 0 {
		k = 4
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.store.Search(ctx, queryVec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	passages := make([]Passage, 0, len(hits))
	for _, hit := range hits {
		passages = append(passages, Passage{
			Content: hit.Text,
			Source:  hit.Metadata["source"],
			Page:    hit.Metadata["page"],
			Score:   vector.CosineSimilarity(queryVec, hit.Vector),
		})
	}
	return passages, nil
}

// Clear drops all indexed content.
func (r *Retriever) Clear(ctx context.Context) error {
	return r.store.Clear(ctx)
}

// Count returns the number of indexed chunks.
func (r *Retriever) Count(ctx context.Context) (int, error) {
	return r.store.Count(ctx)
}

// FormatPassages renders search results as the observation text handed back
// to the research agent. Each passage carries its citation label.
func FormatPassages(passages []Passage) string {
	if len(passages) == 0 {
		return "No relevant documents found in the knowledge base."
	}
	var sb strings.Builder
	for i, p := range passages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[Document %d | source: %s]\n%s", i+1, p.Citation(), p.Content)
	}
	return sb.String()
}
