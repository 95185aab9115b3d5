// Package pg provides a PostgreSQL vector store backed by the pgvector extension
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"

	"github.com/sweetpotato0/blackwell/errors"
	"github.com/sweetpotato0/blackwell/vector"
)

// Config holds the connection settings for the store
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	SSLMode   string
	Table     string
	Dimension int
}

// DefaultConfig returns a config suitable for local development
func DefaultConfig() *Config {
	return &Config{
		Host:      "localhost",
		Port:      5432,
		User:      "postgres",
		Password:  "postgres",
		DBName:    "blackwell",
		SSLMode:   "disable",
		Table:     "embeddings",
		Dimension: 1536,
	}
}

// Store is a pgvector-backed implementation of vector.Store
type Store struct {
	db    *sql.DB
	table string
}

// New connects to PostgreSQL, ensures the pgvector extension and the
// embeddings table exist, and returns the store.
func New(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{db: db, table: cfg.Table}
	if err := s.init(cfg.Dimension); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(dimension int) error {
	if _, err := s.db.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}',
		embedding vector(%d) NOT NULL
	)`, s.table, dimension)
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// AddEmbedding inserts or replaces an embedding
func (s *Store) AddEmbedding(ctx context.Context, embedding *vector.Embedding) error {
	if embedding == nil || embedding.ID == "" {
		return fmt.Errorf("%w: embedding must have an ID", errors.ErrInvalidInput)
	}

	meta, err := json.Marshal(embedding.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, content, metadata, embedding)
		VALUES ($1, $2, $3, $4::vector)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`, s.table)

	_, err = s.db.ExecContext(ctx, query,
		embedding.ID, embedding.Text, meta, vectorToString(embedding.Vector))
	if err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}
	return nil
}

// Search returns the topK nearest embeddings by vector distance
func (s *Store) Search(ctx context.Context, queryVector []float32, topK int) ([]*vector.Embedding, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", errors.ErrInvalidInput)
	}

	query := fmt.Sprintf(`SELECT id, content, metadata, embedding::text
		FROM %s
		ORDER BY embedding <-> $1::vector
		LIMIT $2`, s.table)

	rows, err := s.db.QueryContext(ctx, query, vectorToString(queryVector), topK)
	if err != nil {
		return nil, fmt.Errorf("search embeddings: %w", err)
	}
	defer rows.Close()

	var results []*vector.Embedding
	for rows.Next() {
		var (
			emb     vector.Embedding
			meta    []byte
			vecText string
		)
		if err := rows.Scan(&emb.ID, &emb.Text, &meta, &vecText); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &emb.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		vec, err := stringToVector(vecText)
		if err != nil {
			return nil, err
		}
		emb.Vector = vec
		results = append(results, &emb)
	}
	return results, rows.Err()
}

// DeleteEmbedding removes an embedding by ID
func (s *Store) DeleteEmbedding(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.table)
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete embedding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: embedding %s", errors.ErrNotFound, id)
	}
	return nil
}

// Clear removes all embeddings from the table
func (s *Store) Clear(ctx context.Context) error {
	query := fmt.Sprintf("DELETE FROM %s", s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("clear embeddings: %w", err)
	}
	return nil
}

// Count returns the number of stored embeddings
func (s *Store) Count(ctx context.Context) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return n, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func vectorToString(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func stringToVector(s string) ([]float32, error) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector component: %w", err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}
