// Package knowledge manages the vector knowledge base backing retrieval.
//
// Content is chunked, embedded, and stored in PostgreSQL with pgvector.
// Namespaces partition the corpus (faqs, mentorship, policies) so searches
// can be scoped to a persona's area.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// searchTimeout bounds vector searches so a slow query cannot hold an
// admission decision open indefinitely.
const searchTimeout = 10 * time.Second

// DefaultTopK is the number of chunks fetched when the caller does not say.
const DefaultTopK int32 = 5

// Chunk is one embeddable unit of source content.
type Chunk struct {
	// ParentID identifies the source document this chunk came from.
	ParentID string

	// Index is the chunk's position within the parent.
	Index int32

	Namespace string
	Content   string
	Metadata  map[string]string
}

// Result is a retrieval hit with its similarity score.
type Result struct {
	ID        string
	Namespace string
	Content   string

	// Score is cosine similarity, 1.0 being identical direction.
	Score float64

	Metadata map[string]string
}

// Querier defines the database operations the store needs.
// *pgxpool.Pool satisfies this.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store manages knowledge chunks with vector search.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db       Querier
	embedder ai.Embedder
	logger   *slog.Logger
}

// NewStore creates a Store.
func NewStore(db Querier, embedder ai.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, embedder: embedder, logger: logger}
}

// Upsert embeds and stores a chunk, replacing any previous version of the
// same (parent, index) position.
func (s *Store) Upsert(ctx context.Context, c Chunk) error {
	embedding, err := s.embed(ctx, c.Content)
	if err != nil {
		return fmt.Errorf("embedding chunk %s[%d]: %w", c.ParentID, c.Index, err)
	}

	metadataJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	const query = `
		INSERT INTO knowledge_documents (namespace, parent_id, chunk_index, content, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (parent_id, chunk_index) DO UPDATE
		SET namespace  = EXCLUDED.namespace,
		    content    = EXCLUDED.content,
		    embedding  = EXCLUDED.embedding,
		    metadata   = EXCLUDED.metadata,
		    updated_at = now()`

	_, err = s.db.Exec(ctx, query,
		c.Namespace, c.ParentID, c.Index, c.Content, pgvector.NewVector(embedding), metadataJSON)
	if err != nil {
		return fmt.Errorf("upserting chunk %s[%d]: %w", c.ParentID, c.Index, err)
	}

	s.logger.Debug("chunk upserted",
		"parent_id", c.ParentID, "index", c.Index,
		"namespace", c.Namespace, "content_length", len(c.Content))
	return nil
}

// Search returns the topK most similar chunks to query within a namespace.
// An empty namespace searches the whole corpus. Results come back ordered by
// descending similarity; an empty corpus yields an empty slice, not an error.
func (s *Store) Search(ctx context.Context, query, namespace string, topK int32) ([]Result, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	embedding, err := s.embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding generation timeout: %w", err)
		}
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	// <=> is pgvector's cosine distance; similarity = 1 - distance.
	const searchSQL = `
		SELECT id, namespace, content, 1 - (embedding <=> $1) AS score, metadata
		FROM knowledge_documents
		WHERE ($2 = '' OR namespace = $2)
		ORDER BY embedding <=> $1
		LIMIT $3`

	rows, err := s.db.Query(queryCtx, searchSQL, pgvector.NewVector(embedding), namespace, topK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("searching knowledge_documents: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var metadataJSON []byte
		if err := rows.Scan(&r.ID, &r.Namespace, &r.Content, &r.Score, &metadataJSON); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &r.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling metadata for %s: %w", r.ID, err)
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search rows: %w", err)
	}
	return results, nil
}

func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return resp.Embeddings[0].Embedding, nil
}
