// Package chat persists conversation turns and rebuilds bounded history
// for the model.
package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mentora-ai/mentora/internal/completion"
)

// Querier defines the database operations the store needs.
// *pgxpool.Pool satisfies this.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// HistoryStore persists chat turns per member.
//
// HistoryStore is safe for concurrent use by multiple goroutines.
type HistoryStore struct {
	db     Querier
	logger *slog.Logger
}

// NewHistoryStore creates a HistoryStore.
func NewHistoryStore(db Querier, logger *slog.Logger) *HistoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryStore{db: db, logger: logger}
}

// Append stores one turn.
func (s *HistoryStore) Append(ctx context.Context, userID, role, content string, tokens int64) error {
	const query = `
		INSERT INTO chat_messages (user_id, role, content, tokens_used)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.db.Exec(ctx, query, userID, role, content, tokens); err != nil {
		return fmt.Errorf("inserting chat_messages: %w", err)
	}
	return nil
}

// Recent returns the member's last n turns, oldest first, ready to feed the
// completer.
func (s *HistoryStore) Recent(ctx context.Context, userID string, n int) ([]completion.Turn, error) {
	const query = `
		SELECT role, content
		FROM chat_messages
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, userID, n)
	if err != nil {
		return nil, fmt.Errorf("querying chat_messages: %w", err)
	}
	defer rows.Close()

	var turns []completion.Turn
	for rows.Next() {
		var t completion.Turn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			return nil, fmt.Errorf("scanning chat_messages row: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chat_messages rows: %w", err)
	}

	// Rows came back newest first; the model wants oldest first.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}
