package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound indicates no user exists for the given ID.
var ErrNotFound = errors.New("user not found")

// Querier defines the database operations the store needs.
// Interfaces are defined by the consumer; *pgxpool.Pool satisfies this.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides read-only access to members.
// Membership writes happen through an external sync process, never here.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     Querier
	logger *slog.Logger
}

// NewStore creates a new Store instance.
func NewStore(db Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Load fetches a user by ID. Returns ErrNotFound when no row exists.
func (s *Store) Load(ctx context.Context, id string) (User, error) {
	const query = `
		SELECT id, email, tier, active, created_at
		FROM users
		WHERE id = $1`

	var u User
	var rawTier string
	err := s.db.QueryRow(ctx, query, id).Scan(&u.ID, &u.Email, &rawTier, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("loading user %s: %w", id, ErrNotFound)
		}
		return User{}, fmt.Errorf("loading user %s: %w", id, err)
	}

	u.Tier, err = ParseTier(rawTier)
	if err != nil {
		// A bad tier in the database is data corruption; fail closed.
		return User{}, fmt.Errorf("loading user %s: tier %q: %w", id, rawTier, err)
	}
	return u, nil
}
