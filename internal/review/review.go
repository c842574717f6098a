// Package review persists curation records: missing-knowledge flags and
// per-turn question logs. Both tables are append-only from the service's
// side; the curation workflow consumes them out of band, so nothing here
// reads back.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mentora-ai/mentora/internal/gate"
	"github.com/mentora-ai/mentora/internal/user"
)

// QuestionLog is one admitted turn's record for analytics.
type QuestionLog struct {
	UserID      string
	Question    string
	Tier        user.Tier
	Answered    bool
	TokensUsed  int64
	SourceCount int
	AskedAt     time.Time
}

// Execer defines the database operations the sink needs.
// *pgxpool.Pool satisfies this.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Sink writes curation records to PostgreSQL.
//
// Sink is safe for concurrent use by multiple goroutines.
type Sink struct {
	db     Execer
	logger *slog.Logger
}

// NewSink creates a Sink.
func NewSink(db Execer, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{db: db, logger: logger}
}

// SaveFlag appends a missing-knowledge flag.
func (s *Sink) SaveFlag(ctx context.Context, f gate.Flag) error {
	const query = `
		INSERT INTO missing_knowledge_flags
			(user_id, query_text, best_score, namespace, suggested_namespace, escalation_recommended, flagged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	flaggedAt := f.Timestamp
	if flaggedAt.IsZero() {
		flaggedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, query,
		f.UserID, f.QueryText, f.BestScore, f.Namespace,
		nullable(f.SuggestedNamespace), f.EscalationRecommended, flaggedAt)
	if err != nil {
		return fmt.Errorf("inserting missing_knowledge_flags: %w", err)
	}

	s.logger.Info("missing knowledge flagged",
		"user_id", f.UserID,
		"namespace", f.Namespace,
		"suggested_namespace", f.SuggestedNamespace,
		"escalation", f.EscalationRecommended)
	return nil
}

// LogQuestion appends a question log entry. The question is stored both raw
// and normalized so similar phrasings can be grouped.
func (s *Sink) LogQuestion(ctx context.Context, q QuestionLog) error {
	const query = `
		INSERT INTO question_logs
			(user_id, question, normalized, tier, answered, tokens_used, source_count, asked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	askedAt := q.AskedAt
	if askedAt.IsZero() {
		askedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, query,
		q.UserID, q.Question, NormalizeQuestion(q.Question), string(q.Tier),
		q.Answered, q.TokensUsed, q.SourceCount, askedAt)
	if err != nil {
		return fmt.Errorf("inserting question_logs: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// Common interrogative openers stripped during normalization.
var questionPrefixes = []string{
	"how do i",
	"how can i",
	"what is",
	"what are",
	"when should",
	"where can",
}

// NormalizeQuestion canonicalizes a question so near-identical phrasings
// group together: lowercase, collapsed whitespace, common interrogative
// prefixes and trailing punctuation removed.
func NormalizeQuestion(question string) string {
	normalized := strings.ToLower(strings.TrimSpace(question))
	normalized = whitespaceRE.ReplaceAllString(normalized, " ")

	for _, prefix := range questionPrefixes {
		if strings.HasPrefix(normalized, prefix) {
			normalized = strings.TrimSpace(normalized[len(prefix):])
			break
		}
	}

	return strings.TrimRight(normalized, "?.,!")
}
