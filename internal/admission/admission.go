// Package admission orchestrates one chat turn end to end: rate limit,
// quota and trial checks, retrieval, completion, the confidence gate, and
// usage recording, in that fixed order.
//
// The ordering is load-bearing. Cheap checks run before any model work, so
// denied requests cost nothing. Usage is recorded only after a completion
// exists, so failures never charge the member. Flag emission and question
// logging are best-effort: losing a curation record must never lose an
// answer the member already paid for.
package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mentora-ai/mentora/internal/completion"
	"github.com/mentora-ai/mentora/internal/gate"
	"github.com/mentora-ai/mentora/internal/knowledge"
	"github.com/mentora-ai/mentora/internal/quota"
	"github.com/mentora-ai/mentora/internal/ratelimit"
	"github.com/mentora-ai/mentora/internal/review"
	"github.com/mentora-ai/mentora/internal/user"
)

// Infrastructure failures. All abort the turn without recording usage; the
// API layer maps them to 503.
var (
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrRetrievalUnavailable  = errors.New("retrieval unavailable")
	ErrCompletionUnavailable = errors.New("completion unavailable")
)

// Denial codes carried to API clients.
const (
	CodeRateLimited = "RATE_LIMIT_EXCEEDED"
)

// Request is one chat turn awaiting admission.
type Request struct {
	UserID   string
	Question string

	// Namespace scopes retrieval; empty means the configured default.
	Namespace string

	// Now is the decision time; zero means time.Now().UTC(). Tests pin it.
	Now time.Time
}

// Denial explains a refused turn.
type Denial struct {
	// Code is machine-readable: RATE_LIMIT_EXCEEDED, USAGE_LIMIT_EXCEEDED,
	// TRIAL_EXPIRED, ACCOUNT_INACTIVE.
	Code string

	// RetryAfter is set for rate denials only.
	RetryAfter time.Duration

	// Rate carries window details for response headers on rate denials.
	Rate *ratelimit.Result
}

// Result is the outcome of an admitted or denied turn.
type Result struct {
	Allowed bool
	Denial  *Denial

	Answer  string
	Sources []knowledge.Result
	Outcome gate.Outcome

	// BestScore is the top retrieval similarity, nil when nothing came back.
	BestScore *float64

	TokensUsed int64
	CostMicros int64
	Usage      quota.Usage
}

// Collaborator contracts, defined here by the consumer.

// UserLoader resolves members.
type UserLoader interface {
	Load(ctx context.Context, id string) (user.User, error)
}

// RateLimiter admits or denies by request frequency.
type RateLimiter interface {
	CheckAndConsume(id string, tier user.Tier, now time.Time) ratelimit.Result
}

// UsageLedger meters monthly consumption.
type UsageLedger interface {
	CanSend(ctx context.Context, u user.User, now time.Time) (quota.Verdict, error)
	Record(ctx context.Context, u user.User, now time.Time, tokens, costMicros int64) (quota.Usage, error)
}

// Retriever searches the knowledge base.
type Retriever interface {
	Search(ctx context.Context, query, namespace string, topK int32) ([]knowledge.Result, error)
}

// Completer generates the answer.
type Completer interface {
	Complete(ctx context.Context, req completion.Request) (completion.Response, error)
}

// FlagSink receives curation records.
type FlagSink interface {
	SaveFlag(ctx context.Context, f gate.Flag) error
	LogQuestion(ctx context.Context, q review.QuestionLog) error
}

// HistoryStore supplies and persists bounded conversation history.
// Optional: a nil store means stateless turns.
type HistoryStore interface {
	Recent(ctx context.Context, userID string, n int) ([]completion.Turn, error)
	Append(ctx context.Context, userID, role, content string, tokens int64) error
}

// Config tunes the orchestrator.
type Config struct {
	ConfidenceThreshold float64
	TopK                int32
	DefaultNamespace    string
	HistoryTurns        int
}

// Orchestrator wires the admission pipeline.
//
// Orchestrator is safe for concurrent use by multiple goroutines.
type Orchestrator struct {
	users      UserLoader
	limiter    RateLimiter
	ledger     UsageLedger
	retriever  Retriever
	completer  Completer
	flags      FlagSink
	history    HistoryStore
	classifier gate.Classifier
	cfg        Config
	logger     *slog.Logger
}

// New creates an Orchestrator. flags and history may be nil; classifier nil
// falls back to gate.KeywordClassifier.
func New(
	users UserLoader,
	limiter RateLimiter,
	ledger UsageLedger,
	retriever Retriever,
	completer Completer,
	flags FlagSink,
	history HistoryStore,
	classifier gate.Classifier,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if classifier == nil {
		classifier = gate.KeywordClassifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		users:      users,
		limiter:    limiter,
		ledger:     ledger,
		retriever:  retriever,
		completer:  completer,
		flags:      flags,
		history:    history,
		classifier: classifier,
		cfg:        cfg,
		logger:     logger,
	}
}

// Admit runs one turn through the pipeline.
//
// Denials (rate, quota, trial, inactive account) come back as a Result with
// a Denial and a nil error. Infrastructure failures come back as errors
// wrapping one of the Err*Unavailable sentinels, or user.ErrNotFound for an
// unknown member; nothing is recorded on those paths.
func (o *Orchestrator) Admit(ctx context.Context, req Request) (Result, error) {
	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	namespace := req.Namespace
	if namespace == "" {
		namespace = o.cfg.DefaultNamespace
	}

	u, err := o.users.Load(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	// 1. Rate limit. Denial consumes nothing anywhere.
	rate := o.limiter.CheckAndConsume(u.ID, u.Tier, now)
	if !rate.Allowed {
		o.logger.Info("turn denied by rate limit",
			"user_id", u.ID, "tier", u.Tier, "retry_after", rate.RetryAfter)
		return Result{Denial: &Denial{
			Code:       CodeRateLimited,
			RetryAfter: rate.RetryAfter,
			Rate:       &rate,
		}}, nil
	}

	// 2. Quota and trial. Advisory read; the hard guard is in Record.
	verdict, err := o.ledger.CanSend(ctx, u, now)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if !verdict.Allowed {
		o.logger.Info("turn denied by quota",
			"user_id", u.ID, "tier", u.Tier, "reason", verdict.Reason,
			"used", verdict.Used, "limit", verdict.Limit)
		return Result{Denial: &Denial{Code: verdict.Reason}}, nil
	}

	// 3. Retrieval.
	results, err := o.retriever.Search(ctx, req.Question, namespace, o.cfg.TopK)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrRetrievalUnavailable, err)
	}

	// 4. Completion, grounded on whatever came back.
	history := o.loadHistory(ctx, u.ID)
	contextChunks := make([]string, len(results))
	for i, r := range results {
		contextChunks[i] = r.Content
	}
	comp, err := o.completer.Complete(ctx, completion.Request{
		Question: req.Question,
		Context:  contextChunks,
		History:  history,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrCompletionUnavailable, err)
	}

	// 5. Confidence gate.
	decision := gate.Evaluate(gate.Query{
		UserID:    u.ID,
		Text:      req.Question,
		Namespace: namespace,
		Timestamp: now,
	}, results, o.cfg.ConfidenceThreshold, o.classifier)

	// 6. Record usage. The member received an answer either way, so both
	// gate outcomes are charged. A failure here is a billing inconsistency:
	// logged, never retried, and never turned into a client error.
	res := Result{
		Allowed:    true,
		Answer:     comp.Text,
		Sources:    results,
		Outcome:    decision.Outcome,
		BestScore:  decision.BestScore,
		TokensUsed: comp.TokensUsed,
		CostMicros: comp.CostMicros,
	}
	usage, err := o.ledger.Record(ctx, u, now, comp.TokensUsed, comp.CostMicros)
	if err != nil {
		o.logger.Error("usage recording failed after completion, counters may undercount",
			"user_id", u.ID, "tokens", comp.TokensUsed, "error", err)
	} else {
		res.Usage = usage
	}

	o.emitSideEffects(ctx, u, req.Question, now, decision, comp, len(results))
	return res, nil
}

func (o *Orchestrator) loadHistory(ctx context.Context, userID string) []completion.Turn {
	if o.history == nil || o.cfg.HistoryTurns <= 0 {
		return nil
	}
	turns, err := o.history.Recent(ctx, userID, o.cfg.HistoryTurns)
	if err != nil {
		o.logger.Warn("history load failed, answering without it",
			"user_id", userID, "error", err)
		return nil
	}
	return turns
}

// emitSideEffects persists curation records and history. All best-effort.
func (o *Orchestrator) emitSideEffects(ctx context.Context, u user.User, question string, now time.Time, decision gate.Decision, comp completion.Response, sourceCount int) {
	if o.flags != nil {
		if decision.Flag != nil {
			if err := o.flags.SaveFlag(ctx, *decision.Flag); err != nil {
				o.logger.Warn("flag emission failed", "user_id", u.ID, "error", err)
			}
		}
		err := o.flags.LogQuestion(ctx, review.QuestionLog{
			UserID:      u.ID,
			Question:    question,
			Tier:        u.Tier,
			Answered:    decision.Outcome == gate.Answerable,
			TokensUsed:  comp.TokensUsed,
			SourceCount: sourceCount,
			AskedAt:     now,
		})
		if err != nil {
			o.logger.Warn("question logging failed", "user_id", u.ID, "error", err)
		}
	}

	if o.history != nil {
		if err := o.history.Append(ctx, u.ID, "user", question, 0); err != nil {
			o.logger.Warn("history append failed", "user_id", u.ID, "role", "user", "error", err)
		}
		if err := o.history.Append(ctx, u.ID, "assistant", comp.Text, comp.TokensUsed); err != nil {
			o.logger.Warn("history append failed", "user_id", u.ID, "role", "assistant", "error", err)
		}
	}
}
