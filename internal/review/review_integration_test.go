//go:build integration
// +build integration

package review

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentora-ai/mentora/internal/gate"
	"github.com/mentora-ai/mentora/internal/log"
	"github.com/mentora-ai/mentora/internal/testutil"
	"github.com/mentora-ai/mentora/internal/user"
)

func TestSink_SaveFlag_Integration(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	sink := NewSink(db.Pool, log.NewNop())
	ctx := context.Background()

	best := 0.42
	flaggedAt := time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC)
	err := sink.SaveFlag(ctx, gate.Flag{
		Timestamp:             flaggedAt,
		UserID:                "member-1",
		QueryText:             "how do i price a custom unit",
		BestScore:             &best,
		Namespace:             "faqs",
		SuggestedNamespace:    "offers",
		EscalationRecommended: false,
	})
	require.NoError(t, err)

	var (
		queryText       string
		score           *float64
		suggested       *string
		escalation      bool
		storedFlaggedAt time.Time
	)
	err = db.Pool.QueryRow(ctx, `
		SELECT query_text, best_score, suggested_namespace, escalation_recommended, flagged_at
		FROM missing_knowledge_flags
		WHERE user_id = $1`, "member-1").
		Scan(&queryText, &score, &suggested, &escalation, &storedFlaggedAt)
	require.NoError(t, err)

	assert.Equal(t, "how do i price a custom unit", queryText)
	require.NotNil(t, score)
	assert.InDelta(t, 0.42, *score, 1e-9)
	require.NotNil(t, suggested)
	assert.Equal(t, "offers", *suggested)
	assert.False(t, escalation)
	assert.True(t, storedFlaggedAt.Equal(flaggedAt))
}

func TestSink_SaveFlagNilScore_Integration(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	sink := NewSink(db.Pool, log.NewNop())
	ctx := context.Background()

	err := sink.SaveFlag(ctx, gate.Flag{
		UserID:    "member-2",
		QueryText: "something off the map",
		Namespace: "faqs",
	})
	require.NoError(t, err)

	var (
		score     *float64
		suggested *string
	)
	err = db.Pool.QueryRow(ctx, `
		SELECT best_score, suggested_namespace
		FROM missing_knowledge_flags
		WHERE user_id = $1`, "member-2").
		Scan(&score, &suggested)
	require.NoError(t, err)

	assert.Nil(t, score, "empty retrieval stores NULL, not zero")
	assert.Nil(t, suggested)
}

func TestSink_LogQuestion_Integration(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	sink := NewSink(db.Pool, log.NewNop())
	ctx := context.Background()

	err := sink.LogQuestion(ctx, QuestionLog{
		UserID:      "member-3",
		Question:    "How do I  bleach knots?",
		Tier:        user.TierVIP,
		Answered:    true,
		TokensUsed:  350,
		SourceCount: 4,
	})
	require.NoError(t, err)

	var (
		question   string
		normalized string
		tier       string
		answered   bool
		tokens     int64
		sources    int
	)
	err = db.Pool.QueryRow(ctx, `
		SELECT question, normalized, tier, answered, tokens_used, source_count
		FROM question_logs
		WHERE user_id = $1`, "member-3").
		Scan(&question, &normalized, &tier, &answered, &tokens, &sources)
	require.NoError(t, err)

	assert.Equal(t, "How do I  bleach knots?", question, "raw phrasing is preserved")
	assert.Equal(t, "bleach knots", normalized)
	assert.Equal(t, "vip", tier)
	assert.True(t, answered)
	assert.EqualValues(t, 350, tokens)
	assert.Equal(t, 4, sources)
}
