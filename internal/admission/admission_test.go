package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentora-ai/mentora/internal/completion"
	"github.com/mentora-ai/mentora/internal/gate"
	"github.com/mentora-ai/mentora/internal/knowledge"
	"github.com/mentora-ai/mentora/internal/log"
	"github.com/mentora-ai/mentora/internal/quota"
	"github.com/mentora-ai/mentora/internal/ratelimit"
	"github.com/mentora-ai/mentora/internal/review"
	"github.com/mentora-ai/mentora/internal/user"
)

// Fake collaborators. Each records calls so tests can assert what the
// pipeline did and, just as important, did not do.

type fakeUsers struct {
	u   user.User
	err error
}

func (f *fakeUsers) Load(_ context.Context, id string) (user.User, error) {
	if f.err != nil {
		return user.User{}, f.err
	}
	return f.u, nil
}

type fakeLimiter struct {
	result ratelimit.Result
	calls  int
}

func (f *fakeLimiter) CheckAndConsume(string, user.Tier, time.Time) ratelimit.Result {
	f.calls++
	return f.result
}

type fakeLedger struct {
	verdict    quota.Verdict
	canErr     error
	recorded   []int64 // token counts per Record call
	recordErr  error
	recordedAt []time.Time
}

func (f *fakeLedger) CanSend(context.Context, user.User, time.Time) (quota.Verdict, error) {
	return f.verdict, f.canErr
}

func (f *fakeLedger) Record(_ context.Context, _ user.User, now time.Time, tokens, _ int64) (quota.Usage, error) {
	if f.recordErr != nil {
		return quota.Usage{}, f.recordErr
	}
	f.recorded = append(f.recorded, tokens)
	f.recordedAt = append(f.recordedAt, now)
	return quota.Usage{MessagesUsed: int64(len(f.recorded))}, nil
}

type fakeRetriever struct {
	results []knowledge.Result
	err     error
	calls   int
}

func (f *fakeRetriever) Search(context.Context, string, string, int32) ([]knowledge.Result, error) {
	f.calls++
	return f.results, f.err
}

type fakeCompleter struct {
	resp  completion.Response
	err   error
	calls int
}

func (f *fakeCompleter) Complete(context.Context, completion.Request) (completion.Response, error) {
	f.calls++
	return f.resp, f.err
}

type fakeSink struct {
	flags     []gate.Flag
	questions []review.QuestionLog
	flagErr   error
}

func (f *fakeSink) SaveFlag(_ context.Context, flag gate.Flag) error {
	if f.flagErr != nil {
		return f.flagErr
	}
	f.flags = append(f.flags, flag)
	return nil
}

func (f *fakeSink) LogQuestion(_ context.Context, q review.QuestionLog) error {
	f.questions = append(f.questions, q)
	return nil
}

var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func activeUser() user.User {
	return user.User{ID: "u-1", Tier: user.TierBasic, Active: true, CreatedAt: testNow.Add(-24 * time.Hour)}
}

type fixture struct {
	users     *fakeUsers
	limiter   *fakeLimiter
	ledger    *fakeLedger
	retriever *fakeRetriever
	completer *fakeCompleter
	sink      *fakeSink
	orch      *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		users:     &fakeUsers{u: activeUser()},
		limiter:   &fakeLimiter{result: ratelimit.Result{Allowed: true, MinuteRemaining: 59, HourRemaining: 999}},
		ledger:    &fakeLedger{verdict: quota.Verdict{Allowed: true, Limit: 50, Remaining: 50}},
		retriever: &fakeRetriever{results: []knowledge.Result{{ID: "d1", Content: "lace melting guide", Score: 0.91}}},
		completer: &fakeCompleter{resp: completion.Response{Text: "here is how", TokensUsed: 400, CostMicros: 800}},
		sink:      &fakeSink{},
	}
	f.orch = New(f.users, f.limiter, f.ledger, f.retriever, f.completer, f.sink, nil, nil,
		Config{ConfidenceThreshold: 0.7, TopK: 5, DefaultNamespace: "faqs"}, log.NewNop())
	return f
}

func TestAdmitHappyPath(t *testing.T) {
	t.Parallel()

	f := newFixture()
	res, err := f.orch.Admit(context.Background(), Request{UserID: "u-1", Question: "how do i melt lace", Now: testNow})
	require.NoError(t, err)

	assert.True(t, res.Allowed)
	assert.Nil(t, res.Denial)
	assert.Equal(t, "here is how", res.Answer)
	assert.Equal(t, gate.Answerable, res.Outcome)
	require.NotNil(t, res.BestScore)
	assert.Equal(t, 0.91, *res.BestScore)
	assert.EqualValues(t, 400, res.TokensUsed)
	assert.EqualValues(t, 800, res.CostMicros)

	// Usage recorded exactly once with the completion's token count.
	assert.Equal(t, []int64{400}, f.ledger.recorded)

	// No flag on answerable turns, but the question is still logged.
	assert.Empty(t, f.sink.flags)
	require.Len(t, f.sink.questions, 1)
	assert.True(t, f.sink.questions[0].Answered)
	assert.Equal(t, 1, f.sink.questions[0].SourceCount)
}

func TestAdmitRateDenied(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.limiter.result = ratelimit.Result{Allowed: false, RetryAfter: 21 * time.Second}

	res, err := f.orch.Admit(context.Background(), Request{UserID: "u-1", Question: "q", Now: testNow})
	require.NoError(t, err)

	assert.False(t, res.Allowed)
	require.NotNil(t, res.Denial)
	assert.Equal(t, CodeRateLimited, res.Denial.Code)
	assert.Equal(t, 21*time.Second, res.Denial.RetryAfter)

	// Denial short-circuits: no retrieval, no completion, no recording.
	assert.Zero(t, f.retriever.calls)
	assert.Zero(t, f.completer.calls)
	assert.Empty(t, f.ledger.recorded)
}

func TestAdmitQuotaDenied(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		reason string
	}{
		{name: "limit exceeded", reason: quota.ReasonLimitExceeded},
		{name: "trial expired", reason: quota.ReasonTrialExpired},
		{name: "account inactive", reason: quota.ReasonAccountInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			f.ledger.verdict = quota.Verdict{Reason: tt.reason, Limit: 50}

			res, err := f.orch.Admit(context.Background(), Request{UserID: "u-1", Question: "q", Now: testNow})
			require.NoError(t, err)

			assert.False(t, res.Allowed)
			require.NotNil(t, res.Denial)
			assert.Equal(t, tt.reason, res.Denial.Code)
			assert.Zero(t, f.retriever.calls)
			assert.Zero(t, f.completer.calls)
		})
	}
}

func TestAdmitMissingKnowledge(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.retriever.results = []knowledge.Result{{ID: "d1", Content: "unrelated", Score: 0.42}}

	res, err := f.orch.Admit(context.Background(), Request{UserID: "u-1", Question: "what about vendor contracts", Now: testNow})
	require.NoError(t, err)

	assert.True(t, res.Allowed)
	assert.Equal(t, gate.MissingKnowledge, res.Outcome)

	// The member still paid: usage recorded.
	assert.Equal(t, []int64{400}, f.ledger.recorded)

	// Flag captured with the near-miss score.
	require.Len(t, f.sink.flags, 1)
	flag := f.sink.flags[0]
	assert.Equal(t, "u-1", flag.UserID)
	require.NotNil(t, flag.BestScore)
	assert.Equal(t, 0.42, *flag.BestScore)
	assert.Equal(t, testNow, flag.Timestamp)

	require.Len(t, f.sink.questions, 1)
	assert.False(t, f.sink.questions[0].Answered)
}

func TestAdmitEmptyRetrievalFlagsNilScore(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.retriever.results = nil

	res, err := f.orch.Admit(context.Background(), Request{UserID: "u-1", Question: "q", Now: testNow})
	require.NoError(t, err)

	assert.Equal(t, gate.MissingKnowledge, res.Outcome)
	require.Len(t, f.sink.flags, 1)
	assert.Nil(t, f.sink.flags[0].BestScore)
}

func TestAdmitCollaboratorFailures(t *testing.T) {
	t.Parallel()

	t.Run("retrieval failure aborts without recording", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		f.retriever.err = errors.New("pgvector down")

		_, err := f.orch.Admit(context.Background(), Request{UserID: "u-1", Question: "q", Now: testNow})
		require.ErrorIs(t, err, ErrRetrievalUnavailable)
		assert.Zero(t, f.completer.calls)
		assert.Empty(t, f.ledger.recorded)
		assert.Empty(t, f.sink.questions)
	})

	t.Run("completion failure aborts without recording", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		f.completer.err = errors.New("model timeout")

		_, err := f.orch.Admit(context.Background(), Request{UserID: "u-1", Question: "q", Now: testNow})
		require.ErrorIs(t, err, ErrCompletionUnavailable)
		assert.Empty(t, f.ledger.recorded)
	})

	t.Run("quota read failure fails closed", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		f.ledger.canErr = errors.New("connection refused")

		_, err := f.orch.Admit(context.Background(), Request{UserID: "u-1", Question: "q", Now: testNow})
		require.ErrorIs(t, err, ErrStorageUnavailable)
		assert.Zero(t, f.retriever.calls)
	})

	t.Run("unknown user surfaces not found", func(t *testing.T) {
		t.Parallel()

		f := newFixture()
		f.users.err = user.ErrNotFound

		_, err := f.orch.Admit(context.Background(), Request{UserID: "ghost", Question: "q", Now: testNow})
		require.ErrorIs(t, err, user.ErrNotFound)
		assert.Zero(t, f.limiter.calls)
	})
}

func TestAdmitRecordFailureStillAnswers(t *testing.T) {
	t.Parallel()

	// The completion already happened; a recording failure is logged as an
	// inconsistency, never turned into a client-facing error.
	f := newFixture()
	f.ledger.recordErr = quota.ErrLimitReached

	res, err := f.orch.Admit(context.Background(), Request{UserID: "u-1", Question: "q", Now: testNow})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, "here is how", res.Answer)
	assert.Zero(t, res.Usage.MessagesUsed)
}

func TestAdmitFlagEmissionIsBestEffort(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.retriever.results = nil
	f.sink.flagErr = errors.New("insert failed")

	res, err := f.orch.Admit(context.Background(), Request{UserID: "u-1", Question: "q", Now: testNow})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, "here is how", res.Answer)
}

func TestAdmitEndToEndBoundary(t *testing.T) {
	t.Parallel()

	// A real ledger over the memory store: the 50th message is admitted and
	// recorded, the 51st is denied before retrieval.
	ledger := quota.NewLedger(quota.NewMemoryStore(),
		quota.Limits{BasicPerMonth: 50, VIPPerMonth: 1000, TrialDays: 7}, log.NewNop())

	f := newFixture()
	retriever := f.retriever
	orch := New(f.users, f.limiter, ledger, retriever, f.completer, f.sink, nil, nil,
		Config{ConfidenceThreshold: 0.7, TopK: 5, DefaultNamespace: "faqs"}, log.NewNop())

	u := activeUser()
	for i := 0; i < 49; i++ {
		_, err := ledger.Record(context.Background(), u, testNow, 10, 20)
		require.NoError(t, err)
	}

	// 50th turn is admitted.
	res, err := orch.Admit(context.Background(), Request{UserID: "u-1", Question: "q", Now: testNow})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.EqualValues(t, 50, res.Usage.MessagesUsed)
	retrievalsAfter50 := retriever.calls

	// 51st is denied by the counter, and retrieval is never attempted.
	res, err = orch.Admit(context.Background(), Request{UserID: "u-1", Question: "q", Now: testNow})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	require.NotNil(t, res.Denial)
	assert.Equal(t, quota.ReasonLimitExceeded, res.Denial.Code)
	assert.Equal(t, retrievalsAfter50, retriever.calls)
}
