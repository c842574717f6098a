// Package gate decides whether retrieved knowledge is confident enough to
// answer a query, and builds curation flags when it is not.
//
// The gate is pure: it never touches storage or the network, which keeps the
// decision trivially testable. Persisting flags is the review sink's job.
package gate

import (
	"time"

	"github.com/mentora-ai/mentora/internal/knowledge"
)

// Outcomes of a gate evaluation.
type Outcome string

const (
	// Answerable means the best retrieval hit clears the threshold and the
	// model should answer from the retrieved context.
	Answerable Outcome = "ANSWERABLE"

	// MissingKnowledge means the corpus has no sufficiently similar content
	// and the turn should be flagged for curation.
	MissingKnowledge Outcome = "MISSING_KNOWLEDGE"
)

// Query is the input under evaluation.
type Query struct {
	UserID    string
	Text      string
	Namespace string
	Timestamp time.Time
}

// Flag is the curation record built for a MISSING_KNOWLEDGE outcome.
type Flag struct {
	Timestamp time.Time
	UserID    string
	QueryText string

	// BestScore is the top similarity seen, nil when retrieval returned
	// nothing at all. The distinction matters to curators: nil means an
	// empty corpus area, a low value means near-miss content exists.
	BestScore *float64

	// Namespace is the corpus area that was searched.
	Namespace string

	// SuggestedNamespace is a keyword-derived hint for where the missing
	// content belongs; empty when no keyword matched.
	SuggestedNamespace string

	// EscalationRecommended marks queries that look like they need a human
	// mentor rather than more corpus content.
	EscalationRecommended bool
}

// Decision is the evaluation result.
type Decision struct {
	Outcome Outcome

	// BestScore mirrors Flag.BestScore for answerable outcomes too.
	BestScore *float64

	// Flag is populated only for MissingKnowledge.
	Flag *Flag
}

// Classifier decides whether a missing-knowledge query warrants human
// escalation. Implementations must be side-effect free.
type Classifier interface {
	Escalate(queryText string) bool
}

// Evaluate applies the confidence threshold to retrieval results.
//
// The rule is exact: answerable iff the best score is >= threshold. Scores
// equal to the threshold pass. Empty results are always missing knowledge
// with a nil BestScore.
func Evaluate(q Query, results []knowledge.Result, threshold float64, classifier Classifier) Decision {
	if len(results) == 0 {
		return Decision{
			Outcome: MissingKnowledge,
			Flag:    buildFlag(q, nil, classifier),
		}
	}

	best := results[0].Score
	for _, r := range results[1:] {
		if r.Score > best {
			best = r.Score
		}
	}

	if best >= threshold {
		return Decision{Outcome: Answerable, BestScore: &best}
	}
	return Decision{
		Outcome:   MissingKnowledge,
		BestScore: &best,
		Flag:      buildFlag(q, &best, classifier),
	}
}

func buildFlag(q Query, best *float64, classifier Classifier) *Flag {
	f := &Flag{
		Timestamp: q.Timestamp,
		UserID:    q.UserID,
		QueryText: q.Text,
		BestScore: best,
		Namespace: q.Namespace,
	}
	if suggested := SuggestNamespace(q.Text); suggested != q.Namespace {
		f.SuggestedNamespace = suggested
	}
	if classifier != nil {
		f.EscalationRecommended = classifier.Escalate(q.Text)
	}
	return f
}
