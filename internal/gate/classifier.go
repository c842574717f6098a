package gate

import (
	"strings"
)

// KeywordClassifier is the default escalation heuristic: a query is flagged
// for human follow-up when it asks for personal guidance rather than facts,
// or when it is long and multi-clause enough that canned corpus content is
// unlikely to cover it.
type KeywordClassifier struct{}

// Personal-guidance phrasings. Matched case-insensitively as substrings.
var escalationPhrases = []string{
	"my business",
	"my situation",
	"my client",
	"should i",
	"can you review",
	"review my",
	"give me feedback",
	"feedback on my",
	"advice for me",
	"what would you do",
	"mentorship call",
	"one on one",
	"1:1",
}

const (
	escalationMinLength  = 280
	escalationMinClauses = 3
)

// Escalate implements Classifier.
func (KeywordClassifier) Escalate(queryText string) bool {
	lower := strings.ToLower(queryText)

	for _, phrase := range escalationPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}

	// Long, multi-clause questions read like situations, not lookups.
	if len(queryText) >= escalationMinLength {
		clauses := 1
		for _, sep := range []string{",", ";", " and ", " but ", "?"} {
			clauses += strings.Count(lower, sep)
		}
		if clauses >= escalationMinClauses {
			return true
		}
	}
	return false
}

// namespaceKeywords maps corpus namespaces to the phrases that indicate a
// question belongs there. Checked in a fixed order so suggestions are
// deterministic.
var namespaceOrder = []string{"techniques", "vendor", "business", "content", "mindset", "offers"}

var namespaceKeywords = map[string][]string{
	"techniques": {"install", "lace", "melting", "plucking", "tinting", "bleaching", "wig construction", "bald cap"},
	"vendor":     {"vendor", "supplier", "hair", "quality", "sample", "moq", "shipping", "pricing", "bundle"},
	"business":   {"price", "pricing", "profit", "margin", "shopify", "brand", "niche", "packaging", "refund"},
	"content":    {"hook", "reel", "script", "story", "content", "caption", "post", "social media"},
	"mindset":    {"confidence", "imposter", "perfection", "block", "motivation", "fear", "consistency"},
	"offers":     {"tutorial", "mentorship", "course", "community", "masterclass", "trip", "offer"},
}

// SuggestNamespace proposes the corpus namespace a question most likely
// belongs to, defaulting to "faqs" when nothing matches.
func SuggestNamespace(question string) string {
	lower := strings.ToLower(question)
	for _, ns := range namespaceOrder {
		for _, kw := range namespaceKeywords[ns] {
			if strings.Contains(lower, kw) {
				return ns
			}
		}
	}
	return "faqs"
}
