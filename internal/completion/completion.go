// Package completion produces persona answers from retrieved context using
// Genkit, and prices each answer in micro-dollars.
package completion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Turn is one prior exchange in the conversation.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// Request carries everything the completer needs for one answer.
type Request struct {
	Question string

	// Context is the retrieved knowledge, already ranked.
	Context []string

	// History is the bounded prior conversation, oldest first.
	History []Turn
}

// Response is a generated answer with its accounting.
type Response struct {
	Text       string
	TokensUsed int64
	CostMicros int64
}

// Config tunes the completer.
type Config struct {
	ModelName   string
	Temperature float32
	MaxTokens   int

	// MaxHistory caps how many prior turns are sent to the model.
	MaxHistory int

	// CostMicrosPer1KTokens prices usage; see EstimateCostMicros.
	CostMicrosPer1KTokens int64
}

// personaPrompt frames the assistant. Retrieved context is injected per
// request; the prompt instructs the model to stay inside it.
const personaPrompt = `You are Tay, a warm and direct mentor for wig-making and
beauty-business students. Answer from the provided knowledge context. Be
practical and specific. If the context does not cover the question, say so
briefly and suggest booking time with a human mentor instead of guessing.`

// Completer generates answers through Genkit.
//
// Completer is safe for concurrent use by multiple goroutines.
type Completer struct {
	genkit *genkit.Genkit
	cfg    Config
	logger *slog.Logger
}

// New creates a Completer.
func New(g *genkit.Genkit, cfg Config, logger *slog.Logger) *Completer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Completer{genkit: g, cfg: cfg, logger: logger}
}

// Complete generates one answer.
func (c *Completer) Complete(ctx context.Context, req Request) (Response, error) {
	messages := c.buildMessages(req)

	resp, err := genkit.Generate(ctx, c.genkit,
		ai.WithModelName(c.cfg.ModelName),
		ai.WithSystem(personaPrompt),
		ai.WithMessages(messages...),
	)
	if err != nil {
		return Response{}, fmt.Errorf("generating completion: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Response{}, fmt.Errorf("model returned empty completion")
	}

	tokens := tokensFromResponse(resp, req.Question, text)
	out := Response{
		Text:       text,
		TokensUsed: tokens,
		CostMicros: EstimateCostMicros(tokens, c.cfg.CostMicrosPer1KTokens),
	}

	c.logger.Debug("completion generated",
		"model", c.cfg.ModelName,
		"tokens", out.TokensUsed,
		"cost_micros", out.CostMicros,
		"answer_length", len(text))
	return out, nil
}

// buildMessages assembles context, bounded history, and the question.
func (c *Completer) buildMessages(req Request) []*ai.Message {
	var messages []*ai.Message

	if len(req.Context) > 0 {
		var b strings.Builder
		b.WriteString("Knowledge context:\n\n")
		for i, chunk := range req.Context {
			fmt.Fprintf(&b, "[%d] %s\n\n", i+1, chunk)
		}
		messages = append(messages, ai.NewUserMessage(ai.NewTextPart(b.String())))
	}

	history := req.History
	if c.cfg.MaxHistory > 0 && len(history) > c.cfg.MaxHistory {
		history = history[len(history)-c.cfg.MaxHistory:]
	}
	for _, turn := range history {
		part := ai.NewTextPart(turn.Content)
		if turn.Role == "assistant" {
			messages = append(messages, ai.NewModelMessage(part))
		} else {
			messages = append(messages, ai.NewUserMessage(part))
		}
	}

	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(req.Question)))
	return messages
}

// tokensFromResponse prefers the provider's count, falling back to a rough
// 4-chars-per-token estimate when the provider omits usage.
func tokensFromResponse(resp *ai.ModelResponse, question, answer string) int64 {
	if resp.Usage != nil && resp.Usage.TotalTokens > 0 {
		return int64(resp.Usage.TotalTokens)
	}
	return int64((len(question) + len(answer)) / 4)
}

// EstimateCostMicros converts a token count to micro-dollars at the given
// per-1K-token rate, rounding up so fractions of a token batch still bill.
func EstimateCostMicros(tokens, microsPer1K int64) int64 {
	if tokens <= 0 || microsPer1K <= 0 {
		return 0
	}
	return (tokens*microsPer1K + 999) / 1000
}
