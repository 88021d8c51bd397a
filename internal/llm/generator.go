// Package llm produces natural-language answers from a query and retrieved
// context. Backend outages never fail a request: the generator degrades to a
// deterministic fallback answer instead.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const systemPrompt = `You are an expert assistant. Answer the user's question using ONLY the context provided below.

Strict rules:
1. Base your answer ONLY on the provided context.
2. If the context does not contain the information, say so clearly.
3. Never fabricate information.
4. Cite sources when relevant.
5. Be concise and precise.

Context:
%s`

const fallbackPreviewLen = 50

// TextModel is the minimal generation backend. Implemented by OllamaModel
// and by fakes in tests.
type TextModel interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Result is a generation outcome. Degraded marks a fallback answer produced
// because the backend was unreachable, timed out, or errored; callers branch
// on the flag, never on an error.
type Result struct {
	Answer   string
	Degraded bool
}

// Generator builds grounded prompts and calls the backend with a hard
// timeout. Timeout expiry is treated identically to a connectivity failure.
type Generator struct {
	model   TextModel
	timeout time.Duration
	log     *slog.Logger
}

func NewGenerator(model TextModel, timeout time.Duration, log *slog.Logger) *Generator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Generator{model: model, timeout: timeout, log: log}
}

// Generate answers query from the supplied context segments. It never
// returns an error: any backend failure yields a degraded Result that
// surfaces a preview of the retrieved context, so callers can verify that
// retrieval works even when generation does not.
func (g *Generator) Generate(ctx context.Context, query string, contexts []string) Result {
	prompt := buildPrompt(query, contexts)

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	answer, err := g.model.GenerateText(callCtx, prompt)
	if err != nil {
		g.log.Warn("generation backend unavailable, returning degraded answer", "error", err)
		return fallbackResult(contexts)
	}
	return Result{Answer: answer}
}

// Healthy probes the backend when it supports probing.
func (g *Generator) Healthy(ctx context.Context) bool {
	probe, ok := g.model.(interface{ Healthy(context.Context) bool })
	if !ok {
		return false
	}
	return probe.Healthy(ctx)
}

func buildPrompt(query string, contexts []string) string {
	system := fmt.Sprintf(systemPrompt, formatContext(contexts))
	return fmt.Sprintf("%s\n\nQuestion: %s\n\nAnswer:", system, query)
}

func formatContext(contexts []string) string {
	if len(contexts) == 0 {
		return "No context available."
	}
	parts := make([]string, len(contexts))
	for i, c := range contexts {
		parts[i] = fmt.Sprintf("[Source %d]\n%s", i+1, c)
	}
	return strings.Join(parts, "\n\n")
}

func fallbackResult(contexts []string) Result {
	preview := "(no context retrieved)"
	if len(contexts) > 0 {
		p := strings.ReplaceAll(contexts[0], "\n", " ")
		if runes := []rune(p); len(runes) > fallbackPreviewLen {
			p = string(runes[:fallbackPreviewLen]) + "..."
		}
		preview = fmt.Sprintf("%q", p)
	}

	answer := fmt.Sprintf(
		"Note: the answer generation service is currently unavailable.\n\n"+
			"Retrieved context preview: %s\n\n"+
			"Total chunks retrieved: %d\n\n"+
			"Retrieval is working; only answer generation is down. Please retry once the generation backend is reachable.",
		preview, len(contexts),
	)
	return Result{Answer: answer, Degraded: true}
}
