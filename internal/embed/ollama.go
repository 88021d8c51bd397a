package embed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// backend is the minimal embedding surface the wrapper needs. Satisfied by
// langchaingo's *embeddings.EmbedderImpl and by fakes in tests.
type backend interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// OllamaEmbedder generates embeddings through an Ollama server. The
// underlying client is constructed lazily on first use and shared for the
// process lifetime; Reset releases it for test isolation.
type OllamaEmbedder struct {
	baseURL   string
	model     string
	dimension int
	log       *slog.Logger

	mu      sync.Mutex
	connect func() (backend, error)
	impl    backend
}

func NewOllamaEmbedder(baseURL, model string, dimension int, log *slog.Logger) *OllamaEmbedder {
	e := &OllamaEmbedder{
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		log:       log,
	}
	e.connect = e.dial
	return e
}

func (e *OllamaEmbedder) Dimension() int {
	return e.dimension
}

// dial constructs the langchaingo embedder against the configured server.
func (e *OllamaEmbedder) dial() (backend, error) {
	e.log.Info("initializing embedding backend", "model", e.model, "dimension", e.dimension)
	llm, err := ollama.New(
		ollama.WithModel(e.model),
		ollama.WithServerURL(e.baseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("embed: init ollama client: %w", err)
	}
	impl, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("embed: construct embedder: %w", err)
	}
	return impl, nil
}

// client returns the shared backend, constructing it on first call.
// A failed construction is retried on the next call.
func (e *OllamaEmbedder) client() (backend, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.impl != nil {
		return e.impl, nil
	}
	impl, err := e.connect()
	if err != nil {
		return nil, err
	}
	e.impl = impl
	return impl, nil
}

// Reset releases the shared client. The next embed call re-initializes it.
func (e *OllamaEmbedder) Reset() {
	e.mu.Lock()
	e.impl = nil
	e.mu.Unlock()
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	impl, err := e.client()
	if err != nil {
		return nil, err
	}
	vectors, err := impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed: batch of %d: %w", len(texts), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed: got %d vectors for %d texts", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != e.dimension {
			return nil, fmt.Errorf("embed: vector %d has dimension %d, want %d", i, len(v), e.dimension)
		}
		normalize(v)
	}
	return vectors, nil
}

func (e *OllamaEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	impl, err := e.client()
	if err != nil {
		return nil, err
	}
	vector, err := impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: query: %w", err)
	}
	if len(vector) != e.dimension {
		return nil, fmt.Errorf("embed: query vector has dimension %d, want %d", len(vector), e.dimension)
	}
	normalize(vector)
	return vector, nil
}
