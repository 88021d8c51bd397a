package llm

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaModel generates text through an Ollama server. The langchaingo
// client is constructed lazily on first use and shared afterwards.
type OllamaModel struct {
	baseURL string
	model   string

	mu  sync.Mutex
	llm *ollama.LLM

	httpClient *http.Client
}

func NewOllamaModel(baseURL, model string) *OllamaModel {
	return &OllamaModel{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (m *OllamaModel) client() (*ollama.LLM, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.llm != nil {
		return m.llm, nil
	}
	llm, err := ollama.New(
		ollama.WithModel(m.model),
		ollama.WithServerURL(m.baseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("llm: init ollama client: %w", err)
	}
	m.llm = llm
	return llm, nil
}

func (m *OllamaModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	llmClient, err := m.client()
	if err != nil {
		return "", err
	}
	answer, err := llms.GenerateFromSinglePrompt(ctx, llmClient, prompt)
	if err != nil {
		return "", fmt.Errorf("llm: generate: %w", err)
	}
	return answer, nil
}

// Healthy reports whether the Ollama server answers its tags endpoint.
func (m *OllamaModel) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
