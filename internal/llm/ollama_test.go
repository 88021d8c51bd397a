package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaModel_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	m := NewOllamaModel(srv.URL, "mistral")
	if !m.Healthy(context.Background()) {
		t.Error("expected healthy when tags endpoint answers 200")
	}
}

func TestOllamaModel_Unhealthy(t *testing.T) {
	t.Run("server down", func(t *testing.T) {
		m := NewOllamaModel("http://127.0.0.1:1", "mistral")
		if m.Healthy(context.Background()) {
			t.Error("expected unhealthy for unreachable server")
		}
	})
	t.Run("server errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		m := NewOllamaModel(srv.URL, "mistral")
		if m.Healthy(context.Background()) {
			t.Error("expected unhealthy on 500")
		}
	})
}
