package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/citadel-rag/citadel/internal/extract"
	"github.com/citadel-rag/citadel/internal/pipeline"
)

type searchRequest struct {
	Query string `json:"query" validate:"required,min=1,max=1000"`
	K     int    `json:"k" validate:"omitempty,min=1,max=50"`
}

type askRequest struct {
	Query string `json:"query" validate:"required,min=1,max=1000"`
	K     int    `json:"k" validate:"omitempty,min=1,max=20"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !extract.IsSupported(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusUnprocessableEntity)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}
	if len(data) == 0 {
		jsonError(w, "file is empty", http.StatusBadRequest)
		return
	}

	// Duplicate content returns the existing document without re-processing.
	existing, chunkCount, err := s.orchestrator.FindExisting(r.Context(), data)
	if err != nil {
		jsonError(w, "storage unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"document_id":  existing.ID,
			"filename":     existing.Filename,
			"chunks_count": chunkCount,
			"status":       "duplicate",
			"message":      "document already ingested",
		})
		return
	}

	if err := s.orchestrator.Submit(filename, data); err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) {
			jsonError(w, "ingestion queue is full, retry later", http.StatusServiceUnavailable)
			return
		}
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"filename": filename,
		"status":   "processing",
		"message":  "document accepted for ingestion",
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if req.K == 0 {
		req.K = 5
	}

	results, err := s.orchestrator.Search(r.Context(), req.Query, req.K)
	if err != nil {
		s.log.Error("search failed", "error", err)
		jsonError(w, "search failed: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	if results == nil {
		results = []pipeline.SearchResult{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"query":   req.Query,
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if req.K == 0 {
		req.K = 5
	}

	answer, err := s.orchestrator.Ask(r.Context(), req.Query, req.K)
	if err != nil {
		s.log.Error("ask failed", "error", err)
		jsonError(w, "ask failed: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	if answer.Sources == nil {
		answer.Sources = []pipeline.Source{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(answer)
}

// decodeAndValidate parses a JSON body into dst and runs struct validation.
// Writes the error response itself and reports whether the request is usable.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		jsonError(w, "validation failed: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
