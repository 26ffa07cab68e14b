package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/pageqa/internal/metrics"
	"github.com/kalambet/pageqa/internal/pipeline"
	"github.com/kalambet/pageqa/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// AppDeps holds dependencies for the HTTP API.
type AppDeps struct {
	Runs  *RunService
	Store Store
	// Token, when set, is required as a bearer token on all /v1 routes.
	Token string
}

// NewHandler returns the HTTP API router.
func NewHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if deps.Token != "" {
			r.Use(requireToken(deps.Token))
		}
		r.Post("/answer", handleAnswer(deps))
		r.Get("/runs", handleListRuns(deps))
		r.Get("/runs/{id}", handleGetRun(deps))
		r.Get("/documents", handleListDocuments(deps))
		r.Delete("/documents/{id}", handleDeleteDocument(deps))
		r.Get("/search", handleSearch(deps))
	})

	return r
}

// requireToken rejects requests whose Authorization header does not carry
// token under the Bearer scheme. The scheme name is case-insensitive.
func requireToken(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, got, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="pageqa"`)
				httpError(w, http.StatusUnauthorized, "authentication_error", "missing or invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleAnswer(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req AnswerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.MaxAnswers < 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "max_answers must not be negative")
			return
		}

		res, err := deps.Runs.Answer(r.Context(), req)
		if res.RunID != "" {
			w.Header().Set("X-Run-ID", res.RunID)
		}
		if err != nil {
			code, errType := statusFor(err)
			httpError(w, code, errType, "%v", err)
			return
		}

		writeJSON(w, pipeline.FormatSQuAD(res.Records))
	}
}

func handleListRuns(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		runs, err := deps.Store.ListRuns(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "store_unavailable", "failed to list runs: %v", err)
			return
		}

		views := make([]runView, len(runs))
		for i, run := range runs {
			views[i] = newRunView(run, false)
		}
		writeJSON(w, views)
	}
}

func handleGetRun(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		run, err := deps.Store.GetRun(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "run not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "store_unavailable", "failed to get run: %v", err)
			return
		}

		writeJSON(w, newRunView(run, true))
	}
}

func handleListDocuments(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		docs, err := deps.Store.ListDocuments(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "store_unavailable", "failed to list documents: %v", err)
			return
		}

		views := make([]documentView, len(docs))
		for i, d := range docs {
			views[i] = newDocumentView(d)
		}
		writeJSON(w, views)
	}
}

func handleDeleteDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteDocument(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "store_unavailable", "failed to delete document: %v", err)
			return
		}

		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		limit := parseIntParam(r, "limit", 5, 50)
		if limit == 0 {
			limit = 5
		}

		docs, err := deps.Store.SearchBM25(r.Context(), q, limit)
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "store_unavailable", "search failed: %v", err)
			return
		}
		writeJSON(w, newSearchHits(docs))
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
