package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/aiia-labs/orchestrator"
	"github.com/aiia-labs/orchestrator/internal/health"
	"github.com/aiia-labs/orchestrator/internal/logging"
	"github.com/aiia-labs/orchestrator/internal/requestlog"
	"github.com/aiia-labs/orchestrator/internal/version"
	"github.com/aiia-labs/orchestrator/models"
)

// maxBodyBytes comfortably fits the largest summarize payload.
const maxBodyBytes = 1 << 20

type completionRequest struct {
	Prompt  string                `json:"prompt"`
	Options *orchestrator.Options `json:"options,omitempty"`
}

type summarizeRequest struct {
	Text  string   `json:"text"`
	Ratio *float64 `json:"ratio,omitempty"`
}

type summarizeMeta struct {
	OriginalLength int     `json:"originalLength"`
	Ratio          float64 `json:"ratio"`
	Model          string  `json:"model"`
	Provider       string  `json:"provider"`
	Cached         bool    `json:"cached"`
}

type modelInfo struct {
	models.Model
	Health health.Record `json:"health"`
}

// logLister reads back the completion log.
type logLister interface {
	List(ctx context.Context, q requestlog.Query) (requestlog.Page, error)
}

type handlers struct {
	orch *orchestrator.Orchestrator
	cfg  orchestrator.ServerConfig
	logs logLister
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "")
		return nil, false
	}
	return body, true
}

func (h *handlers) completions(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req completionRequest
	if err := decodeValidated(completionRequestSchema, body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	if n := utf8.RuneCountInString(req.Prompt); n > h.cfg.MaxPromptChars {
		writeError(w, http.StatusBadRequest, "prompt exceeds the maximum length", "")
		return
	}
	opts := orchestrator.DefaultOptions()
	if req.Options != nil {
		if req.Options.UseCache != nil {
			opts.UseCache = req.Options.UseCache
		}
		if req.Options.Race != nil {
			opts.Race = req.Options.Race
		}
	}

	res, err := h.orch.GetCompletion(r.Context(), req.Prompt, opts)
	if err != nil {
		h.completionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) completionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, orchestrator.ErrPoolExhausted):
		writeError(w, http.StatusServiceUnavailable, "LLM service unavailable", h.details(err))
	default:
		logging.FromContext(r.Context()).Error("completion failed", "error", err)
		writeError(w, http.StatusInternalServerError, "completion failed", h.details(err))
	}
}

func (h *handlers) summarize(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req summarizeRequest
	if err := decodeValidated(summarizeRequestSchema, body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	ratio := orchestrator.DefaultSummarizeRatio
	if req.Ratio != nil {
		ratio = *req.Ratio
	}

	sum, err := h.orch.Summarize(r.Context(), req.Text, ratio)
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		logging.FromContext(r.Context()).Error("summarization failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Summarization failed", h.details(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary": sum.Text,
		"meta": summarizeMeta{
			OriginalLength: sum.OriginalLength,
			Ratio:          sum.Ratio,
			Model:          sum.Result.ModelID,
			Provider:       string(sum.Result.Provider),
			Cached:         sum.Result.Cached,
		},
	})
}

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.Status())
}

func (h *handlers) models(w http.ResponseWriter, _ *http.Request) {
	recs := h.orch.Health()
	byID := make(map[string]health.Record, len(recs))
	for _, rec := range recs {
		byID[rec.ID] = rec
	}
	all := h.orch.Registry().All()
	data := make([]modelInfo, 0, len(all))
	for _, m := range all {
		data = append(data, modelInfo{Model: m, Health: byID[m.ID]})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"object": "list",
		"data":   data,
	})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"mode":    h.orch.Status().Mode,
		"version": version.Short(),
		"cache":   h.orch.CacheStats(r.Context()),
	})
}

func (h *handlers) completionLog(w http.ResponseWriter, r *http.Request) {
	q := requestlog.Query{
		Outcome: r.URL.Query().Get("outcome"),
		Model:   r.URL.Query().Get("model"),
	}
	q.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	q.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	page, err := h.logs.List(r.Context(), q)
	if err != nil {
		logging.FromContext(r.Context()).Error("completion log query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "completion log unavailable", h.details(err))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// details returns the error text unless the server runs in production.
func (h *handlers) details(err error) string {
	if h.cfg.Production() {
		return ""
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	body := map[string]string{"error": message}
	if details != "" {
		body["details"] = details
	}
	writeJSON(w, status, body)
}
