package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	detection "falldetect/internal/detection/domain"
	"falldetect/internal/evaluation/application"
	evaluation "falldetect/internal/evaluation/domain"
	"falldetect/internal/evaluation/interfaces/export"
	"falldetect/internal/observability/metrics"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxBodyBytes     = 1 << 20
)

// Handler provides evaluation and search APIs.
type Handler struct {
	service *application.SearchService
	logger  *log.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *application.SearchService, logger *log.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("evaluation handler: nil service")
	}
	return &Handler{service: service, logger: logger}, nil
}

// Register mounts the API routes on r.
func (h *Handler) Register(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/evaluations", h.handleEvaluate).Methods(http.MethodPost)
	api.HandleFunc("/searches", h.handleStartSearch).Methods(http.MethodPost)
	api.HandleFunc("/searches", h.handleListSearches).Methods(http.MethodGet)
	api.HandleFunc("/searches/{id}", h.handleGetSearch).Methods(http.MethodGet)
	api.HandleFunc("/searches/{id}/export.{format:xlsx|pdf}", h.handleExport).Methods(http.MethodGet)
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	cfg := h.service.DetectorDefaults()
	if err := decodeBody(r, &cfg); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	result, err := h.service.Evaluate(r.Context(), cfg)
	if err != nil {
		if errors.Is(err, detection.ErrInvalidConfig) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logf("event=evaluation_request_failed error=%v", err)
		http.Error(w, "evaluation failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleStartSearch(w http.ResponseWriter, r *http.Request) {
	var req application.SearchRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	run, err := h.service.Start(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, evaluation.ErrInvalidGrid), errors.Is(err, detection.ErrInvalidConfig):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, application.ErrShuttingDown):
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
		default:
			h.logf("event=search_request_failed error=%v", err)
			http.Error(w, "start search failed", http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Location", "/api/v1/searches/"+run.ID)
	writeJSON(w, http.StatusAccepted, run)
}

func (h *Handler) handleListSearches(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	runs, err := h.service.List(r.Context(), limit)
	if err != nil {
		h.logf("event=search_list_failed error=%v", err)
		http.Error(w, "query searches error", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []evaluation.SearchRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) handleGetSearch(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	format := mux.Vars(r)["format"]
	if run.Result == nil || run.Status != evaluation.RunStatusSucceeded {
		http.Error(w, "search not finished", http.StatusConflict)
		return
	}

	started := time.Now()
	var (
		data        []byte
		err         error
		contentType string
	)
	switch format {
	case "xlsx":
		data, err = export.BuildSearchXLSX(run)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		data, err = export.BuildSearchPDF(run)
		contentType = "application/pdf"
	}
	if err != nil {
		metrics.ObserveSearchExport(format, metrics.ResultError, time.Since(started))
		h.logf("event=search_export_failed run_id=%s format=%s error=%v", run.ID, format, err)
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	metrics.ObserveSearchExport(format, metrics.ResultSuccess, time.Since(started))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=search-%s.%s", run.ID, format))
	_, _ = w.Write(data)
}

func (h *Handler) loadRun(w http.ResponseWriter, r *http.Request) (*evaluation.SearchRun, bool) {
	id := mux.Vars(r)["id"]
	run, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, evaluation.ErrRunNotFound) || errors.Is(err, evaluation.ErrEmptyRunID) {
			http.Error(w, "search not found", http.StatusNotFound)
			return nil, false
		}
		h.logf("event=search_get_failed run_id=%s error=%v", id, err)
		http.Error(w, "query search error", http.StatusInternalServerError)
		return nil, false
	}
	return run, true
}

func (h *Handler) logf(format string, args ...any) {
	if h.logger == nil {
		return
	}
	h.logger.Printf(format, args...)
}

// decodeBody decodes JSON into v. An empty body leaves v unchanged.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
