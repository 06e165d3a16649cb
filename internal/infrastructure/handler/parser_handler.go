// Package handler internal/infrastructure/handler/parser_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/valutatrade/parser-service/internal/application/service"
	"github.com/valutatrade/parser-service/internal/domain/entity"
	"github.com/valutatrade/parser-service/internal/infrastructure/logger"
	"github.com/valutatrade/parser-service/internal/infrastructure/middleware"
)

const defaultHistoryLimit = 50

// ParserHandler handles the update lifecycle, status and history
// endpoints.
type ParserHandler struct {
	service *service.RateCacheService
	logger  logger.Logger
}

// NewParserHandler creates a new parser lifecycle handler.
func NewParserHandler(svc *service.RateCacheService, log logger.Logger) *ParserHandler {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &ParserHandler{service: svc, logger: log}
}

// Update triggers a cache refresh.
func (h *ParserHandler) Update(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	h.logger.Info("Handling update request", map[string]interface{}{
		"request_id": requestID,
	})

	report, err := h.service.Update(r.Context())
	if err != nil {
		if errors.Is(err, entity.ErrUpdateInProgress) {
			h.logger.Warn("Concurrent update rejected", map[string]interface{}{
				"request_id": requestID,
			})
			sendErrorResponse(w, h.logger, "Update already in progress",
				"Another update is running. Retry once it completes.", http.StatusConflict, requestID)
			return
		}
		h.logger.Error("Unexpected error in update handler", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
		sendErrorResponse(w, h.logger, "Internal server error",
			"An unexpected error occurred. Please try again later.",
			http.StatusInternalServerError, requestID)
		return
	}

	resp := UpdateResponse{
		Fetched:    report.Fetched,
		Merged:     report.Merged,
		Evicted:    report.Evicted,
		Sources:    report.Sources,
		Version:    report.Version,
		DurationMS: report.Duration.Milliseconds(),
		Degraded:   report.Degraded,
		Warning:    report.Warning,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Status reports the cache state.
func (h *ParserHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := h.service.Status(r.Context())

	resp := StatusResponse{
		PairCount:  status.PairCount,
		Version:    status.Version,
		AgeSeconds: status.Age.Seconds(),
		Fresh:      status.Fresh,
		Degraded:   status.Degraded,
		Sources:    status.Sources,
	}
	if !status.LastUpdate.IsZero() {
		resp.LastUpdate = status.LastUpdate.UTC().Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// History returns archived quotes for one pair, newest first.
func (h *ParserHandler) History(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	vars := mux.Vars(r)
	from, to := vars["from"], vars["to"]

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			sendErrorResponse(w, h.logger, "Invalid limit parameter",
				"The 'limit' query parameter must be a positive integer", http.StatusBadRequest, requestID)
			return
		}
		limit = parsed
	}

	entries, err := h.service.History(r.Context(), from, to, limit)
	if err != nil {
		if errors.Is(err, entity.ErrInvalidCurrency) {
			sendErrorResponse(w, h.logger, "Invalid currency",
				err.Error(), http.StatusBadRequest, requestID)
			return
		}
		h.logger.Error("Unexpected error in history handler", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
		sendErrorResponse(w, h.logger, "Internal server error",
			"An unexpected error occurred. Please try again later.",
			http.StatusInternalServerError, requestID)
		return
	}

	resp := HistoryResponse{
		Pair:    strings.ToUpper(from + to),
		Entries: make([]HistoryItem, 0, len(entries)),
		Total:   len(entries),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, HistoryItem{
			ID:         e.ID,
			Base:       e.Base.String(),
			Quote:      e.Quote.String(),
			Rate:       e.Rate.String(),
			ObservedAt: e.ObservedAt.UTC().Format(time.RFC3339),
			Source:     e.Source,
			RecordedAt: e.RecordedAt.UTC().Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Health is a liveness probe.
func (h *ParserHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// RegisterRoutes registers the parser lifecycle routes.
func (h *ParserHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/update", h.Update).Methods("POST")
	router.HandleFunc("/status", h.Status).Methods("GET")
	router.HandleFunc("/history/{from}/{to}", h.History).Methods("GET")
	router.HandleFunc("/health", h.Health).Methods("GET")

	h.logger.Info("Parser routes registered", map[string]interface{}{
		"routes": []string{
			"POST /update",
			"GET /status",
			"GET /history/{from}/{to}",
			"GET /health",
		},
	})
}
