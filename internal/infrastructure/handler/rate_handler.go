// Package handler internal/infrastructure/handler/rate_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/valutatrade/parser-service/internal/application/service"
	"github.com/valutatrade/parser-service/internal/domain/entity"
	"github.com/valutatrade/parser-service/internal/infrastructure/logger"
	"github.com/valutatrade/parser-service/internal/infrastructure/middleware"
)

// RateHandler handles HTTP requests for rate queries.
type RateHandler struct {
	service *service.RateCacheService
	logger  logger.Logger
}

// NewRateHandler creates a new rate query handler.
func NewRateHandler(svc *service.RateCacheService, log logger.Logger) *RateHandler {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &RateHandler{service: svc, logger: log}
}

// GetRate handles resolving a single rate between two currencies.
func (h *RateHandler) GetRate(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	vars := mux.Vars(r)
	from, to := vars["from"], vars["to"]

	h.logger.Info("Handling get rate request", map[string]interface{}{
		"request_id": requestID,
		"from":       from,
		"to":         to,
	})

	quote, err := h.service.GetRate(r.Context(), from, to)
	if err != nil {
		h.sendServiceError(w, r, err, requestID)
		return
	}

	path := make([]string, len(quote.Path))
	for i, code := range quote.Path {
		path[i] = code.String()
	}
	resp := RateResponse{
		Base:        quote.Base.String(),
		Quote:       quote.Quote.String(),
		Rate:        quote.Rate.String(),
		InverseRate: quote.InverseRate.String(),
		Path:        path,
		Direct:      quote.Direct,
		Source:      quote.Source,
		Fresh:       quote.Fresh,
	}
	if !quote.ObservedAt.IsZero() {
		resp.ObservedAt = quote.ObservedAt.UTC().Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ListRates handles listing cached pairs with optional currency and top-n
// filters.
func (h *RateHandler) ListRates(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	filter := service.ListFilter{Currency: r.URL.Query().Get("currency")}
	if raw := r.URL.Query().Get("top"); raw != "" {
		top, err := strconv.Atoi(raw)
		if err != nil || top < 1 {
			h.logger.Warn("Invalid top parameter", map[string]interface{}{
				"request_id": requestID,
				"top":        raw,
			})
			sendErrorResponse(w, h.logger, "Invalid top parameter",
				"The 'top' query parameter must be a positive integer", http.StatusBadRequest, requestID)
			return
		}
		filter.TopN = top
	}

	h.logger.Info("Handling list rates request", map[string]interface{}{
		"request_id": requestID,
		"currency":   filter.Currency,
		"top":        filter.TopN,
	})

	pairs, err := h.service.ListRates(r.Context(), filter)
	if err != nil {
		h.sendServiceError(w, r, err, requestID)
		return
	}

	status := h.service.Status(r.Context())
	resp := RateListResponse{
		Rates:   make([]RateListItem, 0, len(pairs)),
		Total:   len(pairs),
		Version: status.Version,
	}
	if !status.LastUpdate.IsZero() {
		resp.LastUpdate = status.LastUpdate.UTC().Format(time.RFC3339)
	}
	for _, p := range pairs {
		resp.Rates = append(resp.Rates, RateListItem{
			Base:       p.Base.String(),
			Quote:      p.Quote.String(),
			Rate:       p.Rate.String(),
			ObservedAt: p.ObservedAt.UTC().Format(time.RFC3339),
			Source:     p.Source,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// sendServiceError maps domain errors to HTTP statuses.
func (h *RateHandler) sendServiceError(w http.ResponseWriter, r *http.Request, err error, requestID string) {
	switch {
	case errors.Is(err, entity.ErrInvalidCurrency):
		h.logger.Warn("Unrecognized currency in query", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
		sendErrorResponse(w, h.logger, "Invalid currency",
			err.Error(), http.StatusBadRequest, requestID)
	case errors.Is(err, entity.ErrRateNotFound):
		h.logger.Warn("No path between currencies", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
		sendErrorResponse(w, h.logger, "Rate not found",
			"No direct or composed rate connects the requested currencies. Try 'update' to refresh the cache.",
			http.StatusNotFound, requestID)
	default:
		h.logger.Error("Unexpected error in rate handler", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
		sendErrorResponse(w, h.logger, "Internal server error",
			"An unexpected error occurred. Please try again later.",
			http.StatusInternalServerError, requestID)
	}
}

// RegisterRoutes registers the rate query routes.
func (h *RateHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/rates/{from}/{to}", h.GetRate).Methods("GET")
	router.HandleFunc("/rates", h.ListRates).Methods("GET")

	h.logger.Info("Rate routes registered", map[string]interface{}{
		"routes": []string{
			"GET /rates/{from}/{to}",
			"GET /rates",
		},
	})
}

func sendErrorResponse(w http.ResponseWriter, log logger.Logger, message, description string, statusCode int, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error:       message,
		Status:      statusCode,
		Description: description,
		RequestID:   requestID,
	}

	log.Debug("Sending error response", map[string]interface{}{
		"request_id":  requestID,
		"status_code": statusCode,
		"message":     message,
	})

	json.NewEncoder(w).Encode(resp)
}
