package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/meridianpe/meridian/backend/internal/metrics"
	"github.com/meridianpe/meridian/backend/internal/portfolio"
	"github.com/meridianpe/meridian/backend/pkg/logger"
)

// PortfolioHandler handles portfolio metrics API endpoints.
type PortfolioHandler struct {
	service *portfolio.Service
	logger  *logger.Logger
}

// NewPortfolioHandler creates a new portfolio handler.
func NewPortfolioHandler(service *portfolio.Service, log *logger.Logger) *PortfolioHandler {
	return &PortfolioHandler{
		service: service,
		logger:  log,
	}
}

// Calculate computes portfolio metrics for a composition and date range.
// POST /api/portfolio/metrics
func (h *PortfolioHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req portfolio.CalculationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}

	result, err := h.service.Calculate(ctx, &req)
	if err != nil {
		h.respondCalculateError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *PortfolioHandler) respondCalculateError(w http.ResponseWriter, err error) {
	var insufficient *metrics.InsufficientDataError
	switch {
	case errors.Is(err, metrics.ErrValidation):
		respondError(w, http.StatusBadRequest, "validation failed", err.Error())
	case errors.As(err, &insufficient):
		respondError(w, http.StatusUnprocessableEntity, "insufficient data", insufficient.Error())
	default:
		h.logger.WithError(err).Error("Metrics calculation failed")
		respondError(w, http.StatusInternalServerError, "calculation failed", "")
	}
}

// Hash returns the cache key for a composition without computing metrics.
// GET /api/portfolio/hash?tickers=AAPL,MSFT&weights=0.6,0.4
func (h *PortfolioHandler) Hash(w http.ResponseWriter, r *http.Request) {
	tickers := splitParam(r.URL.Query().Get("tickers"))
	weightParams := splitParam(r.URL.Query().Get("weights"))

	weights := make([]float64, 0, len(weightParams))
	for _, p := range weightParams {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation failed", "invalid weight: "+p)
			return
		}
		weights = append(weights, f)
	}

	hash, err := h.service.Hash(&portfolio.CalculationRequest{Tickers: tickers, Weights: weights})
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"portfolioHash": hash,
	})
}

func splitParam(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
