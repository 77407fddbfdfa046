package handlers

import (
	"net/http"
	"time"

	"github.com/meridianpe/meridian/backend/pkg/config"
	"github.com/meridianpe/meridian/backend/pkg/database"
	"github.com/meridianpe/meridian/backend/pkg/logger"
	"github.com/meridianpe/meridian/backend/pkg/redis"
)

// HealthHandler reports service health: database, redis and provider config.
type HealthHandler struct {
	cfg    *config.Config
	db     *database.DB
	redis  *redis.Client
	logger *logger.Logger
}

// NewHealthHandler creates a new health handler. db may be nil when the
// server runs without a database.
func NewHealthHandler(cfg *config.Config, db *database.DB, rdb *redis.Client, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		cfg:    cfg,
		db:     db,
		redis:  rdb,
		logger: log,
	}
}

// Check returns server health status.
// GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload := map[string]interface{}{
		"status":    "ok",
		"service":   "meridian-api",
		"timestamp": time.Now().UTC(),
		"marketData": map[string]interface{}{
			"configured": h.cfg.MarketData.APIKey != "",
		},
		"narrative": map[string]interface{}{
			"enabled": h.cfg.Narrative.Enabled,
		},
	}

	status := http.StatusOK

	if h.db != nil {
		dbHealth, err := h.db.HealthCheck(ctx)
		payload["database"] = dbHealth
		if err != nil {
			payload["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	if h.redis != nil {
		payload["redis"] = map[string]interface{}{
			"enabled": h.redis.Enabled(),
		}
	}

	respondJSON(w, status, payload)
}
