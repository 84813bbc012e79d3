package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"portal/internal/platform/gateway"
)

type HealthHandler struct {
	db *sql.DB
	gw *gateway.Client
}

func NewHealthHandler(db *sql.DB, gw *gateway.Client) *HealthHandler {
	return &HealthHandler{db: db, gw: gw}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if err := h.db.Ping(); err != nil {
		checks["metadata_db"] = "unhealthy: " + err.Error()
	} else {
		checks["metadata_db"] = "healthy"
	}

	if h.gw.HealthCheck(r.Context()) {
		checks["gateway"] = "healthy"
	} else {
		checks["gateway"] = "unhealthy: admin API unreachable"
	}

	status := "healthy"
	for _, check := range checks {
		if len(check) >= 9 && check[:9] == "unhealthy" {
			status = "degraded"
			break
		}
	}

	response := struct {
		Status    string            `json:"status"`
		Timestamp int64             `json:"timestamp"`
		Checks    map[string]string `json:"checks"`
	}{
		Status:    status,
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}
