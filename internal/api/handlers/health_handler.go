package handlers

import (
	"net/http"

	"github.com/formbricks/image-embedding-skill/internal/api/response"
)

// HealthHandler handles liveness checks. It does not call the vision service.
type HealthHandler struct{}

// NewHealthHandler creates a new health handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Check handles GET /health.
func (h *HealthHandler) Check(w http.ResponseWriter, _ *http.Request) {
	response.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

