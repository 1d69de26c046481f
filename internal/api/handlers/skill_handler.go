package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/formbricks/image-embedding-skill/internal/api/response"
	"github.com/formbricks/image-embedding-skill/internal/api/validation"
	"github.com/formbricks/image-embedding-skill/internal/models"
)

// SkillEnricher turns skill records into vector results (implemented by service.SkillService).
type SkillEnricher interface {
	Enrich(ctx context.Context, records []models.SkillRecord, kind models.InputKind) []models.SkillResponseRecord
}

// SkillHandler serves the custom skill / custom vectorizer endpoints.
type SkillHandler struct {
	service SkillEnricher
	logger  *slog.Logger
}

// NewSkillHandler creates a new skill handler. A nil logger uses slog.Default().
func NewSkillHandler(service SkillEnricher, logger *slog.Logger) *SkillHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &SkillHandler{service: service, logger: logger}
}

// GetImageEmbedding handles POST /GetImageEmbedding.
// Records carry data.imageUrl; each result carries data.vector or errors.
func (h *SkillHandler) GetImageEmbedding(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, models.InputKindImage)
}

// GetTextEmbedding handles POST /GetTextEmbedding.
// Records carry data.text; vectors share the image embedding space.
func (h *SkillHandler) GetTextEmbedding(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, models.InputKindText)
}

func (h *SkillHandler) handle(w http.ResponseWriter, r *http.Request, kind models.InputKind) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		// MaxBody replaces this response with a 413 when the limit was the cause.
		h.logger.WarnContext(ctx, "failed to read request body", "error", err)
		response.RespondBadRequest(w, "Failed to read request body")

		return
	}

	h.logger.DebugContext(ctx, "skill request received", "kind", kind, "body", string(body))

	req, err := validation.DecodeSkillRequest(body, kind)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid skill request", "kind", kind, "error", err)
		validation.RespondValidationError(w, err)

		return
	}

	resp := models.SkillResponse{Values: h.service.Enrich(ctx, req.Values, kind)}

	if h.logger.Enabled(ctx, slog.LevelDebug) {
		if out, err := json.Marshal(resp); err == nil {
			h.logger.DebugContext(ctx, "skill response ready", "kind", kind, "records", len(resp.Values), "body", string(out))
		}
	}

	response.RespondJSON(w, http.StatusOK, resp)
}
