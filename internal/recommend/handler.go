package recommend

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/byteos/intelligence/internal/learner"
	"github.com/byteos/intelligence/internal/logger"
	"github.com/byteos/intelligence/internal/middleware"
	"github.com/byteos/intelligence/internal/models"
)

const maxBodyBytes = 64 << 10

type Handler struct {
	service  *Service
	validate *validator.Validate
	log      *logger.Logger
}

func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log.With("component", "recommend.handler"),
	}
}

// ── Next Action ───────────────────────────────────────────

func (h *Handler) NextAction(w http.ResponseWriter, r *http.Request) {
	var req models.NextActionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "user_id must be a UUID"})
		return
	}
	if !middleware.Authorized(r, req.UserID) {
		writeJSON(w, http.StatusForbidden, models.ErrorResponse{Error: "Token does not match user_id"})
		return
	}

	rec, err := h.service.NextAction(r.Context(), req.UserID, req.CurrentEnrollmentIDs, req.Force)
	if err != nil {
		learner.WriteStoreError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NextActionResponse{
		ActionType: rec.Action.ActionType,
		TargetID:   rec.Action.TargetID,
		Reason:     rec.Action.Reason,
		Confidence: rec.Action.Confidence,
		Metadata: models.NextActionMetadata{
			Cached:                rec.Cached,
			Narrated:              rec.Action.Narrated,
			ComputedAt:            rec.Action.ComputedAt,
			EnrollmentsConsidered: rec.EnrollmentsConsidered,
			OpenSkillGaps:         rec.OpenSkillGaps,
		},
	})
}

// ── Modality ──────────────────────────────────────────────

func (h *Handler) RecommendModality(w http.ResponseWriter, r *http.Request) {
	var req models.ModalityRecommendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "user_id, module_id and current_modality are required"})
		return
	}
	if !middleware.Authorized(r, req.UserID) {
		writeJSON(w, http.StatusForbidden, models.ErrorResponse{Error: "Token does not match user_id"})
		return
	}

	advice, err := h.service.RecommendModality(r.Context(), req.UserID, req.ModuleID, req.CurrentModality)
	if err != nil {
		learner.WriteStoreError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, models.ModalityRecommendResponse{
		RecommendedModality: advice.RecommendedModality,
		Confidence:          advice.Confidence,
		Reason:              advice.Reason,
		Switch:              advice.Switch,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
