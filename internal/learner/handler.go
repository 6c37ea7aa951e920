package learner

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/byteos/intelligence/internal/logger"
	"github.com/byteos/intelligence/internal/middleware"
	"github.com/byteos/intelligence/internal/models"
)

// maxBodyBytes caps a session upload.
const maxBodyBytes = 1 << 20

type Handler struct {
	service  *Service
	validate *validator.Validate
	log      *logger.Logger
}

func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log.With("component", "learner.handler"),
	}
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.ProfileUpdateRequest
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

	res, err := h.service.UpdateProfile(r.Context(), req.UserID, req.SessionEvents)
	if err != nil {
		WriteStoreError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, models.ProfileUpdateResponse{
		ModalityScoresUpdated: res.Profile.ModalityScores,
		EngagementScore:       res.Profile.EngagementScore,
		StreakDays:            res.Profile.StreakDays,
		Diff:                  res.Diff,
		Metadata:              res.Metadata,
	})
}

// WriteStoreError maps service errors to HTTP responses.
func WriteStoreError(w http.ResponseWriter, log *logger.Logger, err error) {
	var (
		op       string
		attempts int
	)
	var se *StoreError
	if errors.As(err, &se) {
		op, attempts = se.Op, se.Attempts
	}

	switch {
	case errors.Is(err, ErrInvalidLearnerID):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "user_id must be a UUID"})
	case errors.Is(err, ErrStoreUnavailable):
		w.Header().Set("Retry-After", "5")
		writeJSON(w, http.StatusServiceUnavailable, models.ErrorResponse{
			Error:     "Learner store temporarily unavailable",
			Operation: op,
			Attempts:  attempts,
		})
	case errors.Is(err, ErrStoreConflict):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusConflict, models.ErrorResponse{
			Error:     "Profile is being updated concurrently, retry",
			Operation: op,
			Attempts:  attempts,
		})
	default:
		log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
