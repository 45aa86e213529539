// Package api exposes the recommendation pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	apperrors "recommendation-backend/internal/common/errors"
	"recommendation-backend/internal/common/logger"
	"recommendation-backend/internal/common/validation"
	"recommendation-backend/internal/models"
)

// maxBodyBytes caps the request body size; recommendation requests are tiny.
const maxBodyBytes = 64 << 10

// Recommender is the service surface the handler depends on.
type Recommender interface {
	Recommend(ctx context.Context, req models.Request) (*models.Response, error)
}

// Handler serves the recommendation endpoint plus health.
type Handler struct {
	service        Recommender
	validator      *validation.RequestValidator
	requestTimeout time.Duration
	logger         logger.Logger
}

func NewHandler(service Recommender, validator *validation.RequestValidator, requestTimeout time.Duration, log logger.Logger) *Handler {
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	return &Handler{
		service:        service,
		validator:      validator,
		requestTimeout: requestTimeout,
		logger:         log.WithFields(map[string]interface{}{"component": "api"}),
	}
}

// Register mounts the handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/recommendations", h.Recommendations)
	mux.HandleFunc("/healthz", h.Health)
}

// Recommendations handles POST /v1/recommendations.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeError(w, http.StatusMethodNotAllowed, apperrors.NewInvalidRequestError("method not allowed"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, apperrors.NewInvalidRequestError("unreadable request body"))
		return
	}

	if err := h.validator.Validate(body); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	var req models.Request
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, apperrors.NewInvalidRequestError("malformed JSON body"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	resp, err := h.service.Recommend(ctx, req)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeInvalidRequest) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		// The service absorbs every upstream failure; anything else here
		// is a programming error.
		h.logger.Error("recommendation pipeline returned unexpected error", map[string]interface{}{
			"error": err.Error(),
		})
		h.writeError(w, http.StatusInternalServerError, apperrors.NewAllSourcesFailedError())
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// Health is a liveness endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("response encode failed", map[string]interface{}{"error": err.Error()})
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]interface{}{"error": err})
}
