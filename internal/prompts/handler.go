package prompts

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/parley-ai/parley/internal/api"
)

// Handler serves the admin prompt-management endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var userID *uuid.UUID
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			api.HandleError(w, api.NewBadRequestError("invalid user_id filter"))
			return
		}
		userID = &id
	}

	list, err := h.svc.List(r.Context(), userID)
	if err != nil {
		slog.Error("listing custom prompts", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if list == nil {
		list = []CustomPrompt{}
	}

	api.JSON(w, http.StatusOK, list)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid user_id"))
		return
	}

	p, err := h.svc.Create(r.Context(), userID, &req)
	if err != nil {
		slog.Error("creating custom prompt", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	promptID, err := uuid.Parse(chi.URLParam(r, "promptID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid prompt ID"))
		return
	}

	deleted, err := h.svc.Delete(r.Context(), promptID)
	if err != nil {
		slog.Error("deleting custom prompt", "error", err, "prompt_id", promptID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if !deleted {
		api.HandleError(w, api.NewNotFoundError("prompt not found"))
		return
	}

	api.JSONMessage(w, http.StatusOK, "prompt deleted")
}
