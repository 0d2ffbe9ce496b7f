package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/parley-ai/parley/internal/api"
	"github.com/parley-ai/parley/internal/auth"
)

// Handler serves chat history management. The completion endpoint itself
// lives in the orchestrator package.
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

func currentUserID(r *http.Request) (uuid.UUID, bool) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	params := DefaultListParams()
	if p := r.URL.Query().Get("page"); p != "" {
		if page, err := strconv.Atoi(p); err == nil && page > 0 {
			params.Page = page
		}
	}
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if pageSize, err := strconv.Atoi(ps); err == nil && pageSize > 0 && pageSize <= 100 {
			params.PageSize = pageSize
		}
	}

	list, total, err := h.svc.List(r.Context(), userID, params)
	if err != nil {
		slog.Error("listing chats", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if list == nil {
		list = []Chat{}
	}

	api.JSONPaginated(w, http.StatusOK, list, total, params.Page, params.PageSize)
}

func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	chatID, err := uuid.Parse(chi.URLParam(r, "chatID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid chat ID"))
		return
	}

	messages, err := h.svc.History(r.Context(), chatID, userID)
	if err != nil {
		if errors.Is(err, ErrNotOwner) {
			api.HandleError(w, api.ErrUnauthorized)
			return
		}
		slog.Error("loading chat history", "error", err, "chat_id", chatID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if messages == nil {
		api.HandleError(w, api.NewNotFoundError("chat not found"))
		return
	}

	api.JSON(w, http.StatusOK, messages)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	chatID, err := uuid.Parse(chi.URLParam(r, "chatID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid chat ID"))
		return
	}

	deleted, err := h.svc.Delete(r.Context(), chatID, userID)
	if err != nil {
		if errors.Is(err, ErrNotOwner) {
			api.HandleError(w, api.ErrUnauthorized)
			return
		}
		slog.Error("deleting chat", "error", err, "chat_id", chatID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if !deleted {
		api.HandleError(w, api.NewNotFoundError("chat not found"))
		return
	}

	api.JSONMessage(w, http.StatusOK, "chat deleted")
}

func (h *Handler) UpdateVisibility(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	chatID, err := uuid.Parse(chi.URLParam(r, "chatID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid chat ID"))
		return
	}

	var req UpdateVisibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	updated, err := h.svc.SetVisibility(r.Context(), chatID, userID, req.Visibility)
	if err != nil {
		if errors.Is(err, ErrNotOwner) {
			api.HandleError(w, api.ErrUnauthorized)
			return
		}
		slog.Error("updating chat visibility", "error", err, "chat_id", chatID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if !updated {
		api.HandleError(w, api.NewNotFoundError("chat not found"))
		return
	}

	api.JSONMessage(w, http.StatusOK, "visibility updated")
}
