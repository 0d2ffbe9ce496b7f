package usage

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/parley-ai/parley/internal/api"
)

const dateLayout = "2006-01-02"

// Handler serves the admin usage report.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	var params ReportParams

	if raw := r.URL.Query().Get("start_date"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			api.HandleError(w, api.NewBadRequestError("invalid start_date, expected YYYY-MM-DD"))
			return
		}
		params.Start = t
	}
	if raw := r.URL.Query().Get("end_date"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			api.HandleError(w, api.NewBadRequestError("invalid end_date, expected YYYY-MM-DD"))
			return
		}
		params.End = t
	}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			api.HandleError(w, api.NewBadRequestError("invalid user_id filter"))
			return
		}
		params.UserID = &id
	}

	if !params.Start.IsZero() && !params.End.IsZero() && params.End.Before(params.Start) {
		api.HandleError(w, api.NewBadRequestError("end_date precedes start_date"))
		return
	}

	report, err := h.svc.Report(r.Context(), params)
	if err != nil {
		slog.Error("building usage report", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, report)
}
