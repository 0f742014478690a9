package auditlog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"accessgov/internal/domain/audit"
	"accessgov/internal/domain/auth"
	"accessgov/internal/transport/http/api"
	"accessgov/internal/transport/http/middleware"
	"accessgov/internal/transport/http/shared"
)

type Handler struct {
	Audit *audit.Service
}

func New(auditSvc *audit.Service) *Handler {
	return &Handler{Audit: auditSvc}
}

func (h *Handler) Mount(r chi.Router) {
	r.With(middleware.RequirePermission(auth.PermAuditRead)).Get("/", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	page := shared.ParsePagination(r, 50, 200)
	filter := audit.Filter{
		Action:     r.URL.Query().Get("action"),
		EntityType: r.URL.Query().Get("entityType"),
		ActorUser:  r.URL.Query().Get("actorId"),
	}

	total, err := h.Audit.Count(r.Context(), user.OrgID, filter)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	events, err := h.Audit.List(r.Context(), user.OrgID, filter,
		r.URL.Query().Get("details") == "true", page.Limit, page.Offset)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.SuccessPaged(w, events, shared.PageMeta{Limit: page.Limit, Offset: page.Offset, Total: total}, reqID)
}
