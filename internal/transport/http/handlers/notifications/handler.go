package notifications

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"accessgov/internal/domain/notifications"
	"accessgov/internal/transport/http/api"
	"accessgov/internal/transport/http/middleware"
	"accessgov/internal/transport/http/shared"
)

type Handler struct {
	Notifications *notifications.Service
}

func New(notif *notifications.Service) *Handler {
	return &Handler{Notifications: notif}
}

// Notification routes are self-scoped: any authenticated user reads only
// their own feed, so there is no permission gate beyond authentication.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/unread-count", h.unreadCount)
	r.Post("/{id}/read", h.markRead)
	r.Post("/read-all", h.markAllRead)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}
	page := shared.ParsePagination(r, 20, 100)

	items, err := h.Notifications.ListForUser(r.Context(), user.OrgID, user.UserID,
		r.URL.Query().Get("unread") == "true", page.Limit, page.Offset)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Success(w, items, reqID)
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	count, err := h.Notifications.UnreadCount(r.Context(), user.OrgID, user.UserID)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Success(w, map[string]int{"unread": count}, reqID)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	if err := h.Notifications.MarkRead(r.Context(), user.OrgID, user.UserID, chi.URLParam(r, "id")); err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Success(w, map[string]bool{"read": true}, reqID)
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}

	marked, err := h.Notifications.MarkAllRead(r.Context(), user.OrgID, user.UserID)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Success(w, map[string]int{"marked": marked}, reqID)
}
