package campaigns

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"accessgov/internal/domain/audit"
	"accessgov/internal/domain/auth"
	"accessgov/internal/domain/campaign"
	"accessgov/internal/domain/notifications"
	"accessgov/internal/domain/review"
	"accessgov/internal/platform/metrics"
	"accessgov/internal/transport/http/api"
	"accessgov/internal/transport/http/middleware"
	"accessgov/internal/transport/http/shared"
)

type Handler struct {
	Campaigns     *campaign.Service
	Reviews       *review.Service
	Notifications *notifications.Service
	Audit         *audit.Service
}

func New(campaigns *campaign.Service, reviews *review.Service, notif *notifications.Service, auditSvc *audit.Service) *Handler {
	return &Handler{Campaigns: campaigns, Reviews: reviews, Notifications: notif, Audit: auditSvc}
}

func (h *Handler) Mount(r chi.Router) {
	r.With(middleware.RequirePermission(auth.PermCampaignsRead)).Get("/", h.list)
	r.With(middleware.RequirePermission(auth.PermCampaignsWrite)).Post("/", h.create)
	r.With(middleware.RequirePermission(auth.PermCampaignsRead)).Get("/{id}", h.get)
	r.With(middleware.RequirePermission(auth.PermCampaignsWrite)).Patch("/{id}", h.update)
	r.With(middleware.RequirePermission(auth.PermCampaignsWrite)).Delete("/{id}", h.delete)
	r.With(middleware.RequirePermission(auth.PermCampaignsLaunch)).Post("/{id}/launch", h.launch)
	r.With(middleware.RequirePermission(auth.PermCampaignsWrite)).Post("/{id}/cancel", h.cancel)
	r.With(middleware.RequirePermission(auth.PermCampaignsWrite)).Post("/{id}/complete", h.complete)
	r.With(middleware.RequirePermission(auth.PermCampaignsRead)).Get("/{id}/stats", h.stats)
	r.With(middleware.RequirePermission(auth.PermCampaignsRead)).Get("/{id}/reviewers", h.reviewers)
	r.With(middleware.RequirePermission(auth.PermCampaignsRead)).Get("/{id}/items", h.items)
}

type createRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Type        string          `json:"type"`
	Scope       json.RawMessage `json:"scope"`
	StartDate   string          `json:"startDate"`
	EndDate     string          `json:"endDate"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", reqID)
		return
	}

	v := shared.NewValidator()
	v.Required("name", req.Name, "name is required")
	v.Required("type", req.Type, "type is required")
	v.Enum("type", req.Type, campaign.Types, "must be one of manager_review, application_owner, both, ad_hoc")
	var start, end *time.Time
	if req.StartDate != "" {
		if parsed, ok := v.Date("startDate", req.StartDate); ok {
			start = &parsed
		}
	}
	if req.EndDate != "" {
		if parsed, ok := v.Date("endDate", req.EndDate); ok {
			end = &parsed
		}
	}
	if start != nil && end != nil {
		v.DateOrder("startDate", *start, "endDate", *end)
	}
	if v.Reject(w, reqID) {
		return
	}

	created, err := h.Campaigns.Create(r.Context(), user.OrgID, campaign.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		Scope:       req.Scope,
		StartDate:   start,
		EndDate:     end,
		CreatedBy:   user.UserID,
	})
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}

	h.Audit.RecordOrLog(r.Context(), user.OrgID, user.UserID, "campaign.create", "campaign", created.ID, reqID, shared.ClientIP(r), nil, created)
	api.Created(w, created, reqID)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	page := shared.ParsePagination(r, 20, 100)
	filter := campaign.Filter{
		Status: r.URL.Query().Get("status"),
		Type:   r.URL.Query().Get("type"),
	}

	total, err := h.Campaigns.Count(r.Context(), user.OrgID, filter)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	items, err := h.Campaigns.List(r.Context(), user.OrgID, filter, page.Limit, page.Offset)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.SuccessPaged(w, items, shared.PageMeta{Limit: page.Limit, Offset: page.Offset, Total: total}, reqID)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	c, err := h.Campaigns.Get(r.Context(), user.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Success(w, c, reqID)
}

type updateRequest struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	StartDate   *string         `json:"startDate"`
	EndDate     *string         `json:"endDate"`
	Scope       json.RawMessage `json:"scope"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	campaignID := chi.URLParam(r, "id")

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", reqID)
		return
	}

	v := shared.NewValidator()
	fields := map[string]any{}
	if req.Name != nil {
		v.Required("name", *req.Name, "name cannot be blank")
		fields["name"] = *req.Name
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.StartDate != nil {
		if parsed, ok := v.Date("startDate", *req.StartDate); ok {
			fields["startDate"] = parsed
		}
	}
	if req.EndDate != nil {
		if parsed, ok := v.Date("endDate", *req.EndDate); ok {
			fields["endDate"] = parsed
		}
	}
	if v.Reject(w, reqID) {
		return
	}

	before, err := h.Campaigns.Get(r.Context(), user.OrgID, campaignID)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	updated, err := h.Campaigns.Update(r.Context(), user.OrgID, campaignID, fields, req.Scope)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}

	h.Audit.RecordOrLog(r.Context(), user.OrgID, user.UserID, "campaign.update", "campaign", campaignID, reqID, shared.ClientIP(r), before, updated)
	api.Success(w, updated, reqID)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	campaignID := chi.URLParam(r, "id")

	before, err := h.Campaigns.Get(r.Context(), user.OrgID, campaignID)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	if err := h.Campaigns.Delete(r.Context(), user.OrgID, campaignID); err != nil {
		api.FailFromError(w, err, reqID)
		return
	}

	h.Audit.RecordOrLog(r.Context(), user.OrgID, user.UserID, "campaign.delete", "campaign", campaignID, reqID, shared.ClientIP(r), before, nil)
	api.Success(w, map[string]string{"deleted": campaignID}, reqID)
}

func (h *Handler) launch(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	campaignID := chi.URLParam(r, "id")

	result, err := h.Campaigns.Launch(r.Context(), user.OrgID, campaignID)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	metrics.RecordCampaignLaunch()

	if _, err := h.Notifications.NotifyAssignedReviewers(r.Context(), user.OrgID, campaignID, result.Campaign.Name); err != nil {
		// Launch already committed; a failed fan-out must not undo it.
		h.Audit.RecordOrLog(r.Context(), user.OrgID, user.UserID, "campaign.notify_failed", "campaign", campaignID, reqID, shared.ClientIP(r), nil, nil)
	}

	h.Audit.RecordOrLog(r.Context(), user.OrgID, user.UserID, "campaign.launch", "campaign", campaignID, reqID, shared.ClientIP(r), nil, result)
	api.Success(w, result, reqID)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	campaignID := chi.URLParam(r, "id")

	c, err := h.Campaigns.Cancel(r.Context(), user.OrgID, campaignID)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	h.Audit.RecordOrLog(r.Context(), user.OrgID, user.UserID, "campaign.cancel", "campaign", campaignID, reqID, shared.ClientIP(r), nil, c)
	api.Success(w, c, reqID)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	campaignID := chi.URLParam(r, "id")

	c, err := h.Campaigns.Complete(r.Context(), user.OrgID, campaignID)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	h.Audit.RecordOrLog(r.Context(), user.OrgID, user.UserID, "campaign.complete", "campaign", campaignID, reqID, shared.ClientIP(r), nil, c)
	api.Success(w, c, reqID)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	stats, err := h.Campaigns.GetStats(r.Context(), user.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Success(w, stats, reqID)
}

func (h *Handler) reviewers(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	progress, err := h.Campaigns.ReviewerProgress(r.Context(), user.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Success(w, progress, reqID)
}

func (h *Handler) items(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	page := shared.ParsePagination(r, 50, 200)

	items, total, err := h.Reviews.ListCampaignItems(r.Context(), user.OrgID, chi.URLParam(r, "id"),
		r.URL.Query().Get("decision"), page.Limit, page.Offset)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.SuccessPaged(w, items, shared.PageMeta{Limit: page.Limit, Offset: page.Offset, Total: total}, reqID)
}
