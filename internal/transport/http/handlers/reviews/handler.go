package reviews

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"accessgov/internal/domain/audit"
	"accessgov/internal/domain/auth"
	"accessgov/internal/domain/review"
	"accessgov/internal/platform/metrics"
	"accessgov/internal/transport/http/api"
	"accessgov/internal/transport/http/middleware"
	"accessgov/internal/transport/http/shared"
)

type Handler struct {
	Reviews *review.Service
	Audit   *audit.Service
}

func New(reviews *review.Service, auditSvc *audit.Service) *Handler {
	return &Handler{Reviews: reviews, Audit: auditSvc}
}

func (h *Handler) Mount(r chi.Router) {
	r.With(middleware.RequirePermission(auth.PermReviewsRead)).Get("/pending", h.pending)
	r.With(middleware.RequirePermission(auth.PermReviewsRead)).Get("/summary", h.summary)
	r.With(middleware.RequirePermission(auth.PermReviewsRead)).Get("/{id}", h.get)
	r.With(middleware.RequirePermission(auth.PermReviewsDecide)).Post("/{id}/decision", h.decide)
	r.With(middleware.RequirePermission(auth.PermReviewsDecide)).Post("/bulk-approve", h.bulkApprove)
	r.With(middleware.RequirePermission(auth.PermReviewsRead)).Get("/{id}/comments", h.listComments)
	r.With(middleware.RequirePermission(auth.PermReviewsRead)).Post("/{id}/comments", h.addComment)
}

func (h *Handler) pending(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	page := shared.ParsePagination(r, 20, 100)
	filter := review.QueueFilter{
		CampaignID:  r.URL.Query().Get("campaignId"),
		FlaggedOnly: r.URL.Query().Get("flagged") == "true",
	}

	total, err := h.Reviews.CountPending(r.Context(), user.OrgID, user.UserID, filter)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	items, err := h.Reviews.PendingForReviewer(r.Context(), user.OrgID, user.UserID, filter, page.Limit, page.Offset)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.SuccessPaged(w, items, shared.PageMeta{Limit: page.Limit, Offset: page.Offset, Total: total}, reqID)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	sum, err := h.Reviews.Summary(r.Context(), user.OrgID, user.UserID)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Success(w, sum, reqID)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	item, err := h.Reviews.GetItem(r.Context(), user.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Success(w, item, reqID)
}

type decisionRequest struct {
	Decision   string `json:"decision"`
	Rationale  string `json:"rationale"`
	DelegateTo string `json:"delegateTo"`
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	itemID := chi.URLParam(r, "id")

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", reqID)
		return
	}

	before, err := h.Reviews.GetItem(r.Context(), user.OrgID, itemID)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	item, err := h.Reviews.SubmitDecision(r.Context(), user.OrgID, itemID, user.UserID, review.DecisionInput{
		Decision:   req.Decision,
		Rationale:  req.Rationale,
		DelegateTo: req.DelegateTo,
	})
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	metrics.RecordDecision(req.Decision)

	h.Audit.RecordOrLog(r.Context(), user.OrgID, user.UserID, "review.decide", "review_item", itemID, reqID, shared.ClientIP(r), before, item)
	api.Success(w, item, reqID)
}

type bulkApproveRequest struct {
	ItemIDs   []string `json:"itemIds"`
	Rationale string   `json:"rationale"`
}

func (h *Handler) bulkApprove(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	var req bulkApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", reqID)
		return
	}

	result, err := h.Reviews.BulkApprove(r.Context(), user.OrgID, user.UserID, req.ItemIDs, req.Rationale)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	for i := 0; i < result.Approved; i++ {
		metrics.RecordDecision(review.DecisionApproved)
	}

	h.Audit.RecordOrLog(r.Context(), user.OrgID, user.UserID, "review.bulk_approve", "review_item", "", reqID, shared.ClientIP(r), nil, result)
	api.Success(w, result, reqID)
}

type commentRequest struct {
	Body string `json:"body"`
}

func (h *Handler) addComment(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	itemID := chi.URLParam(r, "id")

	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", reqID)
		return
	}

	comment, err := h.Reviews.AddComment(r.Context(), user.OrgID, itemID, user.UserID, req.Body)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Created(w, comment, reqID)
}

func (h *Handler) listComments(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	comments, err := h.Reviews.ListComments(r.Context(), user.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Success(w, comments, reqID)
}
