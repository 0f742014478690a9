package reports

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"accessgov/internal/domain/auth"
	"accessgov/internal/domain/reports"
	"accessgov/internal/transport/http/api"
	"accessgov/internal/transport/http/middleware"
)

type Handler struct {
	Reports *reports.Service
}

func New(reportsSvc *reports.Service) *Handler {
	return &Handler{Reports: reportsSvc}
}

func (h *Handler) Mount(r chi.Router) {
	read := middleware.RequirePermission(auth.PermReportsRead)

	r.With(read).Get("/dashboard", h.dashboard)
	r.With(read).Get("/users/{id}/access", h.userAccess)
	r.With(read).Get("/dormant-accounts", h.dormantAccounts)
	r.With(read).Get("/recertification", h.recertification)
	r.With(read).Get("/campaigns/{id}/pdf", h.campaignPDF)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	stats, err := h.Reports.Dashboard(r.Context(), user.OrgID)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Success(w, stats, reqID)
}

func (h *Handler) userAccess(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	report, err := h.Reports.UserAccessReport(r.Context(), user.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Success(w, report, reqID)
}

func (h *Handler) dormantAccounts(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	days := 90
	if raw := r.URL.Query().Get("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			days = parsed
		}
	}

	dormant, err := h.Reports.DormantAccounts(r.Context(), user.OrgID, days)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Success(w, dormant, reqID)
}

func (h *Handler) recertification(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	summary, err := h.Reports.RecertificationSummary(r.Context(), user.OrgID)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Success(w, summary, reqID)
}

func (h *Handler) campaignPDF(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	pdf, err := h.Reports.CampaignReportPDF(r.Context(), user.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="campaign-report.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
