package sodrules

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"accessgov/internal/domain/audit"
	"accessgov/internal/domain/auth"
	"accessgov/internal/domain/sod"
	"accessgov/internal/platform/metrics"
	"accessgov/internal/transport/http/api"
	"accessgov/internal/transport/http/middleware"
	"accessgov/internal/transport/http/shared"
)

type Handler struct {
	SOD   *sod.Service
	Audit *audit.Service
}

func New(sodSvc *sod.Service, auditSvc *audit.Service) *Handler {
	return &Handler{SOD: sodSvc, Audit: auditSvc}
}

func (h *Handler) Mount(r chi.Router) {
	r.With(middleware.RequirePermission(auth.PermSODRead)).Get("/rules", h.listRules)
	r.With(middleware.RequirePermission(auth.PermSODWrite)).Post("/rules", h.createRule)
	r.With(middleware.RequirePermission(auth.PermSODRead)).Get("/rules/{id}", h.getRule)
	r.With(middleware.RequirePermission(auth.PermSODWrite)).Patch("/rules/{id}", h.updateRule)
	r.With(middleware.RequirePermission(auth.PermSODWrite)).Delete("/rules/{id}", h.deactivateRule)
	r.With(middleware.RequirePermission(auth.PermSODWrite)).Post("/detect", h.detect)
	r.With(middleware.RequirePermission(auth.PermSODWrite)).Post("/detect/{userId}", h.detectUser)
	r.With(middleware.RequirePermission(auth.PermSODRead)).Get("/violations", h.listViolations)
	r.With(middleware.RequirePermission(auth.PermSODResolve)).Post("/violations/{id}/resolve", h.resolveViolation)
}

type ruleRequest struct {
	Name                      string   `json:"name"`
	Description               string   `json:"description"`
	ConflictingRoleIDs        []string `json:"conflictingRoleIds"`
	Severity                  string   `json:"severity"`
	ProcessArea               string   `json:"processArea"`
	ApplicationIDs            []string `json:"applicationIds"`
	AutoRemediate             bool     `json:"autoRemediate"`
	RequiresExceptionApproval *bool    `json:"requiresExceptionApproval"`
}

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", reqID)
		return
	}
	if req.Severity == "" {
		req.Severity = sod.SeverityMedium
	}

	v := shared.NewValidator()
	v.Required("name", req.Name, "name is required")
	v.Enum("severity", req.Severity, sod.Severities, "must be one of low, medium, high, critical")
	if v.Reject(w, reqID) {
		return
	}

	// Exceptions require approval unless the rule author opts out.
	requiresApproval := true
	if req.RequiresExceptionApproval != nil {
		requiresApproval = *req.RequiresExceptionApproval
	}
	rule, err := h.SOD.CreateRule(r.Context(), user.OrgID, sod.CreateRuleInput{
		Name:                      req.Name,
		Description:               req.Description,
		ConflictingRoleIDs:        req.ConflictingRoleIDs,
		Severity:                  req.Severity,
		ProcessArea:               req.ProcessArea,
		ApplicationIDs:            req.ApplicationIDs,
		AutoRemediate:             req.AutoRemediate,
		RequiresExceptionApproval: requiresApproval,
		CreatedBy:                 user.UserID,
	})
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}

	h.Audit.RecordOrLog(r.Context(), user.OrgID, user.UserID, "sod.rule.create", "sod_rule", rule.ID, reqID, shared.ClientIP(r), nil, rule)
	api.Created(w, rule, reqID)
}

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	rules, err := h.SOD.ListRules(r.Context(), user.OrgID, r.URL.Query().Get("includeInactive") == "true")
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Success(w, rules, reqID)
}

func (h *Handler) getRule(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	rule, err := h.SOD.GetRule(r.Context(), user.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Success(w, rule, reqID)
}

type ruleUpdateRequest struct {
	Name                      *string  `json:"name"`
	Description               *string  `json:"description"`
	Severity                  *string  `json:"severity"`
	ProcessArea               *string  `json:"processArea"`
	AutoRemediate             *bool    `json:"autoRemediate"`
	RequiresExceptionApproval *bool    `json:"requiresExceptionApproval"`
	ConflictingRoleIDs        []string `json:"conflictingRoleIds"`
	ApplicationIDs            []string `json:"applicationIds"`
}

func (h *Handler) updateRule(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	ruleID := chi.URLParam(r, "id")

	var req ruleUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", reqID)
		return
	}

	fields := map[string]any{}
	v := shared.NewValidator()
	if req.Name != nil {
		v.Required("name", *req.Name, "name cannot be blank")
		fields["name"] = *req.Name
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.Severity != nil {
		v.Enum("severity", *req.Severity, sod.Severities, "must be one of low, medium, high, critical")
		fields["severity"] = *req.Severity
	}
	if req.ProcessArea != nil {
		fields["processArea"] = *req.ProcessArea
	}
	if req.AutoRemediate != nil {
		fields["autoRemediate"] = *req.AutoRemediate
	}
	if req.RequiresExceptionApproval != nil {
		fields["requiresExceptionApproval"] = *req.RequiresExceptionApproval
	}
	if v.Reject(w, reqID) {
		return
	}

	before, err := h.SOD.GetRule(r.Context(), user.OrgID, ruleID)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	rule, err := h.SOD.UpdateRule(r.Context(), user.OrgID, ruleID, fields, req.ConflictingRoleIDs, req.ApplicationIDs)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}

	h.Audit.RecordOrLog(r.Context(), user.OrgID, user.UserID, "sod.rule.update", "sod_rule", ruleID, reqID, shared.ClientIP(r), before, rule)
	api.Success(w, rule, reqID)
}

func (h *Handler) deactivateRule(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	ruleID := chi.URLParam(r, "id")

	if err := h.SOD.DeactivateRule(r.Context(), user.OrgID, ruleID); err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	h.Audit.RecordOrLog(r.Context(), user.OrgID, user.UserID, "sod.rule.deactivate", "sod_rule", ruleID, reqID, shared.ClientIP(r), nil, nil)
	api.Success(w, map[string]string{"deactivated": ruleID}, reqID)
}

func (h *Handler) detect(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())

	result, err := h.SOD.DetectViolations(r.Context(), user.OrgID)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	metrics.RecordViolations(result.NewViolations)

	h.Audit.RecordOrLog(r.Context(), user.OrgID, user.UserID, "sod.detect", "sod_violation", "", reqID, shared.ClientIP(r), nil, result)
	api.Success(w, result, reqID)
}

func (h *Handler) detectUser(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	userID := chi.URLParam(r, "userId")

	violations, err := h.SOD.DetectForUser(r.Context(), user.OrgID, userID)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}

	h.Audit.RecordOrLog(r.Context(), user.OrgID, user.UserID, "sod.detect_user", "user", userID, reqID, shared.ClientIP(r), nil, violations)
	api.Success(w, violations, reqID)
}

func (h *Handler) listViolations(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	page := shared.ParsePagination(r, 20, 100)
	filter := sod.ViolationFilter{
		Status:   r.URL.Query().Get("status"),
		RuleID:   r.URL.Query().Get("ruleId"),
		UserID:   r.URL.Query().Get("userId"),
		Severity: r.URL.Query().Get("severity"),
	}

	total, err := h.SOD.CountViolations(r.Context(), user.OrgID, filter)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	violations, err := h.SOD.ListViolations(r.Context(), user.OrgID, filter, page.Limit, page.Offset)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.SuccessPaged(w, violations, shared.PageMeta{Limit: page.Limit, Offset: page.Offset, Total: total}, reqID)
}

type resolveRequest struct {
	Action             string `json:"action"`
	Notes              string `json:"notes"`
	ExceptionExpiresAt string `json:"exceptionExpiresAt"`
}

func (h *Handler) resolveViolation(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	violationID := chi.URLParam(r, "id")

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", reqID)
		return
	}

	var expiry *time.Time
	if req.ExceptionExpiresAt != "" {
		parsed, err := shared.ParseDate(req.ExceptionExpiresAt)
		if err != nil {
			api.FailWithDetails(w, http.StatusBadRequest, "validation_error", "payload validation failed",
				map[string]any{"field": "exceptionExpiresAt"}, reqID)
			return
		}
		expiry = &parsed
	}

	violation, err := h.SOD.ResolveViolation(r.Context(), user.OrgID, violationID, user.UserID, sod.ResolveInput{
		Action:          req.Action,
		Notes:           req.Notes,
		ExceptionExpiry: expiry,
	})
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}

	h.Audit.RecordOrLog(r.Context(), user.OrgID, user.UserID, "sod.violation.resolve", "sod_violation", violationID, reqID, shared.ClientIP(r), nil, violation)
	api.Success(w, violation, reqID)
}
