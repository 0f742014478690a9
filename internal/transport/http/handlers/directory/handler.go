package directory

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"accessgov/internal/domain/audit"
	"accessgov/internal/domain/auth"
	dir "accessgov/internal/domain/directory"
	"accessgov/internal/transport/http/api"
	"accessgov/internal/transport/http/middleware"
	"accessgov/internal/transport/http/shared"
)

type Handler struct {
	Directory *dir.Service
	Audit     *audit.Service
}

func New(directory *dir.Service, auditSvc *audit.Service) *Handler {
	return &Handler{Directory: directory, Audit: auditSvc}
}

func (h *Handler) Mount(r chi.Router) {
	read := middleware.RequirePermission(auth.PermDirectoryRead)
	write := middleware.RequirePermission(auth.PermDirectoryWrite)
	grant := middleware.RequirePermission(auth.PermAccessWrite)

	r.With(read).Get("/users", h.listUsers)
	r.With(write).Post("/users", h.createUser)
	r.With(read).Get("/users/{id}", h.getUser)
	r.With(write).Patch("/users/{id}", h.updateUser)
	r.With(read).Get("/users/{id}/access", h.userAccess)
	r.With(read).Get("/users/{id}/reports", h.directReports)
	r.With(write).Put("/users/{id}/manager", h.setManager)

	r.With(read).Get("/departments", h.listDepartments)
	r.With(write).Post("/departments", h.createDepartment)

	r.With(read).Get("/applications", h.listApplications)
	r.With(write).Post("/applications", h.createApplication)
	r.With(write).Patch("/applications/{id}", h.updateApplication)

	r.With(read).Get("/roles", h.listRoles)
	r.With(write).Post("/roles", h.createRole)

	r.With(grant).Post("/access", h.grantAccess)
	r.With(grant).Delete("/access/{id}", h.deactivateGrant)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	page := shared.ParsePagination(r, 20, 100)
	filter := dir.UserFilter{
		DepartmentID: r.URL.Query().Get("departmentId"),
		Status:       r.URL.Query().Get("status"),
		Role:         r.URL.Query().Get("role"),
		Search:       r.URL.Query().Get("search"),
	}

	total, err := h.Directory.CountUsers(r.Context(), user.OrgID, filter)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	users, err := h.Directory.ListUsers(r.Context(), user.OrgID, filter, page.Limit, page.Offset)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.SuccessPaged(w, users, shared.PageMeta{Limit: page.Limit, Offset: page.Offset, Total: total}, reqID)
}

type createUserRequest struct {
	Email        string  `json:"email"`
	Password     string  `json:"password"`
	FirstName    string  `json:"firstName"`
	LastName     string  `json:"lastName"`
	Role         string  `json:"role"`
	DepartmentID *string `json:"departmentId"`
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", reqID)
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleEmployee
	}

	v := shared.NewValidator()
	v.Required("email", req.Email, "email is required")
	v.Required("password", req.Password, "password is required")
	v.Required("firstName", req.FirstName, "first name is required")
	v.Required("lastName", req.LastName, "last name is required")
	if _, ok := auth.RolePermissions[req.Role]; !ok {
		v.Add("role", "unknown role")
	}
	if v.Reject(w, reqID) {
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}

	created, err := h.Directory.CreateUser(r.Context(), actor.OrgID, dir.CreateUserInput{
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         req.Role,
		DepartmentID: req.DepartmentID,
	})
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}

	h.Audit.RecordOrLog(r.Context(), actor.OrgID, actor.UserID, "user.create", "user", created.ID, reqID, shared.ClientIP(r), nil, created)
	api.Created(w, created, reqID)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())

	u, err := h.Directory.GetUser(r.Context(), actor.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Success(w, u, reqID)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())
	userID := chi.URLParam(r, "id")

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", reqID)
		return
	}
	if role, ok := fields["role"].(string); ok {
		if _, known := auth.RolePermissions[role]; !known {
			shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "role", Reason: "unknown role"}})
			return
		}
	}

	before, err := h.Directory.GetUser(r.Context(), actor.OrgID, userID)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	updated, err := h.Directory.UpdateUser(r.Context(), actor.OrgID, userID, fields)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}

	h.Audit.RecordOrLog(r.Context(), actor.OrgID, actor.UserID, "user.update", "user", userID, reqID, shared.ClientIP(r), before, updated)
	api.Success(w, updated, reqID)
}

func (h *Handler) userAccess(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())

	grants, err := h.Directory.ListUserGrants(r.Context(), actor.OrgID, chi.URLParam(r, "id"),
		r.URL.Query().Get("includeInactive") != "true")
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Success(w, grants, reqID)
}

func (h *Handler) directReports(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())

	reports, err := h.Directory.ListDirectReports(r.Context(), actor.OrgID, chi.URLParam(r, "id"))
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Success(w, reports, reqID)
}

type setManagerRequest struct {
	ManagerUserID string `json:"managerUserId"`
	Primary       bool   `json:"primary"`
}

func (h *Handler) setManager(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())
	employeeID := chi.URLParam(r, "id")

	var req setManagerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", reqID)
		return
	}

	v := shared.NewValidator()
	v.Required("managerUserId", req.ManagerUserID, "managerUserId is required")
	if v.Reject(w, reqID) {
		return
	}

	mapping, err := h.Directory.SetManager(r.Context(), actor.OrgID, employeeID, req.ManagerUserID, req.Primary)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}

	h.Audit.RecordOrLog(r.Context(), actor.OrgID, actor.UserID, "user.set_manager", "user", employeeID, reqID, shared.ClientIP(r), nil, mapping)
	api.Success(w, mapping, reqID)
}

func (h *Handler) listDepartments(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())

	departments, err := h.Directory.ListDepartments(r.Context(), actor.OrgID)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Success(w, departments, reqID)
}

type departmentRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (h *Handler) createDepartment(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())

	var req departmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", reqID)
		return
	}

	v := shared.NewValidator()
	v.Required("code", req.Code, "code is required")
	v.Required("name", req.Name, "name is required")
	if v.Reject(w, reqID) {
		return
	}

	created, err := h.Directory.CreateDepartment(r.Context(), actor.OrgID, req.Code, req.Name)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	h.Audit.RecordOrLog(r.Context(), actor.OrgID, actor.UserID, "department.create", "department", created.ID, reqID, shared.ClientIP(r), nil, created)
	api.Created(w, created, reqID)
}

func (h *Handler) listApplications(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())

	apps, err := h.Directory.ListApplications(r.Context(), actor.OrgID)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Success(w, apps, reqID)
}

type applicationRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	OwnerUserID *string `json:"ownerUserId"`
	Criticality string  `json:"criticality"`
}

func (h *Handler) createApplication(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())

	var req applicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", reqID)
		return
	}
	if req.Criticality == "" {
		req.Criticality = dir.RiskMedium
	}

	v := shared.NewValidator()
	v.Required("name", req.Name, "name is required")
	v.Enum("criticality", req.Criticality, []string{dir.RiskLow, dir.RiskMedium, dir.RiskHigh, dir.RiskCritical},
		"must be one of low, medium, high, critical")
	if v.Reject(w, reqID) {
		return
	}

	created, err := h.Directory.CreateApplication(r.Context(), actor.OrgID, dir.CreateApplicationInput{
		Name:        req.Name,
		Description: req.Description,
		OwnerUserID: req.OwnerUserID,
		Criticality: req.Criticality,
	})
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	h.Audit.RecordOrLog(r.Context(), actor.OrgID, actor.UserID, "application.create", "application", created.ID, reqID, shared.ClientIP(r), nil, created)
	api.Created(w, created, reqID)
}

func (h *Handler) updateApplication(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())
	appID := chi.URLParam(r, "id")

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", reqID)
		return
	}

	before, err := h.Directory.GetApplication(r.Context(), actor.OrgID, appID)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	updated, err := h.Directory.UpdateApplication(r.Context(), actor.OrgID, appID, fields)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}

	h.Audit.RecordOrLog(r.Context(), actor.OrgID, actor.UserID, "application.update", "application", appID, reqID, shared.ClientIP(r), before, updated)
	api.Success(w, updated, reqID)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())

	roles, err := h.Directory.ListRoles(r.Context(), actor.OrgID, r.URL.Query().Get("applicationId"))
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	api.Success(w, roles, reqID)
}

type roleRequest struct {
	ApplicationID string `json:"applicationId"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	RiskLevel     string `json:"riskLevel"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())

	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", reqID)
		return
	}
	if req.RiskLevel == "" {
		req.RiskLevel = dir.RiskMedium
	}

	v := shared.NewValidator()
	v.Required("applicationId", req.ApplicationID, "applicationId is required")
	v.Required("name", req.Name, "name is required")
	v.Enum("riskLevel", req.RiskLevel, []string{dir.RiskLow, dir.RiskMedium, dir.RiskHigh, dir.RiskCritical},
		"must be one of low, medium, high, critical")
	if v.Reject(w, reqID) {
		return
	}

	created, err := h.Directory.CreateRole(r.Context(), actor.OrgID, dir.CreateRoleInput{
		ApplicationID: req.ApplicationID,
		Name:          req.Name,
		Description:   req.Description,
		RiskLevel:     req.RiskLevel,
	})
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	h.Audit.RecordOrLog(r.Context(), actor.OrgID, actor.UserID, "role.create", "entitlement_role", created.ID, reqID, shared.ClientIP(r), nil, created)
	api.Created(w, created, reqID)
}

type grantRequest struct {
	UserID string `json:"userId"`
	RoleID string `json:"roleId"`
}

func (h *Handler) grantAccess(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", reqID)
		return
	}

	v := shared.NewValidator()
	v.Required("userId", req.UserID, "userId is required")
	v.Required("roleId", req.RoleID, "roleId is required")
	if v.Reject(w, reqID) {
		return
	}

	grantedBy := actor.UserID
	grant, err := h.Directory.GrantAccess(r.Context(), actor.OrgID, req.UserID, req.RoleID, &grantedBy)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	h.Audit.RecordOrLog(r.Context(), actor.OrgID, actor.UserID, "access.grant", "user_access", grant.ID, reqID, shared.ClientIP(r), nil, grant)
	api.Created(w, grant, reqID)
}

func (h *Handler) deactivateGrant(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	actor, _ := middleware.GetUser(r.Context())
	grantID := chi.URLParam(r, "id")

	if err := h.Directory.DeactivateGrant(r.Context(), actor.OrgID, grantID); err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	h.Audit.RecordOrLog(r.Context(), actor.OrgID, actor.UserID, "access.deactivate", "user_access", grantID, reqID, shared.ClientIP(r), nil, nil)
	api.Success(w, map[string]string{"deactivated": grantID}, reqID)
}
