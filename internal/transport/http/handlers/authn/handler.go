package authn

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"accessgov/internal/domain/audit"
	"accessgov/internal/domain/auth"
	"accessgov/internal/transport/http/api"
	"accessgov/internal/transport/http/middleware"
	"accessgov/internal/transport/http/shared"
)

type Handler struct {
	Store     *auth.Store
	Audit     *audit.Service
	JWTSecret string
	TokenTTL  time.Duration
}

func New(store *auth.Store, auditSvc *audit.Service, secret string) *Handler {
	return &Handler{Store: store, Audit: auditSvc, JWTSecret: secret, TokenTTL: 12 * time.Hour}
}

func (h *Handler) Mount(r chi.Router) {
	r.Post("/login", h.login)
	r.Get("/me", h.me)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", reqID)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	v := shared.NewValidator()
	v.Required("email", req.Email, "email is required")
	v.Required("password", req.Password, "password is required")
	if v.Reject(w, reqID) {
		return
	}

	user, err := h.Store.FindActiveUserByEmail(r.Context(), req.Email)
	if err != nil {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect", reqID)
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect", reqID)
		return
	}

	token, err := auth.GenerateToken(h.JWTSecret, auth.Claims{
		UserID: user.ID,
		OrgID:  user.OrgID,
		Role:   user.Role,
	}, h.TokenTTL)
	if err != nil {
		api.FailFromError(w, err, reqID)
		return
	}

	if err := h.Store.UpdateLastLogin(r.Context(), user.ID); err != nil {
		api.FailFromError(w, err, reqID)
		return
	}
	h.Audit.RecordOrLog(r.Context(), user.OrgID, user.ID, "auth.login", "user", user.ID, reqID, shared.ClientIP(r), nil, nil)

	var resp loginResponse
	resp.Token = token
	resp.User.ID = user.ID
	resp.User.Email = req.Email
	resp.User.Role = user.Role
	api.Success(w, resp, reqID)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}
	api.Success(w, map[string]string{
		"id":   user.UserID,
		"role": user.Role,
	}, reqID)
}
