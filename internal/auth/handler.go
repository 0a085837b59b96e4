package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/shepherd-cms/shepherd/internal/platform/httpx"
	"github.com/shepherd-cms/shepherd/internal/rbac"
	"github.com/shepherd-cms/shepherd/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	resolver       *rbac.Resolver
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, resolver *rbac.Resolver, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		resolver:       resolver,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.issueCSRF)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type roleResponse struct {
	PrincipalID string          `json:"principalId"`
	RoleLevel   int             `json:"roleLevel"`
	RoleName    string          `json:"roleName"`
	ContextMap  rbac.ContextMap `json:"contextMap,omitempty"`
}

type loginResponse struct {
	Success   bool   `json:"success"`
	CSRFToken string `json:"csrfToken"`
	roleResponse
}

func (h *Handler) issueCSRF(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "email and password are required")
		return
	}

	principal, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrStoreUnavailable) {
			httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "temporary backend failure, try again")
			return
		}
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	sess.SetUser(principal.ID.String())
	sess.Set("email", principal.Email)

	// Refresh the claims cache so the first check after login reads the
	// freshly persisted role.
	if err := h.resolver.Invalidate(r.Context(), principal.ID); err != nil {
		h.logger.Warn("claims refresh at login", slog.Any("error", err))
	}
	res, err := h.resolver.ResolveID(r.Context(), principal.ID, principal.Email)
	if err != nil {
		h.logger.Warn("resolve at login", slog.Any("error", err))
		res = rbac.Resolution{PrincipalID: principal.ID, RoleLevel: principal.RoleLevel, RoleName: principal.RoleName, Context: principal.Context}
	}

	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if sess.ID != "" {
		if err := h.service.RegisterSession(r.Context(), sess.ID, principal.ID.String(), expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
			h.logger.Warn("register session", slog.Any("error", err))
		}
	}

	token, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	httpx.JSON(w, http.StatusOK, loginResponse{
		Success:   true,
		CSRFToken: token,
		roleResponse: roleResponse{
			PrincipalID: principal.ID.String(),
			RoleLevel:   int(res.RoleLevel),
			RoleName:    res.RoleName,
			ContextMap:  res.Context,
		},
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	res, err := h.resolver.Resolve(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "temporary backend failure, try again")
		return
	}
	if !res.Authenticated() {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	httpx.JSON(w, http.StatusOK, roleResponse{
		PrincipalID: res.PrincipalID.String(),
		RoleLevel:   int(res.RoleLevel),
		RoleName:    res.RoleName,
		ContextMap:  res.Context,
	})
}
