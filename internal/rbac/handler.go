package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/shepherd-cms/shepherd/internal/platform/httpx"
	"github.com/shepherd-cms/shepherd/internal/shared"
)

// Handler exposes the administrative role assignment endpoint.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers role administration routes. The admin gate lives
// in the service so the authorization error shape is uniform for every
// caller, not only HTTP.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.assignRole)
}

type assignRoleRequest struct {
	TargetEmail string   `json:"targetEmail" validate:"required,email"`
	RoleLevel   int      `json:"roleLevel" validate:"required,min=1,max=4"`
	ContextType string   `json:"contextType" validate:"omitempty,oneof=cell_group_ids ministry_ids district_ids"`
	ContextIDs  []string `json:"contextIds" validate:"omitempty,dive,required"`
}

type assignRoleResponse struct {
	Success     bool       `json:"success"`
	RoleLevel   int        `json:"roleLevel"`
	RoleName    string     `json:"roleName"`
	ContextMap  ContextMap `json:"contextMap,omitempty"`
	RoleVersion int64      `json:"roleVersion"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fieldErrs[0].Error())
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid payload")
		return
	}

	input := AssignInput{
		TargetEmail: req.TargetEmail,
		RoleLevel:   RoleLevel(req.RoleLevel),
		ContextIDs:  req.ContextIDs,
	}
	if req.ContextType != "" {
		contextType, ok := ParseContextType(req.ContextType)
		if !ok {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown context type")
			return
		}
		input.ContextType = contextType
	}

	result, err := h.service.AssignRole(r.Context(), input)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, assignRoleResponse{
		Success:     true,
		RoleLevel:   int(result.RoleLevel),
		RoleName:    result.RoleName,
		ContextMap:  result.Context,
		RoleVersion: result.RoleVersion,
	})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationErr.Error())
	case errors.Is(err, ErrUnauthenticated):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
	case errors.Is(err, ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "admin role required")
	case errors.Is(err, ErrTargetNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "target principal not found")
	case errors.Is(err, ErrVersionConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", "role changed concurrently, retry")
	case errors.Is(err, shared.ErrStoreUnavailable):
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "temporary backend failure, try again")
	default:
		if h.logger != nil {
			h.logger.Error("assign role failed", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
