package directory

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shepherd-cms/shepherd/internal/platform/httpx"
	"github.com/shepherd-cms/shepherd/internal/rbac"
)

// Handler serves directory listings. Listing routes require a signed in
// member; the cell group detail route is scoped to its leaders.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   rbac.Middleware
}

// NewHandler constructs a directory handler.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers directory routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireLevel(rbac.LevelMember))
		r.Get("/cell-groups", h.listCellGroups)
		r.Get("/ministries", h.listMinistries)
		r.Get("/districts", h.listDistricts)
	})
	// The scope guard reads the {id} param, so it must hang off a
	// subrouter where the param is already bound.
	r.Route("/cell-groups/{id}", func(r chi.Router) {
		r.Use(h.guard.RequireScope(rbac.LevelCellLeader, rbac.ContextCellGroup, "id"))
		r.Get("/", h.getCellGroup)
	})
}

func (h *Handler) listCellGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.CellGroups(r.Context())
	if err != nil {
		h.respondListError(w, "list cell groups", err)
		return
	}
	if groups == nil {
		groups = []CellGroup{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"cellGroups": groups})
}

func (h *Handler) listMinistries(w http.ResponseWriter, r *http.Request) {
	ministries, err := h.service.Ministries(r.Context())
	if err != nil {
		h.respondListError(w, "list ministries", err)
		return
	}
	if ministries == nil {
		ministries = []Ministry{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ministries": ministries})
}

func (h *Handler) listDistricts(w http.ResponseWriter, r *http.Request) {
	districts, err := h.service.Districts(r.Context())
	if err != nil {
		h.respondListError(w, "list districts", err)
		return
	}
	if districts == nil {
		districts = []District{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"districts": districts})
}

func (h *Handler) getCellGroup(w http.ResponseWriter, r *http.Request) {
	group, err := h.service.CellGroup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "cell group not found")
			return
		}
		h.respondListError(w, "get cell group", err)
		return
	}
	httpx.JSON(w, http.StatusOK, group)
}

func (h *Handler) respondListError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
