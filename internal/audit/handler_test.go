package audit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shepherd-cms/shepherd/internal/rbac"
)

func newTestHandler(repo Repository) *Handler {
	h := NewHandler(nil, NewService(repo))
	h.now = func() time.Time { return time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC) }
	return h
}

func serveTimeline(h *Handler, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Route("/admin/audit", h.MountRoutes)
	res := httptest.NewRecorder()
	r.ServeHTTP(res, httptest.NewRequest(http.MethodGet, target, nil))
	return res
}

func TestTimelineHandlerReturnsRows(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		mockRow("2026-08-10T10:00:00Z", rbac.LevelMember, rbac.LevelCellLeader),
	}}
	res := serveTimeline(newTestHandler(repo), "/admin/audit?page=1&page_size=10")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	body := res.Body.String()
	if !strings.Contains(body, `"targetEmail":"member@flock.test"`) {
		t.Fatalf("expected target email in body: %s", body)
	}
	if !strings.Contains(body, `"hasNext":false`) {
		t.Fatalf("expected paging metadata: %s", body)
	}
}

func TestTimelineHandlerRejectsBadFilters(t *testing.T) {
	cases := []string{
		"/admin/audit?page=zero",
		"/admin/audit?page_size=-3",
		"/admin/audit?from=not-a-date",
		"/admin/audit?from=2026-08-20&to=2026-08-01",
	}
	for _, target := range cases {
		res := serveTimeline(newTestHandler(&stubTimelineRepo{}), target)
		if res.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, res.Code)
		}
	}
}

func TestTimelineHandlerDefaultsWindow(t *testing.T) {
	repo := &stubTimelineRepo{}
	res := serveTimeline(newTestHandler(repo), "/admin/audit")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !repo.lastParams.From.Valid || !repo.lastParams.To.Valid {
		t.Fatalf("expected a default date window to be applied")
	}
}
