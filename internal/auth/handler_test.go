package auth_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/shepherd-cms/shepherd/internal/auth"
	"github.com/shepherd-cms/shepherd/internal/rbac"
	"github.com/shepherd-cms/shepherd/internal/shared"
	_ "github.com/shepherd-cms/shepherd/testing"
)

type stubPrincipals struct {
	byEmail map[string]*rbac.Principal
}

func (s *stubPrincipals) FindByID(ctx context.Context, id uuid.UUID) (*rbac.Principal, error) {
	for _, p := range s.byEmail {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, rbac.ErrNotFound
}

func (s *stubPrincipals) FindByEmail(ctx context.Context, email string) (*rbac.Principal, error) {
	if p, ok := s.byEmail[email]; ok {
		return p, nil
	}
	return nil, rbac.ErrNotFound
}

func (s *stubPrincipals) Create(ctx context.Context, p *rbac.Principal) error {
	s.byEmail[p.Email] = p
	return nil
}

func (s *stubPrincipals) UpdateRole(ctx context.Context, change rbac.RoleChange, expectedVersion int64, roleName string) (int64, error) {
	return expectedVersion + 1, nil
}

type stubSessions struct {
	created int
	deleted int
}

func (s *stubSessions) CreateSession(ctx context.Context, id, principalID string, expiresAt time.Time, ip, ua string) error {
	s.created++
	return nil
}

func (s *stubSessions) DeleteSession(ctx context.Context, id string) error {
	s.deleted++
	return nil
}

func (s *stubSessions) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func newAuthFixture(t *testing.T, principals *stubPrincipals) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := rbac.NewResolver(principals, rbac.NewClaimsCache(client, time.Minute), logger)
	service := auth.NewService(principals, &stubSessions{})
	handler := auth.NewHandler(logger, service, resolver, sessionManager, csrfManager)
	return handler, sessionManager
}

func newRouter(handler *auth.Handler) chi.Router {
	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	return r
}

func TestLoginSuccess(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	id := uuid.New()
	principals := &stubPrincipals{byEmail: map[string]*rbac.Principal{
		"leader@flock.test": {
			ID:           id,
			Email:        "leader@flock.test",
			PasswordHash: string(hashed),
			RoleLevel:    rbac.LevelCellLeader,
			RoleName:     "cell_leader",
			Context:      rbac.ContextMap{rbac.ContextCellGroup: {"cg-1"}},
			RoleVersion:  1,
			IsActive:     true,
		},
	}}
	handler, sessionManager := newAuthFixture(t, principals)

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"leader@flock.test","password":"correctpass"}`))
	req.Header.Set("Content-Type", "application/json")
	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)

	res := httptest.NewRecorder()
	router := newRouter(handler)
	router.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	body := res.Body.String()
	if !strings.Contains(body, `"roleLevel":2`) || !strings.Contains(body, `"cg-1"`) {
		t.Fatalf("unexpected login body: %s", body)
	}
	if sess.User() != id.String() {
		t.Fatalf("session must carry the principal id")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	principals := &stubPrincipals{byEmail: map[string]*rbac.Principal{
		"leader@flock.test": {
			ID: uuid.New(), Email: "leader@flock.test", PasswordHash: string(hashed),
			RoleLevel: rbac.LevelMember, RoleName: "member", RoleVersion: 1, IsActive: true,
		},
	}}
	handler, sessionManager := newAuthFixture(t, principals)

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"leader@flock.test","password":"wrongpass1"}`))
	req.Header.Set("Content-Type", "application/json")
	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	newRouter(handler).ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	if sess.User() != "" {
		t.Fatalf("failed login must not bind the session")
	}
}

func TestLoginInactivePrincipal(t *testing.T) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	principals := &stubPrincipals{byEmail: map[string]*rbac.Principal{
		"gone@flock.test": {
			ID: uuid.New(), Email: "gone@flock.test", PasswordHash: string(hashed),
			RoleLevel: rbac.LevelAdmin, RoleName: "admin", RoleVersion: 1, IsActive: false,
		},
	}}
	handler, sessionManager := newAuthFixture(t, principals)

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"gone@flock.test","password":"correctpass"}`))
	req.Header.Set("Content-Type", "application/json")
	sess, _ := sessionManager.Load(context.Background(), req)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	newRouter(handler).ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("inactive principal must not log in, got %d", res.Code)
	}
}

func TestMeUnauthenticated(t *testing.T) {
	principals := &stubPrincipals{byEmail: map[string]*rbac.Principal{}}
	handler, sessionManager := newAuthFixture(t, principals)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	sess, _ := sessionManager.Load(context.Background(), req)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	newRouter(handler).ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}
