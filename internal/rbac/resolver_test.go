package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shepherd-cms/shepherd/internal/shared"
)

type memoryRepo struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*Principal
	findErr error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{byID: make(map[uuid.UUID]*Principal)}
}

func (r *memoryRepo) put(p Principal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.RoleVersion == 0 {
		p.RoleVersion = 1
	}
	r.byID[p.ID] = &p
}

func (r *memoryRepo) get(id uuid.UUID) Principal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.byID[id]
}

func (r *memoryRepo) FindByID(ctx context.Context, id uuid.UUID) (*Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *p
	clone.Context = p.Context.Clone()
	return &clone, nil
}

func (r *memoryRepo) FindByEmail(ctx context.Context, email string) (*Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, p := range r.byID {
		if p.Email == email {
			clone := *p
			clone.Context = p.Context.Clone()
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryRepo) Create(ctx context.Context, p *Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[p.ID]; exists {
		return ErrDuplicateEmail
	}
	clone := *p
	clone.RoleVersion = 1
	clone.Context = p.Context.Clone()
	r.byID[p.ID] = &clone
	return nil
}

func (r *memoryRepo) UpdateRole(ctx context.Context, change RoleChange, expectedVersion int64, roleName string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[change.TargetID]
	if !ok {
		return 0, ErrNotFound
	}
	if p.RoleVersion != expectedVersion {
		return 0, ErrVersionConflict
	}
	p.RoleLevel = change.NewLevel
	p.RoleName = roleName
	p.Context = change.NewContext.Clone()
	p.RoleVersion++
	p.UpdatedAt = time.Now()
	return p.RoleVersion, nil
}

var _ Repository = (*memoryRepo)(nil)

func newTestResolver(t *testing.T, repo Repository) (*Resolver, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	claims := NewClaimsCache(client, time.Minute)
	sessions := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	return NewResolver(repo, claims, nil), sessions
}

func sessionContext(t *testing.T, sm *shared.SessionManager, id uuid.UUID, email string) context.Context {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	sess.SetUser(id.String())
	sess.Set("email", email)
	return shared.ContextWithSession(context.Background(), sess)
}

func TestResolveWithoutSession(t *testing.T) {
	resolver, _ := newTestResolver(t, newMemoryRepo())
	res, err := resolver.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Authenticated() || res.RoleLevel != LevelNone {
		t.Fatalf("expected unauthenticated resolution, got %+v", res)
	}
}

func TestResolveAnonymousSession(t *testing.T) {
	resolver, sessions := newTestResolver(t, newMemoryRepo())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sessions.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(context.Background(), sess)
	res, err := resolver.Resolve(ctx)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Authenticated() {
		t.Fatalf("session without user must resolve unauthenticated")
	}
}

func TestResolveSelfHealsMissingRecord(t *testing.T) {
	repo := newMemoryRepo()
	resolver, sessions := newTestResolver(t, repo)
	id := uuid.New()
	ctx := sessionContext(t, sessions, id, "new@flock.test")

	res, err := resolver.Resolve(ctx)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.RoleLevel != LevelMember {
		t.Fatalf("synthesized record must start at Member, got %v", res.RoleLevel)
	}
	if res.Context != nil {
		t.Fatalf("synthesized record must have empty context")
	}
	stored := repo.get(id)
	if stored.Email != "new@flock.test" || stored.RoleLevel != LevelMember {
		t.Fatalf("record not persisted correctly: %+v", stored)
	}
}

func TestResolvePrefersClaimsCacheUntilInvalidated(t *testing.T) {
	repo := newMemoryRepo()
	resolver, sessions := newTestResolver(t, repo)
	id := uuid.New()
	repo.put(Principal{ID: id, Email: "a@flock.test", RoleLevel: LevelAdmin, RoleName: "admin", IsActive: true})
	ctx := sessionContext(t, sessions, id, "a@flock.test")

	res, err := resolver.Resolve(ctx)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.RoleLevel != LevelAdmin {
		t.Fatalf("expected admin, got %v", res.RoleLevel)
	}

	// A direct record change without invalidation is masked by the cache.
	repo.put(Principal{ID: id, Email: "a@flock.test", RoleLevel: LevelMember, RoleName: "member", RoleVersion: 2, IsActive: true})
	res, err = resolver.Resolve(ctx)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.RoleLevel != LevelAdmin {
		t.Fatalf("expected cached admin before invalidation, got %v", res.RoleLevel)
	}

	if err := resolver.Invalidate(ctx, id); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	res, err = resolver.Resolve(ctx)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.RoleLevel != LevelMember {
		t.Fatalf("expected record level after invalidation, got %v", res.RoleLevel)
	}
}

func TestResolvePropagatesStoreErrors(t *testing.T) {
	repo := newMemoryRepo()
	repo.findErr = shared.ErrStoreUnavailable
	resolver, sessions := newTestResolver(t, repo)
	ctx := sessionContext(t, sessions, uuid.New(), "x@flock.test")

	if _, err := resolver.Resolve(ctx); err == nil {
		t.Fatalf("store outage must surface as an error, not a deny")
	}
}
