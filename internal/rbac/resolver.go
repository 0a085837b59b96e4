package rbac

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/shepherd-cms/shepherd/internal/shared"
)

// Resolution is the effective role of the current principal.
// A zero RoleLevel means there is no authenticated principal.
type Resolution struct {
	PrincipalID uuid.UUID
	RoleLevel   RoleLevel
	RoleName    string
	Context     ContextMap
	Version     int64
}

// Authenticated reports whether the resolution belongs to a principal.
func (r Resolution) Authenticated() bool {
	return r.RoleLevel >= LevelMember
}

// Resolver produces the effective (role level, context) pair for the
// authenticated principal. The persisted record is the single source of
// truth; the claims cache is consulted first and repopulated on miss.
type Resolver struct {
	repo   Repository
	claims *ClaimsCache
	logger *slog.Logger
	group  singleflight.Group
}

// NewResolver constructs a Resolver. The claims cache may be nil.
func NewResolver(repo Repository, claims *ClaimsCache, logger *slog.Logger) *Resolver {
	return &Resolver{repo: repo, claims: claims, logger: logger}
}

// Resolve resolves the principal bound to the session in ctx. Returns an
// unauthenticated Resolution, not an error, when no session user exists.
func (r *Resolver) Resolve(ctx context.Context) (Resolution, error) {
	sess := shared.SessionFromContext(ctx)
	if sess == nil || sess.User() == "" {
		return Resolution{}, nil
	}
	id, err := uuid.Parse(sess.User())
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("session holds malformed principal id", slog.String("value", sess.User()))
		}
		return Resolution{}, nil
	}
	return r.ResolveID(ctx, id, sess.Get("email"))
}

// ResolveID resolves a principal by id. When no persisted record exists
// for an authenticated principal, one is synthesized at Member level with
// empty context and persisted, rather than failing.
func (r *Resolver) ResolveID(ctx context.Context, id uuid.UUID, email string) (Resolution, error) {
	if claims, err := r.claims.Get(ctx, id); err == nil && claims != nil {
		return Resolution{
			PrincipalID: id,
			RoleLevel:   claims.RoleLevel,
			RoleName:    claims.RoleName,
			Context:     claims.Context,
			Version:     claims.Version,
		}, nil
	} else if err != nil && r.logger != nil {
		// Cache outage degrades to a record read, never to a deny.
		r.logger.Warn("claims cache read failed", slog.Any("error", err))
	}

	value, err, _ := r.group.Do(id.String(), func() (any, error) {
		return r.loadPrincipal(ctx, id, email)
	})
	if err != nil {
		return Resolution{}, err
	}
	p := value.(*Principal)

	res := Resolution{
		PrincipalID: p.ID,
		RoleLevel:   p.RoleLevel,
		RoleName:    p.RoleName,
		Context:     p.Context,
		Version:     p.RoleVersion,
	}
	if err := r.claims.Set(ctx, id, Claims{
		RoleLevel: res.RoleLevel,
		RoleName:  res.RoleName,
		Context:   res.Context,
		Version:   res.Version,
	}); err != nil && r.logger != nil {
		r.logger.Warn("claims cache write failed", slog.Any("error", err))
	}
	return res, nil
}

// Invalidate drops cached claims for the principal.
func (r *Resolver) Invalidate(ctx context.Context, id uuid.UUID) error {
	return r.claims.Invalidate(ctx, id)
}

func (r *Resolver) loadPrincipal(ctx context.Context, id uuid.UUID, email string) (*Principal, error) {
	p, err := r.repo.FindByID(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// Self-healing registration: an authenticated principal without a
	// record starts at Member with empty context.
	created := &Principal{
		ID:        id,
		Email:     email,
		RoleLevel: LevelMember,
		RoleName:  LevelMember.String(),
		IsActive:  true,
	}
	if err := r.repo.Create(ctx, created); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			// Lost a creation race; the winner's row is authoritative.
			return r.repo.FindByID(ctx, id)
		}
		return nil, err
	}
	created.RoleVersion = 1
	if r.logger != nil {
		r.logger.Info("synthesized principal record", slog.String("principal_id", id.String()))
	}
	return created, nil
}
