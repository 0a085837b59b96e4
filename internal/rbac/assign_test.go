package rbac

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type stubContextValidator struct {
	known map[string]struct{}
}

func (v *stubContextValidator) ValidateContextIDs(ctx context.Context, t ContextType, ids []string) error {
	for _, id := range ids {
		if _, ok := v.known[id]; !ok {
			return invalid("contextIds", "unknown id "+id)
		}
	}
	return nil
}

type assignFixture struct {
	repo     *memoryRepo
	resolver *Resolver
	service  *Service
	eval     *Evaluator
	adminCtx context.Context
	adminID  uuid.UUID
	target   Principal
	tctx     context.Context
}

func newAssignFixture(t *testing.T) *assignFixture {
	t.Helper()
	repo := newMemoryRepo()
	resolver, sessions := newTestResolver(t, repo)

	adminID := uuid.New()
	repo.put(Principal{ID: adminID, Email: "admin@flock.test", RoleLevel: LevelAdmin, RoleName: "admin", IsActive: true})

	targetID := uuid.New()
	target := Principal{ID: targetID, Email: "leader@flock.test", RoleLevel: LevelMember, RoleName: "member", IsActive: true}
	repo.put(target)

	validator := &stubContextValidator{known: map[string]struct{}{"g1": {}, "cg-42": {}, "m1": {}, "d1": {}}}
	service := NewService(repo, resolver, validator, nil)

	return &assignFixture{
		repo:     repo,
		resolver: resolver,
		service:  service,
		eval:     NewEvaluator(resolver),
		adminCtx: sessionContext(t, sessions, adminID, "admin@flock.test"),
		adminID:  adminID,
		target:   target,
		tctx:     sessionContext(t, sessions, targetID, "leader@flock.test"),
	}
}

func TestAssignRoleRequiresAdminActor(t *testing.T) {
	f := newAssignFixture(t)
	before := f.repo.get(f.target.ID)

	_, err := f.service.AssignRole(f.tctx, AssignInput{
		TargetEmail: "leader@flock.test",
		RoleLevel:   LevelAdmin,
	})
	require.ErrorIs(t, err, ErrForbidden)

	after := f.repo.get(f.target.ID)
	require.Equal(t, before.RoleLevel, after.RoleLevel, "failed attempt must not mutate the target")
	require.Equal(t, before.RoleVersion, after.RoleVersion)
}

func TestAssignRoleRequiresAuthentication(t *testing.T) {
	f := newAssignFixture(t)
	_, err := f.service.AssignRole(context.Background(), AssignInput{
		TargetEmail: "leader@flock.test",
		RoleLevel:   LevelMember,
	})
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAssignRoleValidation(t *testing.T) {
	f := newAssignFixture(t)

	var validationErr *ValidationError

	// Scoped role with empty ids fails.
	_, err := f.service.AssignRole(f.adminCtx, AssignInput{
		TargetEmail: "leader@flock.test",
		RoleLevel:   LevelCellLeader,
		ContextType: ContextCellGroup,
		ContextIDs:  []string{},
	})
	require.ErrorAs(t, err, &validationErr)

	// Cell leader scoped to ministries fails.
	_, err = f.service.AssignRole(f.adminCtx, AssignInput{
		TargetEmail: "leader@flock.test",
		RoleLevel:   LevelCellLeader,
		ContextType: ContextMinistry,
		ContextIDs:  []string{"m1"},
	})
	require.ErrorAs(t, err, &validationErr)

	// Ministry leader requires the ministry dimension.
	_, err = f.service.AssignRole(f.adminCtx, AssignInput{
		TargetEmail: "leader@flock.test",
		RoleLevel:   LevelMinistryLeader,
		ContextType: ContextCellGroup,
		ContextIDs:  []string{"g1"},
	})
	require.ErrorAs(t, err, &validationErr)

	// Unknown resource ids are rejected by the context validator.
	_, err = f.service.AssignRole(f.adminCtx, AssignInput{
		TargetEmail: "leader@flock.test",
		RoleLevel:   LevelCellLeader,
		ContextType: ContextCellGroup,
		ContextIDs:  []string{"nope"},
	})
	require.ErrorAs(t, err, &validationErr)
}

func TestAssignRoleResolvesTargetByID(t *testing.T) {
	f := newAssignFixture(t)

	result, err := f.service.AssignRole(f.adminCtx, AssignInput{
		TargetEmail: f.target.ID.String(),
		RoleLevel:   LevelMinistryLeader,
		ContextType: ContextMinistry,
		ContextIDs:  []string{"m1"},
	})
	require.NoError(t, err)
	require.Equal(t, f.target.ID.String(), result.TargetID)
	require.Equal(t, LevelMinistryLeader, result.RoleLevel)
}

func TestAssignRoleTargetNotFound(t *testing.T) {
	f := newAssignFixture(t)
	_, err := f.service.AssignRole(f.adminCtx, AssignInput{
		TargetEmail: "ghost@flock.test",
		RoleLevel:   LevelMember,
	})
	require.ErrorIs(t, err, ErrTargetNotFound)
}

func TestAssignRoleScenario(t *testing.T) {
	f := newAssignFixture(t)

	// Member -> CellLeader scoped to cg-42.
	result, err := f.service.AssignRole(f.adminCtx, AssignInput{
		TargetEmail: "leader@flock.test",
		RoleLevel:   LevelCellLeader,
		ContextType: ContextCellGroup,
		ContextIDs:  []string{"cg-42"},
	})
	require.NoError(t, err)
	require.Equal(t, LevelCellLeader, result.RoleLevel)
	require.Equal(t, "cell_leader", result.RoleName)
	require.True(t, result.Context.Contains(ContextCellGroup, "cg-42"))

	d, err := f.eval.Check(f.tctx, LevelCellLeader, Scope{Type: ContextCellGroup, ID: "cg-42"})
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = f.eval.Check(f.tctx, LevelCellLeader, Scope{Type: ContextCellGroup, ID: "cg-99"})
	require.NoError(t, err)
	require.False(t, d.Allowed)

	d, err = f.eval.Check(f.tctx, LevelMinistryLeader)
	require.NoError(t, err)
	require.False(t, d.Allowed, "level too low")

	// CellLeader -> Admin, context cleared even if supplied.
	result, err = f.service.AssignRole(f.adminCtx, AssignInput{
		TargetEmail: "leader@flock.test",
		RoleLevel:   LevelAdmin,
		ContextType: ContextCellGroup,
		ContextIDs:  []string{"cg-42"},
	})
	require.NoError(t, err)
	require.Nil(t, result.Context, "context is meaningless at Admin")

	d, err = f.eval.Check(f.tctx, LevelMinistryLeader, Scope{Type: ContextMinistry, ID: "anything"})
	require.NoError(t, err)
	require.True(t, d.Allowed, "admin bypass")
}

func TestAssignRoleDemotionTakesEffectImmediately(t *testing.T) {
	f := newAssignFixture(t)

	_, err := f.service.AssignRole(f.adminCtx, AssignInput{
		TargetEmail: "leader@flock.test",
		RoleLevel:   LevelAdmin,
	})
	require.NoError(t, err)

	// Warm the target's claims cache.
	d, err := f.eval.Check(f.tctx, LevelAdmin)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	_, err = f.service.AssignRole(f.adminCtx, AssignInput{
		TargetEmail: "leader@flock.test",
		RoleLevel:   LevelMember,
	})
	require.NoError(t, err)

	// No stale-claim window: the next check must already deny.
	d, err = f.eval.Check(f.tctx, LevelAdmin)
	require.NoError(t, err)
	require.False(t, d.Allowed)
}

func TestAssignRoleVersionConflict(t *testing.T) {
	f := newAssignFixture(t)

	// Simulate a concurrent assignment bumping the version between the
	// service's read and write.
	stale := f.repo.get(f.target.ID)
	_, err := f.repo.UpdateRole(context.Background(), RoleChange{
		ActorID:  f.adminID,
		TargetID: f.target.ID,
		OldLevel: stale.RoleLevel,
		NewLevel: LevelMinistryLeader,
		NewContext: ContextMap{ContextMinistry: {"m1"}},
	}, stale.RoleVersion, "ministry_leader")
	require.NoError(t, err)

	_, err = f.repo.UpdateRole(context.Background(), RoleChange{
		ActorID:  f.adminID,
		TargetID: f.target.ID,
		OldLevel: stale.RoleLevel,
		NewLevel: LevelMember,
	}, stale.RoleVersion, "member")
	require.ErrorIs(t, err, ErrVersionConflict)
}
