package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// ContextValidator checks that scoping ids reference existing resources.
type ContextValidator interface {
	ValidateContextIDs(ctx context.Context, t ContextType, ids []string) error
}

// Service performs administrative role assignments.
type Service struct {
	repo      Repository
	resolver  *Resolver
	validator ContextValidator
	logger    *slog.Logger
}

// NewService constructs a Service. validator may be nil to skip
// resource existence checks.
func NewService(repo Repository, resolver *Resolver, validator ContextValidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, resolver: resolver, validator: validator, logger: logger}
}

// AssignInput describes one role assignment request.
type AssignInput struct {
	TargetEmail string
	RoleLevel   RoleLevel
	ContextType ContextType
	ContextIDs  []string
}

// AssignResult is the updated role state of the target principal.
type AssignResult struct {
	TargetID    string
	RoleLevel   RoleLevel
	RoleName    string
	Context     ContextMap
	RoleVersion int64
}

// AssignRole changes the target principal's role level and context map.
// The actor must resolve to Admin before anything is read or written.
// The persisted update is a single conditional write; the audit row is
// part of the same transaction, and the target's cached claims are
// invalidated after commit so the change is visible immediately.
func (s *Service) AssignRole(ctx context.Context, input AssignInput) (AssignResult, error) {
	actor, err := s.resolver.Resolve(ctx)
	if err != nil {
		return AssignResult{}, err
	}
	if !actor.Authenticated() {
		return AssignResult{}, ErrUnauthenticated
	}
	if actor.RoleLevel < LevelAdmin {
		return AssignResult{}, ErrForbidden
	}

	contextMap, err := s.validateInput(ctx, input)
	if err != nil {
		return AssignResult{}, err
	}

	target, err := s.findTarget(ctx, input.TargetEmail)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AssignResult{}, ErrTargetNotFound
		}
		return AssignResult{}, err
	}

	roleName := input.RoleLevel.String()
	newVersion, err := s.repo.UpdateRole(ctx, RoleChange{
		ActorID:    actor.PrincipalID,
		TargetID:   target.ID,
		OldLevel:   target.RoleLevel,
		NewLevel:   input.RoleLevel,
		OldContext: target.Context,
		NewContext: contextMap,
	}, target.RoleVersion, roleName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AssignResult{}, ErrTargetNotFound
		}
		return AssignResult{}, err
	}

	// Drop the denormalized claims so the next check rereads the record.
	// A cache outage here leaves at most one claims-TTL of staleness.
	if err := s.resolver.Invalidate(ctx, target.ID); err != nil && s.logger != nil {
		s.logger.Error("claims invalidation after role change failed",
			slog.String("target_id", target.ID.String()), slog.Any("error", err))
	}

	if s.logger != nil {
		s.logger.Info("role assigned",
			slog.String("actor_id", actor.PrincipalID.String()),
			slog.String("target_id", target.ID.String()),
			slog.Int("old_level", int(target.RoleLevel)),
			slog.Int("new_level", int(input.RoleLevel)))
	}

	return AssignResult{
		TargetID:    target.ID.String(),
		RoleLevel:   input.RoleLevel,
		RoleName:    roleName,
		Context:     contextMap,
		RoleVersion: newVersion,
	}, nil
}

// findTarget resolves the target by email, or by id when the
// identifier parses as a UUID.
func (s *Service) findTarget(ctx context.Context, identifier string) (*Principal, error) {
	identifier = strings.TrimSpace(identifier)
	if id, err := uuid.Parse(identifier); err == nil {
		return s.repo.FindByID(ctx, id)
	}
	return s.repo.FindByEmail(ctx, identifier)
}

func (s *Service) validateInput(ctx context.Context, input AssignInput) (ContextMap, error) {
	if strings.TrimSpace(input.TargetEmail) == "" {
		return nil, invalid("targetEmail", "required")
	}
	if !input.RoleLevel.Valid() {
		return nil, invalid("roleLevel", fmt.Sprintf("must be between %d and %d", LevelMember, LevelAdmin))
	}

	switch input.RoleLevel {
	case LevelCellLeader:
		if input.ContextType != ContextCellGroup && input.ContextType != ContextDistrict {
			return nil, invalid("contextType", "cell leaders are scoped to cell groups or districts")
		}
	case LevelMinistryLeader:
		if input.ContextType != ContextMinistry {
			return nil, invalid("contextType", "ministry leaders are scoped to ministries")
		}
	default:
		// Context is meaningless for Member and Admin; drop whatever was sent.
		return nil, nil
	}

	contextMap := NewContextMap(input.ContextType, input.ContextIDs)
	if contextMap == nil {
		return nil, invalid("contextIds", "at least one id is required for a scoped role")
	}
	if s.validator != nil {
		if err := s.validator.ValidateContextIDs(ctx, input.ContextType, contextMap[input.ContextType]); err != nil {
			return nil, err
		}
	}
	return contextMap, nil
}
