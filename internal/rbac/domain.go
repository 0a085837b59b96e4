package rbac

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Principal represents an account subject to access control.
type Principal struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	RoleLevel    RoleLevel
	RoleName     string
	Context      ContextMap
	RoleVersion  int64
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RoleChange captures one role assignment for the audit trail. It is
// written in the same transaction as the role update.
type RoleChange struct {
	ActorID    uuid.UUID
	TargetID   uuid.UUID
	OldLevel   RoleLevel
	NewLevel   RoleLevel
	OldContext ContextMap
	NewContext ContextMap
	At         time.Time
}

var (
	// ErrNotFound indicates that the requested principal does not exist.
	ErrNotFound = errors.New("rbac: principal not found")
	// ErrTargetNotFound indicates an assignment referencing an unknown principal.
	ErrTargetNotFound = errors.New("rbac: target principal not found")
	// ErrUnauthenticated indicates there is no resolvable principal.
	ErrUnauthenticated = errors.New("rbac: authentication required")
	// ErrForbidden indicates the actor lacks the admin level.
	ErrForbidden = errors.New("rbac: admin role required")
	// ErrVersionConflict indicates a concurrent role assignment won the write.
	ErrVersionConflict = errors.New("rbac: role version conflict")
	// ErrDuplicateEmail indicates a principal with that email already exists.
	ErrDuplicateEmail = errors.New("rbac: email already registered")
)

// ValidationError describes malformed role assignment input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rbac: %s: %s", e.Field, e.Message)
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
