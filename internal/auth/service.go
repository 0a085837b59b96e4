package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/shepherd-cms/shepherd/internal/rbac"
	"github.com/shepherd-cms/shepherd/internal/shared"
)

// PrincipalStore is the read side of the principal record store needed
// for credential checks.
type PrincipalStore interface {
	FindByEmail(ctx context.Context, email string) (*rbac.Principal, error)
}

// Service wraps authentication business rules.
type Service struct {
	principals PrincipalStore
	sessions   SessionRepository
}

// NewService constructs a new Service.
func NewService(principals PrincipalStore, sessions SessionRepository) *Service {
	return &Service{principals: principals, sessions: sessions}
}

// Authenticate validates email/password credentials. A store outage is
// surfaced distinctly so callers can show a retry state instead of a
// misleading credentials error.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*rbac.Principal, error) {
	principal, err := s.principals.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrStoreUnavailable) {
			return nil, err
		}
		return nil, shared.ErrInvalidCredentials
	}
	if !principal.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(principal.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return principal, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, principalID string, expiresAt time.Time, ip, ua string) error {
	return s.sessions.CreateSession(ctx, id, principalID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.sessions.DeleteSession(ctx, id)
}
