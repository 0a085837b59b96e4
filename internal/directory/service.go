package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/shepherd-cms/shepherd/internal/rbac"
)

// Service exposes directory listings and backs the role assignment
// context checks.
type Service struct {
	repo Repository
}

// NewService constructs a directory service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CellGroups lists all cell groups.
func (s *Service) CellGroups(ctx context.Context) ([]CellGroup, error) {
	return s.repo.ListCellGroups(ctx)
}

// Ministries lists all ministries.
func (s *Service) Ministries(ctx context.Context) ([]Ministry, error) {
	return s.repo.ListMinistries(ctx)
}

// Districts lists all districts.
func (s *Service) Districts(ctx context.Context) ([]District, error) {
	return s.repo.ListDistricts(ctx)
}

// CellGroup fetches one cell group by id.
func (s *Service) CellGroup(ctx context.Context, id string) (*CellGroup, error) {
	return s.repo.FindCellGroup(ctx, id)
}

// ValidateContextIDs rejects role assignments that reference directory
// resources which do not exist. Unknown ids come back as a field level
// validation error so the admin endpoint responds with 400 rather than
// persisting a dangling scope.
func (s *Service) ValidateContextIDs(ctx context.Context, t rbac.ContextType, ids []string) error {
	found, err := s.repo.ExistingIDs(ctx, t, ids)
	if err != nil {
		return fmt.Errorf("directory: validate context ids: %w", err)
	}
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &rbac.ValidationError{
			Field:   "contextIds",
			Message: "unknown ids: " + strings.Join(missing, ", "),
		}
	}
	return nil
}

var _ rbac.ContextValidator = (*Service)(nil)
