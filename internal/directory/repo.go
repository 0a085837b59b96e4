package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shepherd-cms/shepherd/internal/rbac"
)

// Repository provides read access to the church directory tables.
type Repository interface {
	ListCellGroups(ctx context.Context) ([]CellGroup, error)
	ListMinistries(ctx context.Context) ([]Ministry, error)
	ListDistricts(ctx context.Context) ([]District, error)
	FindCellGroup(ctx context.Context, id string) (*CellGroup, error)
	// ExistingIDs reports which of the given ids are present in the table
	// backing the context type.
	ExistingIDs(ctx context.Context, t rbac.ContextType, ids []string) (map[string]struct{}, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL directory repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func tableFor(t rbac.ContextType) (string, error) {
	switch t {
	case rbac.ContextCellGroup:
		return "cell_groups", nil
	case rbac.ContextMinistry:
		return "ministries", nil
	case rbac.ContextDistrict:
		return "districts", nil
	default:
		return "", fmt.Errorf("directory: unknown context type %q", t)
	}
}

// ListCellGroups returns all cell groups ordered by name.
func (r *PGRepository) ListCellGroups(ctx context.Context) ([]CellGroup, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, district_id, created_at FROM cell_groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("directory: list cell groups: %w", err)
	}
	defer rows.Close()

	var result []CellGroup
	for rows.Next() {
		var (
			g         CellGroup
			district  pgtype.Text
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&g.ID, &g.Name, &district, &createdAt); err != nil {
			return nil, fmt.Errorf("directory: scan cell group: %w", err)
		}
		if district.Valid {
			g.DistrictID = district.String
		}
		g.CreatedAt = createdAt.Time
		result = append(result, g)
	}
	return result, rows.Err()
}

// ListMinistries returns all ministries ordered by name.
func (r *PGRepository) ListMinistries(ctx context.Context) ([]Ministry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at FROM ministries ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("directory: list ministries: %w", err)
	}
	defer rows.Close()

	var result []Ministry
	for rows.Next() {
		var (
			m         Ministry
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&m.ID, &m.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("directory: scan ministry: %w", err)
		}
		m.CreatedAt = createdAt.Time
		result = append(result, m)
	}
	return result, rows.Err()
}

// ListDistricts returns all districts ordered by name.
func (r *PGRepository) ListDistricts(ctx context.Context) ([]District, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at FROM districts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("directory: list districts: %w", err)
	}
	defer rows.Close()

	var result []District
	for rows.Next() {
		var (
			d         District
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&d.ID, &d.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("directory: scan district: %w", err)
		}
		d.CreatedAt = createdAt.Time
		result = append(result, d)
	}
	return result, rows.Err()
}

// FindCellGroup fetches one cell group by id.
func (r *PGRepository) FindCellGroup(ctx context.Context, id string) (*CellGroup, error) {
	var (
		g         CellGroup
		district  pgtype.Text
		createdAt pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, `SELECT id, name, district_id, created_at FROM cell_groups WHERE id = $1`, id).
		Scan(&g.ID, &g.Name, &district, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("directory: find cell group: %w", err)
	}
	if district.Valid {
		g.DistrictID = district.String
	}
	g.CreatedAt = createdAt.Time
	return &g, nil
}

// ExistingIDs checks the backing table for the given ids.
func (r *PGRepository) ExistingIDs(ctx context.Context, t rbac.ContextType, ids []string) (map[string]struct{}, error) {
	table, err := tableFor(t)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return map[string]struct{}{}, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id FROM `+table+` WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("directory: existing ids: %w", err)
	}
	defer rows.Close()

	found := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("directory: scan id: %w", err)
		}
		found[id] = struct{}{}
	}
	return found, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
