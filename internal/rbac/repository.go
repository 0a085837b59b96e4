package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shepherd-cms/shepherd/internal/platform/db"
	"github.com/shepherd-cms/shepherd/internal/shared"
)

// Repository defines persistence operations for principals.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Principal, error)
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	Create(ctx context.Context, p *Principal) error
	// UpdateRole applies the new role in a single conditional write keyed
	// on the expected role version and records the change in role_audit
	// within the same transaction. It returns the new version.
	UpdateRole(ctx context.Context, change RoleChange, expectedVersion int64, roleName string) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const principalColumns = `id, email, name, password_hash, role_level, role_name, role_context, role_version, is_active, created_at, updated_at`

// FindByID fetches a principal by id.
func (r *PGRepository) FindByID(ctx context.Context, id uuid.UUID) (*Principal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
	return scanPrincipal(row)
}

// FindByEmail fetches a principal by email, case-insensitively.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Principal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
	return scanPrincipal(row)
}

// Create inserts a new principal record.
func (r *PGRepository) Create(ctx context.Context, p *Principal) error {
	contextJSON, err := marshalContext(p.Context)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = r.pool.Exec(ctx, `
		INSERT INTO principals (id, email, name, password_hash, role_level, role_name, role_context, role_version, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $9, $9)`,
		p.ID, p.Email, p.Name, p.PasswordHash, int(p.RoleLevel), p.RoleName, contextJSON, p.IsActive, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return storeErr("create principal", err)
	}
	return nil
}

// UpdateRole performs the conditional role update plus audit insert.
func (r *PGRepository) UpdateRole(ctx context.Context, change RoleChange, expectedVersion int64, roleName string) (int64, error) {
	newContextJSON, err := marshalContext(change.NewContext)
	if err != nil {
		return 0, err
	}
	oldContextJSON, err := marshalContext(change.OldContext)
	if err != nil {
		return 0, err
	}

	var newVersion int64
	txErr := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE principals
			SET role_level = $2, role_name = $3, role_context = $4, role_version = role_version + 1, updated_at = now()
			WHERE id = $1 AND role_version = $5
			RETURNING role_version`,
			change.TargetID, int(change.NewLevel), roleName, newContextJSON, expectedVersion).Scan(&newVersion)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Distinguish a lost race from a vanished row.
				var exists bool
				if probeErr := tx.QueryRow(ctx, `SELECT true FROM principals WHERE id = $1`, change.TargetID).Scan(&exists); probeErr == nil {
					return ErrVersionConflict
				}
				return ErrNotFound
			}
			return err
		}
		at := change.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO role_audit (actor_id, target_id, old_level, new_level, old_context, new_context, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			change.ActorID, change.TargetID, int(change.OldLevel), int(change.NewLevel), oldContextJSON, newContextJSON,
			pgtype.Timestamptz{Time: at, Valid: true})
		return err
	})
	if txErr != nil {
		if errors.Is(txErr, ErrVersionConflict) || errors.Is(txErr, ErrNotFound) {
			return 0, txErr
		}
		return 0, storeErr("update role", txErr)
	}
	return newVersion, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (*Principal, error) {
	var (
		p           Principal
		level       int
		contextJSON []byte
		createdAt   pgtype.Timestamptz
		updatedAt   pgtype.Timestamptz
	)
	err := row.Scan(&p.ID, &p.Email, &p.Name, &p.PasswordHash, &level, &p.RoleName, &contextJSON, &p.RoleVersion, &p.IsActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storeErr("scan principal", err)
	}
	p.RoleLevel = RoleLevel(level)
	p.CreatedAt = createdAt.Time
	p.UpdatedAt = updatedAt.Time
	if len(contextJSON) > 0 && string(contextJSON) != "null" {
		var cm ContextMap
		if err := json.Unmarshal(contextJSON, &cm); err != nil {
			return nil, fmt.Errorf("rbac: decode context for %s: %w", p.ID, err)
		}
		if len(cm) > 0 {
			p.Context = cm
		}
	}
	return &p, nil
}

func marshalContext(m ContextMap) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("rbac: encode context: %w", err)
	}
	return data, nil
}

// storeErr classifies transport failures as retryable store outages while
// letting server-side errors pass through for logging.
func storeErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("rbac: %s: %w", op, err)
	}
	return fmt.Errorf("rbac: %s: %w: %v", op, shared.ErrStoreUnavailable, err)
}

var _ Repository = (*PGRepository)(nil)
