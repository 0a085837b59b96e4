package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shepherd-cms/shepherd/internal/rbac"
)

// WindowParams narrows the timeline query to a window of rows.
type WindowParams struct {
	From   pgtype.Timestamptz
	To     pgtype.Timestamptz
	Target pgtype.Text
	Actor  pgtype.Text
	Offset int32
	Limit  int32
}

// Repository provides read access to the role change audit trail.
type Repository interface {
	TimelineWindow(ctx context.Context, params WindowParams) ([]TimelineRow, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL audit repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// TimelineWindow returns audit rows newest first, joined to the actor
// and target principal emails. Filters with invalid pgtype values are
// treated as absent.
func (r *PGRepository) TimelineWindow(ctx context.Context, params WindowParams) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.occurred_at, a.actor_id, COALESCE(actor.email, ''), a.target_id, COALESCE(target.email, ''),
		       a.old_level, a.new_level, a.old_context, a.new_context
		FROM role_audit a
		LEFT JOIN principals actor ON actor.id = a.actor_id
		LEFT JOIN principals target ON target.id = a.target_id
		WHERE ($1::timestamptz IS NULL OR a.occurred_at >= $1)
		  AND ($2::timestamptz IS NULL OR a.occurred_at < $2)
		  AND ($3::text IS NULL OR lower(target.email) = lower($3))
		  AND ($4::text IS NULL OR lower(actor.email) = lower($4))
		ORDER BY a.occurred_at DESC
		OFFSET $5 LIMIT $6`,
		params.From, params.To, params.Target, params.Actor, params.Offset, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline query: %w", err)
	}
	defer rows.Close()

	var result []TimelineRow
	for rows.Next() {
		var (
			row        TimelineRow
			at         pgtype.Timestamptz
			oldLevel   int
			newLevel   int
			oldContext []byte
			newContext []byte
		)
		if err := rows.Scan(&at, &row.ActorID, &row.ActorEmail, &row.TargetID, &row.TargetEmail,
			&oldLevel, &newLevel, &oldContext, &newContext); err != nil {
			return nil, fmt.Errorf("audit: scan timeline row: %w", err)
		}
		row.At = at.Time
		row.OldLevel = rbac.RoleLevel(oldLevel)
		row.NewLevel = rbac.RoleLevel(newLevel)
		if row.OldContext, err = decodeContext(oldContext); err != nil {
			return nil, err
		}
		if row.NewContext, err = decodeContext(newContext); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: timeline rows: %w", err)
	}
	return result, nil
}

// DeleteBefore prunes audit rows older than the cutoff and reports how
// many were removed.
func (r *PGRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM role_audit WHERE occurred_at < $1`,
		pgtype.Timestamptz{Time: cutoff.UTC(), Valid: true})
	if err != nil {
		return 0, fmt.Errorf("audit: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

func decodeContext(data []byte) (rbac.ContextMap, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var cm rbac.ContextMap
	if err := json.Unmarshal(data, &cm); err != nil {
		return nil, fmt.Errorf("audit: decode context: %w", err)
	}
	if len(cm) == 0 {
		return nil, nil
	}
	return cm, nil
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

var _ Repository = (*PGRepository)(nil)
