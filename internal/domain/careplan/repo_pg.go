package careplan

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careplan/careplan/pkg/apperrors"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type carePlanRepoPG struct{ pool *pgxpool.Pool }

func NewCarePlanRepoPG(pool *pgxpool.Pool) CarePlanRepository {
	return &carePlanRepoPG{pool: pool}
}

func (r *carePlanRepoPG) conn() queryable {
	return r.pool
}

const cpCols = `id, patient_info, care_plan_text, status, created_at, updated_at`

func (r *carePlanRepoPG) scanCP(row pgx.Row) (*CarePlan, error) {
	var cp CarePlan
	err := row.Scan(&cp.ID, &cp.PatientInfo, &cp.CarePlanText, &cp.Status, &cp.CreatedAt, &cp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errNotFound()
	}
	if err != nil {
		return nil, apperrors.NewInternalError("scan care plan", err)
	}
	return &cp, nil
}

func (r *carePlanRepoPG) Create(ctx context.Context, cp *CarePlan) error {
	cp.ID = uuid.New()
	cp.Status = StatusPending
	cp.CarePlanText = ""
	err := r.conn().QueryRow(ctx, `
		INSERT INTO care_plan (id, patient_info, care_plan_text, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		cp.ID, cp.PatientInfo, cp.CarePlanText, cp.Status).Scan(&cp.CreatedAt, &cp.UpdatedAt)
	if err != nil {
		return apperrors.NewInternalError("insert care plan", err)
	}
	return nil
}

func (r *carePlanRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CarePlan, error) {
	return r.scanCP(r.conn().QueryRow(ctx, `SELECT `+cpCols+` FROM care_plan WHERE id = $1`, id))
}

func (r *carePlanRepoPG) List(ctx context.Context, limit, offset int) ([]*CarePlan, int, error) {
	var total int
	if err := r.conn().QueryRow(ctx, `SELECT COUNT(*) FROM care_plan`).Scan(&total); err != nil {
		return nil, 0, apperrors.NewInternalError("count care plans", err)
	}

	query := `SELECT ` + cpCols + ` FROM care_plan ORDER BY created_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	} else if offset > 0 {
		query += ` OFFSET $1`
		args = append(args, offset)
	}

	rows, err := r.conn().Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperrors.NewInternalError("list care plans", err)
	}
	defer rows.Close()
	items := []*CarePlan{}
	for rows.Next() {
		cp, err := r.scanCP(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperrors.NewInternalError("iterate care plans", err)
	}
	return items, total, nil
}

func (r *carePlanRepoPG) Update(ctx context.Context, cp *CarePlan) error {
	err := r.conn().QueryRow(ctx, `
		UPDATE care_plan SET status = $2, care_plan_text = $3, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('COMPLETED', 'FAILED')
		RETURNING updated_at`,
		cp.ID, cp.Status, cp.CarePlanText).Scan(&cp.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewInternalError("update care plan", err)
	}
	if _, getErr := r.GetByID(ctx, cp.ID); getErr != nil {
		return getErr
	}
	return fmt.Errorf("update care plan %s: %w", cp.ID, ErrTerminalState)
}

func (r *carePlanRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn().Exec(ctx, `DELETE FROM care_plan WHERE id = $1`, id)
	if err != nil {
		return apperrors.NewInternalError("delete care plan", err)
	}
	if tag.RowsAffected() == 0 {
		return errNotFound()
	}
	return nil
}

func (r *carePlanRepoPG) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
