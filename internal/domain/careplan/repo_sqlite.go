package careplan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/google/uuid"

	"github.com/careplan/careplan/pkg/apperrors"
)

// carePlanRepoSQLite stores care plans in an embedded SQLite database.
// Timestamps are kept as Unix nanoseconds so ordering is exact.
type carePlanRepoSQLite struct {
	db  *sql.DB
	qb  goqu.DialectWrapper
	now func() time.Time
}

// NewCarePlanRepoSQLite expects a database opened with db.OpenSQLite.
func NewCarePlanRepoSQLite(db *sql.DB) CarePlanRepository {
	return &carePlanRepoSQLite{
		db:  db,
		qb:  goqu.Dialect("sqlite3"),
		now: time.Now,
	}
}

var sqliteCols = []interface{}{"id", "patient_info", "care_plan_text", "status", "created_at", "updated_at"}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *carePlanRepoSQLite) scanCP(row rowScanner) (*CarePlan, error) {
	var (
		cp               CarePlan
		id               string
		status           string
		created, updated int64
	)
	err := row.Scan(&id, &cp.PatientInfo, &cp.CarePlanText, &status, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound()
	}
	if err != nil {
		return nil, apperrors.NewInternalError("scan care plan", err)
	}
	if cp.ID, err = uuid.Parse(id); err != nil {
		return nil, apperrors.NewInternalError("parse care plan id", err)
	}
	cp.Status = Status(status)
	cp.CreatedAt = fromNanos(created)
	cp.UpdatedAt = fromNanos(updated)
	return &cp, nil
}

func (r *carePlanRepoSQLite) stamp() (time.Time, int64) {
	n := r.now().UnixNano()
	return fromNanos(n), n
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func (r *carePlanRepoSQLite) Create(ctx context.Context, cp *CarePlan) error {
	ts, n := r.stamp()
	cp.ID = uuid.New()
	cp.Status = StatusPending
	cp.CarePlanText = ""
	cp.CreatedAt, cp.UpdatedAt = ts, ts

	query, args, err := r.qb.Insert("care_plan").Prepared(true).Rows(goqu.Record{
		"id":             cp.ID.String(),
		"patient_info":   cp.PatientInfo,
		"care_plan_text": cp.CarePlanText,
		"status":         string(cp.Status),
		"created_at":     n,
		"updated_at":     n,
	}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("build insert query", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("insert care plan", err)
	}
	return nil
}

func (r *carePlanRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*CarePlan, error) {
	query, args, err := r.qb.From("care_plan").Prepared(true).
		Select(sqliteCols...).
		Where(goqu.C("id").Eq(id.String())).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("build select query", err)
	}
	return r.scanCP(r.db.QueryRowContext(ctx, query, args...))
}

func (r *carePlanRepoSQLite) List(ctx context.Context, limit, offset int) ([]*CarePlan, int, error) {
	countQuery, countArgs, err := r.qb.From("care_plan").Prepared(true).
		Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return nil, 0, apperrors.NewInternalError("build count query", err)
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, apperrors.NewInternalError("count care plans", err)
	}

	ds := r.qb.From("care_plan").Prepared(true).
		Select(sqliteCols...).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Asc())
	skip := 0
	if limit > 0 {
		ds = ds.Limit(uint(limit)).Offset(uint(max(offset, 0)))
	} else {
		skip = offset
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, 0, apperrors.NewInternalError("build list query", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, apperrors.NewInternalError("list care plans", err)
	}
	defer rows.Close()
	items := []*CarePlan{}
	for i := 0; rows.Next(); i++ {
		cp, err := r.scanCP(rows)
		if err != nil {
			return nil, 0, err
		}
		if i < skip {
			continue
		}
		items = append(items, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperrors.NewInternalError("iterate care plans", err)
	}
	return items, total, nil
}

func (r *carePlanRepoSQLite) Update(ctx context.Context, cp *CarePlan) error {
	ts, n := r.stamp()
	query, args, err := r.qb.Update("care_plan").Prepared(true).
		Set(goqu.Record{
			"status":         string(cp.Status),
			"care_plan_text": cp.CarePlanText,
			"updated_at":     n,
		}).
		Where(
			goqu.C("id").Eq(cp.ID.String()),
			goqu.C("status").NotIn(string(StatusCompleted), string(StatusFailed)),
		).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("build update query", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("update care plan", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("update care plan", err)
	}
	if affected == 0 {
		if _, getErr := r.GetByID(ctx, cp.ID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("update care plan %s: %w", cp.ID, ErrTerminalState)
	}
	cp.UpdatedAt = ts
	return nil
}

func (r *carePlanRepoSQLite) Delete(ctx context.Context, id uuid.UUID) error {
	query, args, err := r.qb.Delete("care_plan").Prepared(true).
		Where(goqu.C("id").Eq(id.String())).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("build delete query", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("delete care plan", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("delete care plan", err)
	}
	if affected == 0 {
		return errNotFound()
	}
	return nil
}

func (r *carePlanRepoSQLite) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
