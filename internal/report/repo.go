package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Repository runs report queries against Postgres.
type Repository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

const employeeName = "COALESCE(NULLIF(u.full_name, ''), u.username)"

// CPD returns CPD records matching f, newest first.
func (r *Repository) CPD(ctx context.Context, f CPDFilter) ([]CPDRow, error) {
	q := r.sb.Select(employeeName, "COALESCE(d.name, '')", "t.title", "c.points", "c.earned_date").
		From("cpd_records c").
		Join("users u ON u.id = c.user_id").
		Join("trainings t ON t.id = c.training_id").
		LeftJoin("departments d ON d.id = u.department_id").
		OrderBy("c.earned_date DESC", "u.username")
	if f.DepartmentID != "" {
		q = q.Where(sq.Eq{"u.department_id": f.DepartmentID})
	}
	if f.From != nil {
		q = q.Where(sq.GtOrEq{"c.earned_date": *f.From})
	}
	if f.To != nil {
		q = q.Where(sq.LtOrEq{"c.earned_date": *f.To})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build cpd report: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []CPDRow
	for rows.Next() {
		var row CPDRow
		if err := rows.Scan(&row.Employee, &row.Department, &row.Training, &row.Points, &row.Date); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

// Attendance returns attendance rows matching f. Unredeemed token
// placeholders have no user and never appear.
func (r *Repository) Attendance(ctx context.Context, f AttendanceFilter) ([]AttendanceRow, error) {
	q := r.sb.Select(employeeName, "COALESCE(d.name, '')", "t.title", "a.status", "a.date").
		From("attendance a").
		Join("users u ON u.id = a.user_id").
		Join("trainings t ON t.id = a.training_id").
		LeftJoin("departments d ON d.id = u.department_id").
		OrderBy("a.date DESC", "t.title", "u.username")
	if f.TrainingID != "" {
		q = q.Where(sq.Eq{"a.training_id": f.TrainingID})
	}
	if f.DepartmentID != "" {
		q = q.Where(sq.Eq{"u.department_id": f.DepartmentID})
	}
	if f.Status != "" {
		q = q.Where(sq.Eq{"a.status": f.Status})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build attendance report: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []AttendanceRow
	for rows.Next() {
		var row AttendanceRow
		if err := rows.Scan(&row.Employee, &row.Department, &row.Training, &row.Status, &row.Date); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

// Expiring returns certificates with expiry on or before until,
// optionally restricted to one department, soonest first.
func (r *Repository) Expiring(ctx context.Context, until time.Time, departmentID string) ([]ExpiringRow, error) {
	q := r.sb.Select("c.id", employeeName, "u.email", "COALESCE(d.name, '')", "t.title", "c.expiry_date").
		From("certificates c").
		Join("users u ON u.id = c.user_id").
		Join("trainings t ON t.id = c.training_id").
		LeftJoin("departments d ON d.id = u.department_id").
		Where(sq.LtOrEq{"c.expiry_date": until}).
		OrderBy("c.expiry_date", "u.username")
	if departmentID != "" {
		q = q.Where(sq.Eq{"u.department_id": departmentID})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build expiry report: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ExpiringRow
	for rows.Next() {
		var row ExpiringRow
		if err := rows.Scan(&row.CertificateID, &row.Employee, &row.Email, &row.Department, &row.Training, &row.ExpiryDate); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, rows.Err()
}
