package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"stafftracker/internal/store"
)

// Repository persists users, departments and refresh tokens in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, username, email, full_name, password_hash, role, is_approved, department_id, extra_info, created_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	var dept sql.NullString
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.PasswordHash, &u.Role, &u.IsApproved, &dept, &u.ExtraInfo, &u.CreatedAt); err != nil {
		return User{}, err
	}
	if dept.Valid {
		u.DepartmentID = &dept.String
	}
	return u, nil
}

// CreateUser inserts a user, assigning an id when missing.
func (r *Repository) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, username, email, full_name, password_hash, role, is_approved, department_id, extra_info)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at
	`, u.ID, u.Username, u.Email, u.FullName, u.PasswordHash, u.Role, u.IsApproved, u.DepartmentID, u.ExtraInfo)
	if err := row.Scan(&u.CreatedAt); err != nil {
		if store.IsUniqueViolation(err, "users_username_key") {
			return ErrUsernameTaken
		}
		if store.IsForeignKeyViolation(err) {
			return ErrDepartmentNotFound
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser returns a single user by id.
func (r *Repository) GetUser(ctx context.Context, id string) (User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// GetUserByUsername returns a single user by username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// ListUsers returns users matching the filter ordered by username.
func (r *Repository) ListUsers(ctx context.Context, f UserFilter) ([]User, error) {
	q := sq.Select(userColumns).From("users").OrderBy("username").PlaceholderFormat(sq.Dollar)
	if f.Role != "" {
		q = q.Where(sq.Eq{"role": f.Role})
	}
	if f.DepartmentID != "" {
		q = q.Where(sq.Eq{"department_id": f.DepartmentID})
	}
	if f.Approved != nil {
		q = q.Where(sq.Eq{"is_approved": *f.Approved})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// SetApproved flips the approval flag.
func (r *Repository) SetApproved(ctx context.Context, id string, approved bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET is_approved = $2 WHERE id = $1`, id, approved)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateDepartment inserts a department.
func (r *Repository) CreateDepartment(ctx context.Context, d *Department) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO departments (id, name, hod_id) VALUES ($1, $2, $3)
		RETURNING created_at
	`, d.ID, d.Name, d.HODID)
	if err := row.Scan(&d.CreatedAt); err != nil {
		if store.IsUniqueViolation(err, "departments_name_key") {
			return ErrDepartmentExists
		}
		return fmt.Errorf("insert department: %w", err)
	}
	return nil
}

// GetDepartment returns a department by id.
func (r *Repository) GetDepartment(ctx context.Context, id string) (Department, error) {
	var d Department
	var hod sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT id, name, hod_id, created_at FROM departments WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &hod, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Department{}, ErrDepartmentNotFound
	}
	if err != nil {
		return Department{}, err
	}
	if hod.Valid {
		d.HODID = &hod.String
	}
	return d, nil
}

// ListDepartments returns all departments by name.
func (r *Repository) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, hod_id, created_at FROM departments ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Department
	for rows.Next() {
		var d Department
		var hod sql.NullString
		if err := rows.Scan(&d.ID, &d.Name, &hod, &d.CreatedAt); err != nil {
			return nil, err
		}
		if hod.Valid {
			d.HODID = &hod.String
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// SetDepartmentHOD assigns the head of a department.
func (r *Repository) SetDepartmentHOD(ctx context.Context, departmentID, userID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE departments SET hod_id = $2 WHERE id = $1`, departmentID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDepartmentNotFound
	}
	return nil
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (user_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, userID, token, expiresAt)
	return err
}

// ConsumeRefreshToken revokes a live token and returns its owner. A token
// can be consumed once.
func (r *Repository) ConsumeRefreshToken(ctx context.Context, token string) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token = $1 AND revoked = FALSE AND expires_at > NOW()
		RETURNING user_id
	`, token).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRefreshInvalid
	}
	return userID, err
}
