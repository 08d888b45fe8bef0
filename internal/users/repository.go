package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-gov/meridian/internal/authz"
	"github.com/meridian-gov/meridian/internal/platform/db"
	"github.com/meridian-gov/meridian/internal/shared"
)

const userColumns = `id, email, name, role, password_hash, is_active, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns all users ordered by id.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// GetUser fetches one user by id.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// FindByEmail fetches one user by email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// CreateUser inserts a new account and returns it with generated
// fields. The audit callback runs inside the insert transaction; a
// failed audit append rolls the account back.
func (r *Repository) CreateUser(ctx context.Context, u User, audit func(context.Context, User) error) (User, error) {
	var created User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO users (email, name, role, password_hash, is_active)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING `+userColumns,
			u.Email, u.Name, string(u.Role), u.PasswordHash, u.IsActive)
		var err error
		created, err = scanUser(row)
		if err != nil {
			return err
		}
		return audit(ctx, created)
	})
	if err != nil {
		return User{}, err
	}
	return created, nil
}

// UpdateUser persists mutable profile fields, committing only after the
// audit callback succeeds.
func (r *Repository) UpdateUser(ctx context.Context, u User, audit func(context.Context, User) error) (User, error) {
	var updated User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`UPDATE users
			 SET email = $2, name = $3, role = $4, is_active = $5, updated_at = now()
			 WHERE id = $1
			 RETURNING `+userColumns,
			u.ID, u.Email, u.Name, string(u.Role), u.IsActive)
		user, err := scanUser(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return err
		}
		updated = user
		return audit(ctx, user)
	})
	if err != nil {
		return User{}, err
	}
	return updated, nil
}

// PrincipalByID resolves a policy identity from storage. Unknown
// accounts map to shared.ErrNotFound so callers can fail closed.
func (r *Repository) PrincipalByID(ctx context.Context, id int64) (authz.Principal, error) {
	var p authz.Principal
	var role string
	err := r.pool.QueryRow(ctx,
		`SELECT id, role, is_active FROM users WHERE id = $1`, id).
		Scan(&p.ID, &role, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Principal{}, shared.ErrNotFound
		}
		return authz.Principal{}, err
	}
	p.Role = authz.Role(role)
	return p, nil
}

var _ authz.Directory = (*Repository)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, err
	}
	u.Role = authz.Role(role)
	return u, nil
}

func scanUsers(rows pgx.Rows) ([]User, error) {
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
