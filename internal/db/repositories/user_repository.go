// user_repository.go implements UserRepository: account creation, lookup by
// email or id, and password updates.
package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/MURUGANQA/auth-service/internal/db/models"
	"github.com/MURUGANQA/auth-service/internal/domain"
)

const userColumns = `id, email, password, profile, settings, status, created_at, updated_at`

// UserRepository handles user database operations
type UserRepository struct {
	db Handle
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db Handle) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts user and fills in its ID and timestamps. A duplicate email
// (compared case-insensitively) yields a ConflictError.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	now := nowUnix()
	query := `
		INSERT INTO users (email, password, profile, settings, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id
	`

	err := r.db.QueryRowxContext(ctx, query,
		user.Email,
		user.Password,
		jsonOrEmpty(user.Profile),
		jsonOrEmpty(user.Settings),
		user.Status,
		now,
	).Scan(&user.ID)
	if err != nil {
		return mapStoreError("create user", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetByEmail retrieves a user by email, ignoring case. Returns nil, nil when
// no user matches.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return r.getOne(ctx, "get user by email", query, email)
}

// GetByID retrieves a user by ID. Returns nil, nil when absent.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, "get user", query, id)
}

// EmailExists reports whether an account already uses email.
func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowxContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = lower($1))`, email,
	).Scan(&exists)
	if err != nil {
		return false, mapStoreError("check email", err)
	}
	return exists, nil
}

// UpdatePassword replaces the stored hash for userID.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID int64, hash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password = $2, updated_at = $3 WHERE id = $1`,
		userID, hash, nowUnix(),
	)
	if err != nil {
		return mapStoreError("update password", err)
	}
	n, err := rowsAffected("update password", res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound(domain.EntityUser, "user %d not found", userID)
	}
	return nil
}

func (r *UserRepository) getOne(ctx context.Context, op, query string, arg interface{}) (*models.User, error) {
	user := &models.User{}
	var profile, settings []byte
	err := r.db.QueryRowxContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Password,
		&profile,
		&settings,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapStoreError(op, err)
	}
	user.Profile = profile
	user.Settings = settings
	return user, nil
}
