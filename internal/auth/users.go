package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"multiactivity/internal/database"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrUserNotFound is returned when user is not found
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailExists is returned when email is already registered
	ErrEmailExists = errors.New("email already registered")
)

// UserRepository persists accounts
type UserRepository interface {
	Create(ctx context.Context, email, passwordHash string, confirmed bool) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Confirm(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type userRepository struct {
	db database.Service
}

// NewUserRepository creates a Postgres-backed user repository
func NewUserRepository(db database.Service) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id::text, email, password_hash, confirmed_at, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.ConfirmedAt, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) Create(ctx context.Context, email, passwordHash string, confirmed bool) (*User, error) {
	query := `
		INSERT INTO users (email, password_hash, confirmed_at)
		VALUES ($1, $2, CASE WHEN $3::boolean THEN NOW() END)
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRow(ctx, query, email, passwordHash, confirmed))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("Created new user", "user_id", user.ID, "confirmed", confirmed)
	return user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, err
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, err
}

func (r *userRepository) Confirm(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET confirmed_at = COALESCE(confirmed_at, NOW()), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to confirm user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes the user. Activity rows go with it through ON DELETE CASCADE.
func (r *userRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	slog.Info("Deleted user", "user_id", id)
	return nil
}
