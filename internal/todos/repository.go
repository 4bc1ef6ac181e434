package todos

import (
	"context"
	"errors"
	"fmt"

	"multiactivity/internal/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrTodoNotFound is returned when the todo does not exist or belongs to
// someone else
var ErrTodoNotFound = errors.New("todo not found")

// Repository persists todos. Every method is scoped to userID.
type Repository interface {
	List(ctx context.Context, userID uuid.UUID) ([]Todo, error)
	Create(ctx context.Context, userID uuid.UUID, title string) (*Todo, error)
	Toggle(ctx context.Context, userID uuid.UUID, id int64) (*Todo, error)
	Delete(ctx context.Context, userID uuid.UUID, id int64) error
}

type repository struct {
	db database.Service
}

// NewRepository creates a Postgres-backed todo repository
func NewRepository(db database.Service) Repository {
	return &repository{db: db}
}

const todoColumns = `id, user_id, title, is_complete, created_at`

func scanTodo(row pgx.Row) (*Todo, error) {
	var t Todo
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.IsComplete, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTodoNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repository) List(ctx context.Context, userID uuid.UUID) ([]Todo, error) {
	query := `
		SELECT ` + todoColumns + `
		FROM todos
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, userID, database.PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer rows.Close()

	todos := make([]Todo, 0)
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		todos = append(todos, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate todos: %w", err)
	}
	return todos, nil
}

func (r *repository) Create(ctx context.Context, userID uuid.UUID, title string) (*Todo, error) {
	query := `
		INSERT INTO todos (user_id, title)
		VALUES ($1, $2)
		RETURNING ` + todoColumns

	t, err := scanTodo(r.db.QueryRow(ctx, query, userID, title))
	if err != nil {
		return nil, fmt.Errorf("failed to create todo: %w", err)
	}
	return t, nil
}

func (r *repository) Toggle(ctx context.Context, userID uuid.UUID, id int64) (*Todo, error) {
	query := `
		UPDATE todos
		SET is_complete = NOT is_complete
		WHERE id = $1 AND user_id = $2
		RETURNING ` + todoColumns

	t, err := scanTodo(r.db.QueryRow(ctx, query, id, userID))
	if errors.Is(err, ErrTodoNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to toggle todo: %w", err)
	}
	return t, nil
}

func (r *repository) Delete(ctx context.Context, userID uuid.UUID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM todos WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete todo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTodoNotFound
	}
	return nil
}
