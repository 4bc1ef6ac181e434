package notes

import (
	"context"
	"errors"
	"fmt"

	"multiactivity/internal/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNoteNotFound is returned when the note does not exist or belongs to
// someone else
var ErrNoteNotFound = errors.New("note not found")

// sortColumns whitelists ?sort= values
var sortColumns = map[string]database.Sort{
	"title":      {Column: "title"},
	"created_at": {Column: "created_at", Desc: true},
}

// Repository persists notes. Every method is scoped to userID.
type Repository interface {
	List(ctx context.Context, userID uuid.UUID, sort database.Sort) ([]Note, error)
	Get(ctx context.Context, userID uuid.UUID, id int64) (*Note, error)
	Create(ctx context.Context, userID uuid.UUID, title, content string) (*Note, error)
	Update(ctx context.Context, userID uuid.UUID, id int64, title, content string) (*Note, error)
	Delete(ctx context.Context, userID uuid.UUID, id int64) error
}

type repository struct {
	db database.Service
}

// NewRepository creates a Postgres-backed note repository
func NewRepository(db database.Service) Repository {
	return &repository{db: db}
}

const noteColumns = `id, user_id, title, content, created_at, updated_at`

func scanNote(row pgx.Row) (*Note, error) {
	var n Note
	err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *repository) List(ctx context.Context, userID uuid.UUID, sort database.Sort) ([]Note, error) {
	query := `
		SELECT ` + noteColumns + `
		FROM notes
		WHERE user_id = $1
		ORDER BY ` + sort.SQL() + `
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, userID, database.PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	notes := make([]Note, 0)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

func (r *repository) Get(ctx context.Context, userID uuid.UUID, id int64) (*Note, error) {
	n, err := scanNote(r.db.QueryRow(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil && !errors.Is(err, ErrNoteNotFound) {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return n, err
}

func (r *repository) Create(ctx context.Context, userID uuid.UUID, title, content string) (*Note, error) {
	query := `
		INSERT INTO notes (user_id, title, content)
		VALUES ($1, $2, $3)
		RETURNING ` + noteColumns

	n, err := scanNote(r.db.QueryRow(ctx, query, userID, title, content))
	if err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}
	return n, nil
}

func (r *repository) Update(ctx context.Context, userID uuid.UUID, id int64, title, content string) (*Note, error) {
	query := `
		UPDATE notes
		SET title = $3, content = $4, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + noteColumns

	n, err := scanNote(r.db.QueryRow(ctx, query, id, userID, title, content))
	if err != nil && !errors.Is(err, ErrNoteNotFound) {
		return nil, fmt.Errorf("failed to update note: %w", err)
	}
	return n, err
}

func (r *repository) Delete(ctx context.Context, userID uuid.UUID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM notes WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoteNotFound
	}
	return nil
}
