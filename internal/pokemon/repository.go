package pokemon

import (
	"context"
	"errors"
	"fmt"

	"multiactivity/internal/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrReviewNotFound = errors.New("review not found")
	ErrNotOwner       = errors.New("unauthorized to modify this review")
)

// sortColumns whitelists ?sort= values
var sortColumns = map[string]database.Sort{
	"pokemon_name": {Column: "pokemon_name"},
	"rating":       {Column: "rating", Desc: true},
	"created_at":   {Column: "created_at", Desc: true},
}

// Repository persists Pokémon reviews. Reviews are readable by every user
// and writable only by their author.
type Repository interface {
	ListByPokemon(ctx context.Context, name string, sort database.Sort) ([]Review, error)
	Create(ctx context.Context, userID uuid.UUID, name, comment string, rating int) (*Review, error)
	Update(ctx context.Context, userID uuid.UUID, id int64, comment string, rating int) (*Review, error)
	Delete(ctx context.Context, userID uuid.UUID, id int64) error
}

type repository struct {
	db database.Service
}

// NewRepository creates a Postgres-backed review repository
func NewRepository(db database.Service) Repository {
	return &repository{db: db}
}

const reviewColumns = `id, user_id, pokemon_name, comment, rating, created_at, updated_at`

func scanReview(row pgx.Row) (*Review, error) {
	var rv Review
	err := row.Scan(&rv.ID, &rv.UserID, &rv.PokemonName, &rv.Comment, &rv.Rating, &rv.CreatedAt, &rv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReviewNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rv, nil
}

func (r *repository) ListByPokemon(ctx context.Context, name string, sort database.Sort) ([]Review, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM pokemon_reviews
		WHERE pokemon_name = $1
		ORDER BY ` + sort.SQL() + `
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, name, database.PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list pokemon reviews: %w", err)
	}
	defer rows.Close()

	reviews := make([]Review, 0)
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pokemon review: %w", err)
		}
		reviews = append(reviews, *rv)
	}
	return reviews, rows.Err()
}

func (r *repository) Create(ctx context.Context, userID uuid.UUID, name, comment string, rating int) (*Review, error) {
	query := `
		INSERT INTO pokemon_reviews (user_id, pokemon_name, comment, rating)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + reviewColumns

	rv, err := scanReview(r.db.QueryRow(ctx, query, userID, name, comment, rating))
	if err != nil {
		return nil, fmt.Errorf("failed to create pokemon review: %w", err)
	}
	return rv, nil
}

func (r *repository) Update(ctx context.Context, userID uuid.UUID, id int64, comment string, rating int) (*Review, error) {
	query := `
		UPDATE pokemon_reviews
		SET comment = $3, rating = $4, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + reviewColumns

	rv, err := scanReview(r.db.QueryRow(ctx, query, id, userID, comment, rating))
	if errors.Is(err, ErrReviewNotFound) {
		return nil, r.missOrForeign(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update pokemon review: %w", err)
	}
	return rv, nil
}

func (r *repository) Delete(ctx context.Context, userID uuid.UUID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM pokemon_reviews WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete pokemon review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrForeign(ctx, id)
	}
	return nil
}

func (r *repository) missOrForeign(ctx context.Context, id int64) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pokemon_reviews WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check pokemon review: %w", err)
	}
	if exists {
		return ErrNotOwner
	}
	return ErrReviewNotFound
}
