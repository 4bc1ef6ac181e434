package food

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"multiactivity/internal/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrFoodNotFound   = errors.New("food not found")
	ErrReviewNotFound = errors.New("review not found")
	ErrNotOwner       = errors.New("unauthorized to modify this review")
)

// sortColumns whitelists ?sort= values
var sortColumns = map[string]database.Sort{
	"name":       {Column: "name"},
	"created_at": {Column: "created_at", Desc: true},
}

// FoodRepository persists foods. Every method is scoped to userID.
type FoodRepository interface {
	List(ctx context.Context, userID uuid.UUID, search string, sort database.Sort) ([]Food, error)
	Get(ctx context.Context, userID uuid.UUID, id int64) (*Food, error)
	Create(ctx context.Context, userID uuid.UUID, name, description, photoKey string) (*Food, error)
	// Delete removes the food and returns it so its photo can be cleaned up
	Delete(ctx context.Context, userID uuid.UUID, id int64) (*Food, error)
}

// ReviewRepository persists reviews on foods
type ReviewRepository interface {
	ListByFood(ctx context.Context, foodID int64) ([]Review, error)
	Create(ctx context.Context, userID uuid.UUID, foodID int64, content string, rating int) (*Review, error)
	UpdateContent(ctx context.Context, userID uuid.UUID, id int64, content string) (*Review, error)
	Delete(ctx context.Context, userID uuid.UUID, id int64) error
}

type foodRepository struct {
	db database.Service
}

// NewFoodRepository creates a Postgres-backed food repository
func NewFoodRepository(db database.Service) FoodRepository {
	return &foodRepository{db: db}
}

const foodColumns = `id, user_id, name, description, photo_key, created_at`

func scanFood(row pgx.Row) (*Food, error) {
	var f Food
	err := row.Scan(&f.ID, &f.UserID, &f.Name, &f.Description, &f.PhotoKey, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFoodNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// escapeLike makes search match literally inside an ILIKE pattern
func escapeLike(search string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(search)
}

func (r *foodRepository) List(ctx context.Context, userID uuid.UUID, search string, sort database.Sort) ([]Food, error) {
	query := `
		SELECT ` + foodColumns + `
		FROM foods
		WHERE user_id = $1 AND ($2 = '' OR name ILIKE '%' || $2 || '%')
		ORDER BY ` + sort.SQL() + `
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, userID, escapeLike(strings.TrimSpace(search)), database.PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list foods: %w", err)
	}
	defer rows.Close()

	foods := make([]Food, 0)
	for rows.Next() {
		f, err := scanFood(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan food: %w", err)
		}
		foods = append(foods, *f)
	}
	return foods, rows.Err()
}

func (r *foodRepository) Get(ctx context.Context, userID uuid.UUID, id int64) (*Food, error) {
	f, err := scanFood(r.db.QueryRow(ctx,
		`SELECT `+foodColumns+` FROM foods WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil && !errors.Is(err, ErrFoodNotFound) {
		return nil, fmt.Errorf("failed to get food: %w", err)
	}
	return f, err
}

func (r *foodRepository) Create(ctx context.Context, userID uuid.UUID, name, description, photoKey string) (*Food, error) {
	query := `
		INSERT INTO foods (user_id, name, description, photo_key)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + foodColumns

	f, err := scanFood(r.db.QueryRow(ctx, query, userID, name, description, photoKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create food: %w", err)
	}
	return f, nil
}

func (r *foodRepository) Delete(ctx context.Context, userID uuid.UUID, id int64) (*Food, error) {
	f, err := scanFood(r.db.QueryRow(ctx,
		`DELETE FROM foods WHERE id = $1 AND user_id = $2 RETURNING `+foodColumns, id, userID))
	if err != nil && !errors.Is(err, ErrFoodNotFound) {
		return nil, fmt.Errorf("failed to delete food: %w", err)
	}
	return f, err
}

type reviewRepository struct {
	db database.Service
}

// NewReviewRepository creates a Postgres-backed review repository
func NewReviewRepository(db database.Service) ReviewRepository {
	return &reviewRepository{db: db}
}

const reviewColumns = `id, food_id, user_id, content, rating, created_at, updated_at`

func scanReview(row pgx.Row) (*Review, error) {
	var rv Review
	err := row.Scan(&rv.ID, &rv.FoodID, &rv.UserID, &rv.Content, &rv.Rating, &rv.CreatedAt, &rv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReviewNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rv, nil
}

func (r *reviewRepository) ListByFood(ctx context.Context, foodID int64) ([]Review, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM reviews
		WHERE food_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, foodID, database.PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	reviews := make([]Review, 0)
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, *rv)
	}
	return reviews, rows.Err()
}

func (r *reviewRepository) Create(ctx context.Context, userID uuid.UUID, foodID int64, content string, rating int) (*Review, error) {
	query := `
		INSERT INTO reviews (food_id, user_id, content, rating)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + reviewColumns

	rv, err := scanReview(r.db.QueryRow(ctx, query, foodID, userID, content, rating))
	if err != nil {
		return nil, fmt.Errorf("failed to create review: %w", err)
	}
	return rv, nil
}

func (r *reviewRepository) UpdateContent(ctx context.Context, userID uuid.UUID, id int64, content string) (*Review, error) {
	query := `
		UPDATE reviews
		SET content = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + reviewColumns

	rv, err := scanReview(r.db.QueryRow(ctx, query, id, userID, content))
	if errors.Is(err, ErrReviewNotFound) {
		return nil, r.missOrForeign(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update review: %w", err)
	}
	return rv, nil
}

func (r *reviewRepository) Delete(ctx context.Context, userID uuid.UUID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM reviews WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrForeign(ctx, id)
	}
	return nil
}

// missOrForeign tells a missing review apart from someone else's
func (r *reviewRepository) missOrForeign(ctx context.Context, id int64) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reviews WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check review: %w", err)
	}
	if exists {
		return ErrNotOwner
	}
	return ErrReviewNotFound
}
