package database

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var databaseURL string

func mustStartPostgresContainer() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	var (
		dbName = "database"
		dbPwd  = "password"
		dbUser = "user"
	)

	ctx := context.Background()
	dbContainer, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	databaseURL, err = dbContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return dbContainer.Terminate, err
	}

	return dbContainer.Terminate, nil
}

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	teardown, err := mustStartPostgresContainer()
	if err != nil {
		log.Fatalf("could not start postgres container: %v", err)
	}

	code := m.Run()

	if teardown != nil {
		if err := teardown(context.Background()); err != nil {
			log.Printf("could not teardown postgres container: %v", err)
		}
	}
	os.Exit(code)
}

func newTestService(t *testing.T) Service {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	srv, err := New(ctx, databaseURL, 4)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(srv.Close)

	if err := Migrate(ctx, srv); err != nil {
		t.Fatalf("Migrate() returned error: %v", err)
	}
	return srv
}

func TestNew(t *testing.T) {
	newTestService(t)
}

func TestNew_BadURL(t *testing.T) {
	if _, err := New(context.Background(), "not a url ::", 1); err == nil {
		t.Error("Expected error for malformed url")
	}
}

func TestHealth(t *testing.T) {
	srv := newTestService(t)

	stats := srv.Health()

	if stats["status"] != "up" {
		t.Fatalf("expected status to be up, got %s", stats["status"])
	}
	if _, ok := stats["error"]; ok {
		t.Fatalf("expected error not to be present")
	}
	if stats["message"] != "It's healthy" {
		t.Fatalf("expected message to be 'It's healthy', got %s", stats["message"])
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	srv := newTestService(t)

	if err := Migrate(context.Background(), srv); err != nil {
		t.Fatalf("second Migrate() returned error: %v", err)
	}
}

func TestUsers_UniqueEmail(t *testing.T) {
	srv := newTestService(t)
	ctx := context.Background()

	q := `INSERT INTO users (email, password_hash) VALUES ($1, 'x')`
	if _, err := srv.Exec(ctx, q, "dup@example.com"); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	_, err := srv.Exec(ctx, q, "dup@example.com")
	if !IsUniqueViolation(err) {
		t.Errorf("Expected unique violation, got %v", err)
	}
}

func TestUsers_DeleteCascades(t *testing.T) {
	srv := newTestService(t)
	ctx := context.Background()

	var userID string
	err := srv.QueryRow(ctx,
		`INSERT INTO users (email, password_hash) VALUES ('cascade@example.com', 'x') RETURNING id::text`,
	).Scan(&userID)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}

	var foodID int64
	if err := srv.QueryRow(ctx, `INSERT INTO foods (user_id, name) VALUES ($1, 'ramen') RETURNING id`, userID).Scan(&foodID); err != nil {
		t.Fatalf("insert food: %v", err)
	}
	stmts := []string{
		`INSERT INTO todos (user_id, title) VALUES ($1, 'buy milk')`,
		`INSERT INTO notes (user_id, title) VALUES ($1, 'ideas')`,
		`INSERT INTO pokemon_reviews (user_id, pokemon_name, comment, rating) VALUES ($1, 'pikachu', 'cute', 5)`,
	}
	for _, s := range stmts {
		if _, err := srv.Exec(ctx, s, userID); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	if _, err := srv.Exec(ctx, `INSERT INTO reviews (food_id, user_id, content, rating) VALUES ($1, $2, 'good', 4)`, foodID, userID); err != nil {
		t.Fatalf("insert review: %v", err)
	}

	if _, err := srv.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	for _, table := range []string{"todos", "notes", "foods", "reviews", "pokemon_reviews"} {
		var n int
		if err := srv.QueryRow(ctx, "SELECT COUNT(*) FROM "+table+" WHERE user_id = $1", userID).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("Expected %s rows to cascade, got %d", table, n)
		}
	}
}

func TestReviews_RatingCheck(t *testing.T) {
	srv := newTestService(t)
	ctx := context.Background()

	var userID string
	if err := srv.QueryRow(ctx,
		`INSERT INTO users (email, password_hash) VALUES ('rating@example.com', 'x') RETURNING id::text`,
	).Scan(&userID); err != nil {
		t.Fatalf("insert user: %v", err)
	}

	_, err := srv.Exec(ctx,
		`INSERT INTO pokemon_reviews (user_id, pokemon_name, comment, rating) VALUES ($1, 'mew', 'meh', 9)`, userID)
	if err == nil {
		t.Error("Expected rating check violation")
	}
}
