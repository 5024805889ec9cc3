package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/rougue1/tictactoe-server/internal/apperror"
	"github.com/rougue1/tictactoe-server/internal/model"
)

// newTestDB returns a DB backed by an in-memory database, destroyed when the
// test finishes.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser creates an account and fails the test if it errors.
func createTestUser(t *testing.T, r *UserRepo, username string) *model.User {
	t.Helper()
	user := &model.User{
		Username:     username,
		PasswordHash: "$2a$04$fakehashforrepositorytests",
	}
	if err := r.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user %q: %v", username, err)
	}
	return user
}

func TestUserCreate(t *testing.T) {
	users := newTestDB(t).Users()

	user := &model.User{Username: "alice", PasswordHash: "hash"}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if user.ID == "" {
		t.Error("Create() did not set user.ID")
	}
	if user.CreatedAt.IsZero() {
		t.Error("Create() did not set user.CreatedAt")
	}
}

func TestUserCreate_DuplicateUsername(t *testing.T) {
	users := newTestDB(t).Users()
	createTestUser(t, users, "alice")

	dup := &model.User{Username: "alice", PasswordHash: "otherhash"}
	err := users.Create(context.Background(), dup)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Create() error = %v, want ErrConflict", err)
	}
}

func TestUserGetByUsername(t *testing.T) {
	users := newTestDB(t).Users()
	created := createTestUser(t, users, "alice")

	got, err := users.GetByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("GetByUsername() ID = %q, want %q", got.ID, created.ID)
	}
	if got.PasswordHash != created.PasswordHash {
		t.Error("GetByUsername() did not return the password hash")
	}
}

func TestUserGetByID_NotFound(t *testing.T) {
	users := newTestDB(t).Users()

	_, err := users.GetByID(context.Background(), "no-such-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestUserSearch(t *testing.T) {
	users := newTestDB(t).Users()
	alice := createTestUser(t, users, "alice")
	createTestUser(t, users, "alicia")
	createTestUser(t, users, "bob")

	got, err := users.Search(context.Background(), "ali", alice.ID, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	// "alice" is excluded (caller), "bob" doesn't match.
	if len(got) != 1 || got[0].Username != "alicia" {
		t.Errorf("Search() = %+v, want just alicia", got)
	}
}

func TestUserIncrementWins(t *testing.T) {
	users := newTestDB(t).Users()
	alice := createTestUser(t, users, "alice")

	for i := 0; i < 3; i++ {
		if err := users.IncrementWins(context.Background(), alice.ID); err != nil {
			t.Fatalf("IncrementWins() error = %v", err)
		}
	}

	got, err := users.GetByID(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Wins != 3 {
		t.Errorf("Wins = %d, want 3", got.Wins)
	}
}

func TestUserIncrementWins_UnknownUser(t *testing.T) {
	users := newTestDB(t).Users()

	err := users.IncrementWins(context.Background(), "no-such-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("IncrementWins() error = %v, want ErrNotFound", err)
	}
}

func TestUserTopByWins(t *testing.T) {
	users := newTestDB(t).Users()
	alice := createTestUser(t, users, "alice")
	bob := createTestUser(t, users, "bob")
	createTestUser(t, users, "carol")

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := users.IncrementWins(ctx, bob.ID); err != nil {
			t.Fatalf("IncrementWins() error = %v", err)
		}
	}
	if err := users.IncrementWins(ctx, alice.ID); err != nil {
		t.Fatalf("IncrementWins() error = %v", err)
	}

	got, err := users.TopByWins(ctx, 2)
	if err != nil {
		t.Fatalf("TopByWins() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("TopByWins() returned %d entries, want 2", len(got))
	}
	if got[0].Username != "bob" || got[0].Wins != 2 {
		t.Errorf("first entry = %+v, want bob with 2 wins", got[0])
	}
	if got[1].Username != "alice" || got[1].Wins != 1 {
		t.Errorf("second entry = %+v, want alice with 1 win", got[1])
	}
}
