package store

import (
	"context"
	"errors"
	"testing"

	"github.com/contagem-app/contagem/internal/db"
	"github.com/contagem-app/contagem/internal/model"
)

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "testuser", "hash123", model.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Name != "testuser" {
		t.Errorf("expected name 'testuser', got %q", user.Name)
	}
	if user.Role != model.RoleUser {
		t.Errorf("expected role 'user', got %q", user.Role)
	}

	got, err := GetUser(ctx, database, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Name != "testuser" {
		t.Errorf("expected name 'testuser', got %q", got.Name)
	}

	missing, err := GetUser(ctx, database, 9999)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestCreateUserDuplicateName(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	if _, err := CreateUser(ctx, database, "alice", "hash", model.RoleUser); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	_, err := CreateUser(ctx, database, "alice", "hash", model.RoleUser)
	if !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestDeletedUserNameCanBeReused(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "bob", "hash", model.RoleUser)
	if err := DeleteUser(ctx, database, user.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := CreateUser(ctx, database, "bob", "hash", model.RoleUser); err != nil {
		t.Fatalf("CreateUser after delete: %v", err)
	}
}

func TestGetUserByName(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "alice", "hash", model.RoleAdmin)

	user, err := GetUserByName(ctx, database, "alice")
	if err != nil {
		t.Fatalf("GetUserByName: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if user.Role != model.RoleAdmin {
		t.Errorf("expected role admin, got %q", user.Role)
	}

	missing, err := GetUserByName(ctx, database, "bob")
	if err != nil {
		t.Fatalf("GetUserByName: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestListAndCountUsers(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "a", "hash", model.RoleUser)
	b, _ := CreateUser(ctx, database, "b", "hash", model.RoleAdmin)
	DeleteUser(ctx, database, b.ID)

	users, err := ListUsers(ctx, database)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("expected 1 active user, got %d", len(users))
	}

	n, err := CountUsers(ctx, database)
	if err != nil {
		t.Fatalf("CountUsers: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 users in total, got %d", n)
	}
}

func TestDeleteUserNotFound(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	if err := DeleteUser(ctx, database, 42); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateUserCode(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "codeuser", "oldhash", model.RoleUser)
	if err := UpdateUserCode(ctx, database, user.ID, "newhash"); err != nil {
		t.Fatalf("UpdateUserCode: %v", err)
	}

	got, _ := GetUser(ctx, database, user.ID)
	if got.CodeHash != "newhash" {
		t.Errorf("expected code hash 'newhash', got %q", got.CodeHash)
	}
}
