package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"mailgate/internal/db"
	"mailgate/internal/mail"
)

// nopCloseStore keeps the shared memory store usable across commands.
type nopCloseStore struct {
	db.Store
}

func (nopCloseStore) Close() error { return nil }

func runAdmin(t *testing.T, store db.Store, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(func(ctx context.Context, configPath string) (db.Store, error) {
		return nopCloseStore{store}, nil
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestUserAdd(t *testing.T) {
	store := db.NewMemoryStore()

	out, err := runAdmin(t, store, "", "user", "add", "Alice@Example.com", "--password", "secret")
	if err != nil {
		t.Fatalf("user add failed: %v", err)
	}
	if !strings.Contains(out, "created alice@example.com") {
		t.Errorf("Unexpected output %q", out)
	}

	user, err := store.GetUser(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("Expected user to exist: %v", err)
	}
	if !strings.HasPrefix(user.PasswordHash, "$2") || !mail.VerifyPassword(user.PasswordHash, "secret") {
		t.Errorf("Expected a bcrypt hash of the password, got %q", user.PasswordHash)
	}

	if _, err := runAdmin(t, store, "", "user", "add", "alice@example.com", "--password", "other"); err == nil {
		t.Error("Expected adding an existing user to fail")
	}
}

func TestUserAdd_PasswordFromStdin(t *testing.T) {
	store := db.NewMemoryStore()

	if _, err := runAdmin(t, store, "from-stdin\n", "user", "add", "bob@example.com", "--password-stdin"); err != nil {
		t.Fatalf("user add failed: %v", err)
	}
	user, err := store.GetUser(context.Background(), "bob@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if !mail.VerifyPassword(user.PasswordHash, "from-stdin") {
		t.Error("Expected the stdin password to be stored")
	}
}

func TestUserAdd_Validation(t *testing.T) {
	store := db.NewMemoryStore()

	if _, err := runAdmin(t, store, "", "user", "add", "bob@example.com"); err == nil {
		t.Error("Expected an error without a password")
	}
	if _, err := runAdmin(t, store, "", "user", "add", "not-an-address", "--password", "x"); err == nil {
		t.Error("Expected an error for an invalid address")
	}
	if _, err := runAdmin(t, store, "", "user", "add"); err == nil {
		t.Error("Expected an error without an address")
	}
}

func TestUserPasswdListDelete(t *testing.T) {
	store := db.NewMemoryStore()
	ctx := context.Background()
	if err := store.PutUser(ctx, db.User{Email: "carol@example.com", PasswordHash: mail.SHA256Hex("old")}); err != nil {
		t.Fatal(err)
	}

	if _, err := runAdmin(t, store, "", "user", "passwd", "carol@example.com", "--password", "new"); err != nil {
		t.Fatalf("user passwd failed: %v", err)
	}
	user, _ := store.GetUser(ctx, "carol@example.com")
	if !mail.VerifyPassword(user.PasswordHash, "new") || mail.VerifyPassword(user.PasswordHash, "old") {
		t.Error("Expected the password to be replaced")
	}

	out, err := runAdmin(t, store, "", "user", "list")
	if err != nil {
		t.Fatalf("user list failed: %v", err)
	}
	if !strings.Contains(out, "EMAIL") || !strings.Contains(out, "carol@example.com") {
		t.Errorf("Unexpected list output %q", out)
	}

	if _, err := runAdmin(t, store, "", "user", "rm", "carol@example.com"); err != nil {
		t.Fatalf("user delete failed: %v", err)
	}
	if _, err := store.GetUser(ctx, "carol@example.com"); err == nil {
		t.Error("Expected the user to be gone")
	}
	if _, err := runAdmin(t, store, "", "user", "delete", "carol@example.com"); err == nil {
		t.Error("Expected deleting a missing user to fail")
	}
}
