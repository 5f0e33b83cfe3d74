package blobstorage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// exerciseStorage runs the behaviour every backend must share.
func exerciseStorage(t *testing.T, store BlobStorage) {
	t.Helper()
	ctx := context.Background()

	for key, body := range map[string]string{
		"incoming/b":                             "second",
		"incoming/a":                             "first",
		"incoming/AMAZON_SES_SETUP_NOTIFICATION": "setup",
		"sent/c":                                 "sent mail",
	} {
		if err := store.Store(ctx, key, []byte(body)); err != nil {
			t.Fatalf("Store(%s) failed: %v", key, err)
		}
	}

	objects, err := store.List(ctx, "incoming/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(objects) != 3 {
		t.Fatalf("Expected 3 incoming objects, got %d", len(objects))
	}
	if objects[0].Key != "incoming/AMAZON_SES_SETUP_NOTIFICATION" || objects[1].Key != "incoming/a" || objects[2].Key != "incoming/b" {
		t.Errorf("Expected key order, got %v", objects)
	}
	if objects[1].Size != int64(len("first")) {
		t.Errorf("Expected size %d, got %d", len("first"), objects[1].Size)
	}
	if objects[1].LastModified.IsZero() {
		t.Error("Expected LastModified to be set")
	}

	data, err := store.Retrieve(ctx, "sent/c")
	if err != nil || string(data) != "sent mail" {
		t.Errorf("Retrieve returned %q, %v", data, err)
	}

	if _, err := store.Retrieve(ctx, "incoming/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := store.Copy(ctx, "incoming/a", "trash/a"); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}
	if err := store.Delete(ctx, "incoming/a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Retrieve(ctx, "incoming/a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected original to be gone, got %v", err)
	}
	data, err = store.Retrieve(ctx, "trash/a")
	if err != nil || string(data) != "first" {
		t.Errorf("Expected trash copy, got %q, %v", data, err)
	}

	if err := store.Copy(ctx, "incoming/missing", "trash/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound copying a missing key, got %v", err)
	}
	if err := store.Delete(ctx, "incoming/never-existed"); err != nil {
		t.Errorf("Deleting a missing key should succeed, got %v", err)
	}
}

func TestMemoryBlobStorage(t *testing.T) {
	exerciseStorage(t, NewMemoryBlobStorage())
}

func TestBoltBlobStorage(t *testing.T) {
	store, err := NewBoltBlobStorage(filepath.Join(t.TempDir(), "nested", "messages.db"))
	if err != nil {
		t.Fatalf("Failed to open bolt storage: %v", err)
	}
	defer store.Close()

	exerciseStorage(t, store)
}

func TestBoltBlobStorage_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.db")
	store, err := NewBoltBlobStorage(path)
	if err != nil {
		t.Fatalf("Failed to open bolt storage: %v", err)
	}
	if err := store.Store(context.Background(), "incoming/x", []byte("kept")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	store.Close()

	reopened, err := NewBoltBlobStorage(path)
	if err != nil {
		t.Fatalf("Failed to reopen bolt storage: %v", err)
	}
	defer reopened.Close()

	data, err := reopened.Retrieve(context.Background(), "incoming/x")
	if err != nil || string(data) != "kept" {
		t.Errorf("Expected persisted object, got %q, %v", data, err)
	}
}

func TestMemoryBlobStorage_CancelledContext(t *testing.T) {
	store := NewMemoryBlobStorage()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.List(ctx, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	if _, err := New(context.Background(), confStorage("floppy"), confAWS()); err == nil {
		t.Error("Expected error for unknown backend")
	}
	store, err := New(context.Background(), confStorage("memory"), confAWS())
	if err != nil {
		t.Fatalf("Expected memory backend, got %v", err)
	}
	if err := Close(store); err != nil {
		t.Errorf("Close on memory backend failed: %v", err)
	}
}
