package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestRepo(t *testing.T) (*SQLiteRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "fintrack.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("NewSQLiteRepository() failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo, path
}

func TestNewSQLiteRepository_CreatesDatabase(t *testing.T) {
	_, path := openTestRepo(t)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestSQLiteRepository_PutGetDelete(t *testing.T) {
	repo, _ := openTestRepo(t)
	ctx := context.Background()

	if _, ok, err := repo.Get(ctx, NamespaceCredentials, "auth_token"); err != nil || ok {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}

	if err := repo.Put(ctx, NamespaceCredentials, "auth_token", []byte("abc")); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := repo.Put(ctx, NamespaceCredentials, "auth_token", []byte("def")); err != nil {
		t.Fatalf("second Put() failed: %v", err)
	}
	got, ok, err := repo.Get(ctx, NamespaceCredentials, "auth_token")
	if err != nil || !ok || string(got) != "def" {
		t.Fatalf("Get() = %q, %v, %v; want def", got, ok, err)
	}

	// Same key in another namespace is independent.
	if _, ok, _ := repo.Get(ctx, NamespaceSnapshots, "auth_token"); ok {
		t.Fatal("namespaces should not share keys")
	}

	ts, ok, err := repo.UpdatedAt(ctx, NamespaceCredentials, "auth_token")
	if err != nil || !ok || time.Since(ts) > time.Minute {
		t.Fatalf("UpdatedAt() = %v, %v, %v", ts, ok, err)
	}

	if err := repo.Delete(ctx, NamespaceCredentials, "auth_token"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, ok, _ := repo.Get(ctx, NamespaceCredentials, "auth_token"); ok {
		t.Fatal("key still present after Delete")
	}
}

func TestSQLiteRepository_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fintrack.db")
	ctx := context.Background()

	first, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	if err := first.Put(ctx, NamespaceSnapshots, "ticket-store", []byte{0xa1, 0x01}); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	first.Close()

	second, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("second open failed: %v", err)
	}
	defer second.Close()
	got, ok, err := second.Get(ctx, NamespaceSnapshots, "ticket-store")
	if err != nil || !ok || len(got) != 2 || got[0] != 0xa1 {
		t.Fatalf("Get() after reopen = %v, %v, %v", got, ok, err)
	}
}

func TestMemory_CopiesValues(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	v := []byte("abc")
	_ = m.Put(ctx, NamespaceCredentials, "k", v)
	v[0] = 'x'

	got, ok, _ := m.Get(ctx, NamespaceCredentials, "k")
	if !ok || string(got) != "abc" {
		t.Fatalf("expected stored copy, got %q", got)
	}
	got[0] = 'y'
	again, _, _ := m.Get(ctx, NamespaceCredentials, "k")
	if string(again) != "abc" {
		t.Fatalf("Get() leaked internal slice, got %q", again)
	}

	_ = m.Delete(ctx, NamespaceCredentials, "k")
	if _, ok, _ := m.Get(ctx, NamespaceCredentials, "k"); ok {
		t.Fatal("expected key removed")
	}
}
