package datastore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// storeUnderTest exercises the Store contract against any driver.
func storeUnderTest(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Expected ping to succeed, got %v", err)
	}

	// Absent field
	_, ok, err := store.HGet(ctx, "nets", "n1", "cidr")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if ok {
		t.Error("Expected absent field")
	}

	// Set and read back
	if err := store.HSet(ctx, "nets", "n1", "cidr", "10.0.0.0/24"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := store.HSet(ctx, "nets", "n1", "vlan", "100"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	value, ok, err := store.HGet(ctx, "nets", "n1", "cidr")
	if err != nil || !ok {
		t.Fatalf("Expected field, got ok=%v err=%v", ok, err)
	}
	if value != "10.0.0.0/24" {
		t.Errorf("Expected 10.0.0.0/24, got %s", value)
	}

	// Overwrite
	if err := store.HSet(ctx, "nets", "n1", "vlan", "101"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	value, _, _ = store.HGet(ctx, "nets", "n1", "vlan")
	if value != "101" {
		t.Errorf("Expected 101, got %s", value)
	}

	// HGetAll
	fields, err := store.HGetAll(ctx, "nets", "n1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(fields) != 2 || fields["cidr"] != "10.0.0.0/24" || fields["vlan"] != "101" {
		t.Errorf("Unexpected fields: %v", fields)
	}

	// Hashes are isolated by (table, key)
	other, err := store.HGetAll(ctx, "nets", "n2")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(other) != 0 {
		t.Errorf("Expected empty hash, got %v", other)
	}

	// HKeys
	keys, err := store.HKeys(ctx, "nets", "n1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Expected 2 keys, got %v", keys)
	}

	// HDel, including absent field
	if err := store.HDel(ctx, "nets", "n1", "vlan"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := store.HDel(ctx, "nets", "n1", "vlan"); err != nil {
		t.Fatalf("Expected deleting absent field to be a no-op, got %v", err)
	}
	_, ok, _ = store.HGet(ctx, "nets", "n1", "vlan")
	if ok {
		t.Error("Expected field to be deleted")
	}
}

func TestMemoryStore_Contract(t *testing.T) {
	storeUnderTest(t, NewMemoryStore())
}

func TestSQLiteStore_Contract(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()
	storeUnderTest(t, store)
}

func TestMemoryStore_ClosedIsUnavailable(t *testing.T) {
	store := NewMemoryStore()
	store.Close()

	if err := store.HSet(context.Background(), "t", "k", "f", "v"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable, got %v", err)
	}
	if err := store.Ping(context.Background()); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable, got %v", err)
	}
}

func TestSQLiteStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	if err := store.HSet(ctx, "vlans", "by-project", "proj-a", "100"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	value, ok, err := reopened.HGet(ctx, "vlans", "by-project", "proj-a")
	if err != nil || !ok {
		t.Fatalf("Expected persisted field, got ok=%v err=%v", ok, err)
	}
	if value != "100" {
		t.Errorf("Expected 100, got %s", value)
	}
}
