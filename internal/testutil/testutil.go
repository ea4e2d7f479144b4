package testutil

import (
	"context"
	"testing"

	"github.com/openvern/netplane/internal/auth"
	"github.com/openvern/netplane/internal/config"
	"github.com/openvern/netplane/internal/datastore"
	"github.com/openvern/netplane/internal/domain"
)

// NewTestConfig returns a config sized for tests: a tiny VLAN pool and
// /24 tenant subnets out of 10.0.0.0/8.
func NewTestConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.VlanStart = 100
	cfg.VlanEnd = 110
	cfg.NetworkSize = 256
	cfg.PrivateRange = "10.0.0.0/8"
	cfg.PublicRange = "4.4.4.0/28"
	cfg.CntVpnClients = 5
	return cfg
}

// SetupTestStore returns an in-memory store and a project directory
// over it.
func SetupTestStore(t *testing.T) (*datastore.MemoryStore, *auth.StoreDirectory) {
	t.Helper()
	store := datastore.NewMemoryStore()
	return store, auth.NewStoreDirectory(store)
}

// SeedProject persists a minimal project record.
func SeedProject(t *testing.T, dir *auth.StoreDirectory, id string) {
	t.Helper()
	err := dir.Save(context.Background(), domain.Project{
		ID:        id,
		ManagerID: id + "-manager",
	})
	if err != nil {
		t.Fatalf("failed to seed project %s: %v", id, err)
	}
}
