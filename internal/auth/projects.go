package auth

import (
	"context"
	"fmt"
	"strconv"

	"github.com/openvern/netplane/internal/datastore"
	"github.com/openvern/netplane/internal/domain"
)

const projectsTable = "projects"

// Directory is the tenant lookup collaborator. VLAN reclamation uses
// existence checks; network creation uses the manager identity.
type Directory interface {
	// Get returns the project, or (nil, nil) when it does not exist.
	Get(ctx context.Context, id string) (*domain.Project, error)

	// All returns every known project.
	All(ctx context.Context) ([]domain.Project, error)
}

// StoreDirectory is a Directory persisted in the shared datastore. Each
// project is a hash keyed by its id.
type StoreDirectory struct {
	store datastore.Store
}

// NewStoreDirectory creates a project directory backed by the store.
func NewStoreDirectory(store datastore.Store) *StoreDirectory {
	return &StoreDirectory{store: store}
}

// Save persists a project record.
func (d *StoreDirectory) Save(ctx context.Context, p domain.Project) error {
	if p.ID == "" {
		return fmt.Errorf("project id is required")
	}
	fields := map[string]string{
		"manager_id": p.ManagerID,
		"vpn_ip":     p.VpnIP,
		"vpn_port":   strconv.Itoa(p.VpnPort),
	}
	for field, value := range fields {
		if err := d.store.HSet(ctx, projectsTable, p.ID, field, value); err != nil {
			return err
		}
	}
	// Index hash so All can enumerate without scanning keyspace.
	return d.store.HSet(ctx, projectsTable, "index", p.ID, "1")
}

// Delete removes a project record.
func (d *StoreDirectory) Delete(ctx context.Context, id string) error {
	fields, err := d.store.HKeys(ctx, projectsTable, id)
	if err != nil {
		return err
	}
	for _, field := range fields {
		if err := d.store.HDel(ctx, projectsTable, id, field); err != nil {
			return err
		}
	}
	return d.store.HDel(ctx, projectsTable, "index", id)
}

func (d *StoreDirectory) Get(ctx context.Context, id string) (*domain.Project, error) {
	fields, err := d.store.HGetAll(ctx, projectsTable, id)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	port, _ := strconv.Atoi(fields["vpn_port"])
	return &domain.Project{
		ID:        id,
		ManagerID: fields["manager_id"],
		VpnIP:     fields["vpn_ip"],
		VpnPort:   port,
	}, nil
}

func (d *StoreDirectory) All(ctx context.Context) ([]domain.Project, error) {
	ids, err := d.store.HKeys(ctx, projectsTable, "index")
	if err != nil {
		return nil, err
	}
	var projects []domain.Project
	for _, id := range ids {
		p, err := d.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			projects = append(projects, *p)
		}
	}
	return projects, nil
}
