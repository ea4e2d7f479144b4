package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/openvern/netplane/internal/datastore"
)

// The whole VLAN pool lives in one shared hash of project id to vlan
// number, so lookup by tenant is a single field read and the reverse
// view is derived by inverting it.
const (
	vlansTable = "vlans"
	vlansKey   = "by-project"
)

// VlanRepository persists the tenant to VLAN id mapping.
type VlanRepository interface {
	// Lookup returns the VLAN assigned to the project, if any.
	Lookup(ctx context.Context, projectID string) (int, bool, error)

	// Save records (projectID, vlanID), overwriting a prior assignment.
	Save(ctx context.Context, projectID string, vlanID int) error

	// Delete removes the project's assignment. Absent is a no-op.
	Delete(ctx context.Context, projectID string) error

	// DictByProject returns the project to vlan mapping.
	DictByProject(ctx context.Context) (map[string]int, error)

	// DictByVlan returns the vlan to project mapping.
	DictByVlan(ctx context.Context) (map[int]string, error)
}

type vlanRepositoryImpl struct {
	store datastore.Store
}

// NewVlanRepository creates a new VLAN repository over the store.
func NewVlanRepository(store datastore.Store) VlanRepository {
	return &vlanRepositoryImpl{store: store}
}

func (r *vlanRepositoryImpl) Lookup(ctx context.Context, projectID string) (int, bool, error) {
	value, ok, err := r.store.HGet(ctx, vlansTable, vlansKey, projectID)
	if err != nil || !ok {
		return 0, false, err
	}
	vlan, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt vlan record for project %s: %w", projectID, err)
	}
	return vlan, true, nil
}

func (r *vlanRepositoryImpl) Save(ctx context.Context, projectID string, vlanID int) error {
	return r.store.HSet(ctx, vlansTable, vlansKey, projectID, strconv.Itoa(vlanID))
}

func (r *vlanRepositoryImpl) Delete(ctx context.Context, projectID string) error {
	return r.store.HDel(ctx, vlansTable, vlansKey, projectID)
}

func (r *vlanRepositoryImpl) DictByProject(ctx context.Context) (map[string]int, error) {
	fields, err := r.store.HGetAll(ctx, vlansTable, vlansKey)
	if err != nil {
		return nil, err
	}
	byProject := make(map[string]int, len(fields))
	for project, value := range fields {
		vlan, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("corrupt vlan record for project %s: %w", project, err)
		}
		byProject[project] = vlan
	}
	return byProject, nil
}

func (r *vlanRepositoryImpl) DictByVlan(ctx context.Context) (map[int]string, error) {
	byProject, err := r.DictByProject(ctx)
	if err != nil {
		return nil, err
	}
	byVlan := make(map[int]string, len(byProject))
	for project, vlan := range byProject {
		byVlan[vlan] = project
	}
	return byVlan, nil
}
