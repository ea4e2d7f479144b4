package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/openvern/netplane/internal/datastore"
	"github.com/openvern/netplane/internal/domain"
)

const (
	networksTable = "networks"
	networksIndex = "index"
	leasesTable   = "leases"
)

// NetworkRepository persists network records and their per-network
// lease hash (address to consumer target).
type NetworkRepository interface {
	// FindByID loads a network record.
	// Returns ErrNotFound if it does not exist.
	FindByID(ctx context.Context, id string) (domain.Network, error)

	// FindAll returns every persisted network record.
	FindAll(ctx context.Context) ([]domain.Network, error)

	// Save creates or updates a network record.
	Save(ctx context.Context, n domain.Network) error

	// DeleteByID removes a network record and its leases.
	DeleteByID(ctx context.Context, id string) error

	// Leases returns the address to target mapping of the network.
	Leases(ctx context.Context, id string) (map[string]string, error)

	// LeasedAddresses returns just the leased addresses, sorted by the
	// store's field ordering.
	LeasedAddresses(ctx context.Context, id string) ([]string, error)

	// AddLease records address -> target for the network.
	AddLease(ctx context.Context, id, address, target string) error

	// RemoveLease drops the lease for address.
	RemoveLease(ctx context.Context, id, address string) error

	// DropLeases removes every lease of the network.
	DropLeases(ctx context.Context, id string) error
}

type networkRepositoryImpl struct {
	store datastore.Store
}

// NewNetworkRepository creates a new network repository over the store.
func NewNetworkRepository(store datastore.Store) NetworkRepository {
	return &networkRepositoryImpl{store: store}
}

func (r *networkRepositoryImpl) Save(ctx context.Context, n domain.Network) error {
	if n.ID == "" {
		return fmt.Errorf("network id is required")
	}
	if n.CIDR == "" {
		return fmt.Errorf("network cidr is required")
	}
	fields := map[string]string{
		"cidr":        n.CIDR,
		"vlan_id":     strconv.Itoa(n.VlanID),
		"bridge_name": n.BridgeName,
		"bridge_dev":  n.BridgeDev,
		"user_id":     n.UserID,
		"project_id":  n.ProjectID,
		"kind":        string(n.Kind),
	}
	for field, value := range fields {
		if err := r.store.HSet(ctx, networksTable, n.ID, field, value); err != nil {
			return err
		}
	}
	return r.store.HSet(ctx, networksTable, networksIndex, n.ID, "1")
}

func (r *networkRepositoryImpl) FindByID(ctx context.Context, id string) (domain.Network, error) {
	fields, err := r.store.HGetAll(ctx, networksTable, id)
	if err != nil {
		return domain.Network{}, err
	}
	if len(fields) == 0 {
		return domain.Network{}, ErrNotFound
	}
	vlan, err := strconv.Atoi(fields["vlan_id"])
	if err != nil {
		return domain.Network{}, fmt.Errorf("corrupt network record %s: %w", id, err)
	}
	return domain.Network{
		ID:         id,
		CIDR:       fields["cidr"],
		VlanID:     vlan,
		BridgeName: fields["bridge_name"],
		BridgeDev:  fields["bridge_dev"],
		UserID:     fields["user_id"],
		ProjectID:  fields["project_id"],
		Kind:       domain.NetworkKind(fields["kind"]),
	}, nil
}

func (r *networkRepositoryImpl) FindAll(ctx context.Context) ([]domain.Network, error) {
	ids, err := r.store.HKeys(ctx, networksTable, networksIndex)
	if err != nil {
		return nil, err
	}
	var networks []domain.Network
	for _, id := range ids {
		n, err := r.FindByID(ctx, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		networks = append(networks, n)
	}
	return networks, nil
}

func (r *networkRepositoryImpl) DeleteByID(ctx context.Context, id string) error {
	if err := r.DropLeases(ctx, id); err != nil {
		return err
	}
	fields, err := r.store.HKeys(ctx, networksTable, id)
	if err != nil {
		return err
	}
	for _, field := range fields {
		if err := r.store.HDel(ctx, networksTable, id, field); err != nil {
			return err
		}
	}
	return r.store.HDel(ctx, networksTable, networksIndex, id)
}

func (r *networkRepositoryImpl) Leases(ctx context.Context, id string) (map[string]string, error) {
	return r.store.HGetAll(ctx, leasesTable, id)
}

func (r *networkRepositoryImpl) LeasedAddresses(ctx context.Context, id string) ([]string, error) {
	return r.store.HKeys(ctx, leasesTable, id)
}

func (r *networkRepositoryImpl) AddLease(ctx context.Context, id, address, target string) error {
	return r.store.HSet(ctx, leasesTable, id, address, target)
}

func (r *networkRepositoryImpl) RemoveLease(ctx context.Context, id, address string) error {
	return r.store.HDel(ctx, leasesTable, id, address)
}

func (r *networkRepositoryImpl) DropLeases(ctx context.Context, id string) error {
	addresses, err := r.store.HKeys(ctx, leasesTable, id)
	if err != nil {
		return err
	}
	for _, address := range addresses {
		if err := r.store.HDel(ctx, leasesTable, id, address); err != nil {
			return err
		}
	}
	return nil
}
