package repository

import (
	"context"
	"fmt"

	"github.com/openvern/netplane/internal/datastore"
	"github.com/openvern/netplane/internal/domain"
)

const (
	addressesTable = "addresses"
	addressesIndex = "index"
)

// PublicAddressRepository persists public address records keyed by the
// address itself.
type PublicAddressRepository interface {
	// FindByAddress loads a public address record.
	// Returns ErrNotFound if it does not exist.
	FindByAddress(ctx context.Context, address string) (domain.PublicAddress, error)

	// FindAll returns every public address record.
	FindAll(ctx context.Context) ([]domain.PublicAddress, error)

	// Save creates or updates a public address record.
	Save(ctx context.Context, a domain.PublicAddress) error

	// DeleteByAddress removes the record.
	DeleteByAddress(ctx context.Context, address string) error
}

type publicAddressRepositoryImpl struct {
	store datastore.Store
}

// NewPublicAddressRepository creates a new public address repository
// over the store.
func NewPublicAddressRepository(store datastore.Store) PublicAddressRepository {
	return &publicAddressRepositoryImpl{store: store}
}

func (r *publicAddressRepositoryImpl) Save(ctx context.Context, a domain.PublicAddress) error {
	if a.Address == "" {
		return fmt.Errorf("public address is required")
	}
	fields := map[string]string{
		"user_id":     a.UserID,
		"project_id":  a.ProjectID,
		"instance_id": a.InstanceID,
		"private_ip":  a.PrivateIP,
	}
	for field, value := range fields {
		if err := r.store.HSet(ctx, addressesTable, a.Address, field, value); err != nil {
			return err
		}
	}
	return r.store.HSet(ctx, addressesTable, addressesIndex, a.Address, "1")
}

func (r *publicAddressRepositoryImpl) FindByAddress(ctx context.Context, address string) (domain.PublicAddress, error) {
	fields, err := r.store.HGetAll(ctx, addressesTable, address)
	if err != nil {
		return domain.PublicAddress{}, err
	}
	if len(fields) == 0 {
		return domain.PublicAddress{}, ErrNotFound
	}
	return domain.PublicAddress{
		Address:    address,
		UserID:     fields["user_id"],
		ProjectID:  fields["project_id"],
		InstanceID: fields["instance_id"],
		PrivateIP:  fields["private_ip"],
	}, nil
}

func (r *publicAddressRepositoryImpl) FindAll(ctx context.Context) ([]domain.PublicAddress, error) {
	addresses, err := r.store.HKeys(ctx, addressesTable, addressesIndex)
	if err != nil {
		return nil, err
	}
	var records []domain.PublicAddress
	for _, address := range addresses {
		a, err := r.FindByAddress(ctx, address)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, a)
	}
	return records, nil
}

func (r *publicAddressRepositoryImpl) DeleteByAddress(ctx context.Context, address string) error {
	fields, err := r.store.HKeys(ctx, addressesTable, address)
	if err != nil {
		return err
	}
	for _, field := range fields {
		if err := r.store.HDel(ctx, addressesTable, address, field); err != nil {
			return err
		}
	}
	return r.store.HDel(ctx, addressesTable, addressesIndex, address)
}
