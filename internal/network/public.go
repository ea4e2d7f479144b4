package network

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/openvern/netplane/internal/backend"
	"github.com/openvern/netplane/internal/config"
	"github.com/openvern/netplane/internal/domain"
	"github.com/openvern/netplane/internal/repository"
)

// PublicNetworkID keys the single flat public pool.
const PublicNetworkID = "public:default"

// PublicController manages the externally routable address pool and the
// NAT state of public/private associations. A single mutex serializes
// the whole pool: the at-most-one-association invariant is checked by
// scanning current bindings, which only holds up if the scan and the
// write cannot interleave.
type PublicController struct {
	mu       sync.Mutex
	cfg      *config.Config
	subnet   Subnet
	networks repository.NetworkRepository
	addrs    repository.PublicAddressRepository
	backend  backend.Interface
	log      *logrus.Entry
}

// NewPublicController persists the public network record and
// re-expresses any surviving associations so NAT state converges after
// a restart.
func NewPublicController(ctx context.Context, cfg *config.Config, networks repository.NetworkRepository, addrs repository.PublicAddressRepository, be backend.Interface) (*PublicController, error) {
	subnet, err := ParseSubnet(cfg.PublicRange)
	if err != nil {
		return nil, err
	}
	c := &PublicController{
		cfg:      cfg,
		subnet:   subnet,
		networks: networks,
		addrs:    addrs,
		backend:  be,
		log:      logrus.WithField("component", "public-network"),
	}
	rec := domain.Network{
		ID:        PublicNetworkID,
		CIDR:      cfg.PublicRange,
		VlanID:    cfg.PublicVlan,
		UserID:    "public",
		ProjectID: "public",
		Kind:      domain.KindPublic,
	}
	if err := networks.Save(ctx, rec); err != nil {
		return nil, err
	}
	if err := c.expressAll(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// AllocateAddress leases the first free public address for the tenant.
// The network address, the gateway slot, and the broadcast address are
// held back; everything else is allocatable.
func (c *PublicController) AllocateAddress(ctx context.Context, userID, projectID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	leases, err := c.networks.Leases(ctx, PublicNetworkID)
	if err != nil {
		return "", err
	}
	for idx := 2; idx < c.subnet.Size()-1; idx++ {
		address := c.subnet.AddressAt(idx)
		if _, leased := leases[address]; leased {
			continue
		}
		if err := c.networks.AddLease(ctx, PublicNetworkID, address, projectID); err != nil {
			return "", err
		}
		record := domain.PublicAddress{
			Address:    address,
			UserID:     userID,
			ProjectID:  projectID,
			InstanceID: domain.Available,
			PrivateIP:  domain.Available,
		}
		if err := c.addrs.Save(ctx, record); err != nil {
			return "", err
		}
		c.log.WithFields(logrus.Fields{"address": address, "project": projectID}).Debug("allocated public address")
		return address, nil
	}
	return "", fmt.Errorf("public pool %s: %w", c.subnet, repository.ErrResourcePoolExhausted)
}

// ReleaseAddress returns a public address to the pool, tearing down any
// remaining association state first.
func (c *PublicController) ReleaseAddress(ctx context.Context, address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	leases, err := c.networks.Leases(ctx, PublicNetworkID)
	if err != nil {
		return err
	}
	if _, leased := leases[address]; !leased {
		return fmt.Errorf("public address %s: %w", address, repository.ErrAddressNotAllocated)
	}
	record, err := c.addrs.FindByAddress(ctx, address)
	if err != nil && err != repository.ErrNotFound {
		return err
	}
	if err == nil && record.Associated() {
		if err := c.deexpressAddress(ctx, record); err != nil {
			return err
		}
	}
	if err := c.addrs.DeleteByAddress(ctx, address); err != nil {
		return err
	}
	return c.networks.RemoveLease(ctx, PublicNetworkID, address)
}

// Associate binds a public address to a private one and expresses the
// NAT rules. Either side already bound fails with
// ErrAddressAlreadyAssociated; a backend failure rolls the binding
// back.
func (c *PublicController) Associate(ctx context.Context, publicIP, privateIP, instanceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	leases, err := c.networks.Leases(ctx, PublicNetworkID)
	if err != nil {
		return err
	}
	if _, leased := leases[publicIP]; !leased {
		return fmt.Errorf("public address %s: %w", publicIP, repository.ErrAddressNotAllocated)
	}

	// The uniqueness check is a full scan of the pool's records; the
	// controller mutex keeps it atomic with the write below.
	records, err := c.addrs.FindAll(ctx)
	if err != nil {
		return err
	}
	for _, record := range records {
		if record.PrivateIP == privateIP {
			return fmt.Errorf("private address %s already bound to %s: %w",
				privateIP, record.Address, repository.ErrAddressAlreadyAssociated)
		}
	}

	record, err := c.addrs.FindByAddress(ctx, publicIP)
	if err != nil {
		return err
	}
	if record.Associated() {
		return fmt.Errorf("public address %s already bound to %s: %w",
			publicIP, record.PrivateIP, repository.ErrAddressAlreadyAssociated)
	}

	record.PrivateIP = privateIP
	record.InstanceID = instanceID
	if err := c.addrs.Save(ctx, record); err != nil {
		return err
	}
	if err := c.expressAddress(ctx, record); err != nil {
		record.PrivateIP = domain.Available
		record.InstanceID = domain.Available
		if rbErr := c.addrs.Save(ctx, record); rbErr != nil {
			c.log.WithError(rbErr).WithField("address", publicIP).Error("failed to roll back association")
		}
		return err
	}
	c.log.WithFields(logrus.Fields{
		"public":   publicIP,
		"private":  privateIP,
		"instance": instanceID,
	}).Info("associated public address")
	return nil
}

// Disassociate removes the NAT rules for the binding and resets the
// record to available.
func (c *PublicController) Disassociate(ctx context.Context, publicIP string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	leases, err := c.networks.Leases(ctx, PublicNetworkID)
	if err != nil {
		return err
	}
	if _, leased := leases[publicIP]; !leased {
		return fmt.Errorf("public address %s: %w", publicIP, repository.ErrAddressNotAllocated)
	}
	record, err := c.addrs.FindByAddress(ctx, publicIP)
	if err != nil {
		return err
	}
	if !record.Associated() {
		return fmt.Errorf("public address %s: %w", publicIP, repository.ErrAddressNotAssociated)
	}
	if err := c.deexpressAddress(ctx, record); err != nil {
		return err
	}
	record.PrivateIP = domain.Available
	record.InstanceID = domain.Available
	if err := c.addrs.Save(ctx, record); err != nil {
		return err
	}
	c.log.WithField("public", publicIP).Info("disassociated public address")
	return nil
}

// Addresses returns every public address record.
func (c *PublicController) Addresses(ctx context.Context) ([]domain.PublicAddress, error) {
	return c.addrs.FindAll(ctx)
}

// expressAll re-applies binding state for every associated address.
func (c *PublicController) expressAll(ctx context.Context) error {
	records, err := c.addrs.FindAll(ctx)
	if err != nil {
		return err
	}
	for _, record := range records {
		if !record.Associated() {
			continue
		}
		if err := c.expressAddress(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

func (c *PublicController) expressAddress(ctx context.Context, record domain.PublicAddress) error {
	if err := c.backend.BindPublicAddress(ctx, record.Address, c.cfg.PublicInterface); err != nil {
		return err
	}
	for _, rule := range associationRules(record.Address, record.PrivateIP) {
		if err := c.backend.ConfirmRule(ctx, rule); err != nil {
			return err
		}
	}
	return nil
}

// deexpressAddress is the symmetric teardown of expressAddress.
func (c *PublicController) deexpressAddress(ctx context.Context, record domain.PublicAddress) error {
	if err := c.backend.UnbindPublicAddress(ctx, record.Address, c.cfg.PublicInterface); err != nil {
		return err
	}
	for _, rule := range associationRules(record.Address, record.PrivateIP) {
		if err := c.backend.RemoveRule(ctx, rule); err != nil {
			return err
		}
	}
	return nil
}
