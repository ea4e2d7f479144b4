package network

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/openvern/netplane/internal/auth"
	"github.com/openvern/netplane/internal/backend"
	"github.com/openvern/netplane/internal/config"
	"github.com/openvern/netplane/internal/datastore"
	"github.com/openvern/netplane/internal/domain"
	"github.com/openvern/netplane/internal/repository"
)

// DefaultSecurityGroup scopes a tenant's base network.
const DefaultSecurityGroup = "default"

// Manager is the entrypoint into the control plane: it owns the VLAN
// allocator, the tenant network family, and the public controller, and
// hands out per-network locks so concurrent callers working on the
// same network serialize.
type Manager struct {
	cfg      *config.Config
	vlans    repository.VlanRepository
	networks repository.NetworkRepository
	projects auth.Directory
	backend  backend.Interface

	allocator *VlanAllocator
	public    *PublicController
	log       *logrus.Entry

	mu       sync.Mutex
	netLocks map[string]*sync.Mutex
}

// NewManager wires the control plane over the given store, project
// directory, and backend.
func NewManager(ctx context.Context, cfg *config.Config, store datastore.Store, projects auth.Directory, be backend.Interface) (*Manager, error) {
	vlans := repository.NewVlanRepository(store)
	networks := repository.NewNetworkRepository(store)
	addrs := repository.NewPublicAddressRepository(store)

	public, err := NewPublicController(ctx, cfg, networks, addrs, be)
	if err != nil {
		return nil, err
	}

	return &Manager{
		cfg:       cfg,
		vlans:     vlans,
		networks:  networks,
		projects:  projects,
		backend:   be,
		allocator: NewVlanAllocator(cfg, vlans, networks, projects),
		public:    public,
		log:       logrus.WithField("component", "network-manager"),
		netLocks:  make(map[string]*sync.Mutex),
	}, nil
}

// Public returns the public address pool controller.
func (m *Manager) Public() *PublicController { return m.public }

// Vlans returns the VLAN repository, for read-only inspection.
func (m *Manager) Vlans() repository.VlanRepository { return m.vlans }

// Networks returns the network repository, for read-only inspection.
func (m *Manager) Networks() repository.NetworkRepository { return m.networks }

// netLock returns the mutex serializing operations on one network.
func (m *Manager) netLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.netLocks[id] == nil {
		m.netLocks[id] = &sync.Mutex{}
	}
	return m.netLocks[id]
}

// GetProjectNetwork returns the tenant's network for the security
// group, allocating a VLAN and deriving the subnet on first request.
// Construction always performs the bridged transition.
func (m *Manager) GetProjectNetwork(ctx context.Context, projectID, securityGroup string) (*Network, error) {
	project, err := m.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("project %s: %w", projectID, repository.ErrNotFound)
	}
	if securityGroup == "" {
		securityGroup = DefaultSecurityGroup
	}
	id := projectID + ":" + securityGroup

	lock := m.netLock(id)
	lock.Lock()
	rec, err := m.networks.FindByID(ctx, id)
	if err == repository.ErrNotFound {
		rec, err = m.createNetwork(ctx, id, project, securityGroup)
	}
	lock.Unlock()
	if err != nil {
		return nil, err
	}

	n, err := newNetwork(rec, m.cfg, m.networks, m.projects, m.backend, lock)
	if err != nil {
		return nil, err
	}
	if err := n.ensureBridge(ctx); err != nil {
		return nil, err
	}
	return n, nil
}

func (m *Manager) createNetwork(ctx context.Context, id string, project *domain.Project, securityGroup string) (domain.Network, error) {
	vlan, err := m.allocator.AllocateOrLookup(ctx, project.ID)
	if err != nil {
		return domain.Network{}, err
	}
	subnet, err := subnetForVlan(m.cfg.PrivateRange, m.cfg.NetworkSize, m.cfg.VlanStart, vlan)
	if err != nil {
		return domain.Network{}, err
	}
	rec := domain.Network{
		ID:         id,
		CIDR:       subnet,
		VlanID:     vlan,
		BridgeName: "br" + strconv.Itoa(vlan),
		BridgeDev:  m.cfg.BridgeDev,
		UserID:     project.ManagerID,
		ProjectID:  project.ID,
		Kind:       domain.KindDHCP,
	}
	if err := m.networks.Save(ctx, rec); err != nil {
		return domain.Network{}, err
	}
	m.log.WithFields(logrus.Fields{
		"project": project.ID,
		"group":   securityGroup,
		"subnet":  subnet,
		"vlan":    vlan,
	}).Info("created project network")
	return rec, nil
}

// GetNetworkByAddress finds the tenant network currently leasing the
// address.
func (m *Manager) GetNetworkByAddress(ctx context.Context, address string) (*Network, error) {
	records, err := m.networks.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.Kind == domain.KindPublic {
			continue
		}
		leases, err := m.networks.Leases(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		if _, leased := leases[address]; leased {
			return newNetwork(rec, m.cfg, m.networks, m.projects, m.backend, m.netLock(rec.ID))
		}
	}
	return nil, fmt.Errorf("address %s: %w", address, repository.ErrAddressNotAllocated)
}

// GetNetworkByInterface resolves a bridge device name like "br100" back
// to the owning tenant network.
func (m *Manager) GetNetworkByInterface(ctx context.Context, iface, securityGroup string) (*Network, error) {
	vlanStr := strings.TrimPrefix(iface, "br")
	vlan, err := strconv.Atoi(vlanStr)
	if err != nil {
		return nil, fmt.Errorf("interface %q is not a tenant bridge", iface)
	}
	byVlan, err := m.vlans.DictByVlan(ctx)
	if err != nil {
		return nil, err
	}
	projectID, ok := byVlan[vlan]
	if !ok {
		return nil, fmt.Errorf("vlan %d: %w", vlan, repository.ErrNotFound)
	}
	return m.GetProjectNetwork(ctx, projectID, securityGroup)
}

// GetPublicIPForInstance returns the public address associated with the
// instance, if any.
func (m *Manager) GetPublicIPForInstance(ctx context.Context, instanceID string) (string, error) {
	records, err := m.public.Addresses(ctx)
	if err != nil {
		return "", err
	}
	for _, record := range records {
		if record.InstanceID == instanceID {
			return record.Address, nil
		}
	}
	return "", fmt.Errorf("instance %s has no public address: %w", instanceID, repository.ErrNotFound)
}
