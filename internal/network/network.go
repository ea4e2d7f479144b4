package network

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/openvern/netplane/internal/auth"
	"github.com/openvern/netplane/internal/backend"
	"github.com/openvern/netplane/internal/config"
	"github.com/openvern/netplane/internal/domain"
	"github.com/openvern/netplane/internal/repository"
)

// Network is the runtime projection of a tenant subnet record. It
// leases addresses out of the subnet and keeps live networking state
// (bridge, DHCP server, cloudpipe rules) in step with occupancy.
//
// The mutex serializes allocate/release/express per network; it is
// shared by every projection of the same record, handed out by the
// Manager's lock registry.
type Network struct {
	rec      domain.Network
	subnet   Subnet
	cfg      *config.Config
	repo     repository.NetworkRepository
	projects auth.Directory
	backend  backend.Interface
	mu       *sync.Mutex
	log      *logrus.Entry
}

func newNetwork(rec domain.Network, cfg *config.Config, repo repository.NetworkRepository, projects auth.Directory, be backend.Interface, mu *sync.Mutex) (*Network, error) {
	subnet, err := ParseSubnet(rec.CIDR)
	if err != nil {
		return nil, err
	}
	return &Network{
		rec:      rec,
		subnet:   subnet,
		cfg:      cfg,
		repo:     repo,
		projects: projects,
		backend:  be,
		mu:       mu,
		log: logrus.WithFields(logrus.Fields{
			"network": rec.ID,
			"vlan":    rec.VlanID,
		}),
	}, nil
}

// Record returns the persisted network record.
func (n *Network) Record() domain.Network { return n.rec }

// Subnet returns the network's address block.
func (n *Network) Subnet() Subnet { return n.subnet }

// topReserved is how many addresses at the top of the subnet are never
// leased: the broadcast address plus the VPN client block.
func (n *Network) topReserved() int {
	return 1 + n.cfg.CntVpnClients
}

// AllocateAddress leases the first free address to the consumer target
// and expresses the network. The scan starts past the static block and
// stops short of the reserved top of the subnet.
func (n *Network) AllocateAddress(ctx context.Context, target string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	leases, err := n.repo.Leases(ctx, n.rec.ID)
	if err != nil {
		return "", err
	}
	for idx := domain.NumStaticIPs; idx < n.subnet.Size()-n.topReserved(); idx++ {
		address := n.subnet.AddressAt(idx)
		if _, leased := leases[address]; leased {
			continue
		}
		n.log.WithFields(logrus.Fields{"address": address, "target": target}).Debug("allocating address")
		return address, n.commitLease(ctx, address, target)
	}
	return "", fmt.Errorf("project %s network %s: %w", n.rec.ProjectID, n.subnet, repository.ErrResourcePoolExhausted)
}

// AllocateVpnAddress leases the fixed cloudpipe slot to the consumer
// target. The slot is dedicated, not pool-allocated.
func (n *Network) AllocateVpnAddress(ctx context.Context, target string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	address := n.subnet.CloudpipeAddress()
	return address, n.commitLease(ctx, address, target)
}

// commitLease records the lease and expresses the network; a failed
// expression rolls the lease back so no half-activated lease survives.
func (n *Network) commitLease(ctx context.Context, address, target string) error {
	if err := n.repo.AddLease(ctx, n.rec.ID, address, target); err != nil {
		return err
	}
	if err := n.express(ctx); err != nil {
		if rbErr := n.repo.RemoveLease(ctx, n.rec.ID, address); rbErr != nil {
			n.log.WithError(rbErr).WithField("address", address).Error("failed to roll back lease")
		}
		return err
	}
	return nil
}

// ReleaseAddress drops the lease after de-expressing the network
// without it. Returns ErrAddressNotAllocated when the address is not
// currently leased; state is untouched in that case.
func (n *Network) ReleaseAddress(ctx context.Context, address string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	leases, err := n.repo.Leases(ctx, n.rec.ID)
	if err != nil {
		return err
	}
	if _, leased := leases[address]; !leased {
		return fmt.Errorf("address %s on network %s: %w", address, n.rec.ID, repository.ErrAddressNotAllocated)
	}
	if err := n.repo.RemoveLease(ctx, n.rec.ID, address); err != nil {
		return err
	}
	if err := n.deexpress(ctx); err != nil {
		// Activation failure rolls the release back so lease state and
		// expressed state stay consistent.
		if rbErr := n.repo.AddLease(ctx, n.rec.ID, address, leases[address]); rbErr != nil {
			n.log.WithError(rbErr).WithField("address", address).Error("failed to restore lease")
		}
		return err
	}
	n.log.WithField("address", address).Debug("released address")
	return nil
}

// Leases returns the current address to target mapping.
func (n *Network) Leases(ctx context.Context) (map[string]string, error) {
	return n.repo.Leases(ctx, n.rec.ID)
}

// ensureBridge performs the bridged transition: vlan interface first,
// then the bridge on top of it. Both calls are idempotent.
func (n *Network) ensureBridge(ctx context.Context) error {
	if err := n.backend.CreateVlanInterface(ctx, n.rec.VlanID, n.rec.BridgeDev); err != nil {
		return err
	}
	return n.backend.CreateBridge(ctx, n.rec.BridgeName, n.rec.BridgeDev, n.rec.VlanID)
}

// express drives live state from current occupancy: bridge always, a
// DHCP server iff any address is leased, cloudpipe rules on top.
func (n *Network) express(ctx context.Context) error {
	switch n.rec.Kind {
	case domain.KindPlain:
		return nil
	case domain.KindBridged:
		return n.ensureBridge(ctx)
	case domain.KindDHCP:
		if err := n.ensureBridge(ctx); err != nil {
			return err
		}
		if err := n.syncDHCP(ctx); err != nil {
			return err
		}
		return n.expressCloudpipe(ctx)
	default:
		return fmt.Errorf("network %s has unknown kind %q", n.rec.ID, n.rec.Kind)
	}
}

// deexpress re-evaluates DHCP liveness after a lease was dropped.
func (n *Network) deexpress(ctx context.Context) error {
	if n.rec.Kind != domain.KindDHCP {
		return nil
	}
	return n.syncDHCP(ctx)
}

// syncDHCP starts, restarts, or stops the DHCP server so the serving
// set always reflects the current leases. No leases means no server.
func (n *Network) syncDHCP(ctx context.Context) error {
	leases, err := n.repo.Leases(ctx, n.rec.ID)
	if err != nil {
		return err
	}
	if len(leases) == 0 {
		n.log.Debug("no leases, stopping dhcp server")
		return n.backend.StopDHCPServer(ctx, n.rec.BridgeName)
	}

	addresses := make([]string, 0, len(leases))
	for address := range leases {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)
	set := make([]backend.Lease, 0, len(addresses))
	for _, address := range addresses {
		set = append(set, backend.Lease{Address: address, Target: leases[address]})
	}

	return n.backend.StartDHCPServer(ctx, backend.DHCPConfig{
		BridgeName:    n.rec.BridgeName,
		ListenAddress: n.subnet.Gateway(),
		Netmask:       n.subnet.Netmask(),
		RangeStart:    n.subnet.AddressAt(domain.NumStaticIPs),
		RangeEnd:      n.subnet.AddressAt(n.subnet.Size() - 1 - n.topReserved()),
		Leases:        set,
	})
}

// expressCloudpipe confirms the VPN forwarding rules for the subnet's
// cloudpipe slot. Confirmation is idempotent, so re-expression after a
// restart converges.
func (n *Network) expressCloudpipe(ctx context.Context) error {
	project, err := n.projects.Get(ctx, n.rec.ProjectID)
	if err != nil {
		return err
	}
	if project == nil || project.VpnIP == "" {
		return nil
	}
	port := project.VpnPort
	if port == 0 {
		port = n.cfg.CloudpipeStartPort + (n.rec.VlanID - n.cfg.VlanStart)
	}
	for _, rule := range cloudpipeRules(project.VpnIP, port, n.subnet.CloudpipeAddress()) {
		if err := n.backend.ConfirmRule(ctx, rule); err != nil {
			return err
		}
	}
	return nil
}
