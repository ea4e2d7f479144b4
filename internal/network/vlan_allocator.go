package network

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/openvern/netplane/internal/auth"
	"github.com/openvern/netplane/internal/config"
	"github.com/openvern/netplane/internal/repository"
)

// VlanAllocator hands out VLAN ids from the configured pool, one per
// tenant. The single mutex serializes the scan-then-write so two
// concurrent first-requests cannot race each other onto the same id.
type VlanAllocator struct {
	mu       sync.Mutex
	cfg      *config.Config
	vlans    repository.VlanRepository
	networks repository.NetworkRepository
	projects auth.Directory
	log      *logrus.Entry
}

// NewVlanAllocator creates a VLAN allocator.
func NewVlanAllocator(cfg *config.Config, vlans repository.VlanRepository, networks repository.NetworkRepository, projects auth.Directory) *VlanAllocator {
	return &VlanAllocator{
		cfg:      cfg,
		vlans:    vlans,
		networks: networks,
		projects: projects,
		log:      logrus.WithField("component", "vlan-allocator"),
	}
}

// AllocateOrLookup returns the tenant's VLAN, assigning the lowest free
// id on first request. When the pool is full it reclaims the first id
// whose owning tenant no longer exists; otherwise it fails with
// ErrResourcePoolExhausted.
func (a *VlanAllocator) AllocateOrLookup(ctx context.Context, projectID string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if vlan, ok, err := a.vlans.Lookup(ctx, projectID); err != nil {
		return 0, err
	} else if ok {
		return vlan, nil
	}

	known, err := a.vlans.DictByVlan(ctx)
	if err != nil {
		return 0, err
	}

	for vnum := a.cfg.VlanStart; vnum < a.cfg.VlanEnd; vnum++ {
		owner, taken := known[vnum]
		if !taken {
			if err := a.vlans.Save(ctx, projectID, vnum); err != nil {
				return 0, err
			}
			a.log.WithFields(logrus.Fields{"project": projectID, "vlan": vnum}).Debug("assigned vlan")
			return vnum, nil
		}

		// Orphan collection piggybacks on the same range walk: an owner
		// that no longer exists frees its id for the requester.
		project, err := a.projects.Get(ctx, owner)
		if err != nil {
			return 0, err
		}
		if project != nil {
			continue
		}
		current, ok, err := a.vlans.Lookup(ctx, owner)
		if err != nil {
			return 0, err
		}
		if ok && current != vnum {
			// The owner holds a different, still-live mapping; leave
			// this one to be cleaned up on its own walk.
			continue
		}
		if err := a.reclaim(ctx, owner, projectID, vnum); err != nil {
			return 0, err
		}
		return vnum, nil
	}

	return 0, fmt.Errorf("vlan pool [%d, %d): %w", a.cfg.VlanStart, a.cfg.VlanEnd, repository.ErrResourcePoolExhausted)
}

// reclaim re-keys an abandoned vlan under the new tenant. Leases and
// network records of the dead tenant are dropped, not migrated: the
// owner is gone and nothing can renew them.
func (a *VlanAllocator) reclaim(ctx context.Context, oldProjectID, projectID string, vlan int) error {
	networks, err := a.networks.FindAll(ctx)
	if err != nil {
		return err
	}
	for _, n := range networks {
		if n.ProjectID != oldProjectID {
			continue
		}
		if err := a.networks.DeleteByID(ctx, n.ID); err != nil {
			return err
		}
	}
	if err := a.vlans.Delete(ctx, oldProjectID); err != nil {
		return err
	}
	if err := a.vlans.Save(ctx, projectID, vlan); err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{
		"project":     projectID,
		"old_project": oldProjectID,
		"vlan":        vlan,
	}).Info("reclaimed orphaned vlan")
	return nil
}
