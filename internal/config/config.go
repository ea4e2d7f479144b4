package config

import (
	"fmt"
	"math/bits"
	"net"
)

// Config holds all configuration for the netplane service. It is built
// once at startup and passed explicitly to every component; there are
// no process-wide defaults.
type Config struct {
	// VLAN pool bounds, half-open: ids [VlanStart, VlanEnd) are
	// assignable to tenants.
	VlanStart int
	VlanEnd   int

	// NetworkSize is the number of addresses in each tenant subnet and
	// must be a power of two.
	NetworkSize int

	// PrivateRange is the block tenant subnets are carved from.
	PrivateRange string

	// PublicRange is the externally routable pool.
	PublicRange string

	// CntVpnClients addresses at the top of each tenant subnet are held
	// back for VPN clients.
	CntVpnClients int

	// BridgeDev is the physical device tenant bridges attach to.
	BridgeDev string

	// PublicInterface carries bound public addresses.
	PublicInterface string

	// PublicVlan tags the public network record.
	PublicVlan int

	// CloudpipeStartPort is the first external port mapped to tenant
	// cloudpipe endpoints.
	CloudpipeStartPort int

	// NetworksPath is where per-network DHCP state files are kept.
	NetworksPath string

	// RedisAddr selects the Redis store when non-empty; otherwise the
	// embedded store at DBPath is used.
	RedisAddr string
	DBPath    string

	// Port for the inspection HTTP listener.
	Port string
}

// NewConfig returns a Config with default values.
func NewConfig() *Config {
	return &Config{
		VlanStart:          100,
		VlanEnd:            4093,
		NetworkSize:        256,
		PrivateRange:       "10.0.0.0/8",
		PublicRange:        "4.4.4.0/24",
		CntVpnClients:      5,
		BridgeDev:          "eth1",
		PublicInterface:    "vlan1",
		PublicVlan:         1,
		CloudpipeStartPort: 12000,
		NetworksPath:       "/var/lib/netplane/networks",
		DBPath:             "/var/lib/netplane/netplane.db",
		Port:               "8080",
	}
}

// Validate checks the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.VlanStart < 1 || c.VlanEnd > 4095 || c.VlanStart >= c.VlanEnd {
		return fmt.Errorf("invalid vlan pool bounds [%d, %d)", c.VlanStart, c.VlanEnd)
	}
	if c.NetworkSize < 8 || bits.OnesCount(uint(c.NetworkSize)) != 1 {
		return fmt.Errorf("network size %d must be a power of two >= 8", c.NetworkSize)
	}
	if _, _, err := net.ParseCIDR(c.PrivateRange); err != nil {
		return fmt.Errorf("invalid private range %q: %w", c.PrivateRange, err)
	}
	if _, _, err := net.ParseCIDR(c.PublicRange); err != nil {
		return fmt.Errorf("invalid public range %q: %w", c.PublicRange, err)
	}
	if c.CntVpnClients < 0 {
		return fmt.Errorf("cnt vpn clients must not be negative")
	}

	// Every vlan in the pool must map onto a subnet inside the private
	// range.
	_, private, _ := net.ParseCIDR(c.PrivateRange)
	ones, bitlen := private.Mask.Size()
	capacity := 1 << (bitlen - ones)
	if (c.VlanEnd-c.VlanStart)*c.NetworkSize > capacity {
		return fmt.Errorf("private range %s too small for %d vlans of %d addresses",
			c.PrivateRange, c.VlanEnd-c.VlanStart, c.NetworkSize)
	}
	return nil
}
