package network

import (
	"fmt"
	"math/bits"
	"net"

	"github.com/apparentlymart/go-cidr/cidr"
)

// Subnet wraps a parsed CIDR block with the address indexing the
// allocators use. Index 0 is the network address, 1 the gateway, 2 the
// cloudpipe slot; the top of the block is the broadcast address.
type Subnet struct {
	ipnet *net.IPNet
}

// ParseSubnet parses a CIDR string into a Subnet.
func ParseSubnet(cidrStr string) (Subnet, error) {
	_, ipnet, err := net.ParseCIDR(cidrStr)
	if err != nil {
		return Subnet{}, fmt.Errorf("invalid subnet %q: %w", cidrStr, err)
	}
	return Subnet{ipnet: ipnet}, nil
}

// Size returns the number of addresses in the subnet.
func (s Subnet) Size() int {
	ones, bitlen := s.ipnet.Mask.Size()
	return 1 << (bitlen - ones)
}

// AddressAt returns the address at the given offset from the subnet
// base.
func (s Subnet) AddressAt(idx int) string {
	ip, err := cidr.Host(s.ipnet, idx)
	if err != nil {
		return ""
	}
	return ip.String()
}

// Gateway is the second address of the subnet.
func (s Subnet) Gateway() string {
	return s.AddressAt(1)
}

// CloudpipeAddress is the fixed VPN endpoint slot, the third address.
func (s Subnet) CloudpipeAddress() string {
	return s.AddressAt(2)
}

// Broadcast is the last address of the subnet.
func (s Subnet) Broadcast() string {
	_, last := cidr.AddressRange(s.ipnet)
	return last.String()
}

// Netmask renders the subnet mask in dotted form.
func (s Subnet) Netmask() string {
	return net.IP(s.ipnet.Mask).String()
}

// String returns the CIDR notation.
func (s Subnet) String() string {
	return s.ipnet.String()
}

// subnetForVlan derives the tenant subnet deterministically from the
// vlan number: the private range is split into networkSize-address
// blocks and block (vlan - vlanStart) is the tenant's.
func subnetForVlan(privateRange string, networkSize, vlanStart, vlan int) (string, error) {
	_, private, err := net.ParseCIDR(privateRange)
	if err != nil {
		return "", fmt.Errorf("invalid private range %q: %w", privateRange, err)
	}
	ones, bitlen := private.Mask.Size()
	subnetPrefix := bitlen - bits.TrailingZeros(uint(networkSize))
	block, err := cidr.Subnet(private, subnetPrefix-ones, vlan-vlanStart)
	if err != nil {
		return "", fmt.Errorf("vlan %d does not fit in %s: %w", vlan, privateRange, err)
	}
	return block.String(), nil
}
