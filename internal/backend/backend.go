package backend

import (
	"context"
	"errors"
	"strings"
)

// ErrActivationFailed is returned when the networking backend rejects a
// primitive call. It is fatal for the current allocation attempt; the
// caller rolls back the lease or binding that triggered activation.
var ErrActivationFailed = errors.New("backend activation failed")

// Rule is a firewall/NAT rule specification. Rules are always applied
// with confirm (ensure-present) and torn down with remove
// (ensure-absent), so re-running activation after a partial failure or
// restart converges instead of erroring.
type Rule struct {
	Table string // "filter" or "nat"
	Chain string
	Spec  []string
}

func (r Rule) String() string {
	return r.Table + "/" + r.Chain + " " + strings.Join(r.Spec, " ")
}

// Lease is one DHCP host entry handed to the server.
type Lease struct {
	Address string
	Target  string // consumer identifier, e.g. a hardware address
}

// DHCPConfig scopes a DHCP server to one bridge and subnet.
type DHCPConfig struct {
	BridgeName    string
	ListenAddress string // gateway address the server binds to
	Netmask       string
	RangeStart    string
	RangeEnd      string
	Leases        []Lease
}

// Interface is the network backend primitive contract. Every call is
// idempotent: creating something that exists or removing something
// absent succeeds. Calls are synchronous and may block; callers
// serialize conflicting activation per network.
type Interface interface {
	CreateVlanInterface(ctx context.Context, vlanID int, device string) error
	CreateBridge(ctx context.Context, bridgeName, device string, vlanID int) error
	StartDHCPServer(ctx context.Context, cfg DHCPConfig) error
	StopDHCPServer(ctx context.Context, bridgeName string) error
	ConfirmRule(ctx context.Context, rule Rule) error
	RemoveRule(ctx context.Context, rule Rule) error
	BindPublicAddress(ctx context.Context, address, iface string) error
	UnbindPublicAddress(ctx context.Context, address, iface string) error
}
