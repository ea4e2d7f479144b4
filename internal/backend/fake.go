package backend

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Interface that records the state a real backend
// would hold. Tests inspect it to assert activation behavior and can
// inject failures per primitive.
type Fake struct {
	mu sync.Mutex

	vlans   map[string]bool // "<device>.<vlan>"
	bridges map[string]bool
	dhcp    map[string]DHCPConfig // running servers by bridge
	rules   map[string]bool
	bound   map[string]bool // "<address>@<iface>"

	// FailOn makes the named primitive ("CreateBridge",
	// "StartDHCPServer", ...) return ErrActivationFailed.
	FailOn map[string]bool
}

// NewFake returns an empty fake backend.
func NewFake() *Fake {
	return &Fake{
		vlans:   make(map[string]bool),
		bridges: make(map[string]bool),
		dhcp:    make(map[string]DHCPConfig),
		rules:   make(map[string]bool),
		bound:   make(map[string]bool),
		FailOn:  make(map[string]bool),
	}
}

func (f *Fake) fail(op string) error {
	if f.FailOn[op] {
		return fmt.Errorf("%w: injected failure in %s", ErrActivationFailed, op)
	}
	return nil
}

func (f *Fake) CreateVlanInterface(ctx context.Context, vlanID int, device string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateVlanInterface"); err != nil {
		return err
	}
	f.vlans[fmt.Sprintf("%s.%d", device, vlanID)] = true
	return nil
}

func (f *Fake) CreateBridge(ctx context.Context, bridgeName, device string, vlanID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("CreateBridge"); err != nil {
		return err
	}
	f.bridges[bridgeName] = true
	return nil
}

func (f *Fake) StartDHCPServer(ctx context.Context, cfg DHCPConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("StartDHCPServer"); err != nil {
		return err
	}
	f.dhcp[cfg.BridgeName] = cfg
	return nil
}

func (f *Fake) StopDHCPServer(ctx context.Context, bridgeName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("StopDHCPServer"); err != nil {
		return err
	}
	delete(f.dhcp, bridgeName)
	return nil
}

func (f *Fake) ConfirmRule(ctx context.Context, rule Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ConfirmRule"); err != nil {
		return err
	}
	f.rules[rule.String()] = true
	return nil
}

func (f *Fake) RemoveRule(ctx context.Context, rule Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("RemoveRule"); err != nil {
		return err
	}
	delete(f.rules, rule.String())
	return nil
}

func (f *Fake) BindPublicAddress(ctx context.Context, address, iface string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("BindPublicAddress"); err != nil {
		return err
	}
	f.bound[address+"@"+iface] = true
	return nil
}

func (f *Fake) UnbindPublicAddress(ctx context.Context, address, iface string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("UnbindPublicAddress"); err != nil {
		return err
	}
	delete(f.bound, address+"@"+iface)
	return nil
}

// HasVlan reports whether a vlan interface exists on device.
func (f *Fake) HasVlan(device string, vlanID int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vlans[fmt.Sprintf("%s.%d", device, vlanID)]
}

// HasBridge reports whether the bridge exists.
func (f *Fake) HasBridge(bridgeName string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bridges[bridgeName]
}

// DHCPRunning reports whether a DHCP server is serving the bridge.
func (f *Fake) DHCPRunning(bridgeName string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.dhcp[bridgeName]
	return ok
}

// DHCPLeases returns the lease set last handed to the bridge's server.
func (f *Fake) DHCPLeases(bridgeName string) []Lease {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dhcp[bridgeName].Leases
}

// HasRule reports whether the rule is currently confirmed.
func (f *Fake) HasRule(rule Rule) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rules[rule.String()]
}

// RuleCount returns the number of confirmed rules.
func (f *Fake) RuleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rules)
}

// Bound reports whether the address is bound to the interface.
func (f *Fake) Bound(address, iface string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bound[address+"@"+iface]
}

var _ Interface = (*Fake)(nil)
