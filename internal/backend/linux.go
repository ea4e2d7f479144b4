package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/coreos/go-iptables/iptables"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
)

// LinuxBackend expresses network state with netlink devices, iptables
// rules, and dnsmasq processes. Per-network DHCP state files live under
// statePath.
type LinuxBackend struct {
	ipt       *iptables.IPTables
	statePath string
	log       *logrus.Entry
}

// NewLinuxBackend creates a backend writing DHCP state under statePath.
func NewLinuxBackend(statePath string) (*LinuxBackend, error) {
	ipt, err := iptables.NewWithProtocol(iptables.ProtocolIPv4)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize iptables")
	}
	if err := os.MkdirAll(statePath, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create network state directory")
	}
	return &LinuxBackend{
		ipt:       ipt,
		statePath: statePath,
		log:       logrus.WithField("component", "backend"),
	}, nil
}

func vlanName(device string, vlanID int) string {
	return fmt.Sprintf("%s.%d", device, vlanID)
}

// CreateVlanInterface adds a tagged sub-interface on device. Existing
// interfaces are left alone.
func (b *LinuxBackend) CreateVlanInterface(ctx context.Context, vlanID int, device string) error {
	name := vlanName(device, vlanID)
	if link, _ := netlink.LinkByName(name); link != nil {
		return netlink.LinkSetUp(link)
	}

	parent, err := netlink.LinkByName(device)
	if err != nil {
		return errors.Wrapf(ErrActivationFailed, "vlan parent device %s: %v", device, err)
	}
	vlan := &netlink.Vlan{
		LinkAttrs: netlink.LinkAttrs{
			Name:        name,
			ParentIndex: parent.Attrs().Index,
		},
		VlanId: vlanID,
	}
	if err := netlink.LinkAdd(vlan); err != nil && err != syscall.EEXIST {
		return errors.Wrapf(ErrActivationFailed, "create vlan %s: %v", name, err)
	}
	link, err := netlink.LinkByName(name)
	if err != nil {
		return errors.Wrapf(ErrActivationFailed, "lookup vlan %s: %v", name, err)
	}
	b.log.WithFields(logrus.Fields{"vlan": vlanID, "device": device}).Debug("created vlan interface")
	return netlink.LinkSetUp(link)
}

// CreateBridge adds the bridge and enslaves the vlan interface to it.
func (b *LinuxBackend) CreateBridge(ctx context.Context, bridgeName, device string, vlanID int) error {
	if link, _ := netlink.LinkByName(bridgeName); link == nil {
		br := &netlink.Bridge{
			LinkAttrs: netlink.LinkAttrs{Name: bridgeName, TxQLen: -1},
		}
		if err := netlink.LinkAdd(br); err != nil && err != syscall.EEXIST {
			return errors.Wrapf(ErrActivationFailed, "create bridge %s: %v", bridgeName, err)
		}
	}
	bridge, err := netlink.LinkByName(bridgeName)
	if err != nil {
		return errors.Wrapf(ErrActivationFailed, "lookup bridge %s: %v", bridgeName, err)
	}
	vlan, err := netlink.LinkByName(vlanName(device, vlanID))
	if err != nil {
		return errors.Wrapf(ErrActivationFailed, "lookup vlan for bridge %s: %v", bridgeName, err)
	}
	if err := netlink.LinkSetMaster(vlan, bridge); err != nil {
		return errors.Wrapf(ErrActivationFailed, "enslave vlan to %s: %v", bridgeName, err)
	}
	b.log.WithFields(logrus.Fields{"bridge": bridgeName, "vlan": vlanID}).Debug("created bridge")
	return netlink.LinkSetUp(bridge)
}

func (b *LinuxBackend) pidFile(bridgeName string) string {
	return filepath.Join(b.statePath, bridgeName+".pid")
}

func (b *LinuxBackend) hostsFile(bridgeName string) string {
	return filepath.Join(b.statePath, bridgeName+".hosts")
}

func (b *LinuxBackend) dnsmasqPid(bridgeName string) (int, bool) {
	data, err := os.ReadFile(b.pidFile(bridgeName))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	// Signal 0 probes for liveness without touching the process.
	if err := syscall.Kill(pid, 0); err != nil {
		return 0, false
	}
	return pid, true
}

// StartDHCPServer (re)starts dnsmasq for the bridge with the current
// lease set. A running server is sent SIGHUP to reread its hosts file.
func (b *LinuxBackend) StartDHCPServer(ctx context.Context, cfg DHCPConfig) error {
	hosts := ""
	for _, lease := range cfg.Leases {
		hosts += fmt.Sprintf("%s,%s\n", lease.Target, lease.Address)
	}
	if err := os.WriteFile(b.hostsFile(cfg.BridgeName), []byte(hosts), 0o644); err != nil {
		return errors.Wrapf(ErrActivationFailed, "write dhcp hosts for %s: %v", cfg.BridgeName, err)
	}

	if pid, running := b.dnsmasqPid(cfg.BridgeName); running {
		b.log.WithField("bridge", cfg.BridgeName).Debug("reloading dnsmasq")
		if err := syscall.Kill(pid, syscall.SIGHUP); err != nil {
			return errors.Wrapf(ErrActivationFailed, "reload dnsmasq for %s: %v", cfg.BridgeName, err)
		}
		return nil
	}

	cmd := exec.CommandContext(ctx, "dnsmasq",
		"--strict-order",
		"--bind-interfaces",
		"--conf-file=",
		"--pid-file="+b.pidFile(cfg.BridgeName),
		"--listen-address="+cfg.ListenAddress,
		"--except-interface=lo",
		"--interface="+cfg.BridgeName,
		fmt.Sprintf("--dhcp-range=%s,%s,%s,120s", cfg.RangeStart, cfg.RangeEnd, cfg.Netmask),
		"--dhcp-hostsfile="+b.hostsFile(cfg.BridgeName),
		"--dhcp-authoritative",
	)
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(ErrActivationFailed, "start dnsmasq for %s: %v", cfg.BridgeName, err)
	}
	b.log.WithField("bridge", cfg.BridgeName).Debug("started dnsmasq")
	return nil
}

// StopDHCPServer terminates the dnsmasq serving the bridge, if any.
func (b *LinuxBackend) StopDHCPServer(ctx context.Context, bridgeName string) error {
	pid, running := b.dnsmasqPid(bridgeName)
	if !running {
		return nil
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return errors.Wrapf(ErrActivationFailed, "stop dnsmasq for %s: %v", bridgeName, err)
	}
	os.Remove(b.pidFile(bridgeName))
	b.log.WithField("bridge", bridgeName).Debug("stopped dnsmasq")
	return nil
}

// ConfirmRule ensures the rule is present. Present already is a no-op.
func (b *LinuxBackend) ConfirmRule(ctx context.Context, rule Rule) error {
	if err := b.ipt.AppendUnique(rule.Table, rule.Chain, rule.Spec...); err != nil {
		return errors.Wrapf(ErrActivationFailed, "confirm rule %s: %v", rule, err)
	}
	return nil
}

// RemoveRule ensures the rule is absent.
func (b *LinuxBackend) RemoveRule(ctx context.Context, rule Rule) error {
	if err := b.ipt.DeleteIfExists(rule.Table, rule.Chain, rule.Spec...); err != nil {
		return errors.Wrapf(ErrActivationFailed, "remove rule %s: %v", rule, err)
	}
	return nil
}

// BindPublicAddress attaches the address to the public interface.
func (b *LinuxBackend) BindPublicAddress(ctx context.Context, address, iface string) error {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return errors.Wrapf(ErrActivationFailed, "public interface %s: %v", iface, err)
	}
	addr, err := netlink.ParseAddr(address + "/32")
	if err != nil {
		return errors.Wrapf(ErrActivationFailed, "parse public address %s: %v", address, err)
	}
	if err := netlink.AddrAdd(link, addr); err != nil && err != syscall.EEXIST {
		return errors.Wrapf(ErrActivationFailed, "bind %s to %s: %v", address, iface, err)
	}
	return nil
}

// UnbindPublicAddress detaches the address from the public interface.
func (b *LinuxBackend) UnbindPublicAddress(ctx context.Context, address, iface string) error {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return errors.Wrapf(ErrActivationFailed, "public interface %s: %v", iface, err)
	}
	addr, err := netlink.ParseAddr(address + "/32")
	if err != nil {
		return errors.Wrapf(ErrActivationFailed, "parse public address %s: %v", address, err)
	}
	if err := netlink.AddrDel(link, addr); err != nil && err != syscall.ENOENT && err != syscall.EADDRNOTAVAIL {
		return errors.Wrapf(ErrActivationFailed, "unbind %s from %s: %v", address, iface, err)
	}
	return nil
}

var _ Interface = (*LinuxBackend)(nil)
