package domain

// NumStaticIPs is the count of reserved addresses at the bottom of every
// tenant subnet: network, gateway, and cloudpipe.
const NumStaticIPs = 3

// Available is the sentinel value for an unbound public address field.
const Available = "available"

// NetworkKind selects the activation behavior of a network record.
type NetworkKind string

const (
	KindPlain   NetworkKind = "plain"
	KindBridged NetworkKind = "bridged"
	KindDHCP    NetworkKind = "dhcp"
	KindPublic  NetworkKind = "public"
)

// Vlan maps a tenant to a VLAN id from the configured pool.
type Vlan struct {
	ProjectID string // Owning tenant
	VlanID    int    // Unique within [VlanStart, VlanEnd)
}

// Network is a tenant subnet allocation record. Address leases are kept
// in a separate per-network hash, not on the record itself.
type Network struct {
	ID         string      // Derived from project and security group, e.g. "proj:default"
	CIDR       string      // Subnet in CIDR notation (e.g. "10.0.0.0/24")
	VlanID     int         // VLAN the subnet is derived from
	BridgeName string      // Bridge device name, e.g. "br100"
	BridgeDev  string      // Physical device bridges attach to
	UserID     string      // Identity the network was created under
	ProjectID  string      // Owning tenant
	Kind       NetworkKind // Activation behavior
}

// PublicAddress is an externally routable address allocated from the
// flat public pool. InstanceID and PrivateIP hold the Available
// sentinel while unassociated.
type PublicAddress struct {
	Address    string
	UserID     string
	ProjectID  string
	InstanceID string
	PrivateIP  string
}

// Associated reports whether the address is currently bound to a
// private address.
func (a PublicAddress) Associated() bool {
	return a.PrivateIP != "" && a.PrivateIP != Available
}

// Project is the tenant record consumed from the project directory.
type Project struct {
	ID        string
	ManagerID string // Identity tenant networks are created under
	VpnIP     string // Public endpoint of the tenant's cloudpipe
	VpnPort   int    // External port forwarded to the cloudpipe slot
}

// PortProto is a protocol/port pair permitted inbound to an associated
// private address.
type PortProto struct {
	Proto string
	Port  int
}

// DefaultPorts is the fixed inbound allow set applied when a public
// address is associated.
var DefaultPorts = []PortProto{
	{"tcp", 80},
	{"tcp", 22},
	{"udp", 1194},
	{"tcp", 443},
}
