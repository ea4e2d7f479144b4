package network

import (
	"strconv"

	"github.com/openvern/netplane/internal/backend"
	"github.com/openvern/netplane/internal/domain"
)

// cloudpipeRules forwards the tenant's external VPN endpoint to the
// fixed cloudpipe slot inside the subnet.
func cloudpipeRules(vpnIP string, vpnPort int, privateIP string) []backend.Rule {
	return []backend.Rule{
		{
			Table: "filter",
			Chain: "FORWARD",
			Spec:  []string{"-d", privateIP, "-p", "udp", "--dport", "1194", "-j", "ACCEPT"},
		},
		{
			Table: "nat",
			Chain: "PREROUTING",
			Spec: []string{"-d", vpnIP, "-p", "udp", "--dport", strconv.Itoa(vpnPort),
				"-j", "DNAT", "--to", privateIP + ":1194"},
		},
	}
}

// associationRules is the symmetric rule set for one public/private
// binding: destination NAT inbound, source NAT outbound, ICMP and the
// default port set permitted through.
func associationRules(publicIP, privateIP string) []backend.Rule {
	rules := []backend.Rule{
		{
			Table: "nat",
			Chain: "PREROUTING",
			Spec:  []string{"-d", publicIP, "-j", "DNAT", "--to", privateIP},
		},
		{
			Table: "nat",
			Chain: "POSTROUTING",
			Spec:  []string{"-s", privateIP, "-j", "SNAT", "--to", publicIP},
		},
		{
			Table: "filter",
			Chain: "FORWARD",
			Spec:  []string{"-d", privateIP, "-p", "icmp", "-j", "ACCEPT"},
		},
	}
	for _, pp := range domain.DefaultPorts {
		rules = append(rules, backend.Rule{
			Table: "filter",
			Chain: "FORWARD",
			Spec: []string{"-d", privateIP, "-p", pp.Proto,
				"--dport", strconv.Itoa(pp.Port), "-j", "ACCEPT"},
		})
	}
	return rules
}
