// Package model is the in-memory arena the engine builds each
// reconciliation pass: every datapath and port for the cycle, addressed
// by name, with relationships resolved as name-keyed references rather
// than owning pointers (spec §9 "Cyclic references": "store all ports in
// one flat container indexed by name ... do not embed owning pointers").
package model

import (
	"net"

	"github.com/cubeek/ovn/pkg/allocator/ipam"
	"github.com/cubeek/ovn/pkg/nb"
)

// DatapathKind is the tagged-sum-type discriminant for Datapath (spec §9).
type DatapathKind int

const (
	DatapathSwitch DatapathKind = iota
	DatapathRouter
)

// PortKind is the tagged-sum-type discriminant for Port (spec §9).
type PortKind int

const (
	PortLSP PortKind = iota
	PortLRP
	PortLRPRedirect
)

// MulticastSwitchState is the per-switch multicast configuration and
// runtime state, spec §3 "Multicast state".
type MulticastSwitchState struct {
	Snoop          bool
	Querier        bool
	FloodUnregistered bool
	TableSize      int
	IdleTimeout    int // seconds, clamped
	QueryInterval  int // seconds, clamped
	EthSrc         string
	IPv4Src        string
	ActiveFlows    int
	HasUnknownFlag bool
}

// MulticastRouterState is the per-router multicast configuration, spec §3.
type MulticastRouterState struct {
	Relay       bool
	FloodStatic bool
}

// SwitchData holds attributes exclusive to DatapathSwitch (spec §3
// "Datapath" — "for switches — IPAM state ... back-references to
// attached port-groups").
type SwitchData struct {
	IPAM           *ipam.Switch
	IPv6Prefix     *net.IPNet
	MACOnly        bool
	Subnet         *net.IPNet
	PortGroups     map[string]bool // names of port groups touching this switch
	Mcast          MulticastSwitchState
	HasDNSRecords  bool
	VIPs           []string // LB VIPs present on this switch, used by PRE_LB
}

// RouterData holds attributes exclusive to DatapathRouter (spec §3
// "Datapath" — "for routers — multicast-relay flag, chosen distributed
// gateway port (at most one), chosen redirect port, router-group link").
type RouterData struct {
	Mcast         MulticastRouterState
	DGWPortName   string // at most one, invariant
	RedirectPortName string
	RouterGroup   int // index into Arena.RouterGroups, -1 if ungrouped
	GatewayChassisGroupNames []string
	ForceSnatForLB  string
	ForceSnatForDNAT string
}

// Datapath is one logical switch or logical router (spec §3 "Datapath").
type Datapath struct {
	ID        nb.UUID
	Kind      DatapathKind
	TunnelKey int
	Name      string
	JSONName  string

	Switch *SwitchData
	Router *RouterData
}

// PortAddresses is the resolved L2/L3 address set for a port (spec §3
// "Port": "resolved L2 and L3 address sets").
type PortAddresses struct {
	MAC   net.HardwareAddr
	IPv4  []net.IP
	IPv6  []net.IP
	// Unknown and router-type ports may not resolve a concrete address set.
	IsUnknown bool
}

// PortSecurityEntry mirrors one port_security MAC plus its legal IP set
// (spec §4.7 "Port security L2/IP/ND").
type PortSecurityEntry struct {
	MAC  net.HardwareAddr
	IPv4 []net.IP
	IPv6 []net.IP
}

// Port is one logical switch port, logical router port, or derived
// redirect port (spec §3 "Port").
type Port struct {
	ID         nb.UUID
	Name       string
	JSONName   string
	Datapath   nb.UUID
	Kind       PortKind
	Type       string // LSP subtype: "", "router", "localnet", "vtep", "external", "virtual"
	Peer       string // name of the peer port, both directions set
	TunnelKey  int
	Enabled    bool
	Derived    bool

	Addresses     PortAddresses
	PortSecurity  []PortSecurityEntry
	QueueID       int // 0 if none

	// Router-port specific.
	Networks      []*net.IPNet
	GatewayChassisForm int

	// LSP type=external specific.
	ExternalRouterAddrs []net.IP

	Options     map[string]string
}

// Arena is the per-cycle in-memory model shared by C2 through C8.
type Arena struct {
	Datapaths      map[nb.UUID]*Datapath
	DatapathByName map[string]*Datapath
	Ports          map[string]*Port // keyed by name, spec §3 "at most one port with a given name"

	// RouterGroups holds one slice of router names per connected component,
	// populated by C6 (spec §4.6).
	RouterGroups [][]string
}

func NewArena() *Arena {
	return &Arena{
		Datapaths:      map[nb.UUID]*Datapath{},
		DatapathByName: map[string]*Datapath{},
		Ports:          map[string]*Port{},
	}
}

func (a *Arena) AddDatapath(dp *Datapath) {
	a.Datapaths[dp.ID] = dp
	a.DatapathByName[dp.Name] = dp
}

func (a *Arena) AddPort(p *Port) {
	a.Ports[p.Name] = p
}

// PeerOf resolves a port's peer by name, returning nil if unresolved. This
// is the pattern spec §9 asks for: relationships are name-keyed references
// resolved lazily, never owning pointers.
func (a *Arena) PeerOf(p *Port) *Port {
	if p.Peer == "" {
		return nil
	}
	return a.Ports[p.Peer]
}

func (a *Arena) DatapathOf(p *Port) *Datapath {
	return a.Datapaths[p.Datapath]
}

// PortsOnDatapath returns every port whose Datapath field matches dp's ID,
// in a stable (name-sorted) order for deterministic flow emission tests.
func (a *Arena) PortsOnDatapath(dp *Datapath) []*Port {
	var out []*Port
	for _, p := range a.Ports {
		if p.Datapath == dp.ID {
			out = append(out, p)
		}
	}
	sortPortsByName(out)
	return out
}

func sortPortsByName(ports []*Port) {
	for i := 1; i < len(ports); i++ {
		for j := i; j > 0 && ports[j-1].Name > ports[j].Name; j-- {
			ports[j-1], ports[j] = ports[j], ports[j-1]
		}
	}
}
