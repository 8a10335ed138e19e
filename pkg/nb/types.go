// Package nb models the northbound intent database this engine reads
// (spec §3, §6 "Inputs"). Field tags follow the `ovsdb:"..."` convention
// used by github.com/ovn-org/libovsdb model structs so that the same shapes
// could be bound to a live NB connection; this engine only ever receives
// an already-materialized *Snapshot (the DB client itself is out of scope,
// spec §1).
package nb

// UUID is an opaque 128-bit identity key assigned by the northbound side
// (spec §3: "All identifiers are 128-bit opaque keys assigned by the
// northbound side").
type UUID string

// QOS is a DSCP-marking/metering rule attached to a logical switch, a
// distinct NB entity from the ACL meter-binding path (spec §4.7 QoS
// stages).
type QOS struct {
	UUID      UUID   `ovsdb:"_uuid"`
	Priority  int    `ovsdb:"priority"`
	Direction string `ovsdb:"direction"` // "from-lport" | "to-lport"
	Match     string `ovsdb:"match"`
	DSCP      *int   `ovsdb:"dscp"`
	Rate      int    `ovsdb:"rate"` // kbps, 0 if unset
	Burst     int    `ovsdb:"burst"`
}

type LogicalSwitch struct {
	UUID           UUID              `ovsdb:"_uuid"`
	Name           string            `ovsdb:"name"`
	Ports          []UUID            `ovsdb:"ports"`
	ACLs           []UUID            `ovsdb:"acls"`
	QOSRules       []UUID            `ovsdb:"qos_rules"`
	LoadBalancer   []UUID            `ovsdb:"load_balancer"`
	DNSRecords     []UUID            `ovsdb:"dns_records"`
	OtherConfig    map[string]string `ovsdb:"other_config"`
	ExternalIDs    map[string]string `ovsdb:"external_ids"`

	// Subnet/exclude live in other_config in real OVN; surfaced directly
	// here since subnet parsing is not this engine's schema-binding concern.
	Subnets         []string `ovsdb:"-"`
	ExcludeIPs      []string `ovsdb:"-"`
	IPv6Prefix      string   `ovsdb:"-"`
	MACOnly         bool     `ovsdb:"-"`

	McastSnoop      bool   `ovsdb:"-"`
	McastQuerier    bool   `ovsdb:"-"`
	McastFloodUnreg bool   `ovsdb:"-"`
	McastTableSize  int    `ovsdb:"-"`
	McastIdleTimeoutSec   int `ovsdb:"-"`
	McastQueryIntervalSec int `ovsdb:"-"`
	McastEthSrc     string `ovsdb:"-"`
	McastIPv4Src    string `ovsdb:"-"`
}

type LogicalSwitchPort struct {
	UUID        UUID              `ovsdb:"_uuid"`
	Name        string            `ovsdb:"name"`
	Type        string            `ovsdb:"type"` // "" (vif), "router", "localnet", "vtep", "external", "virtual"
	Addresses   []string          `ovsdb:"addresses"`
	PortSecurity []string         `ovsdb:"port_security"`
	DynamicAddresses string       `ovsdb:"dynamic_addresses"`
	Tag         *int              `ovsdb:"tag"`
	TagRequest  *int              `ovsdb:"tag_request"`
	ParentName  string            `ovsdb:"parent_name"`
	Enabled     *bool             `ovsdb:"enabled"`
	Options     map[string]string `ovsdb:"options"`
	ExternalIDs map[string]string `ovsdb:"external_ids"`
	DHCPv4Options UUID            `ovsdb:"dhcpv4_options"`
	DHCPv6Options UUID            `ovsdb:"dhcpv6_options"`
	HAChassisGroup UUID           `ovsdb:"ha_chassis_group"`
}

func (p *LogicalSwitchPort) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

type LogicalRouter struct {
	UUID        UUID              `ovsdb:"_uuid"`
	Name        string            `ovsdb:"name"`
	Enabled     *bool             `ovsdb:"enabled"`
	Ports       []UUID            `ovsdb:"ports"`
	StaticRoutes []UUID           `ovsdb:"static_routes"`
	Policies    []UUID            `ovsdb:"policies"`
	NAT         []UUID            `ovsdb:"nat"`
	LoadBalancer []UUID           `ovsdb:"load_balancer"`
	Options     map[string]string `ovsdb:"options"`
	ExternalIDs map[string]string `ovsdb:"external_ids"`

	McastRelay      bool `ovsdb:"-"`
	McastFloodStatic bool `ovsdb:"-"`
}

func (r *LogicalRouter) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

type GatewayChassisRef struct {
	ChassisName string
	Priority    int
}

type LogicalRouterPort struct {
	UUID          UUID              `ovsdb:"_uuid"`
	Name          string            `ovsdb:"name"`
	MAC           string            `ovsdb:"mac"`
	Networks      []string          `ovsdb:"networks"`
	Peer          string            `ovsdb:"peer"`
	GatewayChassis []GatewayChassisRef `ovsdb:"-"`
	HAChassisGroup UUID              `ovsdb:"ha_chassis_group"`
	Options       map[string]string `ovsdb:"options"`
	ExternalIDs   map[string]string `ovsdb:"external_ids"`
	Enabled       *bool             `ovsdb:"enabled"`
	IPv6RAConfigs map[string]string `ovsdb:"ipv6_ra_configs"`
}

func (p *LogicalRouterPort) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

type ACL struct {
	UUID      UUID   `ovsdb:"_uuid"`
	Direction string `ovsdb:"direction"` // "from-lport" | "to-lport"
	Priority  int    `ovsdb:"priority"`  // 0..32767
	Match     string `ovsdb:"match"`
	Action    string `ovsdb:"action"` // allow | allow-related | drop | reject
	Log       bool   `ovsdb:"log"`
	Meter     string `ovsdb:"meter"`
	Name      string `ovsdb:"name"`
	Severity  string `ovsdb:"severity"`
}

type LoadBalancerProtocol string

const (
	ProtoTCP LoadBalancerProtocol = "tcp"
	ProtoUDP LoadBalancerProtocol = "udp"
)

type LoadBalancer struct {
	UUID     UUID                  `ovsdb:"_uuid"`
	Name     string                `ovsdb:"name"`
	Protocol LoadBalancerProtocol  `ovsdb:"protocol"`
	VIPs     map[string]string     `ovsdb:"vips"` // "ip[:port]" -> "ip:port,ip:port,..."
	SelectionFields []string       `ovsdb:"selection_fields"`
}

type NATType string

const (
	NATSnat         NATType = "snat"
	NATDnat         NATType = "dnat"
	NATDnatAndSnat  NATType = "dnat_and_snat"
)

type NAT struct {
	UUID          UUID    `ovsdb:"_uuid"`
	Type          NATType `ovsdb:"type"`
	ExternalIP    string  `ovsdb:"external_ip"`
	ExternalMAC   string  `ovsdb:"external_mac"`
	LogicalIP     string  `ovsdb:"logical_ip"` // IP or CIDR
	LogicalPort   string  `ovsdb:"logical_port"`
	Stateless     bool    `ovsdb:"stateless"`
	ExternalIDs   map[string]string `ovsdb:"external_ids"`
}

type StaticRoute struct {
	UUID        UUID   `ovsdb:"_uuid"`
	IPPrefix    string `ovsdb:"ip_prefix"`
	Nexthop     string `ovsdb:"nexthop"`
	OutputPort  string `ovsdb:"output_port"`
	Policy      string `ovsdb:"policy"` // "" or "src-ip"
	BFD         UUID   `ovsdb:"bfd"`
}

type RoutingPolicy struct {
	UUID     UUID   `ovsdb:"_uuid"`
	Priority int    `ovsdb:"priority"`
	Match    string `ovsdb:"match"`
	Action   string `ovsdb:"action"` // "reroute" | "drop" | "allow"
	Nexthop  string `ovsdb:"nexthop"`
	Nexthops []string `ovsdb:"nexthops"`
}

type AddressSet struct {
	UUID      UUID     `ovsdb:"_uuid"`
	Name      string   `ovsdb:"name"`
	Addresses []string `ovsdb:"addresses"`
}

type PortGroup struct {
	UUID  UUID     `ovsdb:"_uuid"`
	Name  string   `ovsdb:"name"`
	Ports []UUID   `ovsdb:"ports"`
	ACLs  []UUID   `ovsdb:"acls"`
}

type MeterBand struct {
	Rate   int
	Burst  int
	Action string
}

type Meter struct {
	UUID  UUID        `ovsdb:"_uuid"`
	Name  string      `ovsdb:"name"`
	Unit  string      `ovsdb:"unit"`
	Bands []MeterBand `ovsdb:"-"`
}

type DNSRecord struct {
	UUID    UUID              `ovsdb:"_uuid"`
	Records map[string]string `ovsdb:"records"`
}

type DHCPOptions struct {
	UUID    UUID              `ovsdb:"_uuid"`
	CIDR    string            `ovsdb:"cidr"`
	Options map[string]string `ovsdb:"options"`
}

type HAChassisGroup struct {
	UUID     UUID     `ovsdb:"_uuid"`
	Name     string   `ovsdb:"name"`
	Chassis  []HAChassisEntry `ovsdb:"-"`
}

type HAChassisEntry struct {
	ChassisName string
	Priority    int
}

// Global is the NB_Global row (spec §4.13, §6).
type Global struct {
	UUID    UUID              `ovsdb:"_uuid"`
	NbCfg   int               `ovsdb:"nb_cfg"`
	SbCfg   int               `ovsdb:"sb_cfg"`
	HvCfg   int               `ovsdb:"hv_cfg"`
	Options map[string]string `ovsdb:"options"`
	Ipsec   bool              `ovsdb:"ipsec"`
}

// Snapshot is a consistent point-in-time read of the whole northbound
// intent database (spec §2: "reads a consistent snapshot"). The engine
// never mutates a Snapshot's collections in place except for the IPAM
// dynamic-address writeback (spec §4.3 step 4), which is applied through
// the Snapshot.SetDynamicAddresses helper so the mutation is explicit.
type Snapshot struct {
	Global        Global
	Switches      []*LogicalSwitch
	SwitchPorts   map[UUID]*LogicalSwitchPort
	Routers       []*LogicalRouter
	RouterPorts   map[UUID]*LogicalRouterPort
	ACLs          map[UUID]*ACL
	LoadBalancers map[UUID]*LoadBalancer
	NATs          map[UUID]*NAT
	StaticRoutes  map[UUID]*StaticRoute
	Policies      map[UUID]*RoutingPolicy
	AddressSets   map[UUID]*AddressSet
	PortGroups    map[UUID]*PortGroup
	Meters        map[UUID]*Meter
	DNSRecords    map[UUID]*DNSRecord
	DHCPv4Options map[UUID]*DHCPOptions
	DHCPv6Options map[UUID]*DHCPOptions
	HAChassisGroups map[UUID]*HAChassisGroup
	QOSRules      map[UUID]*QOS
}

// SetDynamicAddresses writes the canonical textual address back onto the
// port's DynamicAddresses field (spec §4.3 step 4). It leaves Addresses
// unchanged; the port reconciler records the effective addresses on the
// model port.
func (s *Snapshot) SetDynamicAddresses(portUUID UUID, canonical string) {
	p, ok := s.SwitchPorts[portUUID]
	if !ok {
		return
	}
	p.DynamicAddresses = canonical
}
