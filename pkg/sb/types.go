// Package sb models the southbound observed database this engine writes
// (spec §3, §6 "Outputs"). See pkg/nb's doc comment for the same tagging
// convention and out-of-scope-DB-client rationale.
package sb

import "github.com/cubeek/ovn/pkg/nb"

type DatapathBinding struct {
	UUID        string            `ovsdb:"_uuid"`
	TunnelKey   int               `ovsdb:"tunnel_key"`
	ExternalIDs map[string]string `ovsdb:"external_ids"`
}

// NBKey returns the originating NB identity recorded in external-ids,
// matching spec §4.2's join key: external_ids:logical-switch or
// external_ids:logical-router.
func (d *DatapathBinding) NBKey() (nb.UUID, bool) {
	if v, ok := d.ExternalIDs["logical-switch"]; ok {
		return nb.UUID(v), true
	}
	if v, ok := d.ExternalIDs["logical-router"]; ok {
		return nb.UUID(v), true
	}
	return "", false
}

type PortBinding struct {
	UUID        string            `ovsdb:"_uuid"`
	LogicalPort string            `ovsdb:"logical_port"`
	TunnelKey   int               `ovsdb:"tunnel_key"`
	Datapath    string            `ovsdb:"datapath"` // DatapathBinding.UUID
	Chassis     string            `ovsdb:"chassis"`
	MAC         []string          `ovsdb:"mac"`
	Options     map[string]string `ovsdb:"options"`
	ExternalIDs map[string]string `ovsdb:"external_ids"`
}

// Chassis mirrors Chassis_Private's nb_cfg column, the per-hypervisor
// sequence number the engine reduces over to compute NB_Global.hv_cfg
// (spec §4.13).
type Chassis struct {
	UUID  string `ovsdb:"_uuid"`
	Name  string `ovsdb:"name"`
	NbCfg int    `ovsdb:"nb_cfg"`
}

type HAChassisGroupMember struct {
	ChassisName string
	Priority    int
}

type HAChassisGroup struct {
	UUID        string                 `ovsdb:"_uuid"`
	Name        string                 `ovsdb:"name"`
	Chassis     []HAChassisGroupMember `ovsdb:"-"`
	RefChassis  []string               `ovsdb:"ref_chassis"`
}

type MulticastGroup struct {
	UUID     string   `ovsdb:"_uuid"`
	Datapath string   `ovsdb:"datapath"`
	Name     string   `ovsdb:"name"`
	Key      int      `ovsdb:"tunnel_key"`
	Ports    []string `ovsdb:"ports"`
}

type IGMPGroup struct {
	UUID     string   `ovsdb:"_uuid"`
	Address  string   `ovsdb:"address"`
	Datapath string   `ovsdb:"datapath"`
	Chassis  string   `ovsdb:"chassis"`
	Ports    []string `ovsdb:"ports"`
}

type AddressSet struct {
	UUID      string   `ovsdb:"_uuid"`
	Name      string   `ovsdb:"name"`
	Addresses []string `ovsdb:"addresses"`
}

type PortGroup struct {
	UUID  string   `ovsdb:"_uuid"`
	Name  string   `ovsdb:"name"`
	Ports []string `ovsdb:"ports"`
}

type MeterBand struct {
	Rate   int
	Burst  int
	Action string
}

type Meter struct {
	UUID  string      `ovsdb:"_uuid"`
	Name  string      `ovsdb:"name"`
	Bands []MeterBand `ovsdb:"-"`
}

type DNS struct {
	UUID        string            `ovsdb:"_uuid"`
	Records     map[string]string `ovsdb:"records"`
	Datapaths   []string          `ovsdb:"datapaths"`
	ExternalIDs map[string]string `ovsdb:"external_ids"` // dns_id -> NB uuid
}

type DHCPOptions struct {
	UUID    string            `ovsdb:"_uuid"`
	Name    string            `ovsdb:"name"`
	Options map[string]string `ovsdb:"options"`
}

type IPMulticastConfig struct {
	UUID            string `ovsdb:"_uuid"`
	Datapath        string `ovsdb:"datapath"`
	Enabled         bool   `ovsdb:"enabled"`
	Querier         bool   `ovsdb:"querier"`
	FloodUnregistered bool `ovsdb:"flood_unregistered"`
	TableSize       int    `ovsdb:"table_size"`
	IdleTimeout     int    `ovsdb:"idle_timeout"`
	QueryInterval   int    `ovsdb:"query_interval"`
	EthSrc          string `ovsdb:"eth_src"`
	Ip4Src          string `ovsdb:"ip4_src"`
}

type RBACPermission struct {
	UUID          string   `ovsdb:"_uuid"`
	Table         string   `ovsdb:"table"`
	Authorization []string `ovsdb:"authorization"`
	Insert        bool     `ovsdb:"insert_delete"`
	Update        []string `ovsdb:"update"`
}

type RBACRole struct {
	UUID        string                     `ovsdb:"_uuid"`
	Name        string                     `ovsdb:"name"`
	Permissions map[string]*RBACPermission `ovsdb:"-"`
}

type LogicalFlow struct {
	UUID        string            `ovsdb:"_uuid"`
	Datapath    string            `ovsdb:"logical_datapath"`
	Pipeline    string            `ovsdb:"pipeline"`
	TableID     int               `ovsdb:"table_id"`
	Priority    int               `ovsdb:"priority"`
	Match       string            `ovsdb:"match"`
	Actions     string            `ovsdb:"actions"`
	ExternalIDs map[string]string `ovsdb:"external_ids"`
}

// SBGlobal mirrors NB_Global's ambient fields into the southbound side
// (spec §4.13: "copy the NB global row's nb_cfg, ipsec flag, and options
// into SB").
type SBGlobal struct {
	UUID    string            `ovsdb:"_uuid"`
	NbCfg   int               `ovsdb:"nb_cfg"`
	Ipsec   bool              `ovsdb:"ipsec"`
	Options map[string]string `ovsdb:"options"`
}

// MACBinding is mirrored only for completeness of the RBAC matrix (spec
// §4.12); this engine never writes MAC_Binding rows itself.
type MACBinding struct {
	UUID        string `ovsdb:"_uuid"`
	LogicalPort string `ovsdb:"logical_port"`
	IP          string `ovsdb:"ip"`
	MAC         string `ovsdb:"mac"`
	Datapath    string `ovsdb:"datapath"`
}

// Snapshot is a consistent observed read of the whole southbound database
// (spec §2 "a consistent snapshot ... of the southbound observed state").
type Snapshot struct {
	Global           SBGlobal
	Datapaths        map[string]*DatapathBinding
	Ports            map[string]*PortBinding
	Chassis          map[string]*Chassis
	HAChassisGroups  map[string]*HAChassisGroup
	MulticastGroups  map[string]*MulticastGroup
	IGMPGroups       map[string]*IGMPGroup
	AddressSets      map[string]*AddressSet
	PortGroups       map[string]*PortGroup
	Meters           map[string]*Meter
	DNS              map[string]*DNS
	DHCPv4Options    map[string]*DHCPOptions
	DHCPv6Options    map[string]*DHCPOptions
	IPMulticastConfigs map[string]*IPMulticastConfig
	RBACRoles        map[string]*RBACRole
	Flows            []*LogicalFlow
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		Datapaths:       map[string]*DatapathBinding{},
		Ports:           map[string]*PortBinding{},
		Chassis:         map[string]*Chassis{},
		HAChassisGroups: map[string]*HAChassisGroup{},
		MulticastGroups: map[string]*MulticastGroup{},
		IGMPGroups:      map[string]*IGMPGroup{},
		AddressSets:     map[string]*AddressSet{},
		PortGroups:      map[string]*PortGroup{},
		Meters:          map[string]*Meter{},
		DNS:             map[string]*DNS{},
		DHCPv4Options:   map[string]*DHCPOptions{},
		DHCPv6Options:   map[string]*DHCPOptions{},
		IPMulticastConfigs: map[string]*IPMulticastConfig{},
		RBACRoles:       map[string]*RBACRole{},
	}
}
