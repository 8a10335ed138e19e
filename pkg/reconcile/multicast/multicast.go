// Package multicast implements C5: the multicast model. It clamps
// per-switch snooping configuration, folds observed SB IGMP_Group rows
// into per-(datapath, group) aggregates, mirrors relayed groups onto
// router datapaths, allocates multicast-group keys, and installs the
// reserved FLOOD/MROUTER_FLOOD/MROUTER_STATIC/STATIC/UNKNOWN groups
// (spec §4.5).
package multicast

import (
	"net"
	"sort"

	"github.com/cubeek/ovn/pkg/allocator/tunnelkey"
	"github.com/cubeek/ovn/pkg/model"
	"github.com/cubeek/ovn/pkg/nb"
	"github.com/cubeek/ovn/pkg/sb"
	"github.com/cubeek/ovn/pkg/types"
)

// ClampSwitchMulticastConfig applies the documented min/max clamps (spec
// §4.5: "idle timeout and query interval to documented minima/maxima;
// query interval defaults to half the idle timeout").
func ClampSwitchMulticastConfig(sw *model.SwitchData, idleSec, querySec int, hasQuery bool) {
	if idleSec <= 0 {
		idleSec = int(types.MulticastDefaultIdleTimeout.Seconds())
	}
	idleSec = clamp(idleSec, int(types.MulticastMinIdleTimeout.Seconds()), int(types.MulticastMaxIdleTimeout.Seconds()))

	if !hasQuery || querySec <= 0 {
		querySec = idleSec / 2
	}
	querySec = clamp(querySec, int(types.MulticastMinQueryInterval.Seconds()), int(types.MulticastMaxQueryInterval.Seconds()))

	sw.Mcast.IdleTimeout = idleSec
	sw.Mcast.QueryInterval = querySec
	if sw.Mcast.TableSize <= 0 {
		sw.Mcast.TableSize = types.MulticastDefaultTableSize
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NormalizeGroup maps an IPv4 literal to its IPv6-mapped form so IGMP and
// MLD aggregates share one key space per datapath (spec §4.5).
func NormalizeGroup(addr string) string {
	ip := net.ParseIP(addr)
	if ip == nil {
		return addr
	}
	if ip4 := ip.To4(); ip4 != nil {
		return "::ffff:" + ip4.String()
	}
	return ip.String()
}

// Aggregate is the in-memory fold of every SB IGMP_Group row sharing a
// (datapath, group) key (spec §4.5).
type Aggregate struct {
	Datapath nb.UUID
	Group    string
	Ports    map[string]bool
	Key      int
}

// Result carries the reconciled multicast-group and IGMP-group writes.
type Result struct {
	Ops []sb.Operation
}

// BuildAggregates folds observed SB IGMP_Group rows into per-(datapath,
// group) aggregates, excluding ports that already flood or whose peer
// belongs to a relay-enabled router (they receive traffic via the flood
// group anyway), mirrors relayed groups onto router datapaths, allocates
// keys, and installs the reserved groups (spec §4.5).
func BuildAggregates(arena *model.Arena, sbSnap *sb.Snapshot, keyPools map[nb.UUID]*tunnelkey.Pool) Result {
	var res Result

	aggs := map[string]*Aggregate{}
	aggKey := func(dp nb.UUID, group string) string { return string(dp) + "|" + group }

	floodPorts := map[string]bool{}
	staticPorts := map[string]bool{}
	for _, p := range arena.Ports {
		if p.Options["mcast_flood"] == "true" {
			floodPorts[p.Name] = true
		}
		if p.Options["mcast_flood_reports"] == "true" {
			staticPorts[p.Name] = true
		}
	}

	relayRouterOfSwitchPort := func(p *model.Port) bool {
		peer := arena.PeerOf(p)
		if peer == nil {
			return false
		}
		dp := arena.DatapathOf(peer)
		return dp != nil && dp.Router != nil && dp.Router.Mcast.Relay
	}

	for _, row := range sbSnap.IGMPGroups {
		dp, ok := datapathByBinding(arena, sbSnap, row.Datapath)
		if !ok {
			continue
		}
		group := NormalizeGroup(row.Address)
		k := aggKey(dp.ID, group)
		agg, ok := aggs[k]
		if !ok {
			agg = &Aggregate{Datapath: dp.ID, Group: group, Ports: map[string]bool{}}
			aggs[k] = agg
		}
		for _, portName := range row.Ports {
			p := arena.Ports[portName]
			if p == nil {
				continue
			}
			if floodPorts[portName] || staticPorts[portName] || relayRouterOfSwitchPort(p) {
				continue
			}
			agg.Ports[portName] = true
		}
	}

	// Mirror each learnt group onto the relay router's datapath with a
	// single port: the peer router port (spec §4.5 "a mirror IGMP
	// aggregate is created on the router datapath").
	mirrors := map[string]*Aggregate{}
	for _, agg := range aggs {
		dp := arena.Datapaths[agg.Datapath]
		if dp == nil || dp.Switch == nil {
			continue
		}
		for _, p := range arena.PortsOnDatapath(dp) {
			peer := arena.PeerOf(p)
			if peer == nil || peer.Kind != model.PortLRP {
				continue
			}
			routerDP := arena.DatapathOf(peer)
			if routerDP == nil || routerDP.Router == nil || !routerDP.Router.Mcast.Relay {
				continue
			}
			k := aggKey(routerDP.ID, agg.Group)
			mirror, ok := mirrors[k]
			if !ok {
				mirror = &Aggregate{Datapath: routerDP.ID, Group: agg.Group, Ports: map[string]bool{peer.Name: true}}
				mirrors[k] = mirror
			}
		}
	}
	for k, m := range mirrors {
		aggs[k] = m
	}

	// Allocate keys; drop any aggregate that cannot be keyed (spec §4.5).
	var names []string
	for k := range aggs {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		agg := aggs[k]
		if len(agg.Ports) == 0 {
			continue
		}
		pool, ok := keyPools[agg.Datapath]
		if !ok {
			pool = tunnelkey.NewPool("igmp:"+string(agg.Datapath), types.IGMPGroupKeyMin, types.IGMPGroupKeyMax)
			keyPools[agg.Datapath] = pool
		}
		key := pool.Next(pool.MaxUsed())
		if key == 0 {
			continue
		}
		agg.Key = key

		var ports []string
		for p := range agg.Ports {
			ports = append(ports, p)
		}
		sort.Strings(ports)

		row := &sb.MulticastGroup{
			UUID:     "u-mc-" + k,
			Datapath: string(agg.Datapath),
			Name:     agg.Group,
			Key:      key,
			Ports:    ports,
		}
		sbSnap.MulticastGroups[row.UUID] = row
		res.Ops = append(res.Ops, sb.Operation{Kind: sb.OpInsert, Table: "Multicast_Group", RowUUID: row.UUID})
	}

	installReservedGroups(arena, sbSnap, &res)
	return res
}

func datapathByBinding(arena *model.Arena, sbSnap *sb.Snapshot, bindingUUID string) (*model.Datapath, bool) {
	row, ok := sbSnap.Datapaths[bindingUUID]
	if !ok {
		return nil, false
	}
	key, ok := row.NBKey()
	if !ok {
		return nil, false
	}
	dp, ok := arena.Datapaths[key]
	return dp, ok
}

// installReservedGroups installs FLOOD/MROUTER_FLOOD/MROUTER_STATIC/
// STATIC/UNKNOWN unconditionally on every switch/router as appropriate
// (spec §4.5).
func installReservedGroups(arena *model.Arena, sbSnap *sb.Snapshot, res *Result) {
	for _, dp := range arena.Datapaths {
		if dp.Kind != model.DatapathSwitch {
			continue
		}
		var allPorts, mrouterFlood, mrouterStatic, static []string
		for _, p := range arena.PortsOnDatapath(dp) {
			allPorts = append(allPorts, p.Name)
			if peer := arena.PeerOf(p); peer != nil {
				if peerDP := arena.DatapathOf(peer); peerDP != nil && peerDP.Router != nil && peerDP.Router.Mcast.Relay {
					mrouterFlood = append(mrouterFlood, p.Name)
				}
			}
			if p.Options["mcast_flood_reports"] == "true" {
				mrouterStatic = append(mrouterStatic, p.Name)
			}
			if p.Options["mcast_flood"] == "true" {
				static = append(static, p.Name)
			}
		}
		upsertReserved(sbSnap, res, dp, types.MulticastFloodName, types.MulticastFloodKey, allPorts)
		upsertReserved(sbSnap, res, dp, types.MulticastMrouterFloodName, types.MulticastMrouterFloodKey, mrouterFlood)
		upsertReserved(sbSnap, res, dp, types.MulticastMrouterStaticName, types.MulticastMrouterStaticKey, mrouterStatic)
		upsertReserved(sbSnap, res, dp, types.MulticastStaticName, types.MulticastStaticKey, static)
		if dp.Switch.Mcast.HasUnknownFlag {
			upsertReserved(sbSnap, res, dp, types.MulticastUnknownName, types.MulticastUnknownKey, nil)
		}
	}
	for _, dp := range arena.Datapaths {
		if dp.Kind != model.DatapathRouter {
			continue
		}
		var allPorts []string
		for _, p := range arena.PortsOnDatapath(dp) {
			allPorts = append(allPorts, p.Name)
		}
		upsertReserved(sbSnap, res, dp, types.MulticastFloodName, types.MulticastFloodKey, allPorts)
		if dp.Router.Mcast.Relay && dp.Router.Mcast.FloodStatic {
			upsertReserved(sbSnap, res, dp, types.MulticastStaticName, types.MulticastStaticKey, allPorts)
		}
	}
}

func upsertReserved(sbSnap *sb.Snapshot, res *Result, dp *model.Datapath, name string, key int, ports []string) {
	id := "u-mc-" + string(dp.ID) + "-" + name
	row, ok := sbSnap.MulticastGroups[id]
	if !ok {
		row = &sb.MulticastGroup{UUID: id, Datapath: string(dp.ID), Name: name, Key: key}
		sbSnap.MulticastGroups[id] = row
		res.Ops = append(res.Ops, sb.Operation{Kind: sb.OpInsert, Table: "Multicast_Group", RowUUID: id})
	}
	row.Ports = ports
}
