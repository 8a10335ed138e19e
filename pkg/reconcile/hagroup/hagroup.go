// Package hagroup implements C4: the HA-chassis-group synthesizer. It
// turns the three gateway-chassis declaration forms on a distributed LRP
// into a single SB HA_Chassis_Group, and (once C6's router groups are
// known) computes each group's ref_chassis set (spec §4.4, §4.6).
package hagroup

import (
	"fmt"
	"sort"

	"github.com/cubeek/ovn/pkg/model"
	"github.com/cubeek/ovn/pkg/nb"
	"github.com/cubeek/ovn/pkg/sb"
	"github.com/cubeek/ovn/pkg/types"
)

type Result struct {
	Ops []sb.Operation
}

// groupName implements the §4.3/§4.4 preference order: (a) the NB group's
// declared name, (b) the LRP's own name for a gateway_chassis array, (c)
// "<lrp-name>_<chassis-name>" for a legacy single redirect-chassis option.
func groupName(lrp *nb.LogicalRouterPort, nbSnap *nb.Snapshot) (string, []nb.HAChassisEntry) {
	if lrp.HAChassisGroup != "" {
		if g, ok := nbSnap.HAChassisGroups[lrp.HAChassisGroup]; ok {
			return g.Name, g.Chassis
		}
	}
	if len(lrp.GatewayChassis) > 0 {
		entries := make([]nb.HAChassisEntry, 0, len(lrp.GatewayChassis))
		for _, gc := range lrp.GatewayChassis {
			p := gc.Priority
			if p == 0 {
				p = types.DefaultHAChassisPriority
			}
			entries = append(entries, nb.HAChassisEntry{ChassisName: gc.ChassisName, Priority: p})
		}
		return lrp.Name, entries
	}
	if chassis := lrp.Options["redirect-chassis"]; chassis != "" {
		return fmt.Sprintf("%s_%s", lrp.Name, chassis), []nb.HAChassisEntry{{ChassisName: chassis, Priority: types.DefaultHAChassisPriority}}
	}
	return "", nil
}

// Synthesize creates/updates one HA_Chassis_Group per LRP declaring
// gateway chassis, and deletes orphans (spec §4.4).
func Synthesize(arena *model.Arena, nbSnap *nb.Snapshot, sbSnap *sb.Snapshot) Result {
	var res Result
	desired := map[string]bool{}

	for _, p := range arena.Ports {
		if p.Kind != model.PortLRP || p.GatewayChassisForm == int(types.GatewayFormNone) {
			continue
		}
		lrp := findRouterPortByName(nbSnap, p.Name)
		if lrp == nil {
			continue
		}
		name, entries := groupName(lrp, nbSnap)
		if name == "" {
			continue
		}
		desired[name] = true

		dp := arena.DatapathOf(p)
		if dp != nil && dp.Router != nil {
			dp.Router.GatewayChassisGroupNames = appendUnique(dp.Router.GatewayChassisGroupNames, name)
		}

		row := findHAGroupByName(sbSnap, name)
		if row == nil {
			row = &sb.HAChassisGroup{UUID: "u-hagroup-" + name, Name: name, Chassis: toMembers(entries)}
			sbSnap.HAChassisGroups[row.UUID] = row
			res.Ops = append(res.Ops, sb.Operation{Kind: sb.OpInsert, Table: "HA_Chassis_Group", RowUUID: row.UUID})
		}
		if needsUpdate(row, entries) {
			row.Chassis = toMembers(entries)
			res.Ops = append(res.Ops, sb.Operation{Kind: sb.OpUpdate, Table: "HA_Chassis_Group", RowUUID: row.UUID, Comment: "membership changed"})
		}
	}

	for name, row := range namesToRows(sbSnap) {
		if !desired[name] {
			delete(sbSnap.HAChassisGroups, row.UUID)
			res.Ops = append(res.Ops, sb.Operation{Kind: sb.OpDelete, Table: "HA_Chassis_Group", RowUUID: row.UUID, Comment: "orphaned HA chassis group"})
		}
	}

	return res
}

// NeedsUpdate is exported for the testable property in spec §8 #10
// ("sbpb_gw_chassis_needs_update returns false after a pass has completed
// for an unchanged NB gateway-chassis configuration").
func NeedsUpdate(row *sb.HAChassisGroup, entries []nb.HAChassisEntry) bool {
	return needsUpdate(row, entries)
}

func needsUpdate(row *sb.HAChassisGroup, entries []nb.HAChassisEntry) bool {
	if len(row.Chassis) != len(entries) {
		return true
	}
	want := toMembers(entries)
	sort.Slice(want, func(i, j int) bool { return want[i].ChassisName < want[j].ChassisName })
	have := append([]sb.HAChassisGroupMember{}, row.Chassis...)
	sort.Slice(have, func(i, j int) bool { return have[i].ChassisName < have[j].ChassisName })
	for i := range want {
		if want[i] != have[i] {
			return true
		}
	}
	return false
}

func toMembers(entries []nb.HAChassisEntry) []sb.HAChassisGroupMember {
	out := make([]sb.HAChassisGroupMember, 0, len(entries))
	for _, e := range entries {
		out = append(out, sb.HAChassisGroupMember{ChassisName: e.ChassisName, Priority: e.Priority})
	}
	return out
}

func findRouterPortByName(nbSnap *nb.Snapshot, name string) *nb.LogicalRouterPort {
	for _, p := range nbSnap.RouterPorts {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func findHAGroupByName(sbSnap *sb.Snapshot, name string) *sb.HAChassisGroup {
	for _, g := range sbSnap.HAChassisGroups {
		if g.Name == name {
			return g
		}
	}
	return nil
}

func namesToRows(sbSnap *sb.Snapshot) map[string]*sb.HAChassisGroup {
	out := map[string]*sb.HAChassisGroup{}
	for _, g := range sbSnap.HAChassisGroups {
		out[g.Name] = g
	}
	return out
}

func appendUnique(s []string, v string) []string {
	for _, e := range s {
		if e == v {
			return s
		}
	}
	return append(s, v)
}

// ComputeRefChassis fills in each group's ref_chassis set: the chassis
// currently hosting any port on a switch connected (directly, or via a
// transit switch, to a router that owns or is connected to the gateway),
// per spec §4.4/§4.6. Must run after C6 (router-group builder) so
// dp.Router.RouterGroup is populated.
func ComputeRefChassis(arena *model.Arena, sbSnap *sb.Snapshot, chassisOfPort func(portName string) string) {
	// Build: router-group -> set of switch datapath IDs reachable.
	groupSwitches := map[int]map[nb.UUID]bool{}
	for _, p := range arena.Ports {
		if p.Kind != model.PortLSP {
			continue
		}
		peer := arena.PeerOf(p)
		if peer == nil || peer.Kind != model.PortLRP {
			continue
		}
		routerDP := arena.DatapathOf(peer)
		if routerDP == nil || routerDP.Router == nil || routerDP.Router.RouterGroup < 0 {
			continue
		}
		g := routerDP.Router.RouterGroup
		if groupSwitches[g] == nil {
			groupSwitches[g] = map[nb.UUID]bool{}
		}
		groupSwitches[g][p.Datapath] = true
	}

	for _, dp := range arena.Datapaths {
		if dp.Kind != model.DatapathRouter || dp.Router == nil || dp.Router.RouterGroup < 0 {
			continue
		}
		chassisSet := map[string]bool{}
		for swID := range groupSwitches[dp.Router.RouterGroup] {
			for _, p := range arena.Ports {
				if p.Datapath != swID || p.Kind != model.PortLSP {
					continue
				}
				if c := chassisOfPort(p.Name); c != "" {
					chassisSet[c] = true
				}
			}
		}
		var refs []string
		for c := range chassisSet {
			refs = append(refs, c)
		}
		sort.Strings(refs)
		for _, name := range dp.Router.GatewayChassisGroupNames {
			if row := findHAGroupByName(sbSnap, name); row != nil {
				row.RefChassis = refs
			}
		}
	}
}
