// Package port implements C3: the port reconciler and its IPAM pass.
// It joins NB switch/router ports against SB port bindings by name,
// resolves peer links, synthesizes derived redirect ports for
// distributed-gateway LRPs, and — only once all peering is resolved —
// allocates dynamic MAC/IPv4/IPv6 addresses (spec §4.3).
package port

import (
	"fmt"
	"net"

	"github.com/cubeek/ovn/pkg/allocator/ipam"
	"github.com/cubeek/ovn/pkg/allocator/mac"
	"github.com/cubeek/ovn/pkg/allocator/tunnelkey"
	"github.com/cubeek/ovn/pkg/flows"
	"github.com/cubeek/ovn/pkg/model"
	"github.com/cubeek/ovn/pkg/nb"
	"github.com/cubeek/ovn/pkg/ratelimit"
	"github.com/cubeek/ovn/pkg/sb"
	"github.com/cubeek/ovn/pkg/types"
)

var (
	warnCfg = ratelimit.Every5s()
	warnExh = ratelimit.Every1s()
)

type Result struct {
	Ops []sb.Operation
}

// Reconcile runs C3 against arena (already seeded with datapaths by C2)
// and the MAC set (process-wide, spec §5 "Shared resources").
func Reconcile(nbSnap *nb.Snapshot, sbSnap *sb.Snapshot, arena *model.Arena, macSet *mac.Set) Result {
	var res Result
	portPools := map[nb.UUID]*tunnelkey.Pool{}
	poolFor := func(dpID nb.UUID) *tunnelkey.Pool {
		p, ok := portPools[dpID]
		if !ok {
			p = tunnelkey.NewPool("port:"+string(dpID), types.PortKeyMin, types.PortKeyMax)
			portPools[dpID] = p
		}
		return p
	}

	// Pre-seed pools and detect matched SB rows by name.
	sbByName := map[string]*sb.PortBinding{}
	for _, row := range sbSnap.Ports {
		sbByName[row.LogicalPort] = row
	}
	// seed hints from the max key observed in SB, per datapath (spec §4.1).
	dpByBindingUUID := map[string]*model.Datapath{}
	for _, dp := range arena.Datapaths {
		for _, row := range sbSnap.Datapaths {
			if row.ExternalIDs["logical-switch"] == string(dp.ID) || row.ExternalIDs["logical-router"] == string(dp.ID) {
				dpByBindingUUID[row.UUID] = dp
			}
		}
	}
	for _, row := range sbSnap.Ports {
		if dp, ok := dpByBindingUUID[row.Datapath]; ok {
			poolFor(dp.ID).Reserve(row.TunnelKey)
		}
	}

	seenNames := map[string]bool{}

	// --- NB switch ports ---
	for _, ls := range nbSnap.Switches {
		dp := arena.DatapathByName[ls.Name]
		if dp == nil {
			continue
		}
		for _, portID := range ls.Ports {
			nbp, ok := nbSnap.SwitchPorts[portID]
			if !ok {
				continue
			}
			if seenNames[nbp.Name] {
				warnCfg.Warnf("duplicate port name %q, skipping", nbp.Name)
				continue
			}
			seenNames[nbp.Name] = true
			p := linkPort(nbp.Name, dp, model.PortLSP, sbByName, poolFor, &res)
			if p == nil {
				continue
			}
			p.Type = nbp.Type
			p.Enabled = nbp.IsEnabled()
			p.Options = nbp.Options
			p.JSONName = flows.JSONEscapeName(p.Name)
			arena.AddPort(p)
		}
	}

	// --- NB router ports ---
	for _, lr := range nbSnap.Routers {
		if !lr.IsEnabled() {
			continue
		}
		dp := arena.DatapathByName[lr.Name]
		if dp == nil {
			continue
		}
		for _, portID := range lr.Ports {
			nbp, ok := nbSnap.RouterPorts[portID]
			if !ok {
				continue
			}
			if seenNames[nbp.Name] {
				warnCfg.Warnf("duplicate port name %q, skipping", nbp.Name)
				continue
			}
			seenNames[nbp.Name] = true
			p := linkPort(nbp.Name, dp, model.PortLRP, sbByName, poolFor, &res)
			if p == nil {
				continue
			}
			p.Enabled = nbp.IsEnabled()
			p.Options = nbp.Options
			p.JSONName = flows.JSONEscapeName(p.Name)
			if parsedMAC, err := net.ParseMAC(nbp.MAC); err == nil {
				p.Addresses.MAC = parsedMAC
			}
			for _, n := range nbp.Networks {
				if ip, ipnet, err := net.ParseCIDR(n); err == nil {
					ipnet.IP = ip
					p.Networks = append(p.Networks, ipnet)
				}
			}
			p.Peer = nbp.Peer
			arena.AddPort(p)

			resolveGatewayChassis(dp, p, nbp)
		}
	}

	// sb-only: delete rows whose name was never claimed.
	anyDeleted := false
	for name, row := range sbByName {
		if !seenNames[name] {
			res.Ops = append(res.Ops, sb.Operation{Kind: sb.OpDelete, Table: "Port_Binding", RowUUID: row.UUID, Comment: "no matching NB port"})
			delete(sbSnap.Ports, row.UUID)
			anyDeleted = true
		}
	}
	if anyDeleted {
		// spec §4.3: "purge stale MAC-binding rows by port name" — modeled
		// as a no-op marker since this engine never owns MAC_Binding rows
		// (spec §4.12 RBAC matrix: MAC_Binding is writable by "" any role,
		// not by this engine).
	}

	resolvePeering(arena, nbSnap, &res)
	synthesizeRedirectPorts(arena, nbSnap, &res, poolFor)
	runIPAM(nbSnap, arena, macSet)

	return res
}

func linkPort(name string, dp *model.Datapath, kind model.PortKind, sbByName map[string]*sb.PortBinding, poolFor func(nb.UUID) *tunnelkey.Pool, res *Result) *model.Port {
	if row, ok := sbByName[name]; ok {
		return &model.Port{Name: name, Datapath: dp.ID, Kind: kind, TunnelKey: row.TunnelKey}
	}
	key := poolFor(dp.ID).Next(poolFor(dp.ID).MaxUsed())
	if key == 0 {
		return nil
	}
	row := &sb.PortBinding{UUID: "u-" + name, LogicalPort: name, TunnelKey: key}
	res.Ops = append(res.Ops, sb.Operation{Kind: sb.OpInsert, Table: "Port_Binding", RowUUID: row.UUID})
	return &model.Port{Name: name, Datapath: dp.ID, Kind: kind, TunnelKey: key}
}

// resolveGatewayChassis records which form (ha_chassis_group > gateway_chassis
// > redirect-chassis) governs this LRP's HA group, spec §4.3 preference order.
func resolveGatewayChassis(dp *model.Datapath, p *model.Port, nbp *nb.LogicalRouterPort) {
	switch {
	case nbp.HAChassisGroup != "":
		p.GatewayChassisForm = int(types.GatewayFormHAChassisGroup)
	case len(nbp.GatewayChassis) > 0:
		p.GatewayChassisForm = int(types.GatewayFormGatewayChassis)
	case nbp.Options["redirect-chassis"] != "":
		p.GatewayChassisForm = int(types.GatewayFormRedirectChassis)
	default:
		p.GatewayChassisForm = int(types.GatewayFormNone)
	}
}

// resolvePeering wires switch-port<->router-port and router<->router peers
// (spec §4.3 "Router-port peering").
func resolvePeering(arena *model.Arena, nbSnap *nb.Snapshot, res *Result) {
	for _, p := range arena.Ports {
		if p.Kind != model.PortLSP || p.Type != "router" {
			continue
		}
		nbp := findSwitchPortByName(nbSnap, p.Name)
		if nbp == nil {
			continue
		}
		peerName := nbp.Options["router-port"]
		if peerName == "" {
			warnCfg.Warnf("switch port %q is type=router but has no options:router-port", p.Name)
			continue
		}
		peer, ok := arena.Ports[peerName]
		if !ok || peer.Kind != model.PortLRP {
			warnCfg.Warnf("switch port %q names non-existent router port %q", p.Name, peerName)
			continue
		}
		p.Peer = peerName
		peer.Peer = p.Name
	}

	for _, p := range arena.Ports {
		if p.Kind != model.PortLRP || p.Peer == "" {
			continue
		}
		if other, ok := arena.Ports[p.Peer]; ok && other.Kind == model.PortLSP && other.Peer != p.Name {
			warnCfg.Warnf("router port %q peers with switch port %q via options:router-port, not NB peer; rejecting router<->router peer config", p.Name, p.Peer)
			p.Peer = ""
		}
	}
	_ = res
}

func findSwitchPortByName(nbSnap *nb.Snapshot, name string) *nb.LogicalSwitchPort {
	for _, p := range nbSnap.SwitchPorts {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// synthesizeRedirectPorts creates the derived cr-<lrp-name> port for any
// LRP declaring gateway chassis in any of the three forms (spec §4.3
// "Derived redirect port").
func synthesizeRedirectPorts(arena *model.Arena, nbSnap *nb.Snapshot, res *Result, poolFor func(nb.UUID) *tunnelkey.Pool) {
	for _, p := range arena.Ports {
		if p.Kind != model.PortLRP || p.GatewayChassisForm == int(types.GatewayFormNone) {
			continue
		}
		dp := arena.DatapathOf(p)
		if dp == nil || dp.Router == nil {
			continue
		}
		if dp.Router.DGWPortName != "" {
			warnCfg.Warnf("router %q already has a distributed gateway port %q, ignoring %q", dp.Name, dp.Router.DGWPortName, p.Name)
			continue
		}
		redirectName := fmt.Sprintf("cr-%s", p.Name)
		key := poolFor(dp.ID).Next(poolFor(dp.ID).MaxUsed())
		if key == 0 {
			continue
		}
		derived := &model.Port{
			Name:      redirectName,
			JSONName:  flows.JSONEscapeName(redirectName),
			Datapath:  dp.ID,
			Kind:      model.PortLRPRedirect,
			TunnelKey: key,
			Derived:   true,
			Enabled:   true,
		}
		arena.AddPort(derived)
		res.Ops = append(res.Ops, sb.Operation{Kind: sb.OpInsert, Table: "Port_Binding", RowUUID: "u-" + redirectName})

		dp.Router.DGWPortName = p.Name
		dp.Router.RedirectPortName = redirectName
	}
}

// runIPAM implements spec §4.3's IPAM pass: classify, reserve unchanged,
// then allocate IPv4 -> MAC -> IPv6 for queued ports.
func runIPAM(nbSnap *nb.Snapshot, arena *model.Arena, macSet *mac.Set) {
	type queued struct {
		port *nb.LogicalSwitchPort
		model *model.Port
		sw    *model.Datapath
		needIPv4, needMAC, needIPv6 bool
		staticIPv4 net.IP
	}
	var queue []queued

	for _, lsp := range nbSnap.SwitchPorts {
		p := arena.Ports[lsp.Name]
		if p == nil || p.Peer != "" {
			continue
		}
		dp := arena.DatapathOf(p)
		if dp == nil || dp.Switch == nil || dp.Switch.IPAM == nil {
			continue
		}

		dynamicRequests := 0
		wantsDynamic := false
		var staticIPv4 net.IP
		for _, addr := range lsp.Addresses {
			if addr == "dynamic" {
				dynamicRequests++
				wantsDynamic = true
			}
		}
		if dynamicRequests > 1 {
			warnCfg.Warnf("port %q has multiple dynamic address requests, using the first", lsp.Name)
		}
		if !wantsDynamic {
			// Static addresses are reserved immediately so later dynamic
			// allocations on other ports avoid them (spec §4.3 step 2).
			for _, addr := range lsp.Addresses {
				if staticMAC, ip, ok := parseMacIP(addr); ok {
					p.Addresses.MAC = staticMAC
					if ip != nil {
						if dp.Switch.IPAM != nil {
							_ = dp.Switch.IPAM.Reserve(ip)
						}
						p.Addresses.IPv4 = append(p.Addresses.IPv4, ip)
						staticIPv4 = ip
					}
				}
			}
			continue
		}

		mac0, ip0, ipv60, comp := classifyDynamic(lsp, dp)
		if mac0 != nil {
			p.Addresses.MAC = mac0
			_ = macSet.Insert(mac0, false)
		}
		if ip0 != nil {
			p.Addresses.IPv4 = append(p.Addresses.IPv4, ip0)
			_ = dp.Switch.IPAM.Reserve(ip0)
		}
		if ipv60 != nil {
			p.Addresses.IPv6 = append(p.Addresses.IPv6, ipv60)
		}
		if comp.mac || comp.ipv4 || comp.ipv6 {
			queue = append(queue, queued{port: lsp, model: p, sw: dp, needIPv4: comp.ipv4, needMAC: comp.mac, needIPv6: comp.ipv6, staticIPv4: staticIPv4})
		} else if mac0 != nil {
			// nothing changed; still refresh the textual representation.
			nbSnap.SetDynamicAddresses(lsp.UUID, canonicalAddress(mac0, ip0, ipv60))
		}
	}

	for _, q := range queue {
		var newIPv4 net.IP
		var newMAC net.HardwareAddr
		if q.needIPv4 {
			newIPv4 = q.sw.Switch.IPAM.AllocateNext()
			if newIPv4 != nil {
				q.model.Addresses.IPv4 = append(q.model.Addresses.IPv4, newIPv4)
			}
		}
		if q.needMAC {
			ipForMAC := newIPv4
			if ipForMAC == nil && len(q.model.Addresses.IPv4) > 0 {
				ipForMAC = q.model.Addresses.IPv4[0]
			}
			if ipForMAC != nil {
				newMAC = macSet.AllocateFromIPv4(ipForMAC)
				if newMAC != nil {
					q.model.Addresses.MAC = newMAC
				}
			}
		}
		if q.needIPv6 && q.sw.Switch.IPv6Prefix != nil {
			useMAC := q.model.Addresses.MAC
			if useMAC != nil {
				if ip6, err := ipam.EUI64(q.sw.Switch.IPv6Prefix, useMAC); err == nil {
					q.model.Addresses.IPv6 = append(q.model.Addresses.IPv6, ip6)
				}
			}
		}
		canon := canonicalAddress(q.model.Addresses.MAC, firstOrNil(q.model.Addresses.IPv4), firstOrNil(q.model.Addresses.IPv6))
		nbSnap.SetDynamicAddresses(q.port.UUID, canon)
	}
}

type components struct{ mac, ipv4, ipv6 bool }

// classifyDynamic compares a port's previous dynamic-addresses value
// against its current configuration (spec §4.3 step 1): each component is
// NONE/STATIC/REMOVE/DYNAMIC. We fold NONE/STATIC/REMOVE into "resolved
// now" (returned directly) and DYNAMIC into the components flag set.
func classifyDynamic(lsp *nb.LogicalSwitchPort, dp *model.Datapath) (net.HardwareAddr, net.IP, net.IP, components) {
	var comp components
	var mac0 net.HardwareAddr
	var ip0, ip60 net.IP

	if lsp.DynamicAddresses != "" {
		if m, ip, ip6 := parseCanonical(lsp.DynamicAddresses); m != nil {
			mac0 = m
			if ip != nil && dp.Switch.Subnet != nil && dp.Switch.Subnet.Contains(ip) {
				ip0 = ip
			}
			ip60 = ip6
		}
	}

	comp.mac = mac0 == nil
	comp.ipv4 = ip0 == nil && dp.Switch.Subnet != nil
	comp.ipv6 = ip60 == nil && dp.Switch.IPv6Prefix != nil && !dp.Switch.MACOnly

	return mac0, ip0, ip60, comp
}

func firstOrNil(ips []net.IP) net.IP {
	if len(ips) == 0 {
		return nil
	}
	return ips[0]
}

func parseMacIP(addr string) (net.HardwareAddr, net.IP, bool) {
	mac, ip, _ := parseCanonicalParts(addr)
	return mac, ip, mac != nil
}

func canonicalAddress(mac net.HardwareAddr, ip4, ip6 net.IP) string {
	s := ""
	if mac != nil {
		s = mac.String()
	}
	if ip4 != nil {
		s += " " + ip4.String()
	}
	if ip6 != nil {
		s += " " + ip6.String()
	}
	return s
}

func parseCanonical(s string) (net.HardwareAddr, net.IP, net.IP) {
	mac, ip4, ip6 := parseCanonicalParts(s)
	return mac, ip4, ip6
}

func parseCanonicalParts(s string) (net.HardwareAddr, net.IP, net.IP) {
	var mac net.HardwareAddr
	var ip4, ip6 net.IP
	fields := splitFields(s)
	for _, f := range fields {
		if m, err := net.ParseMAC(f); err == nil {
			mac = m
			continue
		}
		if ip := net.ParseIP(f); ip != nil {
			if ip.To4() != nil {
				ip4 = ip.To4()
			} else {
				ip6 = ip
			}
		}
	}
	return mac, ip4, ip6
}

func splitFields(s string) []string {
	var out []string
	cur := ""
	for _, r := range s {
		if r == ' ' {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}
