// Package lswitch implements C7: the logical-switch flow generator. It
// walks every switch datapath in the arena and emits one flow per
// applicable ingress/egress table, grounded in the stage tables of spec
// §4.7.
package lswitch

import (
	"fmt"
	"net"
	"sort"

	"github.com/cubeek/ovn/pkg/flows"
	"github.com/cubeek/ovn/pkg/model"
	"github.com/cubeek/ovn/pkg/nb"
	"github.com/cubeek/ovn/pkg/sb"
	"github.com/cubeek/ovn/pkg/types"
)

// Generate appends every logical-switch flow for every switch datapath in
// arena to out. sbSnap supplies the multicast-group aggregates C5 already
// computed for this cycle, consumed by the L2-lookup IGMP policy.
func Generate(arena *model.Arena, nbSnap *nb.Snapshot, sbSnap *sb.Snapshot, out *flows.Set) {
	for _, dp := range arena.Datapaths {
		if dp.Kind != model.DatapathSwitch {
			continue
		}
		ports := arena.PortsOnDatapath(dp)
		genAdmissionAndPortSec(dp, ports, out)
		genACLPipeline(dp, ports, nbSnap, out)
		genLBAndStateful(dp, ports, nbSnap, out)
		genArpNDResponder(dp, ports, out)
		genDHCP(dp, ports, nbSnap, out)
		genDNS(dp, nbSnap, out)
		genExternalPort(dp, ports, out)
		genL2Lookup(arena, dp, ports, sbSnap, out)
		genEgressPortSec(dp, ports, out)
	}
}

func datapathID(dp *model.Datapath) flows.DatapathID { return flows.DatapathID(dp.ID) }

// genAdmissionAndPortSec covers LS_IN_PORT_SEC_{L2,IP,ND} (spec §4.7
// "Admission (ingress 0)" and "Port security L2/IP/ND"): a priority-100
// drop of VLAN-tagged or broadcast/multicast-sourced traffic, a priority-50
// per-enabled-non-external-port admission permit carrying the port's QoS
// queue, and per-port MAC/IP/ARP/ND legality checks.
func genAdmissionAndPortSec(dp *model.Datapath, ports []*model.Port, out *flows.Set) {
	dpID := datapathID(dp)
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInPortSecL2, Priority: 0, Match: "1", Actions: "drop;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInPortSecIP, Priority: 0, Match: "1", Actions: "next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInPortSecND, Priority: 0, Match: "1", Actions: "next;"})

	out.Add(flows.Flow{
		Datapath: dpID, Stage: flows.LSInPortSecL2, Priority: 100,
		Match: "vlan.present || eth.src[40]", Actions: "drop;",
	})

	for _, p := range ports {
		if p.Kind != model.PortLSP || !p.Enabled || p.Type == "external" {
			continue
		}
		actions := "next;"
		if p.QueueID != 0 {
			actions = fmt.Sprintf("set_queue(%d); next;", p.QueueID)
		}
		out.Add(flows.Flow{
			Datapath: dpID, Stage: flows.LSInPortSecL2, Priority: 50,
			Match: fmt.Sprintf("inport == %q", p.JSONName), Actions: actions,
		})
	}

	for _, p := range ports {
		if p.Kind != model.PortLSP || !p.Enabled || len(p.PortSecurity) == 0 {
			continue
		}
		genPortSecurityL2(dp, p, out)
		genPortSecurityIP(dp, p, out)
		genPortSecurityND(dp, p, out)
	}
}

func genPortSecurityL2(dp *model.Datapath, p *model.Port, out *flows.Set) {
	dpID := datapathID(dp)
	macMatch := flows.NewMatchBuilder()
	for _, ps := range p.PortSecurity {
		macMatch.Add("eth.src == %s", ps.MAC)
	}
	m := flows.NewMatchBuilder().Add("inport == %q", p.JSONName).Add("!(%s)", macMatch.String())
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInPortSecL2, Priority: 90, Match: m.String(), Actions: "drop;"})
}

// genPortSecurityIP covers LS_IN_PORT_SEC_IP: per port_security entry, drop
// IPv4/IPv6 traffic whose source isn't one of the entry's legal addresses,
// except the DHCPv4 bootstrap case (source 0.0.0.0, destined to the DHCP
// server port) which must be admitted before an address is even leased
// (spec §4.7).
func genPortSecurityIP(dp *model.Datapath, p *model.Port, out *flows.Set) {
	dpID := datapathID(dp)
	for _, ps := range p.PortSecurity {
		if len(ps.IPv4) > 0 {
			ipTerms := flows.NewMatchBuilder()
			for _, ip := range ps.IPv4 {
				ipTerms.Add("ip4.src == %s", ip)
			}
			deny := flows.NewMatchBuilder().Add("inport == %q", p.JSONName).Add("eth.src == %s", ps.MAC).
				Add("ip4").Add("!(ip4.src == 0.0.0.0 && udp.src == 68 && udp.dst == 67)").
				Add("!(%s)", ipTerms.String())
			out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInPortSecIP, Priority: 90, Match: deny.String(), Actions: "drop;"})
		}
		if len(ps.IPv6) > 0 {
			ipTerms := flows.NewMatchBuilder()
			for _, ip := range ps.IPv6 {
				ipTerms.Add("ip6.src == %s", ip)
			}
			// DAD probes carry ip6.src == ::, legal regardless of the
			// configured address set.
			deny := flows.NewMatchBuilder().Add("inport == %q", p.JSONName).Add("eth.src == %s", ps.MAC).
				Add("ip6").Add("!(ip6.src == ::)").Add("!(%s)", ipTerms.String())
			out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInPortSecIP, Priority: 90, Match: deny.String(), Actions: "drop;"})
		}
	}
}

// genPortSecurityND covers LS_IN_PORT_SEC_ND: a priority-90 allow for ARP
// requests/replies and ND packets carrying a legal source address set per
// port_security entry, and a priority-80 catch-all drop for any other
// ARP/ND traffic from the port (spec §4.7).
func genPortSecurityND(dp *model.Datapath, p *model.Port, out *flows.Set) {
	dpID := datapathID(dp)
	for _, ps := range p.PortSecurity {
		if len(ps.IPv4) > 0 {
			arpSPA := flows.NewMatchBuilder()
			for _, ip := range ps.IPv4 {
				arpSPA.Add("arp.spa == %s", ip)
			}
			allow := flows.NewMatchBuilder().Add("inport == %q", p.JSONName).Add("arp").
				Add("arp.sha == %s", ps.MAC).Add("(%s)", arpSPA.String())
			out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInPortSecND, Priority: 90, Match: allow.String(), Actions: "next;"})
		}
		if len(ps.IPv6) > 0 {
			ndTarget := flows.NewMatchBuilder()
			for _, ip := range ps.IPv6 {
				ndTarget.Add("nd.target == %s", ip)
				ndTarget.Add("ip6.src == %s", ip)
			}
			allow := flows.NewMatchBuilder().Add("inport == %q", p.JSONName).Add("(nd_ns || nd_na)").
				Add("(nd.sll == %s || nd.tll == %s || eth.src == %s)", ps.MAC, ps.MAC, ps.MAC).
				Add("(%s || ip6.src == ::)", ndTarget.String())
			out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInPortSecND, Priority: 90, Match: allow.String(), Actions: "next;"})
		}
	}
	catchAll := fmt.Sprintf("inport == %q && (arp || nd_ns || nd_na)", p.JSONName)
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInPortSecND, Priority: 80, Match: catchAll, Actions: "drop;"})
}

func genEgressPortSec(dp *model.Datapath, ports []*model.Port, out *flows.Set) {
	dpID := datapathID(dp)
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSOutPortSecIP, Priority: 0, Match: "1", Actions: "next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSOutPortSecL2, Priority: 100, Match: "eth.mcast", Actions: "output;"})

	for _, p := range ports {
		if p.Kind != model.PortLSP {
			continue
		}
		if !p.Enabled {
			out.Add(flows.Flow{
				Datapath: dpID, Stage: flows.LSOutPortSecL2, Priority: 150,
				Match: fmt.Sprintf("outport == %q", p.JSONName), Actions: "drop;",
			})
			continue
		}
		out.Add(flows.Flow{
			Datapath: dpID, Stage: flows.LSOutPortSecL2, Priority: 50,
			Match:   fmt.Sprintf("outport == %q", p.JSONName),
			Actions: "output;",
		})
	}
}

// genACLPipeline covers LS_IN_PRE_ACL/PRE_LB/PRE_STATEFUL and LS_IN_ACL,
// translating every NB ACL row visible through a port group or the switch
// directly into a priority-shifted flow (spec §4.7, §3 "ACL").
func genACLPipeline(dp *model.Datapath, ports []*model.Port, nbSnap *nb.Snapshot, out *flows.Set) {
	dpID := datapathID(dp)

	acls := switchACLs(dp, nbSnap)

	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInPreACL, Priority: 0, Match: "1", Actions: "next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSOutPreACL, Priority: 0, Match: "1", Actions: "next;"})

	if hasAllowRelated(acls) {
		defragMatch := "ip && !(nd || nd_rs || nd_na || icmp4.type == 3 || icmp6.type == 1 || tcp.flags == 4)"
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInPreACL, Priority: 110, Match: defragMatch, Actions: fmt.Sprintf("%s = 1; next;", types.RegbitConntrackDefrag)})
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSOutPreACL, Priority: 110, Match: defragMatch, Actions: fmt.Sprintf("%s = 1; next;", types.RegbitConntrackDefrag)})

		for _, p := range ports {
			if p.Type != "router" && p.Type != "localnet" {
				continue
			}
			m := fmt.Sprintf("inport == %q", p.JSONName)
			out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInPreACL, Priority: 120, Match: m, Actions: "next;"})
			m = fmt.Sprintf("outport == %q", p.JSONName)
			out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSOutPreACL, Priority: 120, Match: m, Actions: "next;"})
		}
	}

	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInPreStateful, Priority: 0, Match: "1", Actions: "next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInPreStateful, Priority: 100, Match: fmt.Sprintf("%s == 1", types.RegbitConntrackDefrag), Actions: "ct_next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSOutPreStateful, Priority: 0, Match: "1", Actions: "next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSOutPreStateful, Priority: 100, Match: fmt.Sprintf("%s == 1", types.RegbitConntrackDefrag), Actions: "ct_next;"})

	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInACL, Priority: 0, Match: "1", Actions: "next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSOutACL, Priority: 0, Match: "1", Actions: "next;"})
	emitReservedACLFlows(dpID, flows.LSInACL, out)
	emitReservedACLFlows(dpID, flows.LSOutACL, out)

	for _, acl := range acls {
		emitACL(dpID, acl, out)
	}
}

func switchACLs(dp *model.Datapath, nbSnap *nb.Snapshot) []*nb.ACL {
	var acls []*nb.ACL
	for name := range dp.Switch.PortGroups {
		pg, ok := findPortGroupByName(nbSnap, name)
		if !ok {
			continue
		}
		for _, aclID := range pg.ACLs {
			if acl, ok := nbSnap.ACLs[aclID]; ok {
				acls = append(acls, acl)
			}
		}
	}
	return acls
}

func hasAllowRelated(acls []*nb.ACL) bool {
	for _, acl := range acls {
		if acl.Action == "allow-related" {
			return true
		}
	}
	return false
}

func findPortGroupByName(nbSnap *nb.Snapshot, name string) (*nb.PortGroup, bool) {
	for _, pg := range nbSnap.PortGroups {
		if pg.Name == name {
			return pg, true
		}
	}
	return nil, false
}

// emitReservedACLFlows installs the priority-65535 universal conntrack
// patterns every switch's ACL stage carries regardless of configured ACLs:
// drop invalid or blocked-reply traffic, and let established replies/
// related traffic through without re-evaluating ACLs, skipping ND (spec
// §8 Testable Property 9 "Stateful closure").
func emitReservedACLFlows(dpID flows.DatapathID, stage flows.Stage, out *flows.Set) {
	out.Add(flows.Flow{Datapath: dpID, Stage: stage, Priority: types.ACLReservedPriority, Match: "ct.inv", Actions: "drop;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: stage, Priority: types.ACLReservedPriority, Match: "ct.rpl && ct.blocked", Actions: "drop;"})
	out.Add(flows.Flow{
		Datapath: dpID, Stage: stage, Priority: types.ACLReservedPriority,
		Match:   "!ct.new && !ct.inv && (ct.rpl || ct.rel) && !(nd || nd_rs || nd_na)",
		Actions: "next;",
	})
}

// emitACL translates one NB ACL into its SB logical flow(s). A "reject"
// ACL additionally synthesizes a TCP-RST handler at priority+10 and a
// separate ICMP-unreachable handler at the base priority (spec §8
// Testable Property 8, §4.7 "ACL").
func emitACL(dpID flows.DatapathID, acl *nb.ACL, out *flows.Set) {
	stage := flows.LSInACL
	if acl.Direction == "from-lport" {
		stage = flows.LSOutACL
	}
	priority := acl.Priority + types.ACLPriorityOffset
	if priority > types.ACLPriorityMax {
		priority = types.ACLPriorityMax
	}

	switch acl.Action {
	case "allow", "allow-related":
		actions := "next;"
		if acl.Action == "allow-related" {
			actions = fmt.Sprintf("%s = 1; next;", types.RegbitConntrackCommit)
		}
		out.Add(withLogAndMeter(flows.Flow{Datapath: dpID, Stage: stage, Priority: priority, Match: acl.Match, Actions: actions, Hint: string(acl.UUID)}, acl))
	case "drop":
		out.Add(withLogAndMeter(flows.Flow{Datapath: dpID, Stage: stage, Priority: priority, Match: acl.Match, Actions: "drop;", Hint: string(acl.UUID)}, acl))
	case "reject":
		rst := fmt.Sprintf("%s = 1; tcp_reset { eth.dst <-> eth.src; ip4.dst <-> ip4.src; ip6.dst <-> ip6.src; tcp_reset; output; };", types.RegbitConntrackCommit)
		icmp := fmt.Sprintf("%s = 1; icmp4 { icmp4.type = 3; icmp4.code = 1; eth.dst <-> eth.src; ip4.dst <-> ip4.src; next(pipeline=egress,table=0); }; icmp6 { icmp6.type = 1; icmp6.code = 4; eth.dst <-> eth.src; ip6.dst <-> ip6.src; next(pipeline=egress,table=0); }; drop;", types.RegbitConntrackCommit)
		out.Add(withLogAndMeter(flows.Flow{
			Datapath: dpID, Stage: stage, Priority: priority + 10,
			Match: fmt.Sprintf("%s && tcp", acl.Match), Actions: rst, Hint: string(acl.UUID),
		}, acl))
		out.Add(withLogAndMeter(flows.Flow{
			Datapath: dpID, Stage: stage, Priority: priority,
			Match: fmt.Sprintf("%s && !tcp", acl.Match), Actions: icmp, Hint: string(acl.UUID),
		}, acl))
	default:
		out.Add(flows.Flow{Datapath: dpID, Stage: stage, Priority: priority, Match: acl.Match, Actions: "next;", Hint: string(acl.UUID)})
	}
}

func withLogAndMeter(f flows.Flow, acl *nb.ACL) flows.Flow {
	if !acl.Log && acl.Meter == "" {
		return f
	}
	a := flows.NewActionBuilder().Raw(f.Actions)
	if acl.Log {
		a.Add("log(name=%q,severity=%s)", acl.Name, orDefault(acl.Severity, "info"))
	}
	if acl.Meter != "" {
		a.Add("meter(%q)", acl.Meter)
	}
	f.Actions = a.String()
	return f
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// genLBAndStateful covers LS_IN_PRE_LB/LS_OUT_PRE_LB, LS_IN_LB/LS_OUT_LB
// and LS_IN_STATEFUL/LS_OUT_STATEFUL (spec §4.7 "PRE_LB", "LB/STATEFUL").
func genLBAndStateful(dp *model.Datapath, ports []*model.Port, nbSnap *nb.Snapshot, out *flows.Set) {
	dpID := datapathID(dp)

	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInPreLB, Priority: 0, Match: "1", Actions: "next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSOutPreLB, Priority: 0, Match: "1", Actions: "next;"})

	if len(dp.Switch.VIPs) > 0 {
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInPreLB, Priority: 110, Match: "nd", Actions: "next;"})
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSOutPreLB, Priority: 110, Match: "nd", Actions: "next;"})
	}
	for _, vip := range dp.Switch.VIPs {
		host := vip
		if h, _, err := net.SplitHostPort(vip); err == nil {
			host = h
		}
		m := fmt.Sprintf("ip4.dst == %s", host)
		a := fmt.Sprintf("%s = 1; next;", types.RegbitConntrackDefrag)
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInPreLB, Priority: 100, Match: m, Actions: a})
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSOutPreLB, Priority: 100, Match: m, Actions: a})
	}

	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInLB, Priority: 0, Match: "1", Actions: "next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSOutLB, Priority: 0, Match: "1", Actions: "next;"})
	natEst := "ct.est && !ct.rpl"
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInLB, Priority: 100, Match: natEst, Actions: fmt.Sprintf("%s = 1; next;", types.RegbitConntrackNAT)})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSOutLB, Priority: 100, Match: natEst, Actions: fmt.Sprintf("%s = 1; next;", types.RegbitConntrackNAT)})

	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInStateful, Priority: 0, Match: "1", Actions: "next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInStateful, Priority: 100, Match: fmt.Sprintf("%s == 1", types.RegbitConntrackCommit), Actions: "ct_commit { ct_label = 0; }; next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInStateful, Priority: 100, Match: fmt.Sprintf("%s == 1", types.RegbitConntrackNAT), Actions: "ct_lb;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSOutStateful, Priority: 0, Match: "1", Actions: "next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSOutStateful, Priority: 100, Match: fmt.Sprintf("%s == 1", types.RegbitConntrackCommit), Actions: "ct_commit { ct_label = 0; }; next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSOutStateful, Priority: 100, Match: fmt.Sprintf("%s == 1", types.RegbitConntrackNAT), Actions: "ct_lb;"})

	for _, vip := range dp.Switch.VIPs {
		lb := findLBByVIP(nbSnap, vip)
		if lb == nil {
			continue
		}
		targets, ok := lb.VIPs[vip]
		if !ok {
			continue
		}
		proto := "tcp"
		if lb.Protocol == nb.ProtoUDP {
			proto = "udp"
		}
		host, port, err := net.SplitHostPort(vip)
		prio := 110
		match := fmt.Sprintf("ct.new && ip4.dst == %s", vip)
		if err == nil {
			prio = 120
			match = fmt.Sprintf("ct.new && ip4.dst == %s && %s.dst == %s", host, proto, port)
		}
		out.Add(flows.Flow{
			Datapath: dpID, Stage: flows.LSInStateful, Priority: prio,
			Match: match, Actions: fmt.Sprintf("ct_lb(%s);", targets), Hint: string(lb.UUID),
		})
	}
}

func findLBByVIP(nbSnap *nb.Snapshot, vip string) *nb.LoadBalancer {
	for _, lb := range nbSnap.LoadBalancers {
		if _, ok := lb.VIPs[vip]; ok {
			return lb
		}
	}
	return nil
}

// genArpNDResponder covers LS_IN_ARP_ND_RSP: one flow per port's resolved
// address set answering ARP/NS locally instead of flooding (spec §4.7).
func genArpNDResponder(dp *model.Datapath, ports []*model.Port, out *flows.Set) {
	dpID := datapathID(dp)
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInArpNdRsp, Priority: 0, Match: "1", Actions: "next;"})

	for _, p := range ports {
		if p.Addresses.MAC == nil || p.Type == "localnet" || p.Type == "vtep" {
			continue
		}
		for _, ip := range p.Addresses.IPv4 {
			m := fmt.Sprintf("arp.tpa == %s && arp.op == 1", ip)
			a := fmt.Sprintf("eth.dst = eth.src; eth.src = %s; arp.op = 2; arp.tha = arp.sha; arp.sha = %s; arp.tpa = arp.spa; arp.spa = %s; outport = inport; flags.loopback = 1; output;",
				p.Addresses.MAC, p.Addresses.MAC, ip)
			out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInArpNdRsp, Priority: 50, Match: m, Actions: a})
			out.Add(flows.Flow{
				Datapath: dpID, Stage: flows.LSInArpNdRsp, Priority: 100,
				Match:   fmt.Sprintf("arp.tpa == %s && arp.op == 1 && !(inport == %q)", ip, p.JSONName),
				Actions: a,
			})
		}
		for _, ip := range p.Addresses.IPv6 {
			respond := fmt.Sprintf("eth.src = %s; ip6.src = %s; nd.target = %s; nd.tll = %s; outport = inport; flags.loopback = 1; output;",
				p.Addresses.MAC, ip, ip, p.Addresses.MAC)
			m := fmt.Sprintf("nd_ns && nd.target == %s", ip)
			if p.Type == "router" {
				out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInArpNdRsp, Priority: 50, Match: m, Actions: fmt.Sprintf("nd_na_router { %s };", respond)})
			} else {
				out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInArpNdRsp, Priority: 50, Match: m, Actions: fmt.Sprintf("nd_na { %s };", respond)})
			}
		}
		if p.Kind == model.PortLRPRedirect || p.Type == "virtual" {
			m := fmt.Sprintf("inport == %q", p.JSONName)
			out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInArpNdRsp, Priority: 60, Match: m, Actions: fmt.Sprintf("bind_vport(%q, inport); next;", p.JSONName)})
		}
	}
}

// genDHCP covers LS_IN_DHCP_OPTIONS/LS_IN_DHCP_RESPONSE for both DHCPv4 and
// DHCPv6, consulting the DHCP-options lookup result regbit and validating
// that the configured options CIDR actually covers the port's offered
// address (spec §4.7 "DHCP").
func genDHCP(dp *model.Datapath, ports []*model.Port, nbSnap *nb.Snapshot, out *flows.Set) {
	dpID := datapathID(dp)
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInDHCPOptions, Priority: 0, Match: "1", Actions: "next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInDHCPResponse, Priority: 0, Match: "1", Actions: "next;"})

	for _, p := range ports {
		if p.Kind != model.PortLSP {
			continue
		}
		nbp, ok := nbSnap.SwitchPorts[p.ID]
		if !ok {
			continue
		}
		genDHCPv4(dpID, p, nbp, nbSnap, out)
		genDHCPv6(dpID, p, nbp, nbSnap, out)
	}
}

func genDHCPv4(dpID flows.DatapathID, p *model.Port, nbp *nb.LogicalSwitchPort, nbSnap *nb.Snapshot, out *flows.Set) {
	if nbp.DHCPv4Options == "" {
		return
	}
	opts, ok := nbSnap.DHCPv4Options[nbp.DHCPv4Options]
	if !ok {
		return
	}
	_, cidr, err := net.ParseCIDR(opts.CIDR)
	if err != nil || len(p.Addresses.IPv4) == 0 || !cidr.Contains(p.Addresses.IPv4[0]) {
		return
	}
	offerIP := p.Addresses.IPv4[0]

	base := fmt.Sprintf("inport == %q && eth.src == %s && ip4 && udp.src == 68 && udp.dst == 67", p.JSONName, p.Addresses.MAC)
	action := fmt.Sprintf("%s = put_dhcp_opts(offerip = %s, %s); next;", types.RegbitDHCPOptsResult, offerIP, flattenOptions(opts.Options))
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInDHCPOptions, Priority: 100, Match: base + " && ip4.src == 0.0.0.0", Actions: action, Hint: string(p.ID)})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInDHCPOptions, Priority: 100, Match: fmt.Sprintf("%s && ip4.src == %s", base, offerIP), Actions: action, Hint: string(p.ID)})

	out.Add(flows.Flow{
		Datapath: dpID, Stage: flows.LSInDHCPResponse, Priority: 100,
		Match:   fmt.Sprintf("%s == 1", types.RegbitDHCPOptsResult),
		Actions: "eth.dst = eth.src; ip4.dst = 255.255.255.255; udp.src = 67; udp.dst = 68; outport = inport; flags.loopback = 1; output;",
	})
}

func genDHCPv6(dpID flows.DatapathID, p *model.Port, nbp *nb.LogicalSwitchPort, nbSnap *nb.Snapshot, out *flows.Set) {
	if nbp.DHCPv6Options == "" {
		return
	}
	opts, ok := nbSnap.DHCPv6Options[nbp.DHCPv6Options]
	if !ok {
		return
	}
	serverLLA := linkLocalFromMAC(p.Addresses.MAC)
	stateless := opts.Options["dhcpv6_stateless"] == "true"

	iaAddr := ""
	if !stateless && len(p.Addresses.IPv6) > 0 {
		iaAddr = fmt.Sprintf("ia_addr = %s, ", p.Addresses.IPv6[0])
	}
	match := fmt.Sprintf("inport == %q && eth.src == %s && ip6 && udp.src == 546 && udp.dst == 547", p.JSONName, p.Addresses.MAC)
	action := fmt.Sprintf("%s = put_dhcpv6_opts(%sserver_id = %s, %s); next;", types.RegbitDHCPOptsResult, iaAddr, p.Addresses.MAC, flattenOptions(opts.Options))
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInDHCPOptions, Priority: 100, Match: match, Actions: action, Hint: string(p.ID)})

	out.Add(flows.Flow{
		Datapath: dpID, Stage: flows.LSInDHCPResponse, Priority: 100,
		Match: fmt.Sprintf("%s == 1", types.RegbitDHCPOptsResult),
		Actions: fmt.Sprintf("eth.dst = eth.src; eth.src = %s; ip6.dst = ip6.src; ip6.src = %s; udp.src = 547; udp.dst = 546; outport = inport; flags.loopback = 1; output;",
			p.Addresses.MAC, serverLLA),
	})
}

// linkLocalFromMAC derives a modified-EUI-64 link-local address from a
// server's MAC, used as the DHCPv6 reply's source address (spec §4.7
// "DHCP", "server-MAC-derived link-local source").
func linkLocalFromMAC(mac net.HardwareAddr) string {
	if len(mac) != 6 {
		return "fe80::1"
	}
	ip := net.IP{0xfe, 0x80, 0, 0, 0, 0, 0, 0,
		mac[0] ^ 0x02, mac[1], mac[2], 0xff, 0xfe, mac[3], mac[4], mac[5]}
	return ip.String()
}

func flattenOptions(opts map[string]string) string {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for _, k := range keys {
		out += fmt.Sprintf("%s = %s, ", k, opts[k])
	}
	if len(out) > 2 {
		out = out[:len(out)-2]
	}
	return out
}

// genDNS covers LS_IN_DNS_LOOKUP/LS_IN_DNS_RESPONSE: one flow per DNS
// record set attached to the switch (spec §4.7).
func genDNS(dp *model.Datapath, nbSnap *nb.Snapshot, out *flows.Set) {
	dpID := datapathID(dp)
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInDNSLookup, Priority: 0, Match: "1", Actions: "next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInDNSResponse, Priority: 0, Match: "1", Actions: "next;"})

	if !dp.Switch.HasDNSRecords {
		return
	}
	own := map[nb.UUID]bool{}
	for _, ls := range nbSnap.Switches {
		if ls.Name == dp.Name {
			for _, id := range ls.DNSRecords {
				own[id] = true
			}
		}
	}
	for id, rec := range nbSnap.DNSRecords {
		if !own[id] {
			continue
		}
		out.Add(flows.Flow{
			Datapath: dpID, Stage: flows.LSInDNSLookup, Priority: 100,
			Match:   "udp.dst == 53",
			Actions: fmt.Sprintf("%s = dns_lookup(%s); next;", types.RegbitDNSLookupResult, flattenOptions(rec.Records)),
		})
	}
	out.Add(flows.Flow{
		Datapath: dpID, Stage: flows.LSInDNSResponse, Priority: 100,
		Match:   fmt.Sprintf("%s == 1", types.RegbitDNSLookupResult),
		Actions: "eth.dst <-> eth.src; ip4.src <-> ip4.dst; udp.dst = udp.src; udp.src = 53; outport = inport; flags.loopback = 1; output;",
	})
}

// genExternalPort covers LS_IN_EXTERNAL_PORT: traffic from type=external
// ports is only admitted when the hosting chassis is resident for the
// external port itself (spec §4.7).
func genExternalPort(dp *model.Datapath, ports []*model.Port, out *flows.Set) {
	dpID := datapathID(dp)
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInExternalPort, Priority: 0, Match: "1", Actions: "next;"})

	var localnet *model.Port
	var routerAddrs []net.IP
	for _, p := range ports {
		if p.Type == "localnet" {
			localnet = p
		}
		if len(p.ExternalRouterAddrs) > 0 {
			routerAddrs = append(routerAddrs, p.ExternalRouterAddrs...)
		}
	}

	for _, p := range ports {
		if p.Type != "external" {
			continue
		}
		m := fmt.Sprintf("inport == %q && !%s", p.JSONName, flows.IsChassisResident(p.Name))
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInExternalPort, Priority: 100, Match: m, Actions: "drop;"})

		if localnet == nil {
			continue
		}
		for _, addr := range routerAddrs {
			for _, proto := range []string{"arp.tpa", "nd.target"} {
				m := fmt.Sprintf("inport == %q && %s == %s && !%s", localnet.JSONName, proto, addr, flows.IsChassisResident(p.Name))
				out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInExternalPort, Priority: 100, Match: m, Actions: "drop;"})
			}
		}
	}
}

// genL2Lookup covers LS_IN_L2_LKUP: exact destination-MAC dispatch per
// port, IGMP/multicast flood policy driven by the aggregates C5 computed
// for this cycle, and a flood-or-drop fallback (spec §4.7 "L2 lookup
// (ingress 17)").
func genL2Lookup(arena *model.Arena, dp *model.Datapath, ports []*model.Port, sbSnap *sb.Snapshot, out *flows.Set) {
	dpID := datapathID(dp)

	out.Add(flows.Flow{
		Datapath: dpID, Stage: flows.LSInL2Lkup, Priority: 100,
		Match: "ip4 && ip.proto == 2", Actions: fmt.Sprintf("outport = %q; output;", types.MulticastMrouterFloodName),
	})

	for _, row := range learntMulticastGroups(dp, sbSnap) {
		m := fmt.Sprintf("eth.mcast && ip4.dst == %s", row.Name)
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInL2Lkup, Priority: 90, Match: m, Actions: fmt.Sprintf("outport = %q; output;", row.Name)})
	}

	out.Add(flows.Flow{
		Datapath: dpID, Stage: flows.LSInL2Lkup, Priority: 85,
		Match: "ip4.mcast && ip4.dst == 224.0.0.0/24", Actions: fmt.Sprintf("outport = %q; output;", types.MulticastFloodName),
	})

	if !dp.Switch.Mcast.FloodUnregistered {
		out.Add(flows.Flow{
			Datapath: dpID, Stage: flows.LSInL2Lkup, Priority: 80,
			Match: "ip4.mcast", Actions: fmt.Sprintf("outport = %q; output;", types.MulticastStaticName),
		})
	} else {
		out.Add(flows.Flow{
			Datapath: dpID, Stage: flows.LSInL2Lkup, Priority: 70,
			Match: "eth.mcast", Actions: fmt.Sprintf("outport = %q; output;", types.MulticastFloodName),
		})
	}

	for _, p := range ports {
		if p.Addresses.MAC == nil || !p.Enabled {
			continue
		}
		m := fmt.Sprintf("eth.dst == %s", p.Addresses.MAC)
		if p.Type == "router" {
			if peer := arena.PeerOf(p); peer != nil && peer.GatewayChassisForm != int(types.GatewayFormNone) {
				m = fmt.Sprintf("%s && %s", m, flows.IsChassisResident(peer.Name))
			}
		}
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInL2Lkup, Priority: 50, Match: m, Actions: fmt.Sprintf("outport = %q; output;", p.JSONName)})
		if p.Addresses.IsUnknown {
			dp.Switch.Mcast.HasUnknownFlag = true
		}
	}

	if dp.Switch.Mcast.HasUnknownFlag {
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInL2Lkup, Priority: 0, Match: "1", Actions: fmt.Sprintf("outport = %q; output;", types.MulticastUnknownName)})
	} else {
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LSInL2Lkup, Priority: 0, Match: "1", Actions: "drop;"})
	}
}

var reservedMulticastNames = map[string]bool{
	types.MulticastFloodName:         true,
	types.MulticastMrouterFloodName:  true,
	types.MulticastMrouterStaticName: true,
	types.MulticastStaticName:        true,
	types.MulticastUnknownName:       true,
}

// learntMulticastGroups returns dp's non-reserved SB Multicast_Group rows
// (the per-(datapath, group) aggregates C5 built for this cycle), sorted
// by name for deterministic flow emission.
func learntMulticastGroups(dp *model.Datapath, sbSnap *sb.Snapshot) []*sb.MulticastGroup {
	var rows []*sb.MulticastGroup
	for _, row := range sbSnap.MulticastGroups {
		if row.Datapath != string(dp.ID) || reservedMulticastNames[row.Name] {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows
}
