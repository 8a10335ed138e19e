// Package lrouter implements C8: the logical-router flow generator. It
// walks every router datapath in the arena and emits one flow per
// applicable ingress/egress table, grounded in the stage tables of spec
// §4.8.
package lrouter

import (
	"fmt"
	"net"

	"github.com/cubeek/ovn/pkg/flows"
	"github.com/cubeek/ovn/pkg/model"
	"github.com/cubeek/ovn/pkg/nb"
	"github.com/cubeek/ovn/pkg/types"
)

func datapathID(dp *model.Datapath) flows.DatapathID { return flows.DatapathID(dp.ID) }

// Generate appends every logical-router flow for every router datapath in
// arena to out.
func Generate(arena *model.Arena, nbSnap *nb.Snapshot, out *flows.Set) {
	for _, dp := range arena.Datapaths {
		if dp.Kind != model.DatapathRouter {
			continue
		}
		ports := arena.PortsOnDatapath(dp)
		genAdmissionAndNeighbor(dp, ports, nbSnap, out)
		genIPInputAndNAT(dp, ports, nbSnap, out)
		genRoutingAndPolicy(arena, dp, ports, nbSnap, out)
		genPktLenAndGwRedirect(dp, ports, out)
		genEgress(dp, ports, out)
	}
}

// genAdmissionAndNeighbor covers LR_IN_ADMISSION, LR_IN_LOOKUP_NEIGHBOR,
// LR_IN_LEARN_NEIGHBOR: drop traffic not addressed to a router port's MAC
// (requiring chassis-residency when the port is the distributed gateway
// port), then resolve/learn the sender's neighbor entry (spec §4.8
// "Admission and neighbor learning").
func genAdmissionAndNeighbor(dp *model.Datapath, ports []*model.Port, nbSnap *nb.Snapshot, out *flows.Set) {
	dpID := datapathID(dp)
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInAdmission, Priority: 0, Match: "1", Actions: "drop;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInAdmission, Priority: 100, Match: "vlan.present || eth.src[40]", Actions: "drop;"})

	for _, p := range ports {
		if p.Addresses.MAC == nil || !p.Enabled {
			continue
		}
		out.Add(flows.Flow{
			Datapath: dpID, Stage: flows.LRInAdmission, Priority: 50,
			Match: fmt.Sprintf("inport == %q && eth.bcast", p.JSONName), Actions: "next;",
		})

		m := fmt.Sprintf("inport == %q && eth.dst == %s", p.JSONName, p.Addresses.MAC)
		if p.Name == dp.Router.DGWPortName {
			m = fmt.Sprintf("%s && %s", m, flows.IsChassisResident(dp.Router.DGWPortName))
		}
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInAdmission, Priority: 50, Match: m, Actions: "next;"})
	}

	for _, nat := range routerDistributedNATs(dp, nbSnap) {
		if nat.ExternalMAC == "" || nat.LogicalPort == "" {
			continue
		}
		m := fmt.Sprintf("eth.dst == %s && inport == %q && %s", nat.ExternalMAC, dp.Router.DGWPortName, flows.IsChassisResident(nat.LogicalPort))
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInAdmission, Priority: 50, Match: m, Actions: "next;", Hint: string(nat.UUID)})
	}

	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInLookupNeighbor, Priority: 0, Match: "1", Actions: fmt.Sprintf("%s = lookup_arp(inport, arp.spa, arp.sha); next;", types.RegbitLookupNeighborResult)})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInLookupNeighbor, Priority: 0, Match: "ip6", Actions: fmt.Sprintf("%s = lookup_nd(inport, nd.sll, nd.target); next;", types.RegbitLookupNeighborResult)})

	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInLearnNeighbor, Priority: 100, Match: fmt.Sprintf("%s == 0 && %s == 1", types.RegbitLookupNeighborResult, types.RegbitLookupNeighbor), Actions: "put_arp(inport, arp.spa, arp.sha); next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInLearnNeighbor, Priority: 100, Match: fmt.Sprintf("ip6 && %s == 0 && %s == 1", types.RegbitLookupNeighborResult, types.RegbitLookupNeighbor), Actions: "put_nd(inport, nd.target, nd.tll); next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInLearnNeighbor, Priority: 0, Match: "1", Actions: "next;"})
}

// routerByName looks up the NB row for a router datapath by name.
func routerByName(dp *model.Datapath, nbSnap *nb.Snapshot) *nb.LogicalRouter {
	for _, lr := range nbSnap.Routers {
		if lr.Name == dp.Name {
			return lr
		}
	}
	return nil
}

func routerNATs(dp *model.Datapath, nbSnap *nb.Snapshot) []nb.UUID {
	if lr := routerByName(dp, nbSnap); lr != nil {
		return lr.NAT
	}
	return nil
}

func routerDistributedNATs(dp *model.Datapath, nbSnap *nb.Snapshot) []*nb.NAT {
	var out []*nb.NAT
	for _, id := range routerNATs(dp, nbSnap) {
		nat, ok := nbSnap.NATs[id]
		if !ok || nat.Type != nb.NATDnatAndSnat || nat.Stateless {
			continue
		}
		out = append(out, nat)
	}
	return out
}

func routerLBs(dp *model.Datapath, nbSnap *nb.Snapshot) []nb.UUID {
	if lr := routerByName(dp, nbSnap); lr != nil {
		return lr.LoadBalancer
	}
	return nil
}

// genIPInputAndNAT covers LR_IN_IP_INPUT, LR_IN_DEFRAG, LR_IN_UNSNAT,
// LR_IN_DNAT, LR_IN_ECMP_STATEFUL and their egress counterparts LR_OUT_SNAT/
// LR_OUT_UNDNAT: self-traffic handling plus the NAT/LB matrix distinguishing
// gateway routers (full NAT/LB) from distributed routers (VIP matching
// redirected via the chosen gateway port), spec §4.8 "NAT and load
// balancing".
func genIPInputAndNAT(dp *model.Datapath, ports []*model.Port, nbSnap *nb.Snapshot, out *flows.Set) {
	dpID := datapathID(dp)
	isGateway := dp.Router.DGWPortName == ""
	dgw := dp.Router.DGWPortName
	redirect := dp.Router.RedirectPortName

	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInIPInput, Priority: 0, Match: "1", Actions: "next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInIPInput, Priority: 100, Match: "arp || nd_ns || nd_na || nd_rs", Actions: "drop;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInIPInput, Priority: 90, Match: "ip4 && ip.ttl <= 1", Actions: "icmp4 { icmp4.type = 11; icmp4.code = 0; next(pipeline=egress,table=0); };"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInIPInput, Priority: 90, Match: "ip6 && ip.ttl <= 1", Actions: "icmp6 { icmp6.type = 3; icmp6.code = 0; next(pipeline=egress,table=0); };"})

	snatExternal := map[string]bool{}
	for _, natID := range routerNATs(dp, nbSnap) {
		if nat, ok := nbSnap.NATs[natID]; ok && nat.Type == nb.NATSnat {
			snatExternal[nat.ExternalIP] = true
		}
	}

	for _, p := range ports {
		if p.Addresses.MAC == nil {
			continue
		}
		for _, n := range p.Networks {
			ip := n.IP.String()
			arpMatch := fmt.Sprintf("arp.tpa == %s && arp.op == 1", ip)
			arpAction := fmt.Sprintf("eth.dst = eth.src; eth.src = %s; arp.op = 2; arp.tha = arp.sha; arp.sha = %s; arp.tpa = arp.spa; arp.spa = %s; outport = inport; flags.loopback = 1; output;",
				p.Addresses.MAC, p.Addresses.MAC, ip)
			out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInIPInput, Priority: 110, Match: arpMatch, Actions: arpAction})
			out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInIPInput, Priority: 105, Match: fmt.Sprintf("icmp4.type == 8 && icmp4.code == 0 && ip4.dst == %s", ip),
				Actions: "ip4.dst <-> ip4.src; ip.ttl = 255; icmp4.type = 0; flags.loopback = 1; next(pipeline=egress,table=0);"})
			if !snatExternal[ip] {
				out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInIPInput, Priority: 70, Match: fmt.Sprintf("ip4.dst == %s", ip), Actions: "drop;"})
			}
			if isGateway {
				out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInIPInput, Priority: 60, Match: fmt.Sprintf("tcp && ip4.dst == %s", ip), Actions: "tcp_reset { eth.dst <-> eth.src; ip4.dst <-> ip4.src; next(pipeline=egress,table=0); };"})
				out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInIPInput, Priority: 60, Match: fmt.Sprintf("udp && ip4.dst == %s", ip), Actions: "icmp4 { icmp4.type = 3; icmp4.code = 3; next(pipeline=egress,table=0); };"})
			}
		}
	}

	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInDefrag, Priority: 0, Match: "1", Actions: "next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInUNSNAT, Priority: 0, Match: "1", Actions: "next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInDNAT, Priority: 0, Match: "1", Actions: "next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInECMPStateful, Priority: 0, Match: "1", Actions: "next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LROutUNDNAT, Priority: 0, Match: "1", Actions: "next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LROutUNDNAT, Priority: 100, Match: "ip && ct.trk && ct.dnat", Actions: "ct_dnat;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LROutSNAT, Priority: 0, Match: "1", Actions: "next;"})

	genRouterOptionForceSnat(dp, nbSnap, out)

	for _, natID := range routerNATs(dp, nbSnap) {
		nat, ok := nbSnap.NATs[natID]
		if !ok {
			continue
		}
		genNAT(dpID, nat, isGateway, dgw, redirect, out)
	}

	forceSnatForLB := ""
	if lr := routerByName(dp, nbSnap); lr != nil {
		forceSnatForLB = lr.Options["lb_force_snat_ip"]
	}

	for _, lbID := range routerLBs(dp, nbSnap) {
		lb, ok := nbSnap.LoadBalancers[lbID]
		if !ok {
			continue
		}
		genRouterLB(dpID, lb, isGateway, dgw, redirect, forceSnatForLB != "", out)
	}
}

func genRouterOptionForceSnat(dp *model.Datapath, nbSnap *nb.Snapshot, out *flows.Set) {
	lr := routerByName(dp, nbSnap)
	if lr == nil || dp.Router.DGWPortName != "" {
		return
	}
	dpID := datapathID(dp)
	if ip := lr.Options["dnat_force_snat_ip"]; ip != "" {
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInUNSNAT, Priority: 110, Match: fmt.Sprintf("ip4.dst == %s", ip), Actions: "ct_snat;"})
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LROutSNAT, Priority: 110, Match: fmt.Sprintf("flags.force_snat_for_dnat == 1 && ip4.src == %s", ip), Actions: fmt.Sprintf("ct_snat(%s);", ip)})
	}
	if ip := lr.Options["lb_force_snat_ip"]; ip != "" {
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInUNSNAT, Priority: 110, Match: fmt.Sprintf("ip4.dst == %s", ip), Actions: "ct_snat;"})
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LROutSNAT, Priority: 110, Match: fmt.Sprintf("flags.force_snat_for_lb == 1 && ip4.src == %s", ip), Actions: fmt.Sprintf("ct_snat(%s);", ip)})
	}
}

// genNAT wires one NB NAT row into the ingress UNSNAT/DNAT and egress SNAT/
// UNDNAT flows per the NAT-type matrix (spec §4.8 "NAT and load
// balancing"): full handling on gateway routers, chassis-gated handling on
// distributed routers that own an l3dgw_port, and a redirect bit for any
// other ingress port.
func genNAT(dpID flows.DatapathID, nat *nb.NAT, isGateway bool, dgw, redirect string, out *flows.Set) {
	switch nat.Type {
	case nb.NATSnat:
		plen := prefixLenOfCIDROrHost(nat.LogicalIP)
		unsnat := fmt.Sprintf("ip4.dst == %s", nat.ExternalIP)
		snat := fmt.Sprintf("ip4.src == %s", nat.LogicalIP)
		if isGateway {
			out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInUNSNAT, Priority: 100, Match: unsnat, Actions: "ct_snat;", Hint: string(nat.UUID)})
			out.Add(flows.Flow{Datapath: dpID, Stage: flows.LROutSNAT, Priority: plen + 1, Match: snat, Actions: fmt.Sprintf("ct_snat(%s);", nat.ExternalIP), Hint: string(nat.UUID)})
			return
		}
		if dgw == "" {
			return
		}
		residency := flows.IsChassisResident(redirect)
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInUNSNAT, Priority: 100, Match: fmt.Sprintf("%s && inport == %q && %s", unsnat, dgw, residency), Actions: "ct_snat;", Hint: string(nat.UUID)})
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LROutSNAT, Priority: plen + 1, Match: fmt.Sprintf("%s && outport == %q && %s", snat, dgw, residency), Actions: fmt.Sprintf("ct_snat(%s);", nat.ExternalIP), Hint: string(nat.UUID)})
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInIPInput, Priority: 75, Match: fmt.Sprintf("%s && inport != %q", snat, dgw), Actions: fmt.Sprintf("%s = 1; next;", types.RegbitNATRedirect), Hint: string(nat.UUID)})

	case nb.NATDnat, nb.NATDnatAndSnat:
		if nat.Stateless {
			dnatIn := fmt.Sprintf("ip4.dst == %s", nat.ExternalIP)
			snatOut := fmt.Sprintf("ip4.src == %s", nat.LogicalIP)
			rewriteIn := fmt.Sprintf("ip4.dst = %s; next;", nat.LogicalIP)
			rewriteOut := fmt.Sprintf("ip4.src = %s; next;", nat.ExternalIP)
			if !isGateway && nat.ExternalMAC != "" {
				rewriteOut = fmt.Sprintf("ip4.src = %s; eth.src = %s; next;", nat.ExternalIP, nat.ExternalMAC)
			}
			out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInDNAT, Priority: 100, Match: dnatIn, Actions: rewriteIn, Hint: string(nat.UUID)})
			out.Add(flows.Flow{Datapath: dpID, Stage: flows.LROutSNAT, Priority: 100, Match: snatOut, Actions: rewriteOut, Hint: string(nat.UUID)})
			return
		}

		dnatIn := fmt.Sprintf("ip4.dst == %s", nat.ExternalIP)
		if isGateway {
			out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInDNAT, Priority: 100, Match: dnatIn, Actions: fmt.Sprintf("flags.loopback = 1; ct_dnat(%s);", nat.LogicalIP), Hint: string(nat.UUID)})
			return
		}
		if dgw == "" {
			return
		}
		residency := flows.IsChassisResident(nat.LogicalPort)
		if nat.LogicalPort == "" {
			residency = flows.IsChassisResident(redirect)
		}
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInDNAT, Priority: 100, Match: fmt.Sprintf("%s && inport == %q && %s", dnatIn, dgw, residency), Actions: fmt.Sprintf("flags.loopback = 1; ct_dnat(%s);", nat.LogicalIP), Hint: string(nat.UUID)})
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInIPInput, Priority: 75, Match: fmt.Sprintf("%s && inport != %q", dnatIn, dgw), Actions: fmt.Sprintf("%s = 1; next;", types.RegbitNATRedirect), Hint: string(nat.UUID)})
		out.Add(flows.Flow{
			Datapath: dpID, Stage: flows.LROutEgrLoop, Priority: 110,
			Match:   fmt.Sprintf("ip4.src == %s && ip4.dst == %s", nat.LogicalIP, nat.ExternalIP),
			Actions: fmt.Sprintf("%s = 1; next;", types.RegbitEgressLoopback), Hint: string(nat.UUID),
		})
	}
}

// genRouterLB wires one NB router load balancer's VIPs into DEFRAG/DNAT per
// spec §4.8's "Load balancers" paragraph: ct_next; in DEFRAG, ct_lb(...) on
// ct.new at priority 110/120, ct_dnat; on ct.est, and a chassis-gated UNDNAT
// reversal on distributed routers.
func genRouterLB(dpID flows.DatapathID, lb *nb.LoadBalancer, isGateway bool, dgw, redirect string, forceSnat bool, out *flows.Set) {
	proto := "tcp"
	if lb.Protocol == nb.ProtoUDP {
		proto = "udp"
	}
	forceSnatPrefix := ""
	if forceSnat {
		forceSnatPrefix = "flags.force_snat_for_lb = 1; "
	}

	for vip, targets := range lb.VIPs {
		host, port, err := net.SplitHostPort(vip)
		prio := 110
		newMatch := fmt.Sprintf("ct.new && ip4.dst == %s", vip)
		estMatch := fmt.Sprintf("ct.est && ip4.dst == %s", vip)
		if err == nil {
			prio = 120
			newMatch = fmt.Sprintf("ct.new && ip4.dst == %s && %s.dst == %s", host, proto, port)
			estMatch = fmt.Sprintf("ct.est && ip4.dst == %s && %s.dst == %s", host, proto, port)
		} else {
			host = vip
		}

		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInDefrag, Priority: 100, Match: fmt.Sprintf("ip4.dst == %s", host), Actions: "ct_next;", Hint: string(lb.UUID)})

		lbAction := fmt.Sprintf("%sct_lb(%s);", forceSnatPrefix, targets)
		if !isGateway && dgw != "" {
			out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInDNAT, Priority: prio, Match: fmt.Sprintf("%s && inport == %q && %s", newMatch, dgw, flows.IsChassisResident(redirect)), Actions: lbAction, Hint: string(lb.UUID)})
			out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInDNAT, Priority: 80, Match: fmt.Sprintf("%s && outport == %q && %s", estMatch, dgw, flows.IsChassisResident(redirect)), Actions: "ct_dnat;", Hint: string(lb.UUID)})
			out.Add(flows.Flow{Datapath: dpID, Stage: flows.LROutUNDNAT, Priority: 100, Match: fmt.Sprintf("outport == %q && %s && ip4.src == %s", dgw, flows.IsChassisResident(redirect), host), Actions: "ct_dnat;", Hint: string(lb.UUID)})
			continue
		}
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInDNAT, Priority: prio, Match: newMatch, Actions: lbAction, Hint: string(lb.UUID)})
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInDNAT, Priority: 80, Match: estMatch, Actions: "ct_dnat;", Hint: string(lb.UUID)})
	}
}

func prefixLenOfCIDROrHost(s string) int {
	if _, ipnet, err := net.ParseCIDR(s); err == nil {
		return prefixLen(ipnet)
	}
	if ip := net.ParseIP(s); ip != nil {
		if ip.To4() != nil {
			return 32
		}
		return 128
	}
	return 0
}

// genMulticastRelay covers the multicast-relay bypass of LR_IN_IP_ROUTING
// (spec §4.8 "Multicast relay bypasses the LPM layer with dedicated
// priority-500 entries and, optionally, a priority-450 flood-to-static"):
// a relay-enabled router floods the well-known multicast ranges straight
// to its _MC_flood group ahead of any longest-prefix-match route, and,
// when flood-static is also set, catches the remaining multicast traffic
// at priority 450 and sends it to _MC_static instead of dropping.
func genMulticastRelay(dp *model.Datapath, out *flows.Set) {
	if dp.Router == nil || !dp.Router.Mcast.Relay {
		return
	}
	dpID := datapathID(dp)
	out.Add(flows.Flow{
		Datapath: dpID, Stage: flows.LRInIPRouting, Priority: 500,
		Match: "ip4.mcast && ip4.dst == 224.0.0.0/24", Actions: fmt.Sprintf("outport = %q; output;", types.MulticastFloodName),
	})
	out.Add(flows.Flow{
		Datapath: dpID, Stage: flows.LRInIPRouting, Priority: 500,
		Match: "ip6.mcast && ip6.dst == ff02::/16", Actions: fmt.Sprintf("outport = %q; output;", types.MulticastFloodName),
	})
	if dp.Router.Mcast.FloodStatic {
		out.Add(flows.Flow{
			Datapath: dpID, Stage: flows.LRInIPRouting, Priority: 450,
			Match: "ip4.mcast || ip6.mcast", Actions: fmt.Sprintf("outport = %q; output;", types.MulticastStaticName),
		})
	}
}

// genRoutingAndPolicy covers LR_IN_ND_RA_OPTIONS, LR_IN_IP_ROUTING,
// LR_IN_POLICY, LR_IN_ARP_RESOLVE: one flow per connected network/static
// route performing longest-prefix dispatch at `priority = 2·plen + (1 if
// dst-policy else 0)`, plus routing policies at their declared priority
// (spec §4.8 "Routing and ARP resolution").
func genRoutingAndPolicy(arena *model.Arena, dp *model.Datapath, ports []*model.Port, nbSnap *nb.Snapshot, out *flows.Set) {
	dpID := datapathID(dp)
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInNDRAOptions, Priority: 0, Match: "1", Actions: "next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInIPRouting, Priority: 0, Match: "1", Actions: "drop;"})
	genMulticastRelay(dp, out)
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInPolicy, Priority: 0, Match: "1", Actions: "next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInArpResolve, Priority: 0, Match: "ip4", Actions: "get_arp(outport, reg0); next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInArpResolve, Priority: 0, Match: "ip6", Actions: "get_nd(outport, xxreg0); next;"})

	// Connected routes: dst-policy is always true, since there is no
	// src-ip variant for a subnet directly attached to an LRP.
	for _, p := range ports {
		if p.Kind != model.PortLRP || p.Addresses.MAC == nil {
			continue
		}
		for _, n := range p.Networks {
			plen := prefixLen(n)
			prio := 2*plen + 1
			network := &net.IPNet{IP: n.IP.Mask(n.Mask), Mask: n.Mask}
			m := fmt.Sprintf("ip4.dst == %s", network.String())
			a := fmt.Sprintf("ip.ttl--; reg0 = ip4.dst; reg1 = %s; eth.src = %s; outport = %q; flags.loopback = 1; next;", n.IP, p.Addresses.MAC, p.JSONName)
			out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInIPRouting, Priority: prio, Match: m, Actions: a})
		}
	}

	for _, routeID := range routerStaticRoutes(dp, nbSnap) {
		r, ok := nbSnap.StaticRoutes[routeID]
		if !ok {
			continue
		}
		_, ipnet, err := net.ParseCIDR(r.IPPrefix)
		if err != nil {
			continue
		}
		dstPolicy := 1
		if r.Policy == "src-ip" {
			dstPolicy = 0
		}
		prio := 2*prefixLen(ipnet) + dstPolicy

		outPort := resolveOutputPort(arena, ports, r)
		if outPort == nil || outPort.Addresses.MAC == nil {
			continue
		}
		lrpAddr := firstAddr(outPort)
		a := fmt.Sprintf("ip.ttl--; reg0 = %s; reg1 = %s; eth.src = %s; outport = %q; flags.loopback = 1; next;",
			r.Nexthop, lrpAddr, outPort.Addresses.MAC, outPort.JSONName)
		m := fmt.Sprintf("ip4.dst == %s", r.IPPrefix)
		if net.ParseIP(r.Nexthop) != nil && net.ParseIP(r.Nexthop).To4() == nil {
			m = fmt.Sprintf("inport == %q && %s", outPort.JSONName, m)
		}
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInIPRouting, Priority: prio, Match: m, Actions: a, Hint: string(r.UUID)})
	}

	for _, polID := range routerPolicies(dp, nbSnap) {
		pol, ok := nbSnap.Policies[polID]
		if !ok {
			continue
		}
		switch pol.Action {
		case "reroute":
			out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInPolicy, Priority: pol.Priority, Match: pol.Match, Actions: fmt.Sprintf("reg0 = %s; next;", pol.Nexthop), Hint: string(pol.UUID)})
		case "drop":
			out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInPolicy, Priority: pol.Priority, Match: pol.Match, Actions: "drop;", Hint: string(pol.UUID)})
		default:
			out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInPolicy, Priority: pol.Priority, Match: pol.Match, Actions: "next;", Hint: string(pol.UUID)})
		}
	}

	// ARP-resolve short-circuit for directly-connected router-to-router
	// peers: the peer's MAC is known at build time, no mac-binding lookup
	// needed.
	for _, p := range ports {
		if p.Kind != model.PortLRP || p.Addresses.MAC == nil {
			continue
		}
		peer := arena.PeerOf(p)
		if peer == nil || peer.Kind != model.PortLRP || peer.Addresses.MAC == nil {
			continue
		}
		m := fmt.Sprintf("outport == %q && reg0 == %s", p.JSONName, firstAddr(peer))
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInArpResolve, Priority: 100, Match: m, Actions: fmt.Sprintf("eth.dst = %s; next;", peer.Addresses.MAC)})
	}
}

// resolveOutputPort finds the LRP a static route sends through: the
// explicit output_port if set, else whichever port's connected network
// contains the next hop (spec §4.8: "output-port can be explicit or
// inferred").
func resolveOutputPort(arena *model.Arena, ports []*model.Port, r *nb.StaticRoute) *model.Port {
	if r.OutputPort != "" {
		if p, ok := arena.Ports[r.OutputPort]; ok {
			return p
		}
		return nil
	}
	nh := net.ParseIP(r.Nexthop)
	if nh == nil {
		return nil
	}
	for _, p := range ports {
		for _, n := range p.Networks {
			if n.Contains(nh) {
				return p
			}
		}
	}
	return nil
}

func firstAddr(p *model.Port) string {
	if len(p.Networks) > 0 {
		return p.Networks[0].IP.String()
	}
	return "0.0.0.0"
}

func prefixLen(n *net.IPNet) int {
	ones, _ := n.Mask.Size()
	return ones
}

func routerStaticRoutes(dp *model.Datapath, nbSnap *nb.Snapshot) []nb.UUID {
	if lr := routerByName(dp, nbSnap); lr != nil {
		return lr.StaticRoutes
	}
	return nil
}

func routerPolicies(dp *model.Datapath, nbSnap *nb.Snapshot) []nb.UUID {
	if lr := routerByName(dp, nbSnap); lr != nil {
		return lr.Policies
	}
	return nil
}

// genPktLenAndGwRedirect covers LR_IN_CHK_PKT_LEN, LR_IN_LARGER_PKTS,
// LR_IN_GW_REDIRECT, LR_IN_ARP_REQUEST: oversize-packet fragmentation
// handling and redirecting gateway-bound traffic to the chassis hosting
// the distributed gateway port's redirect port (spec §4.8).
func genPktLenAndGwRedirect(dp *model.Datapath, ports []*model.Port, out *flows.Set) {
	dpID := datapathID(dp)
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInCheckPktLen, Priority: 0, Match: "1", Actions: "next;"})
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInLargerPkts, Priority: 0, Match: "1", Actions: "next;"})

	gwMTU := routerGatewayMTU(dp, ports)
	if dp.Router.RedirectPortName != "" && gwMTU > 0 {
		out.Add(flows.Flow{
			Datapath: dpID, Stage: flows.LRInCheckPktLen, Priority: 50,
			Match:   fmt.Sprintf("outport == %q", dp.Router.RedirectPortName),
			Actions: fmt.Sprintf("%s = check_pkt_larger(%d); next;", types.RegbitPktLarger, gwMTU),
		})
		out.Add(flows.Flow{
			Datapath: dpID, Stage: flows.LRInLargerPkts, Priority: 50,
			Match:   fmt.Sprintf("%s == 1", types.RegbitPktLarger),
			Actions: fmt.Sprintf("icmp4 { icmp4.type = 3; icmp4.code = 4; icmp4.frag_mtu = %d; next(pipeline=ingress,table=0); %s = 1; };", gwMTU-18, types.RegbitEgressLoopback),
		})
	}

	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInGatewayRedirect, Priority: 0, Match: "1", Actions: "next;"})
	if dp.Router.RedirectPortName != "" {
		m := fmt.Sprintf("outport == %q && eth.dst == 00:00:00:00:00:00", dp.Router.DGWPortName)
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInGatewayRedirect, Priority: 150, Match: m, Actions: fmt.Sprintf("outport = %q; next;", dp.Router.RedirectPortName)})

		m = fmt.Sprintf("outport == %q && %s == 0", dp.Router.DGWPortName, types.RegbitNATRedirect)
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInGatewayRedirect, Priority: 50, Match: m, Actions: fmt.Sprintf("outport = %q; next;", dp.Router.RedirectPortName)})
	}

	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LRInArpRequest, Priority: 0, Match: "1", Actions: "drop;"})
	out.Add(flows.Flow{
		Datapath: dpID, Stage: flows.LRInArpRequest, Priority: 100,
		Match:   "eth.dst == 00:00:00:00:00:00 && ip4",
		Actions: "arp { eth.dst = ff:ff:ff:ff:ff:ff; arp.spa = reg1; arp.tpa = reg0; arp.op = 1; output; };",
	})
	out.Add(flows.Flow{
		Datapath: dpID, Stage: flows.LRInArpRequest, Priority: 90,
		Match: "eth.dst == 00:00:00:00:00:00 && ip6",
		Actions: "nd_ns { eth.dst = 33:33:ff:00:00:00 | (xxreg0[0..23]); " +
			"ip6.dst = ff02::1:ff00:0 | (xxreg0[0..23]); nd.target = xxreg0; output; };",
	})
}

// routerGatewayMTU reads options:gateway_mtu off the distributed gateway
// port, skipping the check when unset (spec §4.8 "Packet-length check").
func routerGatewayMTU(dp *model.Datapath, ports []*model.Port) int {
	for _, p := range ports {
		if p.Name != dp.Router.DGWPortName {
			continue
		}
		v, ok := p.Options["gateway_mtu"]
		if !ok {
			return 0
		}
		var mtu int
		if _, err := fmt.Sscanf(v, "%d", &mtu); err == nil {
			return mtu
		}
	}
	return 0
}

// genEgress covers LR_OUT_UNDNAT/SNAT (wired in genIPInputAndNAT),
// LR_OUT_EGR_LOOP, LR_OUT_DELIVERY: recirculation for oversize/cross-NAT
// packets and final per-port output, rewriting eth.src for multicast and
// skipping the distributed gateway port once it has a redirect port (spec
// §4.8 "Delivery").
func genEgress(dp *model.Datapath, ports []*model.Port, out *flows.Set) {
	dpID := datapathID(dp)
	out.Add(flows.Flow{Datapath: dpID, Stage: flows.LROutEgrLoop, Priority: 0, Match: "1", Actions: "next;"})
	out.Add(flows.Flow{
		Datapath: dpID, Stage: flows.LROutEgrLoop, Priority: 100,
		Match:   fmt.Sprintf("%s == 1", types.RegbitEgressLoopback),
		Actions: fmt.Sprintf("outport = inport; inport = \"\"; flags.loopback = 1; %s = 0; next(pipeline=ingress,table=0);", types.RegbitEgressLoopback),
	})

	for _, p := range ports {
		if !p.Enabled {
			continue
		}
		if p.Name == dp.Router.DGWPortName && dp.Router.RedirectPortName != "" {
			continue
		}
		if p.Addresses.MAC != nil {
			out.Add(flows.Flow{
				Datapath: dpID, Stage: flows.LROutDelivery, Priority: 110,
				Match:   fmt.Sprintf("outport == %q && eth.mcast", p.JSONName),
				Actions: fmt.Sprintf("eth.src = %s; output;", p.Addresses.MAC),
			})
		}
		out.Add(flows.Flow{Datapath: dpID, Stage: flows.LROutDelivery, Priority: 100, Match: fmt.Sprintf("outport == %q", p.JSONName), Actions: "output;"})
	}
}
