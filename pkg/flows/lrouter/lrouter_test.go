package lrouter

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubeek/ovn/pkg/flows"
	"github.com/cubeek/ovn/pkg/model"
	"github.com/cubeek/ovn/pkg/nb"
)

func buildRouterArena() (*model.Arena, *nb.Snapshot, *model.Datapath) {
	arena := model.NewArena()

	dp := &model.Datapath{
		ID:       nb.UUID("lr1"),
		Kind:     model.DatapathRouter,
		Name:     "lr1",
		JSONName: "lr1",
		Router:   &model.RouterData{RouterGroup: -1},
	}
	arena.AddDatapath(dp)

	mac, _ := net.ParseMAC("0a:58:64:40:00:01")
	ip1, net1, _ := net.ParseCIDR("100.64.0.1/24")
	net1.IP = ip1
	port := &model.Port{
		ID:       nb.UUID("rp1"),
		Name:     "rp1",
		JSONName: "rp1",
		Datapath: dp.ID,
		Kind:     model.PortLRP,
		Enabled:  true,
		Addresses: model.PortAddresses{
			MAC: mac,
		},
		Networks: []*net.IPNet{net1},
	}
	arena.AddPort(port)

	nbSnap := &nb.Snapshot{
		Routers: []*nb.LogicalRouter{
			{
				Name:         "lr1",
				StaticRoutes: []nb.UUID{"route1"},
				Policies:     []nb.UUID{"pol1"},
				NAT:          []nb.UUID{"nat1"},
			},
		},
		StaticRoutes: map[nb.UUID]*nb.StaticRoute{
			"route1": {UUID: "route1", IPPrefix: "10.0.0.0/24", Nexthop: "100.64.0.2", OutputPort: "rp1"},
		},
		Policies: map[nb.UUID]*nb.RoutingPolicy{
			"pol1": {UUID: "pol1", Priority: 1000, Match: "ip4.src == 10.0.0.0/24", Action: "reroute", Nexthop: "100.64.0.3"},
		},
		NATs: map[nb.UUID]*nb.NAT{
			"nat1": {UUID: "nat1", Type: nb.NATDnatAndSnat, ExternalIP: "1.2.3.4", LogicalIP: "10.0.0.5"},
		},
	}

	return arena, nbSnap, dp
}

func flowsAtStage(out *flows.Set, stage flows.Stage) []flows.Flow {
	var matched []flows.Flow
	for _, f := range out.All() {
		if f.Stage == stage {
			matched = append(matched, f)
		}
	}
	return matched
}

func TestGenerateAdmissionDropsByDefaultAndAllowsOwnMAC(t *testing.T) {
	arena, nbSnap, _ := buildRouterArena()
	out := flows.NewSet()

	Generate(arena, nbSnap, out)

	adm := flowsAtStage(out, flows.LRInAdmission)
	var drop, allow bool
	for _, f := range adm {
		if f.Priority == 0 && f.Actions == "drop;" {
			drop = true
		}
		if f.Priority == 50 && f.Actions == "next;" {
			allow = true
		}
	}
	assert.True(t, drop)
	assert.True(t, allow)
}

func TestGenerateStaticRouteProducesRoutingFlow(t *testing.T) {
	arena, nbSnap, _ := buildRouterArena()
	out := flows.NewSet()

	Generate(arena, nbSnap, out)

	var route *flows.Flow
	for _, f := range flowsAtStage(out, flows.LRInIPRouting) {
		if f.Hint == "route1" {
			fcopy := f
			route = &fcopy
		}
	}
	require.NotNil(t, route)
	assert.Contains(t, route.Actions, "reg0 = 100.64.0.2")
	assert.Contains(t, route.Actions, "reg1 = 100.64.0.1")
	assert.Contains(t, route.Actions, `outport = "rp1"`)
}

func TestGenerateConnectedSubnetRoutingIsPriorityOrderedByPrefixLength(t *testing.T) {
	arena, nbSnap, _ := buildRouterArena()
	out := flows.NewSet()

	Generate(arena, nbSnap, out)

	var connected *flows.Flow
	for _, f := range flowsAtStage(out, flows.LRInIPRouting) {
		if f.Match == "ip4.dst == 100.64.0.0/24" {
			fcopy := f
			connected = &fcopy
		}
	}
	require.NotNil(t, connected)
	assert.Equal(t, 49, connected.Priority)
}

func TestGenerateRoutingPolicyReroute(t *testing.T) {
	arena, nbSnap, _ := buildRouterArena()
	out := flows.NewSet()

	Generate(arena, nbSnap, out)

	pols := flowsAtStage(out, flows.LRInPolicy)
	var found bool
	for _, f := range pols {
		if f.Priority == 1000 {
			assert.Contains(t, f.Actions, "reg0 = 100.64.0.3")
			found = true
		}
	}
	assert.True(t, found)
}

func TestGenerateDNATAndSNATFlowsFromNAT(t *testing.T) {
	arena, nbSnap, _ := buildRouterArena()
	out := flows.NewSet()

	Generate(arena, nbSnap, out)

	dnat := flowsAtStage(out, flows.LRInDNAT)
	var found bool
	for _, f := range dnat {
		if f.Priority == 100 {
			assert.Contains(t, f.Actions, "ct_dnat(10.0.0.5)")
			found = true
		}
	}
	assert.True(t, found, "expected a DNAT flow translating external IP to logical IP")
}

func TestGenerateGatewayRedirectOnlyWhenRedirectPortSet(t *testing.T) {
	arena, nbSnap, dp := buildRouterArena()
	dp.Router.DGWPortName = "rp1"
	dp.Router.RedirectPortName = "cr-rp1"
	out := flows.NewSet()

	Generate(arena, nbSnap, out)

	var redirect bool
	for _, f := range flowsAtStage(out, flows.LRInGatewayRedirect) {
		if f.Priority == 50 {
			assert.Contains(t, f.Actions, `outport = "cr-rp1"`)
			redirect = true
		}
	}
	assert.True(t, redirect)
}

func TestGenerateMulticastRelayBypassesLPMAndFloodsToStatic(t *testing.T) {
	arena, nbSnap, dp := buildRouterArena()
	dp.Router.Mcast.Relay = true
	dp.Router.Mcast.FloodStatic = true
	out := flows.NewSet()

	Generate(arena, nbSnap, out)

	routing := flowsAtStage(out, flows.LRInIPRouting)
	var relayV4, relayV6, flood bool
	for _, f := range routing {
		switch {
		case f.Priority == 500 && f.Match == "ip4.mcast && ip4.dst == 224.0.0.0/24":
			assert.Contains(t, f.Actions, `outport = "_MC_flood"`)
			relayV4 = true
		case f.Priority == 500 && f.Match == "ip6.mcast && ip6.dst == ff02::/16":
			assert.Contains(t, f.Actions, `outport = "_MC_flood"`)
			relayV6 = true
		case f.Priority == 450:
			assert.Contains(t, f.Actions, `outport = "_MC_static"`)
			flood = true
		}
	}
	assert.True(t, relayV4, "expected a priority-500 IPv4 multicast relay bypass")
	assert.True(t, relayV6, "expected a priority-500 IPv6 multicast relay bypass")
	assert.True(t, flood, "expected a priority-450 flood-to-static flow")
}

func TestGenerateNoMulticastRelayFlowsWhenRelayDisabled(t *testing.T) {
	arena, nbSnap, _ := buildRouterArena()
	out := flows.NewSet()

	Generate(arena, nbSnap, out)

	for _, f := range flowsAtStage(out, flows.LRInIPRouting) {
		assert.NotEqual(t, 500, f.Priority)
		assert.NotEqual(t, 450, f.Priority)
	}
}

func TestGenerateDeliveryOnlyForEnabledPorts(t *testing.T) {
	arena, nbSnap, _ := buildRouterArena()
	out := flows.NewSet()

	Generate(arena, nbSnap, out)

	delivery := flowsAtStage(out, flows.LROutDelivery)
	var plain *flows.Flow
	for i := range delivery {
		if delivery[i].Priority == 100 {
			plain = &delivery[i]
		}
	}
	require.NotNil(t, plain)
	assert.Equal(t, `outport == "rp1"`, plain.Match)
}
