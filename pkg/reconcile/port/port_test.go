package port

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubeek/ovn/pkg/allocator/ipam"
	"github.com/cubeek/ovn/pkg/allocator/mac"
	"github.com/cubeek/ovn/pkg/model"
	"github.com/cubeek/ovn/pkg/nb"
	"github.com/cubeek/ovn/pkg/sb"
)

func newMACSet() *mac.Set { return mac.NewSet(mac.Prefix{0x02, 0x00, 0x00}) }

func TestReconcileInsertsNewSwitchPort(t *testing.T) {
	arena := model.NewArena()
	dp := &model.Datapath{ID: "dp1", Kind: model.DatapathSwitch, Name: "sw1", Switch: &model.SwitchData{}}
	arena.AddDatapath(dp)

	nbSnap := &nb.Snapshot{
		Switches: []*nb.LogicalSwitch{{Name: "sw1", Ports: []nb.UUID{"p1"}}},
		SwitchPorts: map[nb.UUID]*nb.LogicalSwitchPort{
			"p1": {UUID: "p1", Name: "lsp1"},
		},
	}
	sbSnap := sb.NewSnapshot()

	res := Reconcile(nbSnap, sbSnap, arena, newMACSet())

	require.Len(t, res.Ops, 1)
	assert.Equal(t, sb.OpInsert, res.Ops[0].Kind)
	p := arena.Ports["lsp1"]
	require.NotNil(t, p)
	assert.NotZero(t, p.TunnelKey)
}

func TestReconcileResolvesRouterTypePeering(t *testing.T) {
	arena := model.NewArena()
	sw := &model.Datapath{ID: "sw1", Kind: model.DatapathSwitch, Name: "sw1", Switch: &model.SwitchData{}}
	lr := &model.Datapath{ID: "lr1", Kind: model.DatapathRouter, Name: "lr1", Router: &model.RouterData{RouterGroup: -1}}
	arena.AddDatapath(sw)
	arena.AddDatapath(lr)

	nbSnap := &nb.Snapshot{
		Switches: []*nb.LogicalSwitch{{Name: "sw1", Ports: []nb.UUID{"p1"}}},
		Routers:  []*nb.LogicalRouter{{Name: "lr1", Ports: []nb.UUID{"rp1"}}},
		SwitchPorts: map[nb.UUID]*nb.LogicalSwitchPort{
			"p1": {UUID: "p1", Name: "lsp1", Type: "router", Options: map[string]string{"router-port": "rp1"}},
		},
		RouterPorts: map[nb.UUID]*nb.LogicalRouterPort{
			"rp1": {UUID: "rp1", Name: "rp1", MAC: "0a:58:0a:00:00:01", Networks: []string{"10.0.0.1/24"}},
		},
	}
	sbSnap := sb.NewSnapshot()

	Reconcile(nbSnap, sbSnap, arena, newMACSet())

	lsp := arena.Ports["lsp1"]
	lrp := arena.Ports["rp1"]
	require.NotNil(t, lsp)
	require.NotNil(t, lrp)
	assert.Equal(t, "rp1", lsp.Peer)
	assert.Equal(t, "lsp1", lrp.Peer)
}

func TestSynthesizeRedirectPortsCreatesDerivedPort(t *testing.T) {
	arena := model.NewArena()
	lr := &model.Datapath{ID: "lr1", Kind: model.DatapathRouter, Name: "lr1", Router: &model.RouterData{RouterGroup: -1}}
	arena.AddDatapath(lr)

	nbSnap := &nb.Snapshot{
		Routers: []*nb.LogicalRouter{{Name: "lr1", Ports: []nb.UUID{"rp1"}}},
		RouterPorts: map[nb.UUID]*nb.LogicalRouterPort{
			"rp1": {UUID: "rp1", Name: "rp1", MAC: "0a:58:0a:00:00:01", Options: map[string]string{"redirect-chassis": "chassis-1"}},
		},
	}
	sbSnap := sb.NewSnapshot()

	Reconcile(nbSnap, sbSnap, arena, newMACSet())

	require.NotNil(t, arena.Ports["cr-rp1"])
	assert.True(t, arena.Ports["cr-rp1"].Derived)
	assert.Equal(t, "rp1", lr.Router.DGWPortName)
	assert.Equal(t, "cr-rp1", lr.Router.RedirectPortName)
}

func TestRunIPAMReservesStaticAddressImmediately(t *testing.T) {
	arena := model.NewArena()
	_, subnet, _ := net.ParseCIDR("10.0.0.0/24")
	sw, err := ipam.NewSwitch(subnet)
	require.NoError(t, err)
	dp := &model.Datapath{ID: "sw1", Kind: model.DatapathSwitch, Name: "sw1", Switch: &model.SwitchData{IPAM: sw, Subnet: subnet}}
	arena.AddDatapath(dp)
	arena.AddPort(&model.Port{Name: "lsp1", Datapath: dp.ID, Kind: model.PortLSP})

	nbSnap := &nb.Snapshot{
		SwitchPorts: map[nb.UUID]*nb.LogicalSwitchPort{
			"p1": {UUID: "p1", Name: "lsp1", Addresses: []string{"0a:58:0a:00:00:05 10.0.0.5"}},
		},
	}

	runIPAM(nbSnap, arena, newMACSet())

	p := arena.Ports["lsp1"]
	require.NotNil(t, p.Addresses.MAC)
	require.Len(t, p.Addresses.IPv4, 1)
	assert.Equal(t, "10.0.0.5", p.Addresses.IPv4[0].String())
}

func TestRunIPAMAllocatesDynamicMACAndIPv4(t *testing.T) {
	arena := model.NewArena()
	_, subnet, _ := net.ParseCIDR("10.0.0.0/24")
	sw, err := ipam.NewSwitch(subnet)
	require.NoError(t, err)
	dp := &model.Datapath{ID: "sw1", Kind: model.DatapathSwitch, Name: "sw1", Switch: &model.SwitchData{IPAM: sw, Subnet: subnet}}
	arena.AddDatapath(dp)
	arena.AddPort(&model.Port{Name: "lsp1", Datapath: dp.ID, Kind: model.PortLSP})

	nbSnap := &nb.Snapshot{
		SwitchPorts: map[nb.UUID]*nb.LogicalSwitchPort{
			"p1": {UUID: "p1", Name: "lsp1", Addresses: []string{"dynamic"}},
		},
	}

	runIPAM(nbSnap, arena, newMACSet())

	p := arena.Ports["lsp1"]
	require.NotNil(t, p.Addresses.MAC)
	require.Len(t, p.Addresses.IPv4, 1)
	assert.NotEmpty(t, nbSnap.SwitchPorts["p1"].DynamicAddresses)
}

func TestRunIPAMSkipsPortsWithAResolvedPeer(t *testing.T) {
	arena := model.NewArena()
	_, subnet, _ := net.ParseCIDR("10.0.0.0/24")
	sw, err := ipam.NewSwitch(subnet)
	require.NoError(t, err)
	dp := &model.Datapath{ID: "sw1", Kind: model.DatapathSwitch, Name: "sw1", Switch: &model.SwitchData{IPAM: sw, Subnet: subnet}}
	arena.AddDatapath(dp)
	arena.AddPort(&model.Port{Name: "lsp1", Datapath: dp.ID, Kind: model.PortLSP, Peer: "rp1"})

	nbSnap := &nb.Snapshot{
		SwitchPorts: map[nb.UUID]*nb.LogicalSwitchPort{
			"p1": {UUID: "p1", Name: "lsp1", Addresses: []string{"dynamic"}},
		},
	}

	runIPAM(nbSnap, arena, newMACSet())

	assert.Nil(t, arena.Ports["lsp1"].Addresses.MAC)
}
