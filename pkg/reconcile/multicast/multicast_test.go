package multicast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubeek/ovn/pkg/allocator/tunnelkey"
	"github.com/cubeek/ovn/pkg/model"
	"github.com/cubeek/ovn/pkg/nb"
	"github.com/cubeek/ovn/pkg/sb"
	"github.com/cubeek/ovn/pkg/types"
)

func TestClampSwitchMulticastConfigDefaultsQueryIntervalToHalfIdle(t *testing.T) {
	sw := &model.SwitchData{}
	ClampSwitchMulticastConfig(sw, 100, 0, false)
	assert.Equal(t, 100, sw.Mcast.IdleTimeout)
	assert.Equal(t, 50, sw.Mcast.QueryInterval)
	assert.Equal(t, types.MulticastDefaultTableSize, sw.Mcast.TableSize)
}

func TestClampSwitchMulticastConfigEnforcesMinimaAndMaxima(t *testing.T) {
	sw := &model.SwitchData{}
	ClampSwitchMulticastConfig(sw, 1, 1, true)
	assert.Equal(t, int(types.MulticastMinIdleTimeout.Seconds()), sw.Mcast.IdleTimeout)
	assert.Equal(t, int(types.MulticastMinQueryInterval.Seconds()), sw.Mcast.QueryInterval)

	sw2 := &model.SwitchData{}
	ClampSwitchMulticastConfig(sw2, 100000, 100000, true)
	assert.Equal(t, int(types.MulticastMaxIdleTimeout.Seconds()), sw2.Mcast.IdleTimeout)
	assert.Equal(t, int(types.MulticastMaxQueryInterval.Seconds()), sw2.Mcast.QueryInterval)
}

func TestNormalizeGroupMapsIPv4ToIPv6Mapped(t *testing.T) {
	assert.Equal(t, "::ffff:239.1.1.1", NormalizeGroup("239.1.1.1"))
	assert.Equal(t, "ff0e::1", NormalizeGroup("ff0e::1"))
}

func arenaWithSwitchAndIGMP() (*model.Arena, *sb.Snapshot) {
	arena := model.NewArena()
	dp := &model.Datapath{ID: "sw1", Kind: model.DatapathSwitch, Name: "sw1", Switch: &model.SwitchData{}}
	arena.AddDatapath(dp)
	arena.AddPort(&model.Port{Name: "lsp1", Datapath: dp.ID, Kind: model.PortLSP})

	sbSnap := sb.NewSnapshot()
	sbSnap.Datapaths["dpb1"] = &sb.DatapathBinding{UUID: "dpb1", ExternalIDs: map[string]string{"logical-switch": "sw1"}}
	sbSnap.IGMPGroups["igmp1"] = &sb.IGMPGroup{UUID: "igmp1", Address: "239.1.1.1", Datapath: "dpb1", Ports: []string{"lsp1"}}
	return arena, sbSnap
}

func TestBuildAggregatesFoldsIGMPGroupIntoMulticastGroup(t *testing.T) {
	arena, sbSnap := arenaWithSwitchAndIGMP()
	pools := map[nb.UUID]*tunnelkey.Pool{}

	res := BuildAggregates(arena, sbSnap, pools)

	require.NotEmpty(t, res.Ops)
	var found *sb.MulticastGroup
	for _, row := range sbSnap.MulticastGroups {
		if row.Name == "::ffff:239.1.1.1" {
			found = row
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, []string{"lsp1"}, found.Ports)
	assert.NotZero(t, found.Key)
}

func TestBuildAggregatesExcludesFloodPorts(t *testing.T) {
	arena, sbSnap := arenaWithSwitchAndIGMP()
	arena.Ports["lsp1"].Options = map[string]string{"mcast_flood": "true"}
	pools := map[nb.UUID]*tunnelkey.Pool{}

	BuildAggregates(arena, sbSnap, pools)

	for _, row := range sbSnap.MulticastGroups {
		if row.Name == "::ffff:239.1.1.1" {
			t.Fatalf("expected no learnt aggregate once the only member port floods")
		}
	}
}

func TestBuildAggregatesInstallsReservedGroupsOnSwitch(t *testing.T) {
	arena, sbSnap := arenaWithSwitchAndIGMP()
	pools := map[nb.UUID]*tunnelkey.Pool{}

	BuildAggregates(arena, sbSnap, pools)

	floodID := "u-mc-sw1-" + types.MulticastFloodName
	row, ok := sbSnap.MulticastGroups[floodID]
	require.True(t, ok)
	assert.Equal(t, []string{"lsp1"}, row.Ports)
	assert.Equal(t, types.MulticastFloodKey, row.Key)
}

func TestBuildAggregatesMirrorsRelayedGroupOntoRouter(t *testing.T) {
	arena := model.NewArena()
	sw := &model.Datapath{ID: "sw1", Kind: model.DatapathSwitch, Name: "sw1", Switch: &model.SwitchData{}}
	lr := &model.Datapath{ID: "lr1", Kind: model.DatapathRouter, Name: "lr1", Router: &model.RouterData{Mcast: model.MulticastRouterState{Relay: true}}}
	arena.AddDatapath(sw)
	arena.AddDatapath(lr)
	arena.AddPort(&model.Port{Name: "lsp1", Datapath: sw.ID, Kind: model.PortLSP, Peer: "rp1"})
	arena.AddPort(&model.Port{Name: "rp1", Datapath: lr.ID, Kind: model.PortLRP, Peer: "lsp1"})

	sbSnap := sb.NewSnapshot()
	sbSnap.Datapaths["dpb1"] = &sb.DatapathBinding{UUID: "dpb1", ExternalIDs: map[string]string{"logical-switch": "sw1"}}
	sbSnap.IGMPGroups["igmp1"] = &sb.IGMPGroup{UUID: "igmp1", Address: "239.1.1.1", Datapath: "dpb1", Ports: []string{"lsp1"}}

	pools := map[nb.UUID]*tunnelkey.Pool{}
	BuildAggregates(arena, sbSnap, pools)

	var mirrored *sb.MulticastGroup
	for _, row := range sbSnap.MulticastGroups {
		if row.Datapath == string(lr.ID) && row.Name == "::ffff:239.1.1.1" {
			mirrored = row
		}
	}
	require.NotNil(t, mirrored)
	assert.Equal(t, []string{"rp1"}, mirrored.Ports)
}
