package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubeek/ovn/pkg/model"
	"github.com/cubeek/ovn/pkg/nb"
	"github.com/cubeek/ovn/pkg/sb"
)

func TestIPMulticastConfigsInsertsAndTracksClampedState(t *testing.T) {
	arena := model.NewArena()
	arena.AddDatapath(&model.Datapath{
		ID: nb.UUID("dp1"), Kind: model.DatapathSwitch, Name: "sw1",
		Switch: &model.SwitchData{Mcast: model.MulticastSwitchState{Snoop: true, Querier: true, TableSize: 2048}},
	})
	sbSnap := sb.NewSnapshot()

	ops := IPMulticastConfigs(arena, sbSnap)

	require.Len(t, ops, 1)
	assert.Equal(t, sb.OpInsert, ops[0].Kind)
	row := sbSnap.IPMulticastConfigs[ops[0].RowUUID]
	require.NotNil(t, row)
	assert.True(t, row.Enabled)
	assert.Equal(t, 2048, row.TableSize)
}

func TestIPMulticastConfigsUpdatesOnChangeOnly(t *testing.T) {
	arena := model.NewArena()
	dp := &model.Datapath{ID: nb.UUID("dp1"), Kind: model.DatapathSwitch, Name: "sw1", Switch: &model.SwitchData{}}
	arena.AddDatapath(dp)
	sbSnap := sb.NewSnapshot()
	IPMulticastConfigs(arena, sbSnap)

	ops := IPMulticastConfigs(arena, sbSnap)
	assert.Empty(t, ops)

	dp.Switch.Mcast.Querier = true
	ops = IPMulticastConfigs(arena, sbSnap)
	require.Len(t, ops, 1)
	assert.Equal(t, sb.OpUpdate, ops[0].Kind)
}

func TestIPMulticastConfigsDeletesWhenDatapathGone(t *testing.T) {
	arena := model.NewArena()
	arena.AddDatapath(&model.Datapath{ID: nb.UUID("dp1"), Kind: model.DatapathSwitch, Name: "sw1", Switch: &model.SwitchData{}})
	sbSnap := sb.NewSnapshot()
	IPMulticastConfigs(arena, sbSnap)

	empty := model.NewArena()
	ops := IPMulticastConfigs(empty, sbSnap)

	require.Len(t, ops, 1)
	assert.Equal(t, sb.OpDelete, ops[0].Kind)
	assert.Empty(t, sbSnap.IPMulticastConfigs)
}
