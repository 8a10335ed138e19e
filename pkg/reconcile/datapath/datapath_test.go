package datapath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubeek/ovn/pkg/allocator/tunnelkey"
	"github.com/cubeek/ovn/pkg/model"
	"github.com/cubeek/ovn/pkg/nb"
	"github.com/cubeek/ovn/pkg/sb"
)

func newPool() *tunnelkey.Pool { return tunnelkey.NewPool("test", 1, 1<<24-1) }

func TestReconcileInsertsNewSwitchDatapath(t *testing.T) {
	nbSnap := &nb.Snapshot{Switches: []*nb.LogicalSwitch{{UUID: "ls1", Name: "sw1"}}}
	sbSnap := sb.NewSnapshot()
	arena := model.NewArena()

	res := Reconcile(nbSnap, sbSnap, newPool(), arena)

	require.Len(t, res.Ops, 1)
	assert.Equal(t, sb.OpInsert, res.Ops[0].Kind)
	dp := arena.DatapathByName["sw1"]
	require.NotNil(t, dp)
	assert.Equal(t, model.DatapathSwitch, dp.Kind)
	assert.NotZero(t, dp.TunnelKey)
}

func TestReconcileKeepsStableKeyAcrossCycles(t *testing.T) {
	nbSnap := &nb.Snapshot{Switches: []*nb.LogicalSwitch{{UUID: "ls1", Name: "sw1"}}}
	sbSnap := sb.NewSnapshot()
	pool := newPool()
	arena := model.NewArena()
	Reconcile(nbSnap, sbSnap, pool, arena)
	firstKey := arena.DatapathByName["sw1"].TunnelKey

	arena2 := model.NewArena()
	res := Reconcile(nbSnap, sbSnap, pool, arena2)

	assert.Empty(t, res.Ops)
	assert.Equal(t, firstKey, arena2.DatapathByName["sw1"].TunnelKey)
}

func TestReconcileSkipsDisabledRouter(t *testing.T) {
	disabled := false
	nbSnap := &nb.Snapshot{Routers: []*nb.LogicalRouter{{UUID: "lr1", Name: "r1", Enabled: &disabled}}}
	sbSnap := sb.NewSnapshot()
	arena := model.NewArena()

	Reconcile(nbSnap, sbSnap, newPool(), arena)

	assert.Nil(t, arena.DatapathByName["r1"])
}

func TestReconcileDeletesOrphanedSBRow(t *testing.T) {
	nbSnap := &nb.Snapshot{Switches: []*nb.LogicalSwitch{{UUID: "ls1", Name: "sw1"}}}
	sbSnap := sb.NewSnapshot()
	pool := newPool()
	arena := model.NewArena()
	Reconcile(nbSnap, sbSnap, pool, arena)

	nbSnap.Switches = nil
	arena2 := model.NewArena()
	res := Reconcile(nbSnap, sbSnap, pool, arena2)

	require.Len(t, res.Ops, 1)
	assert.Equal(t, sb.OpDelete, res.Ops[0].Kind)
	assert.Empty(t, sbSnap.Datapaths)
}

func TestReconcileSkipsDuplicateNBIdentity(t *testing.T) {
	nbSnap := &nb.Snapshot{Switches: []*nb.LogicalSwitch{
		{UUID: "ls1", Name: "sw1"},
		{UUID: "ls1", Name: "sw1-dup"},
	}}
	sbSnap := sb.NewSnapshot()
	arena := model.NewArena()

	Reconcile(nbSnap, sbSnap, newPool(), arena)

	assert.NotNil(t, arena.DatapathByName["sw1"])
	assert.Nil(t, arena.DatapathByName["sw1-dup"])
}
