package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubeek/ovn/pkg/model"
	"github.com/cubeek/ovn/pkg/nb"
	"github.com/cubeek/ovn/pkg/sb"
)

func TestPortGroupsOnlyIncludesResolvedArenaPorts(t *testing.T) {
	arena := model.NewArena()
	arena.AddPort(&model.Port{Name: "lsp1"})

	nbSnap := &nb.Snapshot{
		PortGroups: map[nb.UUID]*nb.PortGroup{
			"pg1": {Name: "pg1", Ports: []nb.UUID{"u1", "u2"}},
		},
		SwitchPorts: map[nb.UUID]*nb.LogicalSwitchPort{
			"u1": {Name: "lsp1"},
			"u2": {Name: "lsp-unresolved"},
		},
	}
	sbSnap := sb.NewSnapshot()

	ops := PortGroups(nbSnap, arena, sbSnap)

	require.Len(t, ops, 1)
	assert.Equal(t, sb.OpInsert, ops[0].Kind)
	row := sbSnap.PortGroups[ops[0].RowUUID]
	require.NotNil(t, row)
	assert.Equal(t, []string{"lsp1"}, row.Ports)
}

func TestPortGroupsDeletesOrphanedGroup(t *testing.T) {
	arena := model.NewArena()
	nbSnap := &nb.Snapshot{
		PortGroups:  map[nb.UUID]*nb.PortGroup{"pg1": {Name: "pg1"}},
		SwitchPorts: map[nb.UUID]*nb.LogicalSwitchPort{},
	}
	sbSnap := sb.NewSnapshot()
	PortGroups(nbSnap, arena, sbSnap)

	delete(nbSnap.PortGroups, "pg1")
	ops := PortGroups(nbSnap, arena, sbSnap)

	require.Len(t, ops, 1)
	assert.Equal(t, sb.OpDelete, ops[0].Kind)
	assert.Empty(t, sbSnap.PortGroups)
}
