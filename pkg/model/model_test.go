package model

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cubeek/ovn/pkg/nb"
)

func TestArenaAddDatapathIndexesByIDAndName(t *testing.T) {
	a := NewArena()
	dp := &Datapath{ID: "dp1", Name: "sw1", Kind: DatapathSwitch}

	a.AddDatapath(dp)

	assert.Same(t, dp, a.Datapaths["dp1"])
	assert.Same(t, dp, a.DatapathByName["sw1"])
}

func TestPeerOfResolvesByNameAndNilsOnUnresolved(t *testing.T) {
	a := NewArena()
	a.AddPort(&Port{Name: "p1", Peer: "p2"})
	a.AddPort(&Port{Name: "p2", Peer: "p1"})

	assert.Equal(t, "p2", a.PeerOf(a.Ports["p1"]).Name)
	assert.Nil(t, a.PeerOf(&Port{Name: "lonely"}))
}

func TestDatapathOfResolvesOwningDatapath(t *testing.T) {
	a := NewArena()
	dp := &Datapath{ID: nb.UUID("dp1"), Name: "sw1"}
	a.AddDatapath(dp)
	p := &Port{Name: "p1", Datapath: dp.ID}
	a.AddPort(p)

	assert.Same(t, dp, a.DatapathOf(p))
}

func TestPortsOnDatapathReturnsNameSortedSubset(t *testing.T) {
	a := NewArena()
	dp1 := &Datapath{ID: nb.UUID("dp1"), Name: "sw1"}
	dp2 := &Datapath{ID: nb.UUID("dp2"), Name: "sw2"}
	a.AddDatapath(dp1)
	a.AddDatapath(dp2)
	a.AddPort(&Port{Name: "zeta", Datapath: dp1.ID})
	a.AddPort(&Port{Name: "alpha", Datapath: dp1.ID})
	a.AddPort(&Port{Name: "other", Datapath: dp2.ID})

	ports := a.PortsOnDatapath(dp1)

	require := assert.New(t)
	require.Len(ports, 2)
	require.Equal("alpha", ports[0].Name)
	require.Equal("zeta", ports[1].Name)
}

func TestPortsOnDatapathEmptyWhenNoneMatch(t *testing.T) {
	a := NewArena()
	dp := &Datapath{ID: nb.UUID("dp1"), Name: "sw1"}
	a.AddDatapath(dp)

	assert.Empty(t, a.PortsOnDatapath(dp))
}
