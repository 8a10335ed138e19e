package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubeek/ovn/pkg/flows"
	"github.com/cubeek/ovn/pkg/model"
	"github.com/cubeek/ovn/pkg/nb"
)

func TestQoSEmitsMarkFlowForDSCPRule(t *testing.T) {
	arena := model.NewArena()
	arena.AddDatapath(&model.Datapath{ID: nb.UUID("dp1"), Kind: model.DatapathSwitch, Name: "sw1", Switch: &model.SwitchData{}})

	dscp := 10
	nbSnap := &nb.Snapshot{
		Switches: []*nb.LogicalSwitch{{Name: "sw1", QOSRules: []nb.UUID{"q1"}}},
		QOSRules: map[nb.UUID]*nb.QOS{
			"q1": {UUID: "q1", Priority: 100, Direction: "to-lport", Match: "ip4", DSCP: &dscp},
		},
	}
	out := flows.NewSet()

	QoS(nbSnap, arena, out)

	var found bool
	for _, f := range out.All() {
		if f.Stage == flows.LSInQoSMark {
			assert.Contains(t, f.Actions, "ip.dscp = 10")
			found = true
		}
	}
	assert.True(t, found)
}

func TestQoSEmitsMeterFlowForRateRuleOnEgressDirection(t *testing.T) {
	arena := model.NewArena()
	arena.AddDatapath(&model.Datapath{ID: nb.UUID("dp1"), Kind: model.DatapathSwitch, Name: "sw1", Switch: &model.SwitchData{}})

	nbSnap := &nb.Snapshot{
		Switches: []*nb.LogicalSwitch{{Name: "sw1", QOSRules: []nb.UUID{"q1"}}},
		QOSRules: map[nb.UUID]*nb.QOS{
			"q1": {UUID: "q1", Priority: 100, Direction: "from-lport", Match: "ip4", Rate: 1000, Burst: 100},
		},
	}
	out := flows.NewSet()

	QoS(nbSnap, arena, out)

	var found bool
	for _, f := range out.All() {
		if f.Stage == flows.LSOutQoSMeter {
			assert.Contains(t, f.Actions, "set_queue(rate=1000,burst=100)")
			found = true
		}
	}
	assert.True(t, found)
}

func TestQoSSkipsRouterDatapaths(t *testing.T) {
	arena := model.NewArena()
	arena.AddDatapath(&model.Datapath{ID: nb.UUID("lr1"), Kind: model.DatapathRouter, Name: "lr1", Router: &model.RouterData{}})
	nbSnap := &nb.Snapshot{Switches: []*nb.LogicalSwitch{}, QOSRules: map[nb.UUID]*nb.QOS{}}
	out := flows.NewSet()

	QoS(nbSnap, arena, out)

	require.Equal(t, 0, out.Len())
}
