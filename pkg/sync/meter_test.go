package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubeek/ovn/pkg/nb"
	"github.com/cubeek/ovn/pkg/sb"
)

func TestMetersInsertsAndUpdatesOnBandChange(t *testing.T) {
	nbSnap := &nb.Snapshot{
		Meters: map[nb.UUID]*nb.Meter{
			"m1": {Name: "meter1", Bands: []nb.MeterBand{{Rate: 100, Burst: 10, Action: "drop"}}},
		},
	}
	sbSnap := sb.NewSnapshot()

	ops := Meters(nbSnap, sbSnap)
	require.Len(t, ops, 1)
	assert.Equal(t, sb.OpInsert, ops[0].Kind)

	nbSnap.Meters["m1"].Bands[0].Rate = 200
	ops = Meters(nbSnap, sbSnap)
	require.Len(t, ops, 1)
	assert.Equal(t, sb.OpUpdate, ops[0].Kind)
}

func TestMetersDeletesOrphanedMeter(t *testing.T) {
	nbSnap := &nb.Snapshot{
		Meters: map[nb.UUID]*nb.Meter{
			"m1": {Name: "meter1", Bands: []nb.MeterBand{{Rate: 100, Burst: 10, Action: "drop"}}},
		},
	}
	sbSnap := sb.NewSnapshot()
	Meters(nbSnap, sbSnap)

	delete(nbSnap.Meters, "m1")
	ops := Meters(nbSnap, sbSnap)

	require.Len(t, ops, 1)
	assert.Equal(t, sb.OpDelete, ops[0].Kind)
}
