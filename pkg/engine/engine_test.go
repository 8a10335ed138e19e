package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubeek/ovn/pkg/leader"
	"github.com/cubeek/ovn/pkg/nb"
	"github.com/cubeek/ovn/pkg/sb"
)

func TestNewEngineHasEmptyMACPrefixUntilFirstCycle(t *testing.T) {
	e := New()
	assert.False(t, e.prefixLoaded)
	assert.NotNil(t, e.Leader)
}

func TestRunCycleInsertsSwitchDatapathAndFlows(t *testing.T) {
	e := New()
	nbSnap := &nb.Snapshot{
		Switches: []*nb.LogicalSwitch{{UUID: "ls1", Name: "sw1"}},
		Global:   nb.Global{},
	}
	sbSnap := sb.NewSnapshot()

	sum, err := e.RunCycle(nbSnap, sbSnap)

	require.NoError(t, err)
	assert.NotEmpty(t, sum.Ops)
	assert.Greater(t, sum.FlowsInserted, 0)
	assert.NotEmpty(t, nbSnap.Global.Options["mac_prefix"])
}

func TestRunCycleIsIdempotentOnSecondCall(t *testing.T) {
	e := New()
	nbSnap := &nb.Snapshot{
		Switches: []*nb.LogicalSwitch{{UUID: "ls1", Name: "sw1"}},
	}
	sbSnap := sb.NewSnapshot()

	_, err := e.RunCycle(nbSnap, sbSnap)
	require.NoError(t, err)

	sum2, err := e.RunCycle(nbSnap, sbSnap)

	require.NoError(t, err)
	assert.Equal(t, 0, sum2.FlowsInserted)
	assert.Equal(t, 0, sum2.FlowsDeleted)
}

func TestEnsureMACPrefixReusesPersistedValue(t *testing.T) {
	e := New()
	nbSnap := &nb.Snapshot{Global: nb.Global{Options: map[string]string{"mac_prefix": "aabbcc"}}}

	e.ensureMACPrefix(nbSnap)

	assert.True(t, e.prefixLoaded)
	assert.Equal(t, [3]byte{0xaa, 0xbb, 0xcc}, [3]byte(e.macPrefix))
}

func TestEnsureMACPrefixOnlyAllocatesOnce(t *testing.T) {
	e := New()
	nbSnap := &nb.Snapshot{Global: nb.Global{}}

	e.ensureMACPrefix(nbSnap)
	first := e.macPrefix
	e.ensureMACPrefix(nbSnap)

	assert.Equal(t, first, e.macPrefix)
}

func TestCopyGlobalRowUpdatesOnDrift(t *testing.T) {
	e := New()
	nbSnap := &nb.Snapshot{Global: nb.Global{NbCfg: 5}}
	sbSnap := sb.NewSnapshot()
	sbSnap.Global.UUID = "u-global"

	ops := e.copyGlobalRow(nbSnap, sbSnap)

	require.Len(t, ops, 1)
	assert.Equal(t, sb.OpUpdate, ops[0].Kind)
	assert.Equal(t, 5, sbSnap.Global.NbCfg)
	assert.Equal(t, 5, nbSnap.Global.SbCfg)
}

func TestCopyGlobalRowNoOpWhenAlreadyMirrored(t *testing.T) {
	e := New()
	nbSnap := &nb.Snapshot{Global: nb.Global{NbCfg: 5}}
	sbSnap := sb.NewSnapshot()
	sbSnap.Global.NbCfg = 5

	ops := e.copyGlobalRow(nbSnap, sbSnap)

	assert.Empty(t, ops)
}

func TestCopyGlobalRowHvCfgTracksMinimumChassisNbCfg(t *testing.T) {
	e := New()
	nbSnap := &nb.Snapshot{Global: nb.Global{NbCfg: 5}}
	sbSnap := sb.NewSnapshot()
	sbSnap.Chassis["c1"] = &sb.Chassis{NbCfg: 5}
	sbSnap.Chassis["c2"] = &sb.Chassis{NbCfg: 2}

	e.copyGlobalRow(nbSnap, sbSnap)

	assert.Equal(t, 2, nbSnap.Global.HvCfg)
}

func TestEqualMapsHandlesNilAndDifferentLengths(t *testing.T) {
	assert.True(t, equalMaps(nil, nil))
	assert.True(t, equalMaps(map[string]string{}, nil))
	assert.False(t, equalMaps(map[string]string{"a": "1"}, map[string]string{"a": "2"}))
	assert.False(t, equalMaps(map[string]string{"a": "1"}, map[string]string{"a": "1", "b": "2"}))
}

func TestRunLoopSkipsCyclesWhileStandby(t *testing.T) {
	e := New()
	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	var fetches atomic.Int32
	fetch := func() (*nb.Snapshot, *sb.Snapshot, error) {
		fetches.Add(1)
		return &nb.Snapshot{}, sb.NewSnapshot(), nil
	}
	commit := func(Summary) error { return nil }

	neverElector := electorFunc(func(ctx context.Context, becomeLeader chan<- bool) {
		<-ctx.Done()
	})

	_ = e.RunLoop(ctx, neverElector, nil, fetch, commit)

	assert.Zero(t, fetches.Load())
}

func TestRunLoopRunsCyclesOnceLeading(t *testing.T) {
	e := New()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var committed atomic.Int32
	fetch := func() (*nb.Snapshot, *sb.Snapshot, error) {
		return &nb.Snapshot{}, sb.NewSnapshot(), nil
	}
	commit := func(Summary) error {
		committed.Add(1)
		return nil
	}

	err := e.RunLoop(ctx, leader.StaticElector{}, nil, fetch, commit)

	assert.Equal(t, context.DeadlineExceeded, err)
	assert.Greater(t, int(committed.Load()), 0)
}

func TestRunLoopSkipsCommitButKeepsFetchingWhilePaused(t *testing.T) {
	e := New()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var fetches, committed atomic.Int32
	fetch := func() (*nb.Snapshot, *sb.Snapshot, error) {
		fetches.Add(1)
		return &nb.Snapshot{}, sb.NewSnapshot(), nil
	}
	commit := func(Summary) error {
		committed.Add(1)
		return nil
	}
	paused := func() bool { return true }

	err := e.RunLoop(ctx, leader.StaticElector{}, paused, fetch, commit)

	assert.Equal(t, context.DeadlineExceeded, err)
	assert.Greater(t, int(fetches.Load()), 0)
	assert.Zero(t, committed.Load())
}

type electorFunc func(ctx context.Context, becomeLeader chan<- bool)

func (f electorFunc) Run(ctx context.Context, becomeLeader chan<- bool) { f(ctx, becomeLeader) }
