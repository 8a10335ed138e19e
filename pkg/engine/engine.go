// Package engine implements C13: the orchestration loop. Each cycle it
// runs C2 through C10 in the strict topological order spec §5 requires,
// copies the NB global row's ambient fields into SB, and writes back the
// NB/SB sequence counters on commit (spec §4.13).
package engine

import (
	"context"
	"crypto/rand"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/cubeek/ovn/pkg/allocator/mac"
	"github.com/cubeek/ovn/pkg/allocator/tunnelkey"
	"github.com/cubeek/ovn/pkg/differ"
	"github.com/cubeek/ovn/pkg/flows"
	"github.com/cubeek/ovn/pkg/flows/lrouter"
	"github.com/cubeek/ovn/pkg/flows/lswitch"
	"github.com/cubeek/ovn/pkg/leader"
	"github.com/cubeek/ovn/pkg/model"
	"github.com/cubeek/ovn/pkg/nb"
	"github.com/cubeek/ovn/pkg/rbac"
	"github.com/cubeek/ovn/pkg/reconcile/datapath"
	"github.com/cubeek/ovn/pkg/reconcile/hagroup"
	"github.com/cubeek/ovn/pkg/reconcile/multicast"
	"github.com/cubeek/ovn/pkg/reconcile/port"
	"github.com/cubeek/ovn/pkg/reconcile/routergroup"
	"github.com/cubeek/ovn/pkg/sb"
	"github.com/cubeek/ovn/pkg/sync"
	"github.com/cubeek/ovn/pkg/types"
)

// Engine owns the process-wide state that outlives a single cycle (spec
// §5 "Shared resources"): the MAC set/prefix and the datapath tunnel-key
// pool. Everything else is rebuilt from scratch every pass.
type Engine struct {
	Leader *leader.Controller

	dpPool       *tunnelkey.Pool
	igmpPools    map[nb.UUID]*tunnelkey.Pool
	macSet       *mac.Set
	macPrefix    mac.Prefix
	prefixLoaded bool
}

func New() *Engine {
	return &Engine{
		Leader:    leader.NewController(),
		dpPool:    tunnelkey.NewPool("datapath", types.DatapathKeyMin, types.DatapathKeyMax),
		igmpPools: map[nb.UUID]*tunnelkey.Pool{},
	}
}

// Summary is the per-cycle result logged at info level (spec §7 "Cycle
// summary").
type Summary struct {
	FlowsInserted, FlowsDeleted, FlowsKept int
	Ops                                    []sb.Operation
}

// RunCycle executes C2 through C10 against one consistent pair of
// snapshots and returns the southbound write set. It never opens a
// transaction itself — the caller decides whether to commit Ops, matching
// spec §4.13's "only the lock holder ever opens an SB write transaction".
func (e *Engine) RunCycle(nbSnap *nb.Snapshot, sbSnap *sb.Snapshot) (Summary, error) {
	var sum Summary

	e.ensureMACPrefix(nbSnap)

	arena := model.NewArena()

	dpRes := datapath.Reconcile(nbSnap, sbSnap, e.dpPool, arena)
	sum.Ops = append(sum.Ops, dpRes.Ops...)

	seedSwitchState(nbSnap, arena)

	portRes := port.Reconcile(nbSnap, sbSnap, arena, e.macSet)
	sum.Ops = append(sum.Ops, portRes.Ops...)

	hgRes := hagroup.Synthesize(arena, nbSnap, sbSnap)
	sum.Ops = append(sum.Ops, hgRes.Ops...)

	mcRes := multicast.BuildAggregates(arena, sbSnap, e.igmpPools)
	sum.Ops = append(sum.Ops, mcRes.Ops...)

	routergroup.Build(arena)
	hagroup.ComputeRefChassis(arena, sbSnap, chassisOfPort(sbSnap))

	out := flows.NewSet()
	lswitch.Generate(arena, nbSnap, sbSnap, out)
	lrouter.Generate(arena, nbSnap, out)
	sync.QoS(nbSnap, arena, out)

	diffRes := differ.Diff(out, sbSnap, arena)
	sum.Ops = append(sum.Ops, diffRes.Ops...)
	sum.FlowsInserted, sum.FlowsDeleted, sum.FlowsKept = diffRes.Inserted, diffRes.Deleted, diffRes.Kept

	sum.Ops = append(sum.Ops, sync.AddressSets(nbSnap, sbSnap)...)
	sum.Ops = append(sum.Ops, sync.PortGroups(nbSnap, arena, sbSnap)...)
	sum.Ops = append(sum.Ops, sync.Meters(nbSnap, sbSnap)...)
	sum.Ops = append(sum.Ops, sync.DNS(nbSnap, arena, sbSnap)...)
	sum.Ops = append(sum.Ops, sync.DHCPOptions(nbSnap, sbSnap)...)
	sum.Ops = append(sum.Ops, sync.IPMulticastConfigs(arena, sbSnap)...)
	sum.Ops = append(sum.Ops, rbac.Bootstrap(sbSnap)...)
	sum.Ops = append(sum.Ops, e.copyGlobalRow(nbSnap, sbSnap)...)

	klog.V(2).Infof("cycle summary: %d inserted, %d deleted, %d kept flows, %d total ops",
		sum.FlowsInserted, sum.FlowsDeleted, sum.FlowsKept, len(sum.Ops))

	return sum, nil
}

func seedSwitchState(nbSnap *nb.Snapshot, arena *model.Arena) {
	for _, ls := range nbSnap.Switches {
		dp, ok := arena.DatapathByName[ls.Name]
		if !ok || dp.Switch == nil {
			continue
		}
		multicast.ClampSwitchMulticastConfig(dp.Switch, ls.McastIdleTimeoutSec, ls.McastQueryIntervalSec, ls.McastQueryIntervalSec > 0)
		dp.Switch.Mcast.Snoop = ls.McastSnoop
		dp.Switch.Mcast.Querier = ls.McastQuerier
		dp.Switch.Mcast.FloodUnregistered = ls.McastFloodUnreg
		dp.Switch.Mcast.EthSrc = ls.McastEthSrc
		dp.Switch.Mcast.IPv4Src = ls.McastIPv4Src
		dp.Switch.Mcast.HasUnknownFlag = ls.McastFloodUnreg
		dp.Switch.MACOnly = ls.MACOnly
	}
}

// chassisOfPort resolves the chassis currently hosting a port binding by
// logical port name, used by C4's deferred ref_chassis computation.
func chassisOfPort(sbSnap *sb.Snapshot) func(string) string {
	byName := map[string]string{}
	for _, row := range sbSnap.Ports {
		byName[row.LogicalPort] = row.Chassis
	}
	return func(name string) string { return byName[name] }
}

// ensureMACPrefix allocates a random 24-bit MAC prefix on first run and
// persists it via NB options:mac_prefix; subsequent runs read it back
// (spec §4.13).
func (e *Engine) ensureMACPrefix(nbSnap *nb.Snapshot) {
	if e.prefixLoaded {
		return
	}
	if v, ok := nbSnap.Global.Options["mac_prefix"]; ok && len(v) == 6 {
		var p mac.Prefix
		if _, err := fmt.Sscanf(v, "%02x%02x%02x", &p[0], &p[1], &p[2]); err == nil {
			e.macPrefix = p
			e.macSet = mac.NewSet(p)
			e.prefixLoaded = true
			return
		}
	}
	var buf [3]byte
	_, _ = rand.Read(buf[:])
	buf[0] |= 0x02 // locally administered, spec §4.1 "OUI-like prefix"
	buf[0] &^= 0x01
	p := mac.Prefix(buf)
	e.macPrefix = p
	e.macSet = mac.NewSet(p)
	e.prefixLoaded = true
	if nbSnap.Global.Options == nil {
		nbSnap.Global.Options = map[string]string{}
	}
	nbSnap.Global.Options["mac_prefix"] = fmt.Sprintf("%02x%02x%02x", p[0], p[1], p[2])
}

// copyGlobalRow mirrors NB_Global's nb_cfg/ipsec/options into SB and
// writes NB's sb_cfg/hv_cfg back from the committed SB sequence number and
// the minimum chassis nb_cfg (spec §4.13). This engine has no live
// sequence-number source (the DB client is out of scope, spec §1), so
// sb_cfg tracks nb_cfg directly and hv_cfg tracks the minimum across
// known chassis, which is the observable contract callers can assert on.
func (e *Engine) copyGlobalRow(nbSnap *nb.Snapshot, sbSnap *sb.Snapshot) []sb.Operation {
	var ops []sb.Operation
	if sbSnap.Global.NbCfg != nbSnap.Global.NbCfg || sbSnap.Global.Ipsec != nbSnap.Global.Ipsec || !equalMaps(sbSnap.Global.Options, nbSnap.Global.Options) {
		sbSnap.Global.NbCfg = nbSnap.Global.NbCfg
		sbSnap.Global.Ipsec = nbSnap.Global.Ipsec
		sbSnap.Global.Options = nbSnap.Global.Options
		ops = append(ops, sb.Operation{Kind: sb.OpUpdate, Table: "SB_Global", RowUUID: sbSnap.Global.UUID, Comment: "mirror NB_Global"})
	}

	nbSnap.Global.SbCfg = nbSnap.Global.NbCfg

	minChassisCfg := -1
	for _, c := range sbSnap.Chassis {
		if minChassisCfg == -1 || c.NbCfg < minChassisCfg {
			minChassisCfg = c.NbCfg
		}
	}
	if minChassisCfg == -1 {
		minChassisCfg = 0
	}
	nbSnap.Global.HvCfg = minChassisCfg

	return ops
}

func equalMaps(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// RunLoop blocks, calling RunCycle whenever this process holds leadership,
// until ctx is canceled (spec §4.11, §4.13 "each iteration"). paused is
// polled once per iteration; when it reports true the cycle still fetches
// and reconciles so the in-memory cache stays warm, but commit is skipped,
// matching §4.11's "no-write state while still consuming change
// notifications".
func (e *Engine) RunLoop(ctx context.Context, elector leader.Elector, paused func() bool, fetch func() (*nb.Snapshot, *sb.Snapshot, error), commit func(Summary) error) error {
	go e.Leader.Run(ctx, elector)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !e.Leader.IsLeader() {
			klog.V(4).Info("standby: tracking databases without opening a write transaction")
			e.Leader.WaitForTransition(ctx)
			continue
		}
		nbSnap, sbSnap, err := fetch()
		if err != nil {
			klog.Warningf("fetch failed, retrying next cycle: %v", err)
			continue
		}
		sum, err := e.RunCycle(nbSnap, sbSnap)
		if err != nil {
			klog.Errorf("reconciliation cycle failed: %v", err)
			continue
		}
		if paused != nil && paused() {
			klog.V(3).Info("paused: keeping cache warm without committing")
			continue
		}
		if err := commit(sum); err != nil {
			klog.Warningf("commit failed, discarding in-memory state: %v", err)
		}
	}
}
