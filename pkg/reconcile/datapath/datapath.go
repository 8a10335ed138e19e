// Package datapath implements C2: the datapath reconciler. It performs a
// three-way join between NB logical switches/enabled logical routers and
// SB datapath bindings, allocates tunnel keys for newly-seen datapaths,
// and seeds the in-memory Arena (spec §4.2).
package datapath

import (
	"github.com/cubeek/ovn/pkg/allocator/tunnelkey"
	"github.com/cubeek/ovn/pkg/model"
	"github.com/cubeek/ovn/pkg/nb"
	"github.com/cubeek/ovn/pkg/ratelimit"
	"github.com/cubeek/ovn/pkg/sb"
)

var dupWarner = ratelimit.Every1s()

// Result carries the write operations C2 produced. The datapaths that
// were successfully linked are recorded on the Arena passed to Reconcile,
// where later stages read them.
type Result struct {
	Ops []sb.Operation
}

// Reconcile runs C2 against a mutable SB snapshot (sbSnap is updated in
// place to reflect the new desired datapath-binding set) and populates
// arena with one model.Datapath per surviving NB switch/router.
func Reconcile(nbSnap *nb.Snapshot, sbSnap *sb.Snapshot, pool *tunnelkey.Pool, arena *model.Arena) Result {
	var res Result

	// Seed the pool from every currently-valid SB key so "both" datapaths
	// keep their stable key, and the allocator for nb-only inserts draws
	// from the union of keys already in use (spec §4.2).
	byNBKey := map[nb.UUID]*sb.DatapathBinding{}
	keyCount := map[int]int{}
	for _, row := range sbSnap.Datapaths {
		nbKey, ok := row.NBKey()
		if !ok {
			res.Ops = append(res.Ops, sb.Operation{Kind: sb.OpDelete, Table: "Datapath_Binding", RowUUID: row.UUID, Comment: "missing external-ids key"})
			delete(sbSnap.Datapaths, row.UUID)
			continue
		}
		keyCount[row.TunnelKey]++
		byNBKey[nbKey] = row
	}
	for _, row := range sbSnap.Datapaths {
		if keyCount[row.TunnelKey] > 1 {
			res.Ops = append(res.Ops, sb.Operation{Kind: sb.OpDelete, Table: "Datapath_Binding", RowUUID: row.UUID, Comment: "tunnel key collision"})
			delete(sbSnap.Datapaths, row.UUID)
			delete(byNBKey, mustKeyOf(row))
		} else {
			pool.Reserve(row.TunnelKey)
		}
	}

	seenNBIDs := map[nb.UUID]bool{}

	for _, ls := range nbSnap.Switches {
		if seenNBIDs[ls.UUID] {
			dupWarner.Warnf("duplicate NB identity %s reused by logical switch %s, skipping", ls.UUID, ls.Name)
			continue
		}
		seenNBIDs[ls.UUID] = true
		dp := linkDatapath(ls.UUID, ls.Name, model.DatapathSwitch, byNBKey, sbSnap, pool, &res)
		if dp == nil {
			continue
		}
		dp.Switch = &model.SwitchData{PortGroups: map[string]bool{}}
		arena.AddDatapath(dp)
	}

	for _, lr := range nbSnap.Routers {
		if !lr.IsEnabled() {
			continue
		}
		if seenNBIDs[lr.UUID] {
			dupWarner.Warnf("duplicate NB identity %s reused by logical router %s, skipping router", lr.UUID, lr.Name)
			continue
		}
		seenNBIDs[lr.UUID] = true
		dp := linkDatapath(lr.UUID, lr.Name, model.DatapathRouter, byNBKey, sbSnap, pool, &res)
		if dp == nil {
			continue
		}
		dp.Router = &model.RouterData{RouterGroup: -1}
		arena.AddDatapath(dp)
	}

	// sb-only: any remaining SB row whose NB key was never claimed by a
	// surviving NB switch/router is deleted.
	for nbKey, row := range byNBKey {
		if !seenNBIDs[nbKey] {
			res.Ops = append(res.Ops, sb.Operation{Kind: sb.OpDelete, Table: "Datapath_Binding", RowUUID: row.UUID, Comment: "no matching NB switch/router"})
			delete(sbSnap.Datapaths, row.UUID)
		}
	}

	return res
}

func mustKeyOf(row *sb.DatapathBinding) nb.UUID {
	k, _ := row.NBKey()
	return k
}

func linkDatapath(id nb.UUID, name string, kind model.DatapathKind, byNBKey map[nb.UUID]*sb.DatapathBinding, sbSnap *sb.Snapshot, pool *tunnelkey.Pool, res *Result) *model.Datapath {
	extKey := "logical-switch"
	if kind == model.DatapathRouter {
		extKey = "logical-router"
	}

	if row, ok := byNBKey[id]; ok {
		// both: NB supplies name/external-ids, key is stable.
		row.ExternalIDs[extKey] = string(id)
		row.ExternalIDs["name"] = name
		return &model.Datapath{ID: id, Kind: kind, TunnelKey: row.TunnelKey, Name: name}
	}

	// nb-only: insert a fresh row, allocating from the pool's hint (the
	// process-wide hint for datapaths, spec §4.1).
	key := pool.Next(0)
	if key == 0 {
		// Exhaustion stops inserts for the cycle; previously-linked
		// datapaths remain (spec §4.2 "Failure semantics").
		return nil
	}
	row := &sb.DatapathBinding{
		UUID:      "u-" + string(id),
		TunnelKey: key,
		ExternalIDs: map[string]string{
			extKey: string(id),
			"name": name,
		},
	}
	sbSnap.Datapaths[row.UUID] = row
	res.Ops = append(res.Ops, sb.Operation{Kind: sb.OpInsert, Table: "Datapath_Binding", RowUUID: row.UUID})
	return &model.Datapath{ID: id, Kind: kind, TunnelKey: key, Name: name}
}
