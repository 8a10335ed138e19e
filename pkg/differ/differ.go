// Package differ implements C9: it diffs a freshly computed flows.Set
// against the logical flows currently observed in the southbound
// snapshot and produces the minimal insert/delete operation set, batched
// as one transaction per reconciliation cycle (spec §4.9, §6 "Outputs").
package differ

import (
	"fmt"

	"github.com/cubeek/ovn/pkg/flows"
	"github.com/cubeek/ovn/pkg/model"
	"github.com/cubeek/ovn/pkg/nb"
	"github.com/cubeek/ovn/pkg/sb"
)

func nbUUID(s string) nb.UUID { return nb.UUID(s) }

// Result carries the write operations plus counters surfaced to the
// engine's cycle-summary log line (spec §7 "Cycle summary").
type Result struct {
	Ops      []sb.Operation
	Inserted int
	Deleted  int
	Kept     int
}

// Diff compares desired against sbSnap.Flows and returns the ops needed to
// make the southbound flow table match, updating sbSnap.Flows in place so
// a second Diff call in the same cycle (e.g. in tests) is idempotent.
// arena resolves each flow's datapath kind (switch vs router), needed to
// reconstruct the stage encoding of an already-observed row since a
// Logical_Flow row itself only records pipeline/table_id, not kind.
func Diff(desired *flows.Set, sbSnap *sb.Snapshot, arena *model.Arena) Result {
	var res Result

	kindOf := func(dpID string) (flows.Kind, bool) {
		dp, ok := arena.Datapaths[nbUUID(dpID)]
		if !ok {
			return 0, false
		}
		if dp.Kind == model.DatapathRouter {
			return flows.KindRouter, true
		}
		return flows.KindSwitch, true
	}

	observed := map[flows.Key]*sb.LogicalFlow{}
	for _, row := range sbSnap.Flows {
		if k, ok := rowKey(row, kindOf); ok {
			observed[k] = row
		}
	}

	wantKeys := map[flows.Key]bool{}
	for _, f := range desired.All() {
		k := f.Key()
		wantKeys[k] = true
		if _, ok := observed[k]; ok {
			res.Kept++
			continue
		}
		row := &sb.LogicalFlow{
			UUID:        fmt.Sprintf("u-lf-%x", k.Hash()),
			Datapath:    string(f.Datapath),
			Pipeline:    pipelineName(f.Stage),
			TableID:     int(f.Stage.Table()),
			Priority:    f.Priority,
			Match:       f.Match,
			Actions:     f.Actions,
			ExternalIDs: flowExternalIDs(f),
		}
		res.Ops = append(res.Ops, sb.Operation{Kind: sb.OpInsert, Table: "Logical_Flow", RowUUID: row.UUID})
		res.Inserted++
		sbSnap.Flows = append(sbSnap.Flows, row)
	}

	kept := sbSnap.Flows[:0]
	for _, row := range sbSnap.Flows {
		k, ok := rowKey(row, kindOf)
		if ok && wantKeys[k] {
			kept = append(kept, row)
			continue
		}
		res.Ops = append(res.Ops, sb.Operation{Kind: sb.OpDelete, Table: "Logical_Flow", RowUUID: row.UUID, Comment: "no longer desired"})
		res.Deleted++
	}
	sbSnap.Flows = kept

	return res
}

// flowExternalIDs builds the external_ids a newly inserted Logical_Flow row
// carries: stage name, a source-location hint, and (when the generator set
// one) a stage-hint distinguishing multiple flows the same generator call
// emits into the same stage (spec §4.9 "insert with external_ids =
// {stage-name, source, stage-hint?}").
func flowExternalIDs(f flows.Flow) map[string]string {
	ids := map[string]string{
		"stage-name": f.Stage.String(),
		"source":     generatorSource(f.Stage),
	}
	if f.Hint != "" {
		ids["stage-hint"] = f.Hint
	}
	return ids
}

// generatorSource names the generator package that owns a stage, standing
// in for a source-code line reference the way ovn-northd's own
// external_ids:source does.
func generatorSource(s flows.Stage) string {
	if s.Kind() == flows.KindRouter {
		return "lrouter.go"
	}
	return "lswitch.go"
}

func pipelineName(s flows.Stage) string {
	if s.Pipeline() == flows.Egress {
		return "egress"
	}
	return "ingress"
}

// rowKey reconstructs the same identity hash Flow.Key uses so an observed
// SB row and a freshly generated Flow compare equal, resolving the row's
// stage Kind (switch vs router) from its owning datapath since the row
// itself only records pipeline/table_id.
func rowKey(row *sb.LogicalFlow, kindOf func(string) (flows.Kind, bool)) (flows.Key, bool) {
	kind, ok := kindOf(row.Datapath)
	if !ok {
		return flows.Key{}, false
	}
	pipeline := flows.Ingress
	if row.Pipeline == "egress" {
		pipeline = flows.Egress
	}
	f := flows.Flow{
		Datapath: flows.DatapathID(row.Datapath),
		Stage:    flows.StageFor(kind, pipeline, uint8(row.TableID)),
		Priority: row.Priority,
		Match:    row.Match,
		Actions:  row.Actions,
	}
	return f.Key(), true
}
