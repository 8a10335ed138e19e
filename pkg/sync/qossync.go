package sync

import (
	"fmt"

	"github.com/cubeek/ovn/pkg/flows"
	"github.com/cubeek/ovn/pkg/model"
	"github.com/cubeek/ovn/pkg/nb"
)

// QoS translates every NB QOS row into its LS_IN_QOS_MARK/LS_IN_QOS_METER
// (or egress-side) flow, a distinct NB entity from the ACL meter-binding
// path already covered by C7's ACL action strings (spec §4.10).
func QoS(nbSnap *nb.Snapshot, arena *model.Arena, out *flows.Set) {
	for _, dp := range arena.Datapaths {
		if dp.Kind != model.DatapathSwitch {
			continue
		}
		rules := switchQOSRules(dp, nbSnap)
		for _, q := range rules {
			markStage, meterStage := flows.LSInQoSMark, flows.LSInQoSMeter
			if q.Direction == "from-lport" {
				markStage, meterStage = flows.LSOutQoSMark, flows.LSOutQoSMeter
			}
			if q.DSCP != nil {
				out.Add(flows.Flow{
					Datapath: flows.DatapathID(dp.ID), Stage: markStage, Priority: q.Priority,
					Match:   q.Match,
					Actions: fmt.Sprintf("ip.dscp = %d; next;", *q.DSCP),
					Hint:    string(q.UUID),
				})
			}
			if q.Rate > 0 {
				out.Add(flows.Flow{
					Datapath: flows.DatapathID(dp.ID), Stage: meterStage, Priority: q.Priority,
					Match:   q.Match,
					Actions: fmt.Sprintf("set_queue(rate=%d,burst=%d); next;", q.Rate, q.Burst),
					Hint:    string(q.UUID),
				})
			}
		}
	}
}

func switchQOSRules(dp *model.Datapath, nbSnap *nb.Snapshot) []*nb.QOS {
	var out []*nb.QOS
	for _, ls := range nbSnap.Switches {
		if ls.Name != dp.Name {
			continue
		}
		for _, id := range ls.QOSRules {
			if q, ok := nbSnap.QOSRules[id]; ok {
				out = append(out, q)
			}
		}
	}
	return out
}
