package sync

import (
	"github.com/cubeek/ovn/pkg/nb"
	"github.com/cubeek/ovn/pkg/sb"
)

// Meters mirrors every NB Meter 1:1 (spec §4.10).
func Meters(nbSnap *nb.Snapshot, sbSnap *sb.Snapshot) []sb.Operation {
	var ops []sb.Operation
	byName := map[string]*sb.Meter{}
	for _, row := range sbSnap.Meters {
		byName[row.Name] = row
	}
	seen := map[string]bool{}
	for _, m := range nbSnap.Meters {
		seen[m.Name] = true
		bands := toSBBands(m.Bands)
		row, ok := byName[m.Name]
		if !ok {
			row = &sb.Meter{UUID: "u-meter-" + m.Name, Name: m.Name, Bands: bands}
			sbSnap.Meters[row.UUID] = row
			ops = append(ops, sb.Operation{Kind: sb.OpInsert, Table: "Meter", RowUUID: row.UUID})
			continue
		}
		if !equalBands(row.Bands, bands) {
			row.Bands = bands
			ops = append(ops, sb.Operation{Kind: sb.OpUpdate, Table: "Meter", RowUUID: row.UUID, Comment: "bands changed"})
		}
	}
	for name, row := range byName {
		if !seen[name] {
			delete(sbSnap.Meters, row.UUID)
			ops = append(ops, sb.Operation{Kind: sb.OpDelete, Table: "Meter", RowUUID: row.UUID, Comment: "orphaned meter"})
		}
	}
	return ops
}

func toSBBands(bands []nb.MeterBand) []sb.MeterBand {
	out := make([]sb.MeterBand, 0, len(bands))
	for _, b := range bands {
		out = append(out, sb.MeterBand{Rate: b.Rate, Burst: b.Burst, Action: b.Action})
	}
	return out
}

func equalBands(a, b []sb.MeterBand) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
