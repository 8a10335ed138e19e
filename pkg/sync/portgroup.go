package sync

import (
	"sort"

	"github.com/cubeek/ovn/pkg/model"
	"github.com/cubeek/ovn/pkg/nb"
	"github.com/cubeek/ovn/pkg/sb"
)

// PortGroups mirrors every NB Port_Group into its SB membership list,
// translating NB port UUIDs to the resolved SB logical port names via
// arena (spec §4.10).
func PortGroups(nbSnap *nb.Snapshot, arena *model.Arena, sbSnap *sb.Snapshot) []sb.Operation {
	var ops []sb.Operation
	byName := map[string]*sb.PortGroup{}
	for _, row := range sbSnap.PortGroups {
		byName[row.Name] = row
	}

	seen := map[string]bool{}
	for _, pg := range nbSnap.PortGroups {
		seen[pg.Name] = true
		var names []string
		for _, portID := range pg.Ports {
			if p, ok := nbSnap.SwitchPorts[portID]; ok {
				if _, onArena := arena.Ports[p.Name]; onArena {
					names = append(names, p.Name)
				}
			}
		}
		sort.Strings(names)

		row, ok := byName[pg.Name]
		if !ok {
			row = &sb.PortGroup{UUID: "u-pg-" + pg.Name, Name: pg.Name, Ports: names}
			sbSnap.PortGroups[row.UUID] = row
			ops = append(ops, sb.Operation{Kind: sb.OpInsert, Table: "Port_Group", RowUUID: row.UUID})
			continue
		}
		if !equalStrings(row.Ports, names) {
			row.Ports = names
			ops = append(ops, sb.Operation{Kind: sb.OpUpdate, Table: "Port_Group", RowUUID: row.UUID, Comment: "membership changed"})
		}
	}
	for name, row := range byName {
		if !seen[name] {
			delete(sbSnap.PortGroups, row.UUID)
			ops = append(ops, sb.Operation{Kind: sb.OpDelete, Table: "Port_Group", RowUUID: row.UUID, Comment: "orphaned port group"})
		}
	}
	return ops
}
