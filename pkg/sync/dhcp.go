package sync

import (
	"fmt"

	"github.com/cubeek/ovn/pkg/nb"
	"github.com/cubeek/ovn/pkg/sb"
)

// DHCPOptions mirrors the NB DHCPv4/DHCPv6 options catalogs 1:1 (spec
// §4.10).
func DHCPOptions(nbSnap *nb.Snapshot, sbSnap *sb.Snapshot) []sb.Operation {
	var ops []sb.Operation
	ops = append(ops, syncDHCPCatalog(nbSnap.DHCPv4Options, sbSnap.DHCPv4Options, "DHCP_Options")...)
	ops = append(ops, syncDHCPCatalog(nbSnap.DHCPv6Options, sbSnap.DHCPv6Options, "DHCPv6_Options")...)
	return ops
}

func syncDHCPCatalog(nbCat map[nb.UUID]*nb.DHCPOptions, sbCat map[string]*sb.DHCPOptions, table string) []sb.Operation {
	var ops []sb.Operation
	byName := map[string]*sb.DHCPOptions{}
	for _, row := range sbCat {
		byName[row.Name] = row
	}
	seen := map[string]bool{}
	for id, opt := range nbCat {
		name := fmt.Sprintf("%s/%s", opt.CIDR, id)
		seen[name] = true
		opts := make(map[string]string, len(opt.Options))
		for k, v := range opt.Options {
			opts[k] = v
		}
		row, ok := byName[name]
		if !ok {
			row = &sb.DHCPOptions{UUID: "u-dhcp-" + name, Name: name, Options: opts}
			sbCat[row.UUID] = row
			ops = append(ops, sb.Operation{Kind: sb.OpInsert, Table: table, RowUUID: row.UUID})
			continue
		}
		if !equalMaps(row.Options, opts) {
			row.Options = opts
			ops = append(ops, sb.Operation{Kind: sb.OpUpdate, Table: table, RowUUID: row.UUID, Comment: "options changed"})
		}
	}
	for name, row := range byName {
		if !seen[name] {
			delete(sbCat, row.UUID)
			ops = append(ops, sb.Operation{Kind: sb.OpDelete, Table: table, RowUUID: row.UUID, Comment: "orphaned DHCP options"})
		}
	}
	return ops
}
