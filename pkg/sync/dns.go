package sync

import (
	"net"
	"sort"
	"strings"

	"k8s.io/klog/v2"

	"github.com/cubeek/ovn/pkg/model"
	"github.com/cubeek/ovn/pkg/nb"
	"github.com/cubeek/ovn/pkg/sb"
)

// DNS mirrors every NB DNS_Record onto its owning switches' SB DNS rows
// (spec §4.10, §4.7 "DNS").
func DNS(nbSnap *nb.Snapshot, arena *model.Arena, sbSnap *sb.Snapshot) []sb.Operation {
	var ops []sb.Operation
	byExtID := map[string]*sb.DNS{}
	for _, row := range sbSnap.DNS {
		for _, v := range row.ExternalIDs {
			byExtID[v] = row
		}
	}

	seen := map[string]bool{}
	for _, rec := range nbSnap.DNSRecords {
		seen[string(rec.UUID)] = true
		var dps []string
		for _, ls := range nbSnap.Switches {
			for _, recID := range ls.DNSRecords {
				if recID == rec.UUID {
					if dp, ok := arena.DatapathByName[ls.Name]; ok {
						dp.Switch.HasDNSRecords = true
						dps = append(dps, string(dp.ID))
					}
				}
			}
		}
		sort.Strings(dps)

		records := validDNSRecords(rec.Records)

		row, ok := byExtID[string(rec.UUID)]
		if !ok {
			row = &sb.DNS{
				UUID:        "u-dns-" + string(rec.UUID),
				Records:     records,
				Datapaths:   dps,
				ExternalIDs: map[string]string{"dns_id": string(rec.UUID)},
			}
			sbSnap.DNS[row.UUID] = row
			ops = append(ops, sb.Operation{Kind: sb.OpInsert, Table: "DNS", RowUUID: row.UUID})
			continue
		}
		if !equalMaps(row.Records, records) || !equalStrings(row.Datapaths, dps) {
			row.Records = records
			row.Datapaths = dps
			ops = append(ops, sb.Operation{Kind: sb.OpUpdate, Table: "DNS", RowUUID: row.UUID, Comment: "records or datapaths changed"})
		}
	}
	for id, row := range byExtID {
		if !seen[id] {
			delete(sbSnap.DNS, row.UUID)
			ops = append(ops, sb.Operation{Kind: sb.OpDelete, Table: "DNS", RowUUID: row.UUID, Comment: "orphaned DNS record"})
		}
	}
	return ops
}

// validDNSRecords drops any record whose value isn't a comma-separated list
// of literal IPs, the same literal-address validation the teacher's
// DNS-adjacent OVSDB-ops code performs before writing a row downstream.
func validDNSRecords(records map[string]string) map[string]string {
	out := make(map[string]string, len(records))
	for name, addrs := range records {
		ok := true
		for _, a := range strings.Split(addrs, ",") {
			if net.ParseIP(strings.TrimSpace(a)) == nil {
				ok = false
				break
			}
		}
		if !ok {
			klog.Warningf("dropping DNS record %q: %q is not a valid address list", name, addrs)
			continue
		}
		out[name] = addrs
	}
	return out
}
