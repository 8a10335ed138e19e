// Package sync implements C10: the small reconcilers that keep
// address-set, port-group mirror, meter, DNS, DHCP-option-catalog,
// IP-multicast-config, and QoS rows in the southbound database
// synchronized with their northbound declarations (spec §4.10).
package sync

import (
	"sort"

	"github.com/cubeek/ovn/pkg/nb"
	"github.com/cubeek/ovn/pkg/sb"
)

// AddressSets mirrors every NB Address_Set 1:1, plus synthesizes the
// per-port-group "<pg>_ip4"/"<pg>_ip6" address sets ACLs reference by
// convention (spec §4.10 "Address-set synchronization").
func AddressSets(nbSnap *nb.Snapshot, sbSnap *sb.Snapshot) []sb.Operation {
	var ops []sb.Operation
	desired := map[string][]string{}

	for _, as := range nbSnap.AddressSets {
		desired[as.Name] = append([]string{}, as.Addresses...)
	}
	for _, pg := range nbSnap.PortGroups {
		ip4, ip6 := portGroupAddresses(pg, nbSnap)
		desired[pg.Name+"_ip4"] = ip4
		desired[pg.Name+"_ip6"] = ip6
	}

	byName := map[string]*sb.AddressSet{}
	for _, row := range sbSnap.AddressSets {
		byName[row.Name] = row
	}

	for name, addrs := range desired {
		sort.Strings(addrs)
		row, ok := byName[name]
		if !ok {
			row = &sb.AddressSet{UUID: "u-as-" + name, Name: name, Addresses: addrs}
			sbSnap.AddressSets[row.UUID] = row
			ops = append(ops, sb.Operation{Kind: sb.OpInsert, Table: "Address_Set", RowUUID: row.UUID})
			continue
		}
		if !equalStrings(row.Addresses, addrs) {
			row.Addresses = addrs
			ops = append(ops, sb.Operation{Kind: sb.OpUpdate, Table: "Address_Set", RowUUID: row.UUID, Comment: "membership changed"})
		}
	}
	for name, row := range byName {
		if _, ok := desired[name]; !ok {
			delete(sbSnap.AddressSets, row.UUID)
			ops = append(ops, sb.Operation{Kind: sb.OpDelete, Table: "Address_Set", RowUUID: row.UUID, Comment: "orphaned address set"})
		}
	}
	return ops
}

func portGroupAddresses(pg *nb.PortGroup, nbSnap *nb.Snapshot) (ip4, ip6 []string) {
	for _, portID := range pg.Ports {
		p, ok := nbSnap.SwitchPorts[portID]
		if !ok {
			continue
		}
		for _, addr := range p.Addresses {
			fields := splitOn(addr, ' ')
			for _, f := range fields[1:] {
				if isIPv6(f) {
					ip6 = append(ip6, f)
				} else if isIPv4(f) {
					ip4 = append(ip4, f)
				}
			}
		}
	}
	return
}

func isIPv4(s string) bool {
	for _, r := range s {
		if r == '.' {
			return true
		}
		if r == ':' {
			return false
		}
	}
	return false
}

func isIPv6(s string) bool {
	for _, r := range s {
		if r == ':' {
			return true
		}
	}
	return false
}

func splitOn(s string, sep byte) []string {
	var out []string
	cur := ""
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			if cur != "" {
				out = append(out, cur)
			}
			cur = ""
			continue
		}
		cur += string(s[i])
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
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
