// Package rbac implements C12: the RBAC bootstrap. It ensures the SB
// RBAC_Role named "ovn-controller" exposes exactly the permission matrix
// of spec §4.12, deleting and recreating on any drift.
package rbac

import "github.com/cubeek/ovn/pkg/sb"

const roleName = "ovn-controller"

// wantMatrix is the exact permission matrix every pass enforces (spec
// §4.12).
var wantMatrix = map[string]sb.RBACPermission{
	"Chassis": {
		Table:         "Chassis",
		Authorization: []string{"name"},
		Insert:        true,
		Update:        []string{"nb_cfg", "external_ids", "encaps", "vtep_logical_switches"},
	},
	"Encap": {
		Table:         "Encap",
		Authorization: []string{"chassis_name"},
		Insert:        true,
		Update:        []string{"type", "options", "ip"},
	},
	"Port_Binding": {
		Table:         "Port_Binding",
		Authorization: []string{""},
		Insert:        false,
		Update:        []string{"chassis"},
	},
	"MAC_Binding": {
		Table:         "MAC_Binding",
		Authorization: []string{""},
		Insert:        true,
		Update:        []string{"logical_port", "ip", "mac", "datapath"},
	},
}

// Bootstrap ensures sbSnap holds exactly the four permission rows of
// wantMatrix under the ovn-controller role, deleting and recreating any
// drifted row (spec §4.12, spec §8 "RBAC exactness").
func Bootstrap(sbSnap *sb.Snapshot) []sb.Operation {
	var ops []sb.Operation

	role := findRole(sbSnap)
	if role == nil {
		role = &sb.RBACRole{UUID: "u-rbac-role-" + roleName, Name: roleName, Permissions: map[string]*sb.RBACPermission{}}
		sbSnap.RBACRoles[role.UUID] = role
		ops = append(ops, sb.Operation{Kind: sb.OpInsert, Table: "RBAC_Role", RowUUID: role.UUID})
	}
	if role.Permissions == nil {
		role.Permissions = map[string]*sb.RBACPermission{}
	}

	for table, want := range wantMatrix {
		have, ok := role.Permissions[table]
		if !ok || !matches(have, want) {
			if ok {
				ops = append(ops, sb.Operation{Kind: sb.OpDelete, Table: "RBAC_Permission", RowUUID: have.UUID, Comment: "permission drift"})
			}
			row := want
			row.UUID = "u-rbac-perm-" + table
			role.Permissions[table] = &row
			ops = append(ops, sb.Operation{Kind: sb.OpInsert, Table: "RBAC_Permission", RowUUID: row.UUID})
		}
	}
	for table, have := range role.Permissions {
		if _, ok := wantMatrix[table]; !ok {
			delete(role.Permissions, table)
			ops = append(ops, sb.Operation{Kind: sb.OpDelete, Table: "RBAC_Permission", RowUUID: have.UUID, Comment: "unexpected permission row"})
		}
	}

	return ops
}

func findRole(sbSnap *sb.Snapshot) *sb.RBACRole {
	for _, r := range sbSnap.RBACRoles {
		if r.Name == roleName {
			return r
		}
	}
	return nil
}

func matches(have *sb.RBACPermission, want sb.RBACPermission) bool {
	if have.Insert != want.Insert {
		return false
	}
	if !equalUnordered(have.Authorization, want.Authorization) {
		return false
	}
	return equalUnordered(have.Update, want.Update)
}

func equalUnordered(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := map[string]int{}
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		seen[s]--
	}
	for _, v := range seen {
		if v != 0 {
			return false
		}
	}
	return true
}
