package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubeek/ovn/pkg/sb"
)

func TestBootstrapCreatesRoleAndAllPermissionsFromEmpty(t *testing.T) {
	sbSnap := sb.NewSnapshot()

	ops := Bootstrap(sbSnap)

	require.Len(t, ops, 1+len(wantMatrix))
	role := findRole(sbSnap)
	require.NotNil(t, role)
	assert.Len(t, role.Permissions, len(wantMatrix))
}

func TestBootstrapIsStableOnSecondCall(t *testing.T) {
	sbSnap := sb.NewSnapshot()
	Bootstrap(sbSnap)

	ops := Bootstrap(sbSnap)

	assert.Empty(t, ops)
}

func TestBootstrapRecreatesDriftedPermission(t *testing.T) {
	sbSnap := sb.NewSnapshot()
	Bootstrap(sbSnap)

	role := findRole(sbSnap)
	role.Permissions["Chassis"].Insert = false

	ops := Bootstrap(sbSnap)

	require.Len(t, ops, 2)
	assert.Equal(t, sb.OpDelete, ops[0].Kind)
	assert.Equal(t, sb.OpInsert, ops[1].Kind)
	assert.True(t, role.Permissions["Chassis"].Insert)
}

func TestBootstrapRemovesUnexpectedPermissionRow(t *testing.T) {
	sbSnap := sb.NewSnapshot()
	Bootstrap(sbSnap)

	role := findRole(sbSnap)
	role.Permissions["Bogus_Table"] = &sb.RBACPermission{UUID: "u-rbac-perm-bogus", Table: "Bogus_Table"}

	ops := Bootstrap(sbSnap)

	require.Len(t, ops, 1)
	assert.Equal(t, sb.OpDelete, ops[0].Kind)
	_, stillThere := role.Permissions["Bogus_Table"]
	assert.False(t, stillThere)
}

func TestEqualUnorderedIgnoresOrder(t *testing.T) {
	assert.True(t, equalUnordered([]string{"a", "b"}, []string{"b", "a"}))
	assert.False(t, equalUnordered([]string{"a", "b"}, []string{"a", "a"}))
	assert.False(t, equalUnordered([]string{"a"}, []string{"a", "b"}))
}
