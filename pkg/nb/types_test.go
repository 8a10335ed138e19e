package nb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsEnabledDefaultsTrueWhenNil(t *testing.T) {
	lsp := &LogicalSwitchPort{}
	assert.True(t, lsp.IsEnabled())

	f := false
	lsp.Enabled = &f
	assert.False(t, lsp.IsEnabled())

	tr := true
	lsp.Enabled = &tr
	assert.True(t, lsp.IsEnabled())
}

func TestLogicalRouterIsEnabledDefaultsTrueWhenNil(t *testing.T) {
	lr := &LogicalRouter{}
	assert.True(t, lr.IsEnabled())

	f := false
	lr.Enabled = &f
	assert.False(t, lr.IsEnabled())
}

func TestLogicalRouterPortIsEnabledDefaultsTrueWhenNil(t *testing.T) {
	rp := &LogicalRouterPort{}
	assert.True(t, rp.IsEnabled())

	f := false
	rp.Enabled = &f
	assert.False(t, rp.IsEnabled())
}

func TestSetDynamicAddressesWritesBackOntoKnownPort(t *testing.T) {
	s := &Snapshot{SwitchPorts: map[UUID]*LogicalSwitchPort{
		"p1": {UUID: "p1", Name: "lsp1"},
	}}

	s.SetDynamicAddresses("p1", "0a:58:0a:00:00:05 10.0.0.5")

	assert.Equal(t, "0a:58:0a:00:00:05 10.0.0.5", s.SwitchPorts["p1"].DynamicAddresses)
}

func TestSetDynamicAddressesIgnoresUnknownPort(t *testing.T) {
	s := &Snapshot{SwitchPorts: map[UUID]*LogicalSwitchPort{}}

	assert.NotPanics(t, func() {
		s.SetDynamicAddresses("missing", "10.0.0.5")
	})
}
