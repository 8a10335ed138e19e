package sb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNBKeyPrefersLogicalSwitch(t *testing.T) {
	d := &DatapathBinding{ExternalIDs: map[string]string{"logical-switch": "sw1"}}

	key, ok := d.NBKey()

	assert.True(t, ok)
	assert.Equal(t, "sw1", string(key))
}

func TestNBKeyFallsBackToLogicalRouter(t *testing.T) {
	d := &DatapathBinding{ExternalIDs: map[string]string{"logical-router": "lr1"}}

	key, ok := d.NBKey()

	assert.True(t, ok)
	assert.Equal(t, "lr1", string(key))
}

func TestNBKeyMissingBothReturnsFalse(t *testing.T) {
	d := &DatapathBinding{ExternalIDs: map[string]string{}}

	_, ok := d.NBKey()

	assert.False(t, ok)
}

func TestNewSnapshotInitializesAllMaps(t *testing.T) {
	s := NewSnapshot()

	assert.NotNil(t, s.Datapaths)
	assert.NotNil(t, s.Ports)
	assert.NotNil(t, s.Chassis)
	assert.NotNil(t, s.HAChassisGroups)
	assert.NotNil(t, s.MulticastGroups)
	assert.NotNil(t, s.IGMPGroups)
	assert.NotNil(t, s.AddressSets)
	assert.NotNil(t, s.PortGroups)
	assert.NotNil(t, s.Meters)
	assert.NotNil(t, s.DNS)
	assert.NotNil(t, s.DHCPv4Options)
	assert.NotNil(t, s.DHCPv6Options)
	assert.NotNil(t, s.RBACRoles)
	assert.NotNil(t, s.IPMulticastConfigs)
}
