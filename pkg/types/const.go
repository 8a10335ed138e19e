// Package types holds the fixed identifiers and numeric ranges that the
// translation engine treats as externally visible contracts: tunnel-key
// ranges, stage table numbers, reserved multicast names/keys, and the
// register-bit names used verbatim in emitted match/action strings.
package types

import "time"

const (
	// Datapath tunnel keys, §3 "Datapath": 1..2^24-1.
	DatapathKeyMin = 1
	DatapathKeyMax = 1<<24 - 1

	// Port tunnel keys are datapath-scoped, §3 "Port": 1..2^15-1.
	PortKeyMin = 1
	PortKeyMax = 1<<15 - 1

	// Chassis queue ids, §4.1: 8-bit, (MIN+1..MAX).
	QueueIDMin = 0
	QueueIDMax = 1<<8 - 1

	// Logical-switch-port tag range, §4.1: 1..4095 (0 is reserved/invalid).
	TagMin = 1
	TagMax = 4095

	// MAC allocator OUI-style prefix length in bits.
	MACPrefixBits = 24

	OVSDBTimeout = 10 * time.Second
)

// Reserved multicast group names and keys, §3 "Multicast group (SB)".
const (
	MulticastFloodName        = "_MC_flood"
	MulticastFloodKey         = 65535
	MulticastMrouterFloodName = "_MC_mrouter_flood"
	MulticastMrouterFloodKey  = 65534
	MulticastMrouterStaticName = "_MC_mrouter_static"
	MulticastMrouterStaticKey  = 65533
	MulticastStaticName       = "_MC_static"
	MulticastStaticKey        = 65532
	MulticastUnknownName      = "_MC_unknown"
	MulticastUnknownKey       = 65531
)

// Multicast clamps, §4.5.
const (
	IGMPGroupKeyMin = 32768
	IGMPGroupKeyMax = MulticastUnknownKey - 1

	MulticastDefaultIdleTimeout  = 300 * time.Second
	MulticastMinIdleTimeout      = 15 * time.Second
	MulticastMaxIdleTimeout      = 3600 * time.Second
	MulticastDefaultQueryInterval = MulticastDefaultIdleTimeout / 2
	MulticastMinQueryInterval     = 1 * time.Second
	MulticastMaxQueryInterval     = MulticastMaxIdleTimeout / 2
	MulticastDefaultTableSize     = 2048
)

// Conntrack/pipeline register bits, referenced verbatim in emitted actions
// (spec §6 "Match/action DSL").
const (
	RegbitConntrackDefrag = "reg0[0]"
	RegbitConntrackCommit = "reg0[1]"
	RegbitConntrackNAT    = "reg0[2]"
	RegbitDHCPOptsResult  = "reg0[3]"
	RegbitDNSLookupResult = "reg0[4]"
	RegbitNATRedirect     = "reg0[5]"
	RegbitEgressLoopback  = "reg0[6]"
	RegbitPktLarger       = "reg0[7]"
	RegbitLookupNeighbor  = "reg0[8]"
	RegbitLookupNeighborResult = "reg0[9]"
)

// ACL priority offset, §3 "ACL": user priorities are shifted above the
// engine-reserved range.
const (
	ACLPriorityOffset = 1000
	ACLPriorityMax    = 32767
	ACLReservedPriority = 65535
)

// Gateway-chassis preference order, §4.3 "Derived redirect port".
type GatewayChassisForm int

const (
	GatewayFormNone GatewayChassisForm = iota
	GatewayFormHAChassisGroup
	GatewayFormGatewayChassis
	GatewayFormRedirectChassis
)

// DefaultHAChassisPriority is used when an NB gateway-chassis entry does not
// specify an explicit priority.
const DefaultHAChassisPriority = 100
