// Package flows implements the match/action builder and the stage
// encoding shared by the logical-switch (lswitch) and logical-router
// (lrouter) pipeline generators (spec §4.7, §4.8, §9 "Tagged sum types").
package flows

import "fmt"

// Kind distinguishes a logical-switch pipeline from a logical-router one.
// Encoded in the high bits of Stage so the whole triple fits one small int
// and can be used as a map key cheaply (spec §9).
type Kind uint8

const (
	KindSwitch Kind = iota
	KindRouter
)

// Pipeline is ingress or egress within a datapath's program.
type Pipeline uint8

const (
	Ingress Pipeline = iota
	Egress
)

// Stage identifies one flow table: (kind, pipeline, table). Private
// encoding, exposed lookup helpers only, per spec §9.
type Stage uint16

func newStage(k Kind, p Pipeline, table uint8) Stage {
	return Stage(uint16(k)<<9 | uint16(p)<<8 | uint16(table))
}

// StageFor reconstructs a Stage from its three components. Exported for
// the differ (C9), which must recover a Logical_Flow row's Stage from its
// pipeline/table_id columns plus its owning datapath's kind.
func StageFor(k Kind, p Pipeline, table uint8) Stage {
	return newStage(k, p, table)
}

func (s Stage) Kind() Kind         { return Kind(s >> 9) }
func (s Stage) Pipeline() Pipeline { return Pipeline((s >> 8) & 0x1) }
func (s Stage) Table() uint8       { return uint8(s & 0xFF) }

func (s Stage) String() string {
	name := stageNames[s]
	if name == "" {
		name = fmt.Sprintf("TABLE_%d", s.Table())
	}
	return name
}

var stageNames = map[Stage]string{}

func register(k Kind, p Pipeline, table uint8, name string) Stage {
	s := newStage(k, p, table)
	stageNames[s] = name
	return s
}

// Logical-switch ingress pipeline, spec §4.7.
var (
	LSInPortSecL2     = register(KindSwitch, Ingress, 0, "LS_IN_PORT_SEC_L2")
	LSInPortSecIP     = register(KindSwitch, Ingress, 1, "LS_IN_PORT_SEC_IP")
	LSInPortSecND     = register(KindSwitch, Ingress, 2, "LS_IN_PORT_SEC_ND")
	LSInPreACL        = register(KindSwitch, Ingress, 3, "LS_IN_PRE_ACL")
	LSInPreLB         = register(KindSwitch, Ingress, 4, "LS_IN_PRE_LB")
	LSInPreStateful   = register(KindSwitch, Ingress, 5, "LS_IN_PRE_STATEFUL")
	LSInACL           = register(KindSwitch, Ingress, 6, "LS_IN_ACL")
	LSInQoSMark       = register(KindSwitch, Ingress, 7, "LS_IN_QOS_MARK")
	LSInQoSMeter      = register(KindSwitch, Ingress, 8, "LS_IN_QOS_METER")
	LSInLB            = register(KindSwitch, Ingress, 9, "LS_IN_LB")
	LSInStateful      = register(KindSwitch, Ingress, 10, "LS_IN_STATEFUL")
	LSInArpNdRsp      = register(KindSwitch, Ingress, 11, "LS_IN_ARP_ND_RSP")
	LSInDHCPOptions   = register(KindSwitch, Ingress, 12, "LS_IN_DHCP_OPTIONS")
	LSInDHCPResponse  = register(KindSwitch, Ingress, 13, "LS_IN_DHCP_RESPONSE")
	LSInDNSLookup     = register(KindSwitch, Ingress, 14, "LS_IN_DNS_LOOKUP")
	LSInDNSResponse   = register(KindSwitch, Ingress, 15, "LS_IN_DNS_RESPONSE")
	LSInExternalPort  = register(KindSwitch, Ingress, 16, "LS_IN_EXTERNAL_PORT")
	LSInL2Lkup        = register(KindSwitch, Ingress, 17, "LS_IN_L2_LKUP")
)

// Logical-switch egress pipeline, spec §4.7.
var (
	LSOutPreLB       = register(KindSwitch, Egress, 0, "LS_OUT_PRE_LB")
	LSOutPreACL      = register(KindSwitch, Egress, 1, "LS_OUT_PRE_ACL")
	LSOutPreStateful = register(KindSwitch, Egress, 2, "LS_OUT_PRE_STATEFUL")
	LSOutLB          = register(KindSwitch, Egress, 3, "LS_OUT_LB")
	LSOutACL         = register(KindSwitch, Egress, 4, "LS_OUT_ACL")
	LSOutQoSMark     = register(KindSwitch, Egress, 5, "LS_OUT_QOS_MARK")
	LSOutQoSMeter    = register(KindSwitch, Egress, 6, "LS_OUT_QOS_METER")
	LSOutStateful    = register(KindSwitch, Egress, 7, "LS_OUT_STATEFUL")
	LSOutPortSecIP   = register(KindSwitch, Egress, 8, "LS_OUT_PORT_SEC_IP")
	LSOutPortSecL2   = register(KindSwitch, Egress, 9, "LS_OUT_PORT_SEC_L2")
)

// Logical-router ingress pipeline, spec §4.8.
var (
	LRInAdmission       = register(KindRouter, Ingress, 0, "LR_IN_ADMISSION")
	LRInLookupNeighbor  = register(KindRouter, Ingress, 1, "LR_IN_LOOKUP_NEIGHBOR")
	LRInLearnNeighbor   = register(KindRouter, Ingress, 2, "LR_IN_LEARN_NEIGHBOR")
	LRInIPInput         = register(KindRouter, Ingress, 3, "LR_IN_IP_INPUT")
	LRInDefrag          = register(KindRouter, Ingress, 4, "LR_IN_DEFRAG")
	LRInUNSNAT          = register(KindRouter, Ingress, 5, "LR_IN_UNSNAT")
	LRInDNAT            = register(KindRouter, Ingress, 6, "LR_IN_DNAT")
	LRInECMPStateful    = register(KindRouter, Ingress, 7, "LR_IN_ECMP_STATEFUL")
	LRInNDRAOptions     = register(KindRouter, Ingress, 8, "LR_IN_ND_RA_OPTIONS")
	LRInIPRouting       = register(KindRouter, Ingress, 9, "LR_IN_IP_ROUTING")
	LRInPolicy          = register(KindRouter, Ingress, 10, "LR_IN_POLICY")
	LRInArpResolve      = register(KindRouter, Ingress, 11, "LR_IN_ARP_RESOLVE")
	LRInCheckPktLen     = register(KindRouter, Ingress, 12, "LR_IN_CHK_PKT_LEN")
	LRInLargerPkts      = register(KindRouter, Ingress, 13, "LR_IN_LARGER_PKTS")
	LRInGatewayRedirect = register(KindRouter, Ingress, 14, "LR_IN_GW_REDIRECT")
	LRInArpRequest      = register(KindRouter, Ingress, 15, "LR_IN_ARP_REQUEST")
)

// Logical-router egress pipeline, spec §4.8.
var (
	LROutUNDNAT = register(KindRouter, Egress, 0, "LR_OUT_UNDNAT")
	LROutSNAT   = register(KindRouter, Egress, 1, "LR_OUT_SNAT")
	LROutEgrLoop = register(KindRouter, Egress, 2, "LR_OUT_EGR_LOOP")
	LROutDelivery = register(KindRouter, Egress, 3, "LR_OUT_DELIVERY")
)
