package sync

import (
	"github.com/cubeek/ovn/pkg/model"
	"github.com/cubeek/ovn/pkg/sb"
)

// IPMulticastConfigs mirrors each switch's clamped multicast snooping
// configuration into its SB IP_Multicast_Options row (spec §4.5, §4.10).
func IPMulticastConfigs(arena *model.Arena, sbSnap *sb.Snapshot) []sb.Operation {
	var ops []sb.Operation
	byDP := map[string]*sb.IPMulticastConfig{}
	for _, row := range sbSnap.IPMulticastConfigs {
		byDP[row.Datapath] = row
	}

	seen := map[string]bool{}
	for _, dp := range arena.Datapaths {
		if dp.Kind != model.DatapathSwitch {
			continue
		}
		seen[string(dp.ID)] = true
		m := dp.Switch.Mcast
		row, ok := byDP[string(dp.ID)]
		if !ok {
			row = &sb.IPMulticastConfig{UUID: "u-mcconf-" + string(dp.ID), Datapath: string(dp.ID)}
			sbSnap.IPMulticastConfigs[row.UUID] = row
			ops = append(ops, sb.Operation{Kind: sb.OpInsert, Table: "IP_Multicast_Options", RowUUID: row.UUID})
		}
		changed := row.Enabled != m.Snoop || row.Querier != m.Querier || row.FloodUnregistered != m.FloodUnregistered ||
			row.TableSize != m.TableSize || row.IdleTimeout != m.IdleTimeout || row.QueryInterval != m.QueryInterval ||
			row.EthSrc != m.EthSrc || row.Ip4Src != m.IPv4Src
		row.Enabled, row.Querier, row.FloodUnregistered = m.Snoop, m.Querier, m.FloodUnregistered
		row.TableSize, row.IdleTimeout, row.QueryInterval = m.TableSize, m.IdleTimeout, m.QueryInterval
		row.EthSrc, row.Ip4Src = m.EthSrc, m.IPv4Src
		if changed && ok {
			ops = append(ops, sb.Operation{Kind: sb.OpUpdate, Table: "IP_Multicast_Options", RowUUID: row.UUID, Comment: "config changed"})
		}
	}
	for id, row := range byDP {
		if !seen[id] {
			delete(sbSnap.IPMulticastConfigs, row.UUID)
			ops = append(ops, sb.Operation{Kind: sb.OpDelete, Table: "IP_Multicast_Options", RowUUID: row.UUID, Comment: "orphaned multicast config"})
		}
	}
	return ops
}
