// Package routergroup implements C6: partitions routers into connected
// components, where two routers are adjacent if a logical switch exists
// with both as router-peers (spec §4.6).
package routergroup

import "github.com/cubeek/ovn/pkg/model"

// Build computes the connected components over the router-adjacency graph
// and records each router's component index plus RouterGroups on arena.
func Build(arena *model.Arena) {
	parent := map[string]string{}
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for _, dp := range arena.Datapaths {
		if dp.Kind == model.DatapathRouter {
			parent[dp.Name] = dp.Name
		}
	}

	// A switch makes two routers adjacent if it has router-peer ports to
	// both (spec §4.6: "two routers are adjacent if a logical switch
	// exists with both as router-peers").
	swRouters := map[string][]string{}
	for _, p := range arena.Ports {
		if p.Kind != model.PortLSP || p.Type != "router" {
			continue
		}
		peer := arena.PeerOf(p)
		if peer == nil {
			continue
		}
		peerDP := arena.DatapathOf(peer)
		if peerDP == nil {
			continue
		}
		swRouters[string(p.Datapath)] = append(swRouters[string(p.Datapath)], peerDP.Name)
	}
	for _, routers := range swRouters {
		for i := 1; i < len(routers); i++ {
			if _, ok := parent[routers[i]]; ok {
				union(routers[0], routers[i])
			}
		}
	}

	groups := map[string]int{}
	arena.RouterGroups = nil
	for name := range parent {
		root := find(name)
		idx, ok := groups[root]
		if !ok {
			idx = len(arena.RouterGroups)
			groups[root] = idx
			arena.RouterGroups = append(arena.RouterGroups, nil)
		}
		arena.RouterGroups[idx] = append(arena.RouterGroups[idx], name)
		if dp, ok := arena.DatapathByName[name]; ok && dp.Router != nil {
			dp.Router.RouterGroup = idx
		}
	}
}
