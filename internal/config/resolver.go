package config

import "sort"

// startRank orders modules for loading: tracing first so the provider is
// installed before anything opens spans, then stores, then the relay
// core, with the HTTP surface and background loops last. Unknown IDs
// load after everything else.
func startRank(id string) int {
	switch {
	case id == "observability.tracing":
		return 0
	case hasNamespace(id, "keys"):
		return 1
	case hasNamespace(id, "relay"):
		return 2
	case id == "gateway.http":
		return 3
	case id == "keepalive" || id == "cron":
		return 4
	default:
		return 5
	}
}

func hasNamespace(id, ns string) bool {
	return len(id) > len(ns) && id[:len(ns)+1] == ns+"."
}

// Resolve returns the module IDs from the configuration in load order.
// Ties within a rank break alphabetically so loading stays deterministic.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := startRank(ids[i]), startRank(ids[j])
		if ri != rj {
			return ri < rj
		}
		return ids[i] < ids[j]
	})
	return ids
}
