package profiles

import (
	"strings"

	"github.com/openlact/lactd/api"
)

// Matches evaluates rule against state (spec.md §4.6):
//
//   - Process{name,args}: true if the name index has a PID whose
//     cmdline (when args is set) contains the arg substring.
//   - Gamemode(None): true if gamemode_pids is non-empty.
//   - Gamemode(Some(inner)): true if any gamemode PID also matches inner.
//   - And: non-empty and all subrules true.
//   - Or: non-empty and any subrule true.
func Matches(state *State, rule api.ProfileRule) bool {
	switch rule.Kind {
	case api.RuleProcess:
		return matchesProcess(state, rule)
	case api.RuleGamemode:
		return matchesGamemode(state, rule)
	case api.RuleAnd:
		if len(rule.Rules) == 0 {
			return false
		}
		for _, sub := range rule.Rules {
			if !Matches(state, sub) {
				return false
			}
		}
		return true
	case api.RuleOr:
		if len(rule.Rules) == 0 {
			return false
		}
		for _, sub := range rule.Rules {
			if Matches(state, sub) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func matchesProcess(state *State, rule api.ProfileRule) bool {
	pids, ok := state.NameIndex[rule.ProcessName]
	if !ok {
		return false
	}
	if rule.ProcessArgs == nil {
		return len(pids) > 0
	}
	for pid := range pids {
		info, ok := state.ProcessList[pid]
		if !ok {
			continue
		}
		if strings.Contains(info.Cmdline, *rule.ProcessArgs) {
			return true
		}
	}
	return false
}

func matchesGamemode(state *State, rule api.ProfileRule) bool {
	if rule.InnerProcess == nil {
		return len(state.GamemodePids) > 0
	}
	for pid := range state.GamemodePids {
		info, ok := state.ProcessList[pid]
		if !ok {
			continue
		}
		if processMatchesFilter(info, *rule.InnerProcess) {
			return true
		}
	}
	return false
}

// processMatchesFilter applies a Process rule to a single already-known
// process, for the Gamemode(Some(inner)) per-PID check — distinct from
// matchesProcess, which searches the whole name index.
func processMatchesFilter(info ProcessInfo, rule api.ProfileRule) bool {
	if rule.Kind != api.RuleProcess {
		return false
	}
	if info.Name != rule.ProcessName {
		return false
	}
	if rule.ProcessArgs == nil {
		return true
	}
	return strings.Contains(info.Cmdline, *rule.ProcessArgs)
}

// Evaluate walks profiles in declaration order (profileNames preserves
// that order; a Go map cannot) and returns the name of the first whose
// rule matches. An empty string return means no profile matched and
// the top-level default configuration should be active (spec.md §4.6).
func Evaluate(state *State, profileNames []string, profiles map[string]api.Profile) string {
	for _, name := range profileNames {
		p, ok := profiles[name]
		if !ok || p.Rule == nil {
			continue
		}
		if Matches(state, *p.Rule) {
			return name
		}
	}
	return ""
}
