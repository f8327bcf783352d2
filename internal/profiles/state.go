// Package profiles implements the automatic profile switcher (spec.md
// §4.6): process lifecycle tracking, an optional game-mode signal
// source, rule evaluation, and the two-timer debounce that gates how
// often rule evaluation actually runs.
package profiles

// PID is a Linux process ID.
type PID int32

// ProcessInfo is what the watcher keeps about one live process.
type ProcessInfo struct {
	Name    string
	Cmdline string
}

// State is the watcher's live view of the process table (spec.md §4.6):
// `{ process_list: PID -> {name, cmdline}, gamemode_pids: set<PID>,
// name_index: name -> set<PID> }`. The name index exists purely so rule
// evaluation is O(rules) rather than O(processes).
type State struct {
	ProcessList  map[PID]ProcessInfo
	GamemodePids map[PID]struct{}
	NameIndex    map[string]map[PID]struct{}
}

// NewState builds an empty State.
func NewState() *State {
	return &State{
		ProcessList:  map[PID]ProcessInfo{},
		GamemodePids: map[PID]struct{}{},
		NameIndex:    map[string]map[PID]struct{}{},
	}
}

// Upsert records a process exec event, indexing it by name.
func (s *State) Upsert(pid PID, info ProcessInfo) {
	s.ProcessList[pid] = info
	set, ok := s.NameIndex[info.Name]
	if !ok {
		set = map[PID]struct{}{}
		s.NameIndex[info.Name] = set
	}
	set[pid] = struct{}{}
}

// Remove records a process exit event.
func (s *State) Remove(pid PID) {
	info, ok := s.ProcessList[pid]
	if !ok {
		return
	}
	delete(s.ProcessList, pid)
	if set, ok := s.NameIndex[info.Name]; ok {
		delete(set, pid)
		if len(set) == 0 {
			delete(s.NameIndex, info.Name)
		}
	}
}

// SetGamemode records a game-mode register/unregister event for pid.
func (s *State) SetGamemode(pid PID, active bool) {
	if active {
		s.GamemodePids[pid] = struct{}{}
	} else {
		delete(s.GamemodePids, pid)
	}
}
