package profiles

import (
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// readProcessInfo reads a process's name and command line via gopsutil
// (the teacher's own PID-to-process lookup, e.g.
// components/accelerator/nvidia/processes/processes.go's
// process.NewProcess/.CmdlineSlice), used to fill ProcessInfo for
// Process{name,args} rule matching (spec.md §4.6). A process that has
// already exited (common: the event race is inherent to both the
// netlink and polling connectors) yields a zero ProcessInfo rather than
// an error.
func readProcessInfo(pid PID) ProcessInfo {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return ProcessInfo{}
	}

	name, _ := p.Name()

	args, err := p.CmdlineSlice()
	if err != nil {
		return ProcessInfo{Name: name}
	}
	return ProcessInfo{Name: name, Cmdline: strings.Join(args, " ")}
}
