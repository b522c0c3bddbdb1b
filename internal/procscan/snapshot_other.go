//go:build !linux

package procscan

import (
	"strings"

	"github.com/coventry-labs/rsrpc/internal/catalog"
	"github.com/shirou/gopsutil/v3/process"
)

// GeneralEnumerator is the non-Linux implementation (§4.3 "General"):
// queries the OS for every visible process via gopsutil and extracts
// pid, absolute executable path, and argv joined by a single space
// (argv[0] is the path; the rest is the "arguments" field).
type GeneralEnumerator struct{}

func (GeneralEnumerator) Enumerate() (Snapshot, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	for _, p := range procs {
		exe, err := p.Exe()
		if err != nil || exe == "" {
			continue // permission denied or process exited mid-scan
		}

		args := ""
		if cmdline, err := p.CmdlineSlice(); err == nil && len(cmdline) > 1 {
			args = strings.Join(cmdline[1:], " ")
		}

		snap = append(snap, Entry{
			PID:       uint64(p.Pid),
			Path:      catalog.NormalizePath(exe),
			Arguments: args,
		})
	}
	return snap, nil
}
