//go:build linux

package procscan

import (
	"os"
	"strconv"
	"strings"

	"github.com/coventry-labs/rsrpc/internal/catalog"
)

// LinuxEnumerator reads /proc directly instead of going through gopsutil —
// gopsutil's Linux backend was observed not to expose command-line
// arguments reliably, and the argument gate (§4.6 step 4) needs them
// (§9 "Process-enumeration path").
type LinuxEnumerator struct {
	ProcRoot string // defaults to "/proc" when empty
}

func (e *LinuxEnumerator) root() string {
	if e.ProcRoot == "" {
		return "/proc"
	}
	return e.ProcRoot
}

func (e *LinuxEnumerator) Enumerate() (Snapshot, error) {
	dirEntries, err := os.ReadDir(e.root())
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	for _, de := range dirEntries {
		pid64, err := strconv.ParseUint(de.Name(), 10, 64)
		if err != nil {
			continue // not a pid directory
		}

		cmdline, err := os.ReadFile(e.root() + "/" + de.Name() + "/cmdline")
		if err != nil || len(cmdline) == 0 {
			continue // process exited between readdir and read, or kernel thread
		}

		fields := strings.Split(strings.TrimRight(string(cmdline), "\x00"), "\x00")
		if len(fields) == 0 || fields[0] == "" {
			continue
		}

		path := catalog.NormalizePath(fields[0])
		args := ""
		if len(fields) > 1 {
			args = strings.Join(fields[1:], " ")
		}

		snap = append(snap, Entry{PID: pid64, Path: path, Arguments: args})
	}
	return snap, nil
}
