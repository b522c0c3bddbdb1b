//go:build !windows

package ipc

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
)

// socketDir picks the first non-empty directory from the fallback chain
// XDG_RUNTIME_DIR, TMPDIR, TMP, TEMP, then /tmp (§4.4 "Socket creation").
func socketDir() string {
	for _, env := range []string{"XDG_RUNTIME_DIR", "TMPDIR", "TMP", "TEMP"} {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return "/tmp"
}

func socketPath(suffix int) string {
	return socketDir() + "/discord-ipc-" + strconv.Itoa(suffix)
}

type unixListener struct {
	ln   net.Listener
	path string
}

func (l *unixListener) Accept() (io.ReadWriteCloser, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (l *unixListener) Close() error {
	err := l.ln.Close()
	os.Remove(l.path)
	return err
}

// bindAt binds the Unix domain socket for suffix N (§4.4).
func bindAt(suffix int) (Listener, error) {
	path := socketPath(suffix)
	os.Remove(path) // clear a stale socket file left by a prior crash

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("ipc: listen unix %s: %w", path, err)
	}
	return &unixListener{ln: ln, path: path}, nil
}
