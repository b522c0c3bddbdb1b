//go:build windows

package ipc

import (
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/Microsoft/go-winio"
)

func pipePath(suffix int) string {
	return `\\.\pipe\discord-ipc-` + strconv.Itoa(suffix)
}

type pipeListener struct {
	ln net.Listener
}

func (l *pipeListener) Accept() (io.ReadWriteCloser, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (l *pipeListener) Close() error {
	return l.ln.Close()
}

// bindAt binds the named pipe for suffix N (§4.4).
func bindAt(suffix int) (Listener, error) {
	path := pipePath(suffix)
	ln, err := winio.ListenPipe(path, nil)
	if err != nil {
		return nil, fmt.Errorf("ipc: listen pipe %s: %w", path, err)
	}
	return &pipeListener{ln: ln}, nil
}
