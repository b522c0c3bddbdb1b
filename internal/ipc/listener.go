// Package ipc implements the native binary IPC endpoint (C4): multi-socket
// listener, per-connection handshake/close state machine (§4.4).
package ipc

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coventry-labs/rsrpc/internal/activity"
	"github.com/coventry-labs/rsrpc/internal/logger"
)

// Listener is the platform-agnostic accept surface (§9 "Platform split"):
// a Unix domain socket on non-Windows, a named pipe on Windows.
type Listener interface {
	Accept() (io.ReadWriteCloser, error)
	Close() error
}

// maxBindAttempts is the number of suffixes tried before giving up (§4.4).
const maxBindAttempts = 10

// acceptBackoff is the sleep between accepts, to smooth tight reconnect
// loops (§4.4 "Concurrency").
const acceptBackoff = 5 * time.Millisecond

// Server runs the IPC accept loop and hands each connection to its own
// worker goroutine (§4.4, §5).
type Server struct {
	// Events receives ActivityCommand events produced by connections.
	Events chan<- activity.Command

	mu           sync.Mutex
	ln           Listener
	suffix       int
	wantRecreate atomic.Bool
}

// Run binds the first available socket suffix and accepts connections
// until ctx is canceled. It panics after exhausting all ten suffixes
// (§4.4 "after ten failed attempts the component panics").
func (s *Server) Run(ctx context.Context) error {
	if err := s.bindFirstAvailable(); err != nil {
		panic(err)
	}
	defer s.closeCurrent()

	go func() {
		<-ctx.Done()
		s.closeCurrent()
	}()

	for {
		ln := s.currentListener()
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if s.wantRecreate.CompareAndSwap(true, false) {
				if bindErr := s.rebindSameSuffix(); bindErr != nil {
					return fmt.Errorf("ipc: recreate listener: %w", bindErr)
				}
				continue
			}
			return fmt.Errorf("ipc: accept: %w", err)
		}

		go s.handleConn(ctx, conn)
		time.Sleep(acceptBackoff)
	}
}

func (s *Server) bindFirstAvailable() error {
	var lastErr error
	for suffix := 0; suffix < maxBindAttempts; suffix++ {
		ln, err := bindAt(suffix)
		if err != nil {
			lastErr = err
			logger.Debug("ipc: bind suffix busy", "suffix", suffix, "error", err)
			continue
		}
		s.mu.Lock()
		s.ln = ln
		s.suffix = suffix
		s.mu.Unlock()
		logger.Info("ipc: listening", "suffix", suffix)
		return nil
	}
	return fmt.Errorf("ipc: exhausted %d bind attempts: %w", maxBindAttempts, lastErr)
}

func (s *Server) rebindSameSuffix() error {
	s.mu.Lock()
	suffix := s.suffix
	s.mu.Unlock()

	ln, err := bindAt(suffix)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	logger.Info("ipc: listener recreated", "suffix", suffix)
	return nil
}

func (s *Server) currentListener() Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ln
}

func (s *Server) closeCurrent() {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
}

// requestRecreate closes the current listener (unblocking Accept) and
// flags that the accept loop should rebind at the same suffix rather than
// treat the resulting error as fatal (§4.4 Close transition, §7 "Socket
// close from peer").
func (s *Server) requestRecreate() {
	s.wantRecreate.Store(true)
	s.closeCurrent()
}

// post sends cmd on Events, or does nothing when Events is nil. The send
// blocks until a consumer receives it; it does not give up on shutdown.
func (s *Server) post(cmd activity.Command) {
	if s.Events == nil {
		return
	}
	s.Events <- cmd
}
