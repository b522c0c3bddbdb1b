package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/coventry-labs/rsrpc/internal/activity"
	"github.com/coventry-labs/rsrpc/internal/codec"
	"github.com/coventry-labs/rsrpc/internal/logger"
)

// connState is per-connection and owned exclusively by the worker handling
// that connection — it is destroyed when the connection closes (§3
// "Subscriber"/"Ownership", §4.4 "Per-connection state").
type connState struct {
	didHandshake bool
	clientID     string
	pid          uint64
	nonce        string
}

func (cs *connState) clearingCommand() activity.Command {
	return activity.Command{
		Cmd:           "SET_ACTIVITY",
		ApplicationID: cs.clientID,
		Nonce:         cs.nonce,
		Args:          &activity.Args{PID: cs.pid, Activity: nil},
	}
}

// handleConn drives one connection through the Awaiting-Handshake → Ready →
// Closed state machine (§4.4).
func (s *Server) handleConn(ctx context.Context, conn io.ReadWriteCloser) {
	defer conn.Close()

	cs := &connState{}
	for {
		op, payload, err := codec.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("ipc: read error, closing connection", "error", err)
			}
			if cs.didHandshake {
				s.post(cs.clearingCommand())
			}
			s.requestRecreate()
			return
		}

		switch op {
		case codec.OpHandshake:
			s.onHandshake(conn, cs, payload)

		case codec.OpFrame:
			if !cs.didHandshake {
				continue // discard frames before handshake completes
			}
			s.onFrame(cs, payload)

		case codec.OpPing:
			if cs.didHandshake {
				conn.Write(codec.Encode(codec.OpPong, payload))
			}

		case codec.OpPong:
			logger.Debug("ipc: pong received")

		case codec.OpClose:
			if cs.didHandshake {
				s.post(cs.clearingCommand())
			}
			s.requestRecreate()
			return

		default:
			// an unknown op is handled as a Frame (§4.1) — lenient dispatch.
			if cs.didHandshake {
				s.onFrame(cs, payload)
			}
		}
	}
}

func (s *Server) onHandshake(conn io.Writer, cs *connState, payload []byte) {
	var hs activity.Handshake
	if err := json.Unmarshal(payload, &hs); err != nil || hs.V != 1 {
		logger.Warn("ipc: rejected handshake", "error", err, "v", hs.V)
		return
	}
	cs.clientID = hs.ClientID
	cs.didHandshake = true
	conn.Write(codec.Encode(codec.OpFrame, activity.ReadyPayload))
}

func (s *Server) onFrame(cs *connState, payload []byte) {
	var cmd activity.Command
	if err := json.Unmarshal(payload, &cmd); err != nil || cmd.Args == nil {
		// malformed or missing args (§4.4 Ready/Frame table row 2):
		// synthesise an empty-activity event carrying the connection's
		// current pid.
		s.post(activity.Command{
			Cmd:           "SET_ACTIVITY",
			ApplicationID: cs.clientID,
			Nonce:         cs.nonce,
			Args:          &activity.Args{PID: cs.pid, Activity: nil},
		})
		return
	}

	cs.pid = cmd.Args.PID
	cs.nonce = cmd.Nonce
	cmd.ApplicationID = cs.clientID // §3 "never trusted from the wire"
	s.post(cmd)                    // normalisation is applied by the fan-out hub (§4.7)
}
