// Package wsintake implements the browser WebSocket intake endpoint (C5):
// a small HTTP server accepting WebSocket upgrades from the Discord web
// client on the first free port in 6463..6472 (§4.5, §6 "Intake WebSocket").
package wsintake

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/coventry-labs/rsrpc/internal/activity"
	"github.com/coventry-labs/rsrpc/internal/logger"
)

const (
	minPort = 6463
	maxPort = 6472

	writeTimeout = 10 * time.Second
)

var allowedOrigins = map[string]bool{
	"https://discord.com":        true,
	"https://canary.discord.com": true,
	"https://ptb.discord.com":    true,
}

// Server binds the intake WebSocket and forwards ActivityCommand events
// onto Events (§4.5).
type Server struct {
	Events chan<- activity.Command

	// EnableSecondaryEvents controls whether unrecognized commands are
	// forwarded on Events at all (SPEC_FULL.md Expansion 1).
	// SET_ACTIVITY and INVITE_BROWSER are always forwarded; DEEP_LINK is
	// only logged, whatever this flag says.
	EnableSecondaryEvents bool

	srv  *http.Server
	ln   net.Listener
	port int
}

// Run binds the first free port in 6463..6472 and serves until ctx is
// canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, port, err := bindFirstFreePort()
	if err != nil {
		return fmt.Errorf("wsintake: %w", err)
	}
	s.ln = ln
	s.port = port

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	s.srv = &http.Server{Handler: mux}

	logger.Info("wsintake: listening", "port", port)

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		s.srv.Close()
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("wsintake: serve: %w", err)
	}
}

func bindFirstFreePort() (net.Listener, int, error) {
	var lastErr error
	for port := minPort; port <= maxPort; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			lastErr = err
			continue
		}
		return ln, port, nil
	}
	return nil, 0, fmt.Errorf("exhausted ports %d-%d: %w", minPort, maxPort, lastErr)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("v") != "1" || q.Get("encoding") != "json" {
		logger.Warn("wsintake: rejecting connection, bad query string", "query", q.Encode())
		http.Error(w, "bad query string", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	originOK := true
	if origin := r.Header.Get("Origin"); origin != "" {
		originOK = allowedOrigins[origin]
	}

	ctx := r.Context()
	if err := s.writeJSON(ctx, conn, activity.ReadyPayload); err != nil {
		return
	}

	sub := &subscriber{server: s, conn: conn}
	sub.run(ctx, originOK)
}

func (s *Server) writeJSON(ctx context.Context, conn *websocket.Conn, payload []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, payload)
}

// subscriber tracks per-connection state needed for the disconnect
// synthetic-clear rule (§4.5 "On disconnect").
type subscriber struct {
	server *Server
	conn   *websocket.Conn

	postedActivity bool
	lastAppID      string
	lastPID        uint64
	lastNonce      string
}

func (sub *subscriber) run(ctx context.Context, originOK bool) {
	for {
		_, data, err := sub.conn.Read(ctx)
		if err != nil {
			break
		}
		if !originOK {
			logger.Warn("wsintake: dropping message from disallowed origin")
			continue
		}
		sub.handleMessage(ctx, data)
	}

	if sub.postedActivity {
		sub.server.post(activity.Command{
			Cmd:           "SET_ACTIVITY",
			ApplicationID: sub.lastAppID,
			Nonce:         sub.lastNonce,
			Args:          &activity.Args{PID: sub.lastPID, Activity: nil},
		})
	}
}

func (sub *subscriber) handleMessage(ctx context.Context, data []byte) {
	var cmd activity.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		logger.Warn("wsintake: malformed message", "error", err)
		return
	}

	switch cmd.Cmd {
	case "SET_ACTIVITY":
		if cmd.Args == nil {
			return
		}
		activity.Normalize(cmd.Args.Activity)
		sub.postedActivity = true
		sub.lastAppID = cmd.ApplicationID
		sub.lastPID = cmd.Args.PID
		sub.lastNonce = cmd.Nonce
		sub.server.post(cmd)

	case "INVITE_BROWSER":
		sub.server.post(cmd)
		sub.replyInvite(ctx, cmd)

	case "DEEP_LINK":
		logger.Info("wsintake: deep link", "data", string(cmd.Data))

	default:
		if sub.server.EnableSecondaryEvents {
			sub.server.post(cmd)
		}
	}
}

// replyInvite answers an INVITE_BROWSER with an echo carrying the
// request's args flattened to a string map (§4.5).
func (sub *subscriber) replyInvite(ctx context.Context, cmd activity.Command) {
	flat := map[string]string{}
	if cmd.Args != nil {
		flat["pid"] = strconv.FormatUint(cmd.Args.PID, 10)
		flat["code"] = cmd.Args.Code
	}
	reply := struct {
		Cmd   string            `json:"cmd"`
		Data  map[string]string `json:"data"`
		Nonce string            `json:"nonce"`
	}{Cmd: cmd.Cmd, Data: flat, Nonce: cmd.Nonce}

	payload, err := json.Marshal(reply)
	if err != nil {
		return
	}
	sub.server.writeJSON(ctx, sub.conn, payload)
}

func (s *Server) post(cmd activity.Command) {
	if s.Events == nil {
		return
	}
	s.Events <- cmd
}
