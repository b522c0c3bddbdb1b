// Package hub implements the fan-out hub (C7): the plain WebSocket
// broadcast server on port 1337 and its three upstream consumer loops
// (§4.7). Only the process-scan loop arbitrates ownership of
// "active_socket"; IPC and WS-intake frames are broadcast without reading
// or updating it.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/coventry-labs/rsrpc/internal/activity"
	"github.com/coventry-labs/rsrpc/internal/catalog"
	"github.com/coventry-labs/rsrpc/internal/logger"
)

// Port is the fixed fan-out listen port (§4.7, §6 "Fan-out WebSocket").
const Port = 1337

const subscriberSendBuffer = 64
const writeTimeout = 10 * time.Second

// Hub owns the subscriber set, shared by the three consumer threads, and
// the active_socket/last_pid arbitration state, which only the process-scan
// consumer reads and writes (§4.7, §5 "Shared resources").
type Hub struct {
	mu   sync.Mutex
	subs map[string]*subscriber

	activeSocket string // "" means no source currently owns presence
	lastPID      uint64
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// New constructs an empty Hub.
func New() *Hub {
	return &Hub{subs: map[string]*subscriber{}}
}

// Run serves the fan-out WebSocket on Port until ctx is canceled. There is
// no query-string or origin restriction on this endpoint (§6).
func (h *Hub) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleConnect)
	srv := &http.Server{Addr: "0.0.0.0:1337", Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		srv.Close()
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (h *Hub) handleConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	id := uuid.New().String()
	sub := &subscriber{conn: conn, send: make(chan []byte, subscriberSendBuffer)}

	h.mu.Lock()
	h.subs[id] = sub
	h.mu.Unlock()
	logger.Info("hub: subscriber connected", "id", id)

	defer func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		logger.Info("hub: subscriber disconnected", "id", id)
	}()

	ctx := r.Context()
	if err := h.writeTo(ctx, sub, activity.ReadyPayload); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-sub.send:
				if !ok {
					return
				}
				if h.writeTo(ctx, sub, payload) != nil {
					return
				}
			}
		}
	}()

	// Subscribers are not interpreted — inbound frames are echoed back
	// verbatim (§4.7 "Subscriber lifecycle").
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		select {
		case sub.send <- data:
		default:
		}
	}
	<-done
}

func (h *Hub) writeTo(ctx context.Context, sub *subscriber, payload []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return sub.conn.Write(writeCtx, websocket.MessageText, payload)
}

// broadcast sends payload to every current subscriber, dropping it for any
// subscriber whose buffer is full rather than blocking the caller (§5
// "no backpressure").
func (h *Hub) broadcast(payload []byte) {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.send <- payload:
		default:
		}
	}
}

func (h *Hub) hasSubscribers() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs) > 0
}

// ConsumeIPC runs the IPC intake consumer thread (§4.7 "IPC thread").
func (h *Hub) ConsumeIPC(ctx context.Context, events <-chan activity.Command) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-events:
			if !ok {
				return
			}
			h.consumeIPCCommand(cmd)
		}
	}
}

func (h *Hub) consumeIPCCommand(cmd activity.Command) {
	if !h.hasSubscribers() {
		return
	}

	var pid uint64
	if cmd.Args != nil {
		pid = cmd.Args.PID
		activity.Normalize(cmd.Args.Activity)
	}

	var payload []byte
	var err error
	if cmd.Args == nil || cmd.Args.Activity == nil {
		payload, err = renderClearingFrame(pid, cmd.ApplicationID)
	} else {
		payload, err = renderActivityFrame(cmd.ApplicationID, cmd.Args.Activity, pid, "0")
	}
	if err != nil {
		logger.Warn("hub: render ipc frame", "error", err)
		return
	}
	h.broadcast(payload)
}

// ConsumeScan runs the process-scan consumer thread, arbitrating
// active_socket ownership (§4.7 "Process-scan thread").
func (h *Hub) ConsumeScan(ctx context.Context, events <-chan catalog.Detected) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-events:
			if !ok {
				return
			}
			h.consumeScanEvent(d)
		}
	}
}

func (h *Hub) consumeScanEvent(d catalog.Detected) {
	if !h.hasSubscribers() {
		return
	}

	h.mu.Lock()
	active := h.activeSocket
	h.mu.Unlock()

	if d.IsSentinel() {
		if active == "" {
			return
		}
		payload, err := renderClearingFrame(h.currentLastPID(), active)
		if err == nil {
			h.broadcast(payload)
		}
		h.mu.Lock()
		h.activeSocket = ""
		h.mu.Unlock()
		return
	}

	if active == d.ID {
		h.setLastPID(d.PID)
		return // same owner already sent, suppress
	}

	if active != "" {
		payload, err := renderClearingFrame(h.currentLastPID(), active)
		if err == nil {
			h.broadcast(payload)
		}
	}

	payload, err := renderScanFrame(d, d.ID)
	if err == nil {
		h.broadcast(payload)
	}

	h.mu.Lock()
	h.activeSocket = d.ID
	h.lastPID = d.PID
	h.mu.Unlock()
}

func (h *Hub) currentLastPID() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastPID
}

func (h *Hub) setLastPID(pid uint64) {
	h.mu.Lock()
	h.lastPID = pid
	h.mu.Unlock()
}

// ConsumeWS runs the WS-intake consumer thread (§4.7 "WS-intake thread").
func (h *Hub) ConsumeWS(ctx context.Context, events <-chan activity.Command) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-events:
			if !ok {
				return
			}
			h.consumeWSCommand(cmd)
		}
	}
}

func (h *Hub) consumeWSCommand(cmd activity.Command) {
	if !h.hasSubscribers() {
		return
	}

	if cmd.Cmd != "SET_ACTIVITY" {
		payload, err := json.Marshal(cmd)
		if err != nil {
			logger.Warn("hub: marshal ws command", "error", err)
			return
		}
		h.broadcast(payload)
		return
	}

	if cmd.Args == nil {
		return
	}
	activity.FixTimestamps(cmd.Args.Activity)
	payload, err := json.Marshal(cmd.Args)
	if err != nil {
		logger.Warn("hub: marshal ws args", "error", err)
		return
	}
	h.broadcast(payload)
}
