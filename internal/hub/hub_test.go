package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/coventry-labs/rsrpc/internal/activity"
	"github.com/coventry-labs/rsrpc/internal/catalog"
)

func dialHub(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.Dial(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func drainReady(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("read ready payload: %v", err)
	}
}

func readOne(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}

func TestHubSendsReadyAndEchoes(t *testing.T) {
	h := New()
	ts := httptest.NewServer(http.HandlerFunc(h.handleConnect))
	defer ts.Close()

	conn := dialHub(t, ts)
	defer conn.CloseNow()
	drainReady(t, conn)

	ctx := context.Background()
	if err := conn.Write(ctx, websocket.MessageText, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := readOne(t, conn)
	if string(got) != "hello" {
		t.Errorf("echo = %q, want %q", got, "hello")
	}
}

func TestConsumeIPCSkipsWithNoSubscribers(t *testing.T) {
	h := New()
	events := make(chan activity.Command, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go h.ConsumeIPC(ctx, events)
	events <- activity.Command{Args: &activity.Args{Activity: &activity.Activity{Name: "g"}}}
	time.Sleep(50 * time.Millisecond)
	cancel()
	// No subscriber was connected; nothing to assert beyond "does not panic".
}

func TestConsumeIPCBroadcastsActivityFrame(t *testing.T) {
	h := New()
	ts := httptest.NewServer(http.HandlerFunc(h.handleConnect))
	defer ts.Close()
	conn := dialHub(t, ts)
	defer conn.CloseNow()
	drainReady(t, conn)

	events := make(chan activity.Command, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.ConsumeIPC(ctx, events)

	events <- activity.Command{
		ApplicationID: "app1",
		Args:          &activity.Args{PID: 99, Activity: &activity.Activity{Name: "g"}},
	}

	data := readOne(t, conn)
	var frame activity.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Activity == nil || frame.Activity.ApplicationID != "app1" || frame.PID != 99 || frame.SocketID != "0" {
		t.Errorf("frame = %+v", frame)
	}
}

func TestConsumeIPCBroadcastsClearingFrame(t *testing.T) {
	h := New()
	ts := httptest.NewServer(http.HandlerFunc(h.handleConnect))
	defer ts.Close()
	conn := dialHub(t, ts)
	defer conn.CloseNow()
	drainReady(t, conn)

	events := make(chan activity.Command, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.ConsumeIPC(ctx, events)

	events <- activity.Command{ApplicationID: "999", Args: &activity.Args{PID: 4321, Activity: nil}}

	data := readOne(t, conn)
	var frame activity.Frame
	json.Unmarshal(data, &frame)
	if frame.Activity != nil || frame.PID != 4321 || frame.SocketID != "999" {
		t.Errorf("frame = %+v, want clearing frame with pid 4321 and socketId 999", frame)
	}
}

func TestConsumeScanArbitratesActiveSocket(t *testing.T) {
	h := New()
	ts := httptest.NewServer(http.HandlerFunc(h.handleConnect))
	defer ts.Close()
	conn := dialHub(t, ts)
	defer conn.CloseNow()
	drainReady(t, conn)

	events := make(chan catalog.Detected, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.ConsumeScan(ctx, events)

	gameA := catalog.Detected{Application: catalog.Application{ID: "gameA", Name: "Game A"}, PID: 1, Timestamp: 1700000000000}
	events <- gameA
	data := readOne(t, conn)
	var frame activity.Frame
	json.Unmarshal(data, &frame)
	if frame.Activity == nil || frame.Activity.ApplicationID != "gameA" || frame.SocketID != "gameA" {
		t.Fatalf("first frame = %+v", frame)
	}
	var rawFields map[string]json.RawMessage
	json.Unmarshal(data, &rawFields)
	var rawActivity map[string]json.RawMessage
	json.Unmarshal(rawFields["activity"], &rawActivity)
	if string(rawActivity["type"]) != "0" {
		t.Errorf("activity.type = %s, want literal 0", rawActivity["type"])
	}
	if string(rawActivity["flags"]) != "0" {
		t.Errorf("activity.flags = %s, want literal 0", rawActivity["flags"])
	}
	if string(rawActivity["metadata"]) != "{}" {
		t.Errorf("activity.metadata = %s, want literal {}", rawActivity["metadata"])
	}
	if frame.Activity.Timestamps == nil || *frame.Activity.Timestamps.Start != 1700000000000 {
		t.Errorf("activity.timestamps.start = %+v, want 1700000000000", frame.Activity.Timestamps)
	}

	// Switching to a different game must clear the old socket first, then
	// broadcast the new activity — two frames.
	gameB := catalog.Detected{Application: catalog.Application{ID: "gameB", Name: "Game B"}, PID: 2}
	events <- gameB

	clearFrame := readOne(t, conn)
	var cf activity.Frame
	json.Unmarshal(clearFrame, &cf)
	if cf.Activity != nil || cf.SocketID != "gameA" {
		t.Errorf("clear frame = %+v, want clearing gameA", cf)
	}

	newFrame := readOne(t, conn)
	var nf activity.Frame
	json.Unmarshal(newFrame, &nf)
	if nf.Activity == nil || nf.Activity.ApplicationID != "gameB" {
		t.Errorf("new frame = %+v, want gameB activity", nf)
	}
}

func TestConsumeScanSuppressesSameOwner(t *testing.T) {
	h := New()
	ts := httptest.NewServer(http.HandlerFunc(h.handleConnect))
	defer ts.Close()
	conn := dialHub(t, ts)
	defer conn.CloseNow()
	drainReady(t, conn)

	events := make(chan catalog.Detected, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.ConsumeScan(ctx, events)

	game := catalog.Detected{Application: catalog.Application{ID: "gameA", Name: "Game A"}, PID: 1}
	events <- game
	readOne(t, conn) // initial activity frame

	events <- game // same owner again — must be suppressed

	select {
	case data := <-func() chan []byte {
		ch := make(chan []byte, 1)
		go func() {
			ctx2, cancel2 := context.WithTimeout(context.Background(), 300*time.Millisecond)
			defer cancel2()
			if _, d, err := conn.Read(ctx2); err == nil {
				ch <- d
			}
		}()
		return ch
	}():
		t.Errorf("unexpected second frame: %s", data)
	case <-time.After(400 * time.Millisecond):
		// expected: nothing broadcast for the repeated owner
	}
}

func TestConsumeScanSentinelClearsActiveSocket(t *testing.T) {
	h := New()
	ts := httptest.NewServer(http.HandlerFunc(h.handleConnect))
	defer ts.Close()
	conn := dialHub(t, ts)
	defer conn.CloseNow()
	drainReady(t, conn)

	events := make(chan catalog.Detected, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.ConsumeScan(ctx, events)

	events <- catalog.Detected{Application: catalog.Application{ID: "gameA", Name: "Game A"}, PID: 1}
	readOne(t, conn)

	events <- catalog.Sentinel()
	data := readOne(t, conn)
	var frame activity.Frame
	json.Unmarshal(data, &frame)
	if frame.Activity != nil || frame.SocketID != "gameA" {
		t.Errorf("sentinel clearing frame = %+v", frame)
	}
}

func TestConsumeWSForwardsNonActivityUntouched(t *testing.T) {
	h := New()
	ts := httptest.NewServer(http.HandlerFunc(h.handleConnect))
	defer ts.Close()
	conn := dialHub(t, ts)
	defer conn.CloseNow()
	drainReady(t, conn)

	events := make(chan activity.Command, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.ConsumeWS(ctx, events)

	events <- activity.Command{Cmd: "INVITE_BROWSER", Nonce: "n1"}
	data := readOne(t, conn)
	var got activity.Command
	json.Unmarshal(data, &got)
	if got.Cmd != "INVITE_BROWSER" || got.Nonce != "n1" {
		t.Errorf("got = %+v", got)
	}
}

func TestConsumeWSRendersActivityArgs(t *testing.T) {
	h := New()
	ts := httptest.NewServer(http.HandlerFunc(h.handleConnect))
	defer ts.Close()
	conn := dialHub(t, ts)
	defer conn.CloseNow()
	drainReady(t, conn)

	events := make(chan activity.Command, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.ConsumeWS(ctx, events)

	start := int64(1700000000)
	events <- activity.Command{
		Cmd:  "SET_ACTIVITY",
		Args: &activity.Args{PID: 5, Activity: &activity.Activity{Name: "g", Timestamps: &activity.Timestamps{Start: &start}}},
	}
	data := readOne(t, conn)
	var args activity.Args
	json.Unmarshal(data, &args)
	if args.PID != 5 || *args.Activity.Timestamps.Start != 1700000000000 {
		t.Errorf("args = %+v", args)
	}
}
