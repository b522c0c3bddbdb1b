package wsintake

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
)

func newTestHTTPServer(t *testing.T, events chan activity.Command) *httptest.Server {
	t.Helper()
	s := &Server{Events: events}
	ts := httptest.NewServer(http.HandlerFunc(s.handleUpgrade))
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/?" + query
	conn, _, err := websocket.Dial(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestRejectsBadQueryString(t *testing.T) {
	ts := newTestHTTPServer(t, nil)
	resp, err := http.Get(ts.URL + "/?v=2&encoding=json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestConnectSendsReadyPayload(t *testing.T) {
	ts := newTestHTTPServer(t, nil)
	conn := dial(t, ts, "v=1&encoding=json")
	defer conn.CloseNow()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != string(activity.ReadyPayload) {
		t.Errorf("payload = %s, want ready payload", data)
	}
}

func TestSetActivityFannedOutAndNormalized(t *testing.T) {
	events := make(chan activity.Command, 4)
	ts := newTestHTTPServer(t, events)
	conn := dial(t, ts, "v=1&encoding=json")
	defer conn.CloseNow()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn.Read(ctx) // drain ready payload

	start := int64(1700000000)
	cmd := activity.Command{
		Cmd:           "SET_ACTIVITY",
		ApplicationID: "app1",
		Args: &activity.Args{
			PID:      55,
			Activity: &activity.Activity{Name: "g", Timestamps: &activity.Timestamps{Start: &start}},
		},
	}
	data, _ := json.Marshal(cmd)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-events:
		if *got.Args.Activity.Timestamps.Start != 1700000000000 {
			t.Errorf("Start = %d, want normalized", *got.Args.Activity.Timestamps.Start)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestInviteBrowserEchoesFlatArgs(t *testing.T) {
	events := make(chan activity.Command, 4)
	ts := newTestHTTPServer(t, events)
	conn := dial(t, ts, "v=1&encoding=json")
	defer conn.CloseNow()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn.Read(ctx) // drain ready payload

	cmd := activity.Command{Cmd: "INVITE_BROWSER", Nonce: "n1", Args: &activity.Args{PID: 42, Code: "abc"}}
	data, _ := json.Marshal(cmd)
	conn.Write(ctx, websocket.MessageText, data)

	<-events // the fan-out copy

	_, reply, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	var got struct {
		Cmd   string            `json:"cmd"`
		Data  map[string]string `json:"data"`
		Nonce string            `json:"nonce"`
	}
	if err := json.Unmarshal(reply, &got); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if got.Cmd != "INVITE_BROWSER" || got.Nonce != "n1" || got.Data["pid"] != "42" {
		t.Errorf("reply = %+v", got)
	}
}

func TestDisconnectSynthesizesClear(t *testing.T) {
	events := make(chan activity.Command, 4)
	ts := newTestHTTPServer(t, events)
	conn := dial(t, ts, "v=1&encoding=json")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn.Read(ctx) // drain ready payload

	cmd := activity.Command{Cmd: "SET_ACTIVITY", ApplicationID: "app1", Args: &activity.Args{PID: 7, Activity: &activity.Activity{Name: "g"}}}
	data, _ := json.Marshal(cmd)
	conn.Write(ctx, websocket.MessageText, data)
	<-events // drain the SET_ACTIVITY

	conn.Close(websocket.StatusNormalClosure, "done")

	select {
	case got := <-events:
		if got.Args.Activity != nil || got.Args.PID != 7 || got.ApplicationID != "app1" {
			t.Errorf("clearing event = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for synthetic clearing event")
	}
}
