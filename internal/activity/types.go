// Package activity holds the wire shapes exchanged with native IPC clients
// and browser WebSocket clients (§3 ActivityCommand/Activity) plus the
// normalizations the fan-out hub applies before broadcasting (§4.7).
package activity

import "encoding/json"

// Command is the wire shape of a platform RPC command (§3 ActivityCommand).
type Command struct {
	Cmd           string          `json:"cmd"`
	Args          *Args           `json:"args,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Evt           string          `json:"evt,omitempty"`
	Nonce         string          `json:"nonce,omitempty"`
	ApplicationID string          `json:"application_id,omitempty"`
}

// Args is the payload of a SET_ACTIVITY / INVITE_BROWSER command.
type Args struct {
	PID      uint64    `json:"pid,omitempty"`
	Activity *Activity `json:"activity"`
	Code     string    `json:"code,omitempty"`
}

// Activity is the rich-presence payload itself.
type Activity struct {
	ApplicationID string          `json:"application_id,omitempty"`
	Name          string          `json:"name,omitempty"`
	Type          int             `json:"type,omitempty"`
	State         string          `json:"state,omitempty"`
	Details       string          `json:"details,omitempty"`
	Timestamps    *Timestamps     `json:"timestamps,omitempty"`
	Assets        json.RawMessage `json:"assets,omitempty"`
	Party         json.RawMessage `json:"party,omitempty"`
	Secrets       json.RawMessage `json:"secrets,omitempty"`
	Buttons       json.RawMessage `json:"buttons,omitempty"`
	Flags         *int            `json:"flags,omitempty"`
	Instance      bool            `json:"instance,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
}

// Timestamps holds the start/end fields fix_timestamps normalizes (§4.7).
type Timestamps struct {
	Start *int64 `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
}

// button is the {label, url} shape fix_buttons recognizes (§4.7).
type button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Frame is the outbound shape sent to subscribers: either an activity
// frame or an empty/clearing frame (§6).
type Frame struct {
	Activity *Activity `json:"activity"`
	PID      uint64    `json:"pid"`
	SocketID string    `json:"socketId"`
}

// Handshake is the body of the IPC Handshake op (§6).
type Handshake struct {
	V        int    `json:"v"`
	ClientID string `json:"client_id"`
}

// ReadyPayload is the fixed payload sent on every successful subscriber
// connect and as the Frame reply to a successful IPC handshake (§6).
var ReadyPayload = json.RawMessage(`{"cmd":"DISPATCH","evt":"READY","data":{"v":1,` +
	`"user":{"id":"1045800378228281345","username":"arRPC","discriminator":"0000",` +
	`"avatar":"cfefa4d9839fb4bdf030f91c2a13e95c","flags":0,"premium_type":0},` +
	`"config":{"api_endpoint":"//discord.com/api","cdn_host":"cdn.discordapp.com",` +
	`"environment":"production"}}}`)
