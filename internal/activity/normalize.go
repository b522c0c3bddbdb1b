package activity

import (
	"encoding/json"
	"time"
)

// cutoffYears mirrors the original's heuristic: a timestamp further than
// this many years in the future from now is assumed to already be
// milliseconds (§4.7 fix_timestamps, §9 Open Question (a)).
const cutoffYears = 100

// FixTimestamps rewrites activity.timestamps.{start,end} in place: a value
// greater than now+100 years is assumed already-milliseconds and left
// alone; otherwise it is multiplied by 1000. A converted value is a fixed
// point once its ×1000 result lies past the cutoff, which holds for any
// seconds timestamp later than a few months after the Unix epoch (§8
// property 5). Smaller values are multiplied again on every call.
func FixTimestamps(a *Activity) {
	if a == nil || a.Timestamps == nil {
		return
	}
	cutoff := time.Now().Unix() + int64(cutoffYears)*365*24*3600
	fix := func(v *int64) {
		if v == nil {
			return
		}
		if *v <= cutoff {
			*v *= 1000
		}
	}
	fix(a.Timestamps.Start)
	fix(a.Timestamps.End)
}

// FixButtons splits a list of {label, url} objects into
// buttons = [label, ...] and metadata.button_urls = [url, ...]. Any other
// shape (already a list of strings, absent, malformed) passes through
// untouched (§4.7 fix_buttons).
func FixButtons(a *Activity) {
	if a == nil || len(a.Buttons) == 0 {
		return
	}

	var objects []button
	if err := json.Unmarshal(a.Buttons, &objects); err != nil {
		return
	}
	// A list of plain strings already failed above, but elements such as
	// null unmarshal into an empty button; guard against that by checking
	// that every raw element is an object.
	var raw []json.RawMessage
	if err := json.Unmarshal(a.Buttons, &raw); err != nil || len(raw) == 0 {
		return
	}
	for _, r := range raw {
		trimmed := trimLeadingSpace(r)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return // not a list of {label,url} objects — leave untouched
		}
	}

	labels := make([]string, len(objects))
	urls := make([]string, len(objects))
	for i, b := range objects {
		labels[i] = b.Label
		urls[i] = b.URL
	}

	labelsJSON, _ := json.Marshal(labels)
	a.Buttons = labelsJSON

	if a.Metadata == nil {
		a.Metadata = map[string]any{}
	}
	a.Metadata["button_urls"] = urls
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r') {
		i++
	}
	return b[i:]
}

// FixFlags sets flags=1 when instance is true and flags is absent (§4.7
// fix_flags).
func FixFlags(a *Activity) {
	if a == nil {
		return
	}
	if a.Instance && a.Flags == nil {
		one := 1
		a.Flags = &one
	}
}

// Normalize applies all three normalizations in order. The hub's IPC
// consumer and the WebSocket intake call it; the IPC listener itself
// passes activities through unnormalized (§4.4, §4.7).
func Normalize(a *Activity) {
	FixTimestamps(a)
	FixButtons(a)
	FixFlags(a)
}
