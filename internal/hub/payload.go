package hub

import (
	"encoding/json"

	"github.com/coventry-labs/rsrpc/internal/activity"
	"github.com/coventry-labs/rsrpc/internal/catalog"
)

// renderActivityFrame builds the outbound activity frame (§6 "Activity
// frame") for an application_id/activity/pid/socketId tuple.
func renderActivityFrame(applicationID string, act *activity.Activity, pid uint64, socketID string) ([]byte, error) {
	if act != nil {
		act.ApplicationID = applicationID
	}
	return json.Marshal(activity.Frame{Activity: act, PID: pid, SocketID: socketID})
}

// renderClearingFrame builds the outbound empty/clearing frame (§6 "Empty
// frame").
func renderClearingFrame(pid uint64, socketID string) ([]byte, error) {
	return json.Marshal(activity.Frame{Activity: nil, PID: pid, SocketID: socketID})
}

// scanActivity mirrors activity.Activity's wire shape but without omitempty
// on type/flags/metadata — §6's documented activity-frame shape always
// carries these as literal zero values for process-scan detections, which
// activity.Activity's omitempty tags would otherwise elide entirely.
type scanActivity struct {
	ApplicationID string               `json:"application_id,omitempty"`
	Name          string               `json:"name,omitempty"`
	Type          int                  `json:"type"`
	Timestamps    *activity.Timestamps `json:"timestamps,omitempty"`
	Flags         int                  `json:"flags"`
	Metadata      map[string]any       `json:"metadata"`
}

// renderScanFrame builds the outbound activity frame for a process-scan
// detection (§6 "Activity frame"), stamping the detection's own timestamp
// (catalog.Detected.Timestamp, set by catalog.Stamp) into timestamps.start.
func renderScanFrame(d catalog.Detected, socketID string) ([]byte, error) {
	act := scanActivity{
		ApplicationID: d.ID,
		Name:          d.Name,
		Timestamps:    &activity.Timestamps{Start: &d.Timestamp},
		Metadata:      map[string]any{},
	}
	actJSON, err := json.Marshal(act)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Activity json.RawMessage `json:"activity"`
		PID      uint64          `json:"pid"`
		SocketID string          `json:"socketId"`
	}{Activity: actJSON, PID: d.PID, SocketID: socketID})
}
