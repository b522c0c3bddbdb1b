// Package catalog implements the detectable-application catalog and the
// multi-pattern index built over it (§3 DetectableApplication, §4.2).
package catalog

import "encoding/json"

// Executable is one recognizable binary for a DetectableApplication (§3).
type Executable struct {
	Name       string `json:"name"`
	IsLauncher bool   `json:"is_launcher,omitempty"`
	OS         string `json:"os,omitempty"`
	Arguments  string `json:"arguments,omitempty"`
}

// Application is a catalog entry (§3 DetectableApplication). Unknown JSON
// fields are preserved verbatim in Extra so re-emitting an entry (e.g. from
// append-catalog) round-trips whatever the caller originally sent.
type Application struct {
	ID          string                     `json:"id"`
	Name        string                     `json:"name"`
	Executables []Executable               `json:"executables,omitempty"`
	Extra       map[string]json.RawMessage `json:"-"`
}

// knownFields lists the struct tags UnmarshalJSON strips out of Extra so
// the passthrough map only holds genuinely unrecognized fields.
var knownFields = map[string]struct{}{
	"id": {}, "name": {}, "executables": {},
}

// UnmarshalJSON decodes the known fields normally and stashes everything
// else in Extra (§3 "miscellaneous passthrough fields preserved verbatim").
func (a *Application) UnmarshalJSON(data []byte) error {
	type alias struct {
		ID          string       `json:"id"`
		Name        string       `json:"name"`
		Executables []Executable `json:"executables,omitempty"`
	}
	var v alias
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	a.ID, a.Name, a.Executables = v.ID, v.Name, v.Executables

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Extra = make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		if _, known := knownFields[k]; known {
			continue
		}
		a.Extra[k] = v
	}
	return nil
}

// MarshalJSON re-emits the known fields plus Extra, so a catalog entry
// round-trips byte-for-byte in meaning through append-catalog/remove.
func (a Application) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(a.Extra)+3)
	for k, v := range a.Extra {
		out[k] = v
	}
	idJSON, _ := json.Marshal(a.ID)
	out["id"] = idJSON
	nameJSON, _ := json.Marshal(a.Name)
	out["name"] = nameJSON
	if len(a.Executables) > 0 {
		execJSON, err := json.Marshal(a.Executables)
		if err != nil {
			return nil, err
		}
		out["executables"] = execJSON
	}
	return json.Marshal(out)
}

// Clone returns a deep-enough copy for DetectedActivity's "clone and stamp"
// step (§3 DetectedActivity, §4.6 step 5) — Executables and Extra are
// never mutated after catalog load, so a shallow copy of those plus a
// fresh top-level struct is sufficient.
func (a Application) Clone() Application {
	out := a
	out.Executables = append([]Executable(nil), a.Executables...)
	return out
}
