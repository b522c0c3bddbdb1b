package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// Load parses a JSON array of applications, or an empty JSON object
// (`{}`) as an empty catalog, matching the facade's
// from-source(catalog-json, config) contract (§4.8). Malformed entries
// fail loudly — the caller (cmd/rsrpcd) treats this as fatal per §7
// "Catalog parse error at startup".
func Load(data []byte) ([]Application, error) {
	trimmed := trimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("catalog: invalid JSON object: %w", err)
		}
		if len(obj) != 0 {
			return nil, fmt.Errorf("catalog: expected an array or an empty object, got a non-empty object")
		}
		return nil, nil
	}

	var apps []Application
	if err := json.Unmarshal(trimmed, &apps); err != nil {
		return nil, fmt.Errorf("catalog: invalid JSON array: %w", err)
	}
	return apps, nil
}

// LoadFile reads path and parses it with Load — the "from_file" sibling
// the original Rust implementation exposes alongside from_str (see
// SPEC_FULL.md Expansion 3).
func LoadFile(path string) ([]Application, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Load(data)
}

func trimSpace(b []byte) []byte {
	i, j := 0, len(b)
	for i < j && isSpace(b[i]) {
		i++
	}
	for j > i && isSpace(b[j-1]) {
		j--
	}
	return b[i:j]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
