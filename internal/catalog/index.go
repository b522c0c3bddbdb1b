package catalog

import (
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
)

// Index is the compiled multi-pattern automaton plus the pattern table
// (§3 CatalogIndex, §4.2). It is rebuilt atomically on every catalog
// change: readers always see a consistent (matcher, table) pair because
// Build returns a brand-new Index rather than mutating one in place.
type Index struct {
	matcher  *ahocorasick.Matcher
	patterns []Pattern
}

// Build compiles one Index from an ordered list of applications. Only
// non-launcher executables contribute a pattern, in traversal order
// (application, then executable) — that traversal order is what "earliest
// pattern added" (§4.2 tie-break) refers to.
func Build(apps []Application) *Index {
	var patterns []Pattern
	var dict []string

	for ai, app := range apps {
		for ei, exe := range app.Executables {
			if exe.IsLauncher {
				continue
			}
			unreversed, argGated := DerivePattern(exe.Name)
			p := Pattern{
				Reversed:    Reverse(unreversed),
				Unreversed:  unreversed,
				ArgGated:    argGated,
				RequiredArg: exe.Arguments,
				AppIndex:    ai,
				ExecIndex:   ei,
			}
			patterns = append(patterns, p)
			dict = append(dict, p.Reversed)
		}
	}

	idx := &Index{patterns: patterns}
	if len(dict) > 0 {
		idx.matcher = ahocorasick.NewStringMatcher(dict)
	}
	return idx
}

// Search looks up a reversed, normalized process path (§4.2 "Search
// input"). The Aho-Corasick matcher reports every pattern that occurs
// anywhere as a substring of reversedPath; §3's reversed-suffix trick only
// holds for patterns anchored at the very start of reversedPath, so those
// hits are filtered down to prefix matches before the earliest one (by
// insertion order) is returned.
func (idx *Index) Search(reversedPath string) (Pattern, bool) {
	if idx == nil || idx.matcher == nil {
		return Pattern{}, false
	}

	candidates := idx.matcher.Match([]byte(reversedPath))
	best := -1
	for _, c := range candidates {
		if c < 0 || c >= len(idx.patterns) {
			continue
		}
		if !strings.HasPrefix(reversedPath, idx.patterns[c].Reversed) {
			continue
		}
		if best == -1 || c < best {
			best = c
		}
	}
	if best == -1 {
		return Pattern{}, false
	}
	// Identical patterns share one automaton node, so the matcher may report
	// any one of them; step back to the earliest with the same text.
	for i := 0; i < best; i++ {
		if idx.patterns[i].Reversed == idx.patterns[best].Reversed {
			best = i
			break
		}
	}
	return idx.patterns[best], true
}

// Store holds the immutable built-in index and the mutable custom catalog
// plus its derived index, guarded by a single RWMutex — readers (scans)
// take RLock, writers (append/remove) take Lock and swap the whole Index
// pointer (§4.2 "Rebuild is atomic", §9 "single writer-held snapshot").
type Store struct {
	mu sync.RWMutex

	builtinApps  []Application
	builtinIndex *Index

	customApps  []Application
	customIndex *Index
}

// NewStore builds a Store from the initial (built-in) catalog. The custom
// catalog starts empty.
func NewStore(builtin []Application) *Store {
	return &Store{
		builtinApps:  builtin,
		builtinIndex: Build(builtin),
		customApps:   nil,
		customIndex:  Build(nil),
	}
}

// SearchBoth runs the built-in index first, then the custom index — the
// order §4.6 step 3 specifies. A hit in either wins.
func (s *Store) SearchBoth(reversedPath string) (app Application, pattern Pattern, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, found := s.builtinIndex.Search(reversedPath); found {
		return s.builtinApps[p.AppIndex], p, true
	}
	if p, found := s.customIndex.Search(reversedPath); found {
		return s.customApps[p.AppIndex], p, true
	}
	return Application{}, Pattern{}, false
}

// AppendCustom adds entries to the mutable custom catalog and rebuilds
// only the custom index (§4.8 append-catalog).
func (s *Store) AppendCustom(entries []Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customApps = append(s.customApps, entries...)
	s.customIndex = Build(s.customApps)
}

// RemoveCustomByName removes every custom entry with the given Name and
// rebuilds the custom index (§4.8 remove-by-name).
func (s *Store) RemoveCustomByName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.customApps[:0:0]
	for _, a := range s.customApps {
		if a.Name != name {
			kept = append(kept, a)
		}
	}
	s.customApps = kept
	s.customIndex = Build(s.customApps)
}

// ReplaceBuiltin atomically swaps the built-in catalog and rebuilds its
// index — used by the catalog-file watcher (internal/catalogwatch) on a
// hot reload.
func (s *Store) ReplaceBuiltin(apps []Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builtinApps = apps
	s.builtinIndex = Build(apps)
}
