package procscan

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coventry-labs/rsrpc/internal/catalog"
	"github.com/coventry-labs/rsrpc/internal/logger"
)

// DefaultInterval is the §4.6 scan cadence.
const DefaultInterval = 10 * time.Second

// ScanState is handed to the optional on-scan-complete callback after every
// pass (§4.6 step 7).
type ScanState struct {
	OBSOpen bool
}

// Scanner runs the periodic match loop described in §4.6.
type Scanner struct {
	Catalog        *catalog.Store
	Enumerator     Enumerator
	Interval       time.Duration
	Events         chan<- catalog.Detected
	OnScanComplete func(ScanState)

	scanning atomic.Bool
}

// Run blocks, ticking every Interval (default DefaultInterval) until ctx is
// canceled.
func (s *Scanner) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick runs one scan pass (§4.6 steps 1–9).
func (s *Scanner) tick() {
	if !s.scanning.CompareAndSwap(false, true) {
		return // re-entrancy guard (step 1)
	}
	defer s.scanning.Store(false)

	snapshot, err := s.Enumerator.Enumerate()
	if err != nil {
		logger.Warn("procscan: enumerate failed", "error", err)
		return // §7: log, sleep one cadence (the next tick), retry
	}

	var matched []catalog.Detected
	state := ScanState{}
	nowMS := time.Now().UnixMilli()

	for _, proc := range snapshot {
		if strings.Contains(proc.Path, "obs64") || strings.Contains(proc.Path, "streamlabs") {
			state.OBSOpen = true
		}

		app, pattern, ok := s.Catalog.SearchBoth(catalog.Reverse(proc.Path))
		if !ok {
			continue
		}
		if pattern.ArgGated && pattern.RequiredArg != "" {
			if !strings.Contains(proc.Arguments, pattern.RequiredArg) {
				continue // argument gate rejected the match (§4.6 step 4, §8 property 4)
			}
		}
		matched = append(matched, catalog.Stamp(app, proc.PID, nowMS))
	}

	if s.OnScanComplete != nil {
		s.OnScanComplete(state)
	}

	var head catalog.Detected
	if len(matched) == 0 {
		head = catalog.Sentinel()
	} else {
		head = matched[0]
	}

	if s.Events != nil {
		s.Events <- head // always emit the head, every cycle (step 8 rationale)
	}
}
