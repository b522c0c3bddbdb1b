// Package bridge implements the server facade (C8): lifecycle, catalog
// mutation, and scan-complete callback registration composed over C4-C7
// (§4.8).
package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coventry-labs/rsrpc/internal/activity"
	"github.com/coventry-labs/rsrpc/internal/catalog"
	"github.com/coventry-labs/rsrpc/internal/hub"
	"github.com/coventry-labs/rsrpc/internal/ipc"
	"github.com/coventry-labs/rsrpc/internal/procscan"
	"github.com/coventry-labs/rsrpc/internal/wsintake"
)

// channelBuffer sizes the three bounded MPSC channels C8 allocates on
// start (§4.8 "Allocate three bounded MPSC channels").
const channelBuffer = 256

// Options configures which sources start alongside the always-on fan-out
// hub (§4.8 "per-source enable flags").
type Options struct {
	EnableIPC      bool
	EnableScanner  bool
	EnableWSIntake bool

	// EnableWSSecondaryEvents controls whether unrecognized WS-intake
	// commands are forwarded on the fan-out channel (SPEC_FULL.md
	// Expansion 1). SET_ACTIVITY and INVITE_BROWSER are always forwarded;
	// DEEP_LINK is only logged.
	EnableWSSecondaryEvents bool

	ScanInterval time.Duration
}

// DefaultOptions enables every source at the default scan cadence.
func DefaultOptions() Options {
	return Options{
		EnableIPC:               true,
		EnableScanner:           true,
		EnableWSIntake:          true,
		EnableWSSecondaryEvents: true,
		ScanInterval:            procscan.DefaultInterval,
	}
}

// Bridge composes C4 (ipc.Server), C5 (wsintake.Server), C6
// (procscan.Scanner), and C7 (hub.Hub) behind the four operations named in
// §4.8.
type Bridge struct {
	opts    Options
	catalog *catalog.Store
	hub     *hub.Hub

	started    atomic.Bool
	onScanCb   func(procscan.ScanState)
	onScanCbMu sync.Mutex
}

// FromSource parses a JSON array of catalog entries (or an empty object,
// meaning an empty catalog) and returns a Bridge retaining it (§4.8
// "from-source"). Malformed entries fail loudly.
func FromSource(catalogJSON []byte, opts Options) (*Bridge, error) {
	apps, err := catalog.Load(catalogJSON)
	if err != nil {
		return nil, fmt.Errorf("bridge: from-source: %w", err)
	}
	return &Bridge{
		opts:    opts,
		catalog: catalog.NewStore(apps),
		hub:     hub.New(),
	}, nil
}

// OnScanComplete registers cb to run after every scanner pass. It must be
// called before Start; calling it afterward is refused (§4.8
// "on-scan-complete").
func (b *Bridge) OnScanComplete(cb func(procscan.ScanState)) error {
	if b.started.Load() {
		return fmt.Errorf("bridge: on-scan-complete: already started")
	}
	b.onScanCbMu.Lock()
	defer b.onScanCbMu.Unlock()
	b.onScanCb = cb
	return nil
}

// AppendCatalog applies entries to the mutable custom catalog and triggers
// a C2 rebuild of the custom index only. A no-op before Start (§4.8).
func (b *Bridge) AppendCatalog(entries []catalog.Application) {
	if !b.started.Load() {
		return
	}
	b.catalog.AppendCustom(entries)
}

// RemoveCatalogByName removes a custom catalog entry by name. A no-op
// before Start (§4.8).
func (b *Bridge) RemoveCatalogByName(name string) {
	if !b.started.Load() {
		return
	}
	b.catalog.RemoveCustomByName(name)
}

// CatalogStore exposes the underlying catalog store so collaborators like
// internal/catalogwatch can replace the built-in catalog on a hot reload
// (§6 "CLI surface (collaborator, out of core)").
func (b *Bridge) CatalogStore() *catalog.Store {
	return b.catalog
}

// Start allocates the three bounded MPSC channels and spawns C7, then C4,
// then the scanner, then C5, in that deterministic order (§4.8 "start").
// It blocks until ctx is canceled or a fatal component error occurs.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return fmt.Errorf("bridge: already started")
	}

	ipcEvents := make(chan activity.Command, channelBuffer)
	scanEvents := make(chan catalog.Detected, channelBuffer)
	wsEvents := make(chan activity.Command, channelBuffer)

	errCh := make(chan error, 4)

	// C7 first.
	go func() { errCh <- b.hub.Run(ctx) }()
	go b.hub.ConsumeIPC(ctx, ipcEvents)
	go b.hub.ConsumeScan(ctx, scanEvents)
	go b.hub.ConsumeWS(ctx, wsEvents)

	// C4.
	if b.opts.EnableIPC {
		ipcSrv := &ipc.Server{Events: ipcEvents}
		go func() { errCh <- ipcSrv.Run(ctx) }()
	}

	// C6.
	if b.opts.EnableScanner {
		interval := b.opts.ScanInterval
		if interval <= 0 {
			interval = procscan.DefaultInterval
		}
		scanner := &procscan.Scanner{
			Catalog:        b.catalog,
			Enumerator:     procscan.NewEnumerator(),
			Interval:       interval,
			Events:         scanEvents,
			OnScanComplete: b.scanCallback(),
		}
		go func() { errCh <- scanner.Run(ctx) }()
	}

	// C5.
	if b.opts.EnableWSIntake {
		wsSrv := &wsintake.Server{Events: wsEvents, EnableSecondaryEvents: b.opts.EnableWSSecondaryEvents}
		go func() { errCh <- wsSrv.Run(ctx) }()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			return err
		}
		return nil
	}
}

func (b *Bridge) scanCallback() func(procscan.ScanState) {
	b.onScanCbMu.Lock()
	defer b.onScanCbMu.Unlock()
	cb := b.onScanCb
	if cb == nil {
		return nil
	}
	return cb
}
