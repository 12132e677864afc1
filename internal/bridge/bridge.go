package bridge

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/relabs-tech/location_bridge/internal/gps"
	"github.com/relabs-tech/location_bridge/internal/logging"
)

// ErrAlreadyInitialized is returned by Init while another bridge is live.
var ErrAlreadyInitialized = errors.New("location bridge already initialized")

// Options configures a Bridge.
type Options struct {
	Service  LocationService
	Executor Executor
	Native   Native
	Logger   *zerolog.Logger // optional, defaults to the "bridge" component logger
}

// Bridge ties a SubscriptionManager and a Dispatcher to one native consumer.
// Its lifetime is explicit: Init creates it, Teardown releases it.
type Bridge struct {
	handle   Handle
	manager  *SubscriptionManager
	dispatch *Dispatcher
	log      zerolog.Logger

	teardownOnce sync.Once
}

// Package-level slot holding the live bridge. At most one bridge exists per
// process so the native side can always address it through its Handle.
var (
	currentMu  sync.Mutex
	current    *Bridge
	lastHandle Handle
)

// Init constructs the process bridge. It fails with ErrAlreadyInitialized if a
// previous bridge has not been torn down.
func Init(opts Options) (*Bridge, error) {
	if opts.Service == nil || opts.Executor == nil || opts.Native == nil {
		return nil, fmt.Errorf("bridge init: service, executor and native consumer are required")
	}

	currentMu.Lock()
	defer currentMu.Unlock()
	if current != nil {
		return nil, fmt.Errorf("bridge init (live handle %d): %w", current.handle, ErrAlreadyInitialized)
	}

	log := logging.WithComponent("bridge")
	if opts.Logger != nil {
		log = *opts.Logger
	}

	lastHandle++
	h := lastHandle
	log = log.With().Uint64("handle", uint64(h)).Logger()

	d := NewDispatcher(opts.Native, h, log)
	b := &Bridge{
		handle:   h,
		dispatch: d,
		manager:  NewSubscriptionManager(opts.Service, opts.Executor, d, log),
		log:      log,
	}
	current = b
	log.Info().Msg("bridge initialized")
	return b, nil
}

// Lookup returns the live bridge identified by h.
func Lookup(h Handle) (*Bridge, bool) {
	currentMu.Lock()
	defer currentMu.Unlock()
	if current == nil || current.handle != h {
		return nil, false
	}
	return current, true
}

// Handle returns the token passed to every native entry point.
func (b *Bridge) Handle() Handle { return b.handle }

// Start requests location updates; see SubscriptionManager.Start.
func (b *Bridge) Start() { b.manager.Start() }

// Stop cancels location updates; see SubscriptionManager.Stop.
func (b *Bridge) Stop() { b.manager.Stop() }

// Active reports whether a subscription is pending or registered.
func (b *Bridge) Active() bool { return b.manager.Active() }

// NotifyPermissionGranted forwards a grant produced by a permission request
// flow outside the bridge. Start never reports a grant on its own.
func (b *Bridge) NotifyPermissionGranted() {
	b.dispatch.Permission(gps.PermissionGranted)
}

// Teardown stops any subscription and releases the process slot. It is safe to
// call more than once.
func (b *Bridge) Teardown() {
	b.teardownOnce.Do(func() {
		b.manager.Stop()
		currentMu.Lock()
		if current == b {
			current = nil
		}
		currentMu.Unlock()
		b.log.Info().Msg("bridge torn down")
	})
}
