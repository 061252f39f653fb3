// Package ztp implements the ZTP Engine (C4): the periodic, convergent
// control loop that owns switch CLI sessions, applies base and device
// configuration, discovers neighbors via LLDP/L2-trace, and programs AP
// ports — re-evaluating the whole inventory on every tick rather than
// acting once per device.
package ztp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/neuralconfig/ruckus-ztp/agent/internal/clisession"
	"github.com/neuralconfig/ruckus-ztp/agent/internal/deviceops"
	"github.com/neuralconfig/ruckus-ztp/agent/internal/inventory"
	"github.com/neuralconfig/ruckus-ztp/agent/internal/metrics"
	"github.com/neuralconfig/ruckus-ztp/agent/internal/switchlock"
	"github.com/neuralconfig/ruckus-ztp/shared/ids"
	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

// defaultFanout bounds per-tick concurrent switch work, per spec §4.4.
const defaultFanout = 4

// commandTimeout is the default per-CLI-call timeout (spec §5).
const commandTimeout = 30 * time.Second

// consecutiveFailureThreshold is how many consecutive ticks a
// TransientError/Timeout for the same device+phase may recur silently
// before it surfaces as an error event and the device transitions to
// status=error (spec §7, §8's "seed that never responds" boundary case).
const consecutiveFailureThreshold = 3

// Engine runs the periodic ZTP control loop against a single Inventory.
// Engine itself is safe for concurrent use: ApplyConfigure, SetRunning,
// and Tick all take the same mutex, but Tick only ever runs from one
// goroutine at a time (enforced by the scheduler in schedule.go).
type Engine struct {
	inv    *inventory.Inventory
	dialer Dialer
	emit   func(wire.Event)
	logger *zap.Logger
	fanout int
	locks  *switchlock.Registry

	mu      sync.Mutex
	cfg     wire.ConfigurePayload
	running bool
	seen    map[string]bool

	tick uint64
	seq  uint64

	failuresMu sync.Mutex
	failures   map[string]int // keyed by ip+"\x00"+phase, consecutive TransientError/Timeout count
}

// New constructs an Engine. emit is called for every event the tick
// produces; it must not block (the caller typically hands it to a queued
// transport.Client.SendEvent). locks is shared with the RPC executor so an
// on-demand command fails fast with Busy instead of racing the engine for
// the same switch's CLI session.
func New(inv *inventory.Inventory, dialer Dialer, locks *switchlock.Registry, emit func(wire.Event), logger *zap.Logger) *Engine {
	return &Engine{
		inv:      inv,
		dialer:   dialer,
		locks:    locks,
		emit:     emit,
		logger:   logger.Named("ztp"),
		fanout:   defaultFanout,
		seen:     make(map[string]bool),
		failures: make(map[string]int),
	}
}

// openLocked acquires ip's switch lock (blocking — the engine is the
// rightful owner and waits its turn behind any in-flight RPC) and dials a
// session. The returned release must be called after the session is
// closed.
func (e *Engine) openLocked(ctx context.Context, ip string, cfg wire.ConfigurePayload) (Session, func(), error) {
	release, err := e.locks.Acquire(ctx, ip)
	if err != nil {
		return nil, nil, err
	}

	dctx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	sess, err := e.dialer(dctx, ip, e.credentials(cfg), cfg.PreferredPassword)
	if err != nil {
		release()
		return nil, nil, err
	}
	return sess, release, nil
}

// ApplyConfigure atomically replaces the engine's configuration and adds
// its seeds to the inventory immediately. Tick copies the configuration
// once when it starts, so a replacement applied while a tick is running is
// first used by the next tick.
func (e *Engine) ApplyConfigure(cfg wire.ConfigurePayload) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	for _, seed := range cfg.Seeds {
		e.inv.UpsertSeed(seed)
	}
}

// SetRunning starts or stops the engine. A stopped engine's scheduled
// ticks no-op immediately (§4.4 Cancellation).
func (e *Engine) SetRunning(running bool) {
	e.mu.Lock()
	wasRunning := e.running
	e.running = running
	e.mu.Unlock()

	if running && !wasRunning {
		e.emitSimple(wire.EventZTPStarted, nil)
	} else if !running && wasRunning {
		e.emitSimple(wire.EventZTPStopped, nil)
	}
}

// IsRunning reports whether the engine is currently enabled.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) snapshotConfig() wire.ConfigurePayload {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// ConfigSnapshot exposes the engine's current configuration to callers
// outside the package — rpcexec uses it to reuse the engine's credentials
// and preferred password for on-demand RPCs rather than duplicating them.
func (e *Engine) ConfigSnapshot() wire.ConfigurePayload {
	return e.snapshotConfig()
}

// PollInterval returns the currently configured poll interval, or
// fallback if none has been set yet.
func (e *Engine) PollInterval(fallback time.Duration) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg.PollInterval <= 0 {
		return fallback
	}
	return e.cfg.PollInterval
}

// Tick runs exactly one pass of the seven-step control loop. It returns
// promptly if the engine is stopped. It never returns an error for a
// single device's failure — those become `error` events — only for a
// condition that prevented the tick from running at all (currently none,
// reserved for future use).
func (e *Engine) Tick(ctx context.Context) error {
	if !e.IsRunning() {
		return nil
	}

	start := time.Now()
	defer func() { metrics.ObserveTick(time.Since(start)) }()

	e.mu.Lock()
	e.tick++
	tickNum := e.tick
	cfg := e.cfg
	e.mu.Unlock()

	d := newDeltaTracker(e.inv, e.seen)

	// Step 2: seed reconciliation.
	e.forEachSwitch(ctx, func(ip string) bool {
		dev, _ := e.inv.Get(ip)
		return dev.IsSeed && dev.Model == "" && dev.Status != wire.DeviceStatusError
	}, func(ctx context.Context, ip string) {
		e.reconcileSeed(ctx, ip, cfg, d)
	})

	// Step 3: base config.
	e.forEachSwitch(ctx, func(ip string) bool {
		dev, _ := e.inv.Get(ip)
		return dev.DeviceType == wire.DeviceTypeSwitch && !dev.BaseConfigApplied && dev.Model != ""
	}, func(ctx context.Context, ip string) {
		e.applyBaseConfigStep(ctx, ip, cfg, d)
	})

	// Step 4: device config.
	e.forEachSwitch(ctx, func(ip string) bool {
		dev, _ := e.inv.Get(ip)
		return dev.DeviceType == wire.DeviceTypeSwitch && dev.BaseConfigApplied && !dev.Configured
	}, func(ctx context.Context, ip string) {
		e.applyDeviceConfigStep(ctx, ip, cfg, d)
	})

	// Step 5: discovery.
	e.forEachSwitch(ctx, func(ip string) bool {
		dev, _ := e.inv.Get(ip)
		return dev.DeviceType == wire.DeviceTypeSwitch && dev.Configured
	}, func(ctx context.Context, ip string) {
		e.discoverStep(ctx, ip, cfg, d)
	})

	// Step 6: AP port configuration.
	e.forEachSwitch(ctx, func(ip string) bool {
		dev, _ := e.inv.Get(ip)
		return dev.DeviceType == wire.DeviceTypeAP && !dev.Configured && dev.ConnectedSwitch != "" && dev.ConnectedPort != ""
	}, func(ctx context.Context, ip string) {
		e.configureAPPortStep(ctx, ip, cfg, d)
	})

	// Step 7: emit deltas.
	d.emitAll(tickNum, &e.seq, e.emit)

	return nil
}

// forEachSwitch runs fn, with bounded fan-out, over every inventory entry
// for which filter returns true. It is used at every tick step so the
// selection criteria is re-evaluated fresh each time — convergent, not
// one-shot.
func (e *Engine) forEachSwitch(ctx context.Context, filter func(ip string) bool, fn func(ctx context.Context, ip string)) {
	var ips []string
	for _, dev := range e.inv.Snapshot() {
		if filter(dev.IP) {
			ips = append(ips, dev.IP)
		}
	}
	if len(ips) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.fanout)
	for _, ip := range ips {
		ip := ip
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			fn(gctx, ip)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) credentials(cfg wire.ConfigurePayload) []wire.Credential { return cfg.Credentials }

func (e *Engine) reconcileSeed(ctx context.Context, ip string, cfg wire.ConfigurePayload, d *deltaTracker) {
	e.inv.Transition(ip, wire.DeviceStatusConnecting)

	sess, release, err := e.openLocked(ctx, ip, cfg)
	if err != nil {
		e.reportError(ip, "seed_reconciliation", "discover_identity", err, d)
		return
	}
	defer release()
	defer sess.Close()

	id, ok := deviceops.DiscoverIdentity(ctx, sess, commandTimeout)
	if !ok {
		e.reportError(ip, "seed_reconciliation", "discover_identity", fmt.Errorf("show version failed"), d)
		return
	}

	e.resetFailure(ip, "seed_reconciliation")
	e.inv.Update(ip, func(dev *wire.Device) {
		dev.Model = id.Model
		dev.Serial = id.Serial
	})
	e.inv.Transition(ip, wire.DeviceStatusConfiguring)
	d.touch(ip)
}

func (e *Engine) applyBaseConfigStep(ctx context.Context, ip string, cfg wire.ConfigurePayload, d *deltaTracker) {
	sess, release, err := e.openLocked(ctx, ip, cfg)
	if err != nil {
		e.reportError(ip, "base_config", "base_config", err, d)
		return
	}
	defer release()
	defer sess.Close()

	if err := applyBaseConfig(ctx, sess, cfg.BaseConfigText); err != nil {
		e.reportError(ip, "base_config", "base_config", err, d)
		return
	}

	e.resetFailure(ip, "base_config")
	e.inv.Update(ip, func(dev *wire.Device) { dev.BaseConfigApplied = true })
	e.inv.MarkTaskDone(ip, "base_config")
	d.touch(ip)
}

func (e *Engine) applyDeviceConfigStep(ctx context.Context, ip string, cfg wire.ConfigurePayload, d *deltaTracker) {
	sess, release, err := e.openLocked(ctx, ip, cfg)
	if err != nil {
		e.reportError(ip, "device_config", "device_config", err, d)
		return
	}
	defer release()
	defer sess.Close()

	if err := applyDeviceConfig(ctx, sess, cfg.VLANPlan); err != nil {
		e.reportError(ip, "device_config", "device_config", err, d)
		return
	}

	e.resetFailure(ip, "device_config")
	e.inv.Update(ip, func(dev *wire.Device) { dev.Configured = true })
	e.inv.MarkTaskDone(ip, "device_config")
	e.inv.Transition(ip, wire.DeviceStatusConfigured)
	d.touchConfigured(ip)
}

func (e *Engine) discoverStep(ctx context.Context, ip string, cfg wire.ConfigurePayload, d *deltaTracker) {
	sess, release, err := e.openLocked(ctx, ip, cfg)
	if err != nil {
		e.reportError(ip, "discovery", "", err, d)
		return
	}
	defer release()
	defer sess.Close()

	neighbors, types, ok := deviceops.LLDPNeighbors(ctx, sess, commandTimeout)
	if !ok {
		e.reportError(ip, "discovery", "", fmt.Errorf("show lldp neighbors failed"), d)
		return
	}
	e.resetFailure(ip, "discovery")

	traceByMAC, _ := deviceops.L2Trace(ctx, sess, commandTimeout)

	switchChanged := false
	for port, n := range neighbors {
		if n.MgmtIP == "" && n.ChassisMAC != "" {
			if mgmtIP, ok := traceByMAC[n.ChassisMAC]; ok {
				n.MgmtIP = mgmtIP
			}
		}
		model := ""
		if dt := types[port]; dt == wire.DeviceTypeAP {
			model = parseAPModel(n.SystemDescription)
		}
		localChanged, remoteChanged := e.inv.ObserveNeighbor(ip, port, n, types[port], model)
		if localChanged {
			switchChanged = true
		}
		if remoteChanged {
			neighborIP := n.MgmtIP
			if neighborIP == "" {
				neighborIP = "mac:" + n.ChassisMAC
			}
			d.touch(neighborIP)
		}
	}
	if switchChanged {
		d.touch(ip)
	}
}

func (e *Engine) configureAPPortStep(ctx context.Context, apIP string, cfg wire.ConfigurePayload, d *deltaTracker) {
	ap, ok := e.inv.Get(apIP)
	if !ok {
		return
	}

	sess, release, err := e.openLocked(ctx, ap.ConnectedSwitch, cfg)
	if err != nil {
		e.reportError(apIP, "port_config", "port_config", err, d)
		return
	}
	defer release()
	defer sess.Close()

	desc := ap.Hostname
	if desc == "" {
		desc = ap.MAC
	}

	if err := configureAPPort(ctx, sess, ap.ConnectedPort, cfg.VLANPlan.ManagementVLAN, cfg.WirelessVLANs, desc); err != nil {
		e.reportError(apIP, "port_config", "port_config", err, d)
		return
	}

	e.resetFailure(apIP, "port_config")
	e.inv.Update(apIP, func(dev *wire.Device) { dev.Configured = true })
	e.inv.MarkTaskDone(apIP, "port_config")
	e.inv.Transition(apIP, wire.DeviceStatusConfigured)
	d.touchConfigured(apIP)
}

// reportError classifies err and decides whether this tick's failure is
// surfaced. TransientError/Timeout are retried silently until they recur
// consecutiveFailureThreshold times for the same ip+phase; AuthError
// surfaces immediately; anything else (ProtocolError, ParseError, ...)
// fails only this command for this tick, per spec §7.
func (e *Engine) reportError(ip, phase, task string, err error, d *deltaTracker) {
	kind := clisession.Kind(err)

	switch kind {
	case wire.KindTransientError, wire.KindTimeout:
		count := e.recordFailure(ip, phase)
		if count < consecutiveFailureThreshold {
			e.logger.Debug("ztp: step failed, retrying",
				zap.String("ip", ip), zap.String("phase", phase),
				zap.Int("consecutive_failures", count), zap.Error(err))
			return
		}
	case wire.KindAuthError:
		// Surfaces immediately, no threshold.
	default:
		e.logger.Warn("ztp: step failed, will retry next tick",
			zap.String("ip", ip), zap.String("phase", phase), zap.Error(err))
		return
	}

	e.resetFailure(ip, phase)
	if task != "" {
		e.inv.MarkTaskFailed(ip, task)
	} else {
		e.inv.Transition(ip, wire.DeviceStatusError)
	}
	e.logger.Warn("ztp: step failed", zap.String("ip", ip), zap.String("phase", phase), zap.Error(err))
	e.emitSimple(wire.EventError, wire.ErrorPayload{IP: ip, Phase: phase, Kind: string(kind), Message: err.Error()}.ToPayload())
	d.touch(ip)
}

// recordFailure increments and returns the consecutive-failure count for
// ip+phase.
func (e *Engine) recordFailure(ip, phase string) int {
	key := ip + "\x00" + phase
	e.failuresMu.Lock()
	defer e.failuresMu.Unlock()
	e.failures[key]++
	return e.failures[key]
}

// resetFailure clears any consecutive-failure count tracked for ip+phase,
// called on every success so a later, unrelated failure starts counting
// from zero again.
func (e *Engine) resetFailure(ip, phase string) {
	key := ip + "\x00" + phase
	e.failuresMu.Lock()
	delete(e.failures, key)
	e.failuresMu.Unlock()
}

func (e *Engine) emitSimple(t wire.EventType, payload map[string]any) {
	if e.emit == nil {
		return
	}
	e.mu.Lock()
	e.seq++
	seq := e.seq
	tick := e.tick
	e.mu.Unlock()

	e.emit(wire.Event{
		EventID:   ids.NewEventID(),
		Timestamp: time.Now(),
		Type:      t,
		Tick:      tick,
		Seq:       seq,
		Payload:   payload,
	})
}
