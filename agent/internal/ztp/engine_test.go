package ztp

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/neuralconfig/ruckus-ztp/agent/internal/inventory"
	"github.com/neuralconfig/ruckus-ztp/agent/internal/switchlock"
	"github.com/neuralconfig/ruckus-ztp/shared/wire"
)

// fakeSession is a canned-response Session used so engine tests never touch
// the network. Config-mode and save calls always succeed; Run looks up cmd
// in outputs, defaulting to ok=true with empty output for anything not
// explicitly listed (interface-select, vlan/poe lines, etc.).
type fakeSession struct {
	outputs map[string]string
	closed  bool
}

func (f *fakeSession) Run(ctx context.Context, cmd string, timeout time.Duration) (string, bool) {
	if out, ok := f.outputs[cmd]; ok {
		return out, true
	}
	return "", true
}
func (f *fakeSession) EnterConfig(ctx context.Context) error  { return nil }
func (f *fakeSession) ExitConfig(ctx context.Context) error   { return nil }
func (f *fakeSession) Save(ctx context.Context) (bool, error) { return true, nil }
func (f *fakeSession) Close()                                 { f.closed = true }
func (f *fakeSession) SSHActive() bool                        { return false }

func switchOutputs() map[string]string {
	return map[string]string{
		"show version":        "HW: Stackable ICX7150-24P\nSerial  #: FNL3344T0AB\nSW: Version 08.0.95b\n",
		"show lldp neighbors": "Local Port  Chassis Id\n1/1/4       aabb.ccdd.eeff\n",
		"show lldp neighbors detail ports ethernet 1/1/4": `
Chassis id: aabb.ccdd.eeff
Port id: 1
System Name: R350-1
System description: Ruckus R350 Multimedia Hotzone Wireless AP
Management address (IPv4): 172.16.128.13
`,
		"trace-l2 show": "",
	}
}

func newTestEngine(t *testing.T) (*Engine, *inventory.Inventory, *[]wire.Event) {
	t.Helper()
	inv := inventory.New()
	var events []wire.Event

	dialer := func(ctx context.Context, ip string, creds []wire.Credential, preferredPassword string) (Session, error) {
		return &fakeSession{outputs: switchOutputs()}, nil
	}

	logger := zap.NewNop()
	eng := New(inv, dialer, switchlock.NewRegistry(), func(ev wire.Event) { events = append(events, ev) }, logger)
	eng.ApplyConfigure(wire.ConfigurePayload{
		Seeds:             []string{"192.168.1.10"},
		Credentials:       []wire.Credential{{Username: "super", Password: "sp-admin"}},
		PreferredPassword: "sp-admin",
		BaseConfigText:    "vlan 10\n!\nstp-protocol rstp\nexit\n",
		VLANPlan:          wire.VLANPlan{ManagementVLAN: 100, Gateway: "10.0.0.1", DNS: "10.0.0.2", DomainName: "lab.local"},
		WirelessVLANs:     []int{200, 201},
	})
	eng.SetRunning(true)
	return eng, inv, &events
}

func TestSingleSeedOneAPConvergesAfterTwoTicks(t *testing.T) {
	eng, inv, _ := newTestEngine(t)

	ctx := context.Background()
	if err := eng.Tick(ctx); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	if err := eng.Tick(ctx); err != nil {
		t.Fatalf("tick 2: %v", err)
	}

	sw, ok := inv.Get("192.168.1.10")
	if !ok {
		t.Fatal("switch not in inventory")
	}
	if sw.Status != wire.DeviceStatusConfigured {
		t.Errorf("switch status = %q, want configured", sw.Status)
	}
	if !sw.BaseConfigApplied || !sw.Configured {
		t.Errorf("switch flags = base=%v configured=%v", sw.BaseConfigApplied, sw.Configured)
	}
	if len(sw.APPorts) != 1 || sw.APPorts[0] != "1/1/4" {
		t.Errorf("switch ap_ports = %v", sw.APPorts)
	}

	ap, ok := inv.Get("172.16.128.13")
	if !ok {
		t.Fatal("AP not in inventory")
	}
	if ap.DeviceType != wire.DeviceTypeAP {
		t.Errorf("ap device_type = %q", ap.DeviceType)
	}
	if ap.Model != "R350" {
		t.Errorf("ap model = %q, want R350", ap.Model)
	}
	if ap.ConnectedSwitch != "192.168.1.10" || ap.ConnectedPort != "1/1/4" {
		t.Errorf("ap connection = %+v", ap)
	}
	if !ap.Configured {
		t.Errorf("ap configured = false")
	}
}

func TestNoErrorEventsOnHappyPath(t *testing.T) {
	eng, _, events := newTestEngine(t)
	ctx := context.Background()
	eng.Tick(ctx)
	eng.Tick(ctx)

	for _, ev := range *events {
		if ev.Type == wire.EventError {
			t.Fatalf("unexpected error event: %+v", ev)
		}
	}

	var discovered, configured int
	for _, ev := range *events {
		switch ev.Type {
		case wire.EventDeviceDiscovered:
			discovered++
		case wire.EventDeviceConfigured:
			configured++
		}
	}
	if discovered < 2 {
		t.Errorf("discovered events = %d, want at least 2 (switch + ap)", discovered)
	}
	if configured < 2 {
		t.Errorf("configured events = %d, want at least 2 (switch + ap)", configured)
	}
}

func TestStoppedEngineTickIsNoop(t *testing.T) {
	eng, inv, _ := newTestEngine(t)
	eng.SetRunning(false)

	if err := eng.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if inv.Len() != 1 {
		t.Fatalf("inventory mutated while stopped: len=%d", inv.Len())
	}
	sw, _ := inv.Get("192.168.1.10")
	if sw.Model != "" {
		t.Fatalf("seed reconciled while engine stopped: %+v", sw)
	}
}

// TestConvergedTickEmitsNoDeviceUpdated locks in spec §8's round-trip
// property: once a tick produces no actual inventory change, a further
// tick over identical LLDP/trace output must not emit any new
// device_updated events for the switch or its already-known AP neighbor.
func TestConvergedTickEmitsNoDeviceUpdated(t *testing.T) {
	inv := inventory.New()
	var events []wire.Event

	dialer := func(ctx context.Context, ip string, creds []wire.Credential, preferredPassword string) (Session, error) {
		return &fakeSession{outputs: switchOutputs()}, nil
	}

	eng := New(inv, dialer, switchlock.NewRegistry(), func(ev wire.Event) { events = append(events, ev) }, zap.NewNop())
	eng.ApplyConfigure(wire.ConfigurePayload{
		Seeds:             []string{"192.168.1.10"},
		Credentials:       []wire.Credential{{Username: "super", Password: "sp-admin"}},
		PreferredPassword: "sp-admin",
		BaseConfigText:    "vlan 10\n!\nstp-protocol rstp\nexit\n",
		VLANPlan:          wire.VLANPlan{ManagementVLAN: 100, Gateway: "10.0.0.1", DNS: "10.0.0.2", DomainName: "lab.local"},
		WirelessVLANs:     []int{200, 201},
	})
	eng.SetRunning(true)

	ctx := context.Background()
	eng.Tick(ctx) // converges: switch and AP both reach configured
	eng.Tick(ctx) // same output again, nothing left to configure

	events = nil // discard the convergence-run events; only the next tick matters

	eng.Tick(ctx) // identical LLDP/trace output, nothing left to change

	for _, ev := range events {
		if ev.Type == wire.EventDeviceUpdated {
			t.Fatalf("unexpected device_updated event after convergence: %+v", ev)
		}
	}
}

// TestSeedThatNeverRespondsErrorsOnlyAfterThreshold locks in spec §7/§8: a
// TransientError (here, every dial attempt to the seed fails) is retried
// silently for the first two ticks and only surfaces as an error event,
// with the device in status=error and "discover_identity" in
// tasks_failed, once it has recurred on 3 consecutive ticks.
func TestSeedThatNeverRespondsErrorsOnlyAfterThreshold(t *testing.T) {
	inv := inventory.New()
	var events []wire.Event
	failingDialer := func(ctx context.Context, ip string, creds []wire.Credential, preferredPassword string) (Session, error) {
		return nil, &fakeDialError{}
	}
	eng := New(inv, failingDialer, switchlock.NewRegistry(), func(ev wire.Event) { events = append(events, ev) }, zap.NewNop())
	eng.ApplyConfigure(wire.ConfigurePayload{Seeds: []string{"192.168.1.20"}})
	eng.SetRunning(true)

	ctx := context.Background()
	eng.Tick(ctx)
	if sw, _ := inv.Get("192.168.1.20"); sw.Status == wire.DeviceStatusError {
		t.Fatalf("tick 1: status = error, want retried silently below threshold")
	}

	eng.Tick(ctx)
	if sw, _ := inv.Get("192.168.1.20"); sw.Status == wire.DeviceStatusError {
		t.Fatalf("tick 2: status = error, want retried silently below threshold")
	}
	for _, ev := range events {
		if ev.Type == wire.EventError {
			t.Fatalf("tick 2: unexpected error event before threshold: %+v", ev)
		}
	}

	eng.Tick(ctx)
	sw, _ := inv.Get("192.168.1.20")
	if sw.Status != wire.DeviceStatusError {
		t.Fatalf("tick 3: status = %q, want error", sw.Status)
	}
	if len(sw.TasksFailed) != 1 || sw.TasksFailed[0] != "discover_identity" {
		t.Fatalf("tick 3: tasks_failed = %v, want [discover_identity]", sw.TasksFailed)
	}

	var errorEvents int
	for _, ev := range events {
		if ev.Type == wire.EventError {
			errorEvents++
		}
	}
	if errorEvents != 1 {
		t.Fatalf("error events = %d, want exactly 1 (emitted on the threshold tick only)", errorEvents)
	}
}

// TestAuthErrorSurfacesImmediately locks in spec §7: unlike
// TransientError/Timeout, AuthError is never retried silently.
func TestAuthErrorSurfacesImmediately(t *testing.T) {
	inv := inventory.New()
	var events []wire.Event
	failingDialer := func(ctx context.Context, ip string, creds []wire.Credential, preferredPassword string) (Session, error) {
		return nil, &fakeAuthError{}
	}
	eng := New(inv, failingDialer, switchlock.NewRegistry(), func(ev wire.Event) { events = append(events, ev) }, zap.NewNop())
	eng.ApplyConfigure(wire.ConfigurePayload{Seeds: []string{"192.168.1.21"}})
	eng.SetRunning(true)

	eng.Tick(context.Background())

	sw, _ := inv.Get("192.168.1.21")
	if sw.Status != wire.DeviceStatusError {
		t.Fatalf("tick 1: status = %q, want error", sw.Status)
	}

	var sawError bool
	for _, ev := range events {
		if ev.Type == wire.EventError {
			sawError = true
		}
	}
	if !sawError {
		t.Fatal("expected an error event on the first tick")
	}
}

type fakeDialError struct{}

func (e *fakeDialError) Error() string        { return "dial failed" }
func (e *fakeDialError) Kind() wire.ErrorKind { return wire.KindTransientError }

type fakeAuthError struct{}

func (e *fakeAuthError) Error() string        { return "auth failed" }
func (e *fakeAuthError) Kind() wire.ErrorKind { return wire.KindAuthError }
