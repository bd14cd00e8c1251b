package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/roman-kulish/rover-groundlink/internal/telemetry"
)

// collector records every publish
type collector struct {
	mu        sync.Mutex
	snapshots []*telemetry.Telemetry
}

func (c *collector) receive(t *telemetry.Telemetry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshots = append(c.snapshots, t)
}

func (c *collector) all() []*telemetry.Telemetry {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]*telemetry.Telemetry(nil), c.snapshots...)
}

func modeEnvelope(mode string) telemetry.Envelope {
	return telemetry.Envelope{State: &telemetry.StatePatch{Mode: telemetry.Ptr(mode)}}
}

func TestDispatcher_FirstEnvelopePublishesImmediately(t *testing.T) {
	d := New(WithThrottle(time.Hour))
	defer d.Stop()

	var c collector
	d.Subscribe(c.receive)

	d.Apply(modeEnvelope("AUTO"))

	got := c.all()
	if len(got) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(got))
	}
	if got[0].State.Mode != "AUTO" || d.Snapshot().State.Mode != "AUTO" {
		t.Errorf("unexpected published mode %q", got[0].State.Mode)
	}
}

func TestDispatcher_BurstCoalescesIntoTrailingPublish(t *testing.T) {
	const throttle = 80 * time.Millisecond

	d := New(WithThrottle(throttle))
	defer d.Stop()

	var c collector
	d.Subscribe(c.receive)

	d.Apply(modeEnvelope("M0")) // opens the window

	modes := []string{"M1", "M2", "M3", "M4", "M5"}
	for _, mode := range modes {
		d.Apply(modeEnvelope(mode))
	}
	d.Apply(telemetry.Envelope{Battery: &telemetry.BatteryPatch{Percentage: telemetry.Ptr(42.0)}})

	if n := len(c.all()); n != 1 {
		t.Fatalf("expected only the leading publish inside the window, got %d", n)
	}

	// Intermediate merges live in the record even though they are not published yet.
	if cur := d.Current(); cur.State.Mode != "M5" || cur.Battery.Percentage != 42 {
		t.Errorf("record should hold the latest merge, got mode %q battery %f", cur.State.Mode, cur.Battery.Percentage)
	}

	time.Sleep(3 * throttle)

	got := c.all()
	if len(got) != 2 {
		t.Fatalf("expected exactly one trailing publish, got %d publishes", len(got))
	}
	last := got[1]
	if last.State.Mode != "M5" || last.Battery.Percentage != 42 {
		t.Errorf("trailing publish should carry the latest state, got mode %q battery %f", last.State.Mode, last.Battery.Percentage)
	}
}

func TestDispatcher_EmptyEnvelopeIgnored(t *testing.T) {
	d := New()
	defer d.Stop()

	var c collector
	d.Subscribe(c.receive)

	d.Apply(telemetry.Envelope{Timestamp: 100})

	if n := len(c.all()); n != 0 {
		t.Errorf("expected no publish, got %d", n)
	}
	if d.Current().LastMessageTimestamp != nil {
		t.Error("empty envelope should not be merged")
	}
}

func TestDispatcher_PublishedSnapshotsAreIndependent(t *testing.T) {
	d := New(WithThrottle(0))
	defer d.Stop()

	var c collector
	d.Subscribe(c.receive)

	d.Apply(modeEnvelope("AUTO"))
	d.Apply(modeEnvelope("HOLD"))

	got := c.all()
	if len(got) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(got))
	}
	if got[0] == got[1] || got[0].State.Mode != "AUTO" {
		t.Error("an earlier snapshot was mutated by a later merge")
	}
}

func TestDispatcher_StopCancelsDeferredPublish(t *testing.T) {
	const throttle = 50 * time.Millisecond

	d := New(WithThrottle(throttle))

	var c collector
	d.Subscribe(c.receive)

	d.Apply(modeEnvelope("AUTO"))
	d.Apply(modeEnvelope("HOLD"))
	d.Stop()

	time.Sleep(3 * throttle)

	if n := len(c.all()); n != 1 {
		t.Errorf("expected the deferred publish to be cancelled, got %d publishes", n)
	}

	d.Apply(modeEnvelope("RTL"))
	if d.Current().State.Mode == "RTL" {
		t.Error("envelopes after Stop should be dropped")
	}
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	d := New(WithThrottle(0))
	defer d.Stop()

	var c collector
	unsubscribe := d.Subscribe(c.receive)

	d.Apply(modeEnvelope("AUTO"))
	unsubscribe()
	d.Apply(modeEnvelope("HOLD"))

	if n := len(c.all()); n != 1 {
		t.Errorf("expected 1 publish before unsubscribe, got %d", n)
	}
	if d.Get().State.Mode != "HOLD" {
		t.Error("snapshot should still advance without subscribers")
	}
}

func TestDispatcher_InitialSnapshot(t *testing.T) {
	d := New()
	defer d.Stop()

	s := d.Snapshot()
	if s.State.SystemStatus != telemetry.SystemStatusStandby || s.Network.WifiRSSI != telemetry.NoSignalRSSI {
		t.Errorf("expected default telemetry before any envelope, got %+v", s)
	}
}
