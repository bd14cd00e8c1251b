package mirror

import (
	"reflect"
	"testing"

	"github.com/roman-kulish/rover-groundlink/internal/telemetry"
)

func TestFlatten(t *testing.T) {
	s := telemetry.Default()
	s.State.Armed = true
	s.Global.Latitude = -35.363261
	s.Servo.ChannelPWM = map[int]int{9: 1900}

	f := Flatten(&s)

	testCases := []struct {
		field string
		want  string
	}{
		{"vehicle:armed", "on"},
		{"vehicle:mode", telemetry.ModeUnknown},
		{"vehicle:system-status", telemetry.SystemStatusStandby},
		{"position:latitude", "-35.363261"},
		{"rtk:base-linked", "off"},
		{"mission:status", telemetry.MissionIdle},
		{"network:type", "none"},
		{"network:wifi-rssi", "-100"},
		{"servo:pwm:9", "1900"},
	}

	for _, tc := range testCases {
		t.Run(tc.field, func(t *testing.T) {
			if got := f[tc.field]; got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}

	if _, ok := f["last-message"]; ok {
		t.Error("last-message should be absent before the first envelope")
	}
}

func TestDiff(t *testing.T) {
	prev := map[string]string{"vehicle:armed": "off", "battery:voltage": "12.1", "servo:pwm:9": "1900"}
	next := map[string]string{"vehicle:armed": "on", "battery:voltage": "12.1", "rtk:fix-type": "6"}

	set, del := diff(prev, next)

	if want := map[string]string{"vehicle:armed": "on", "rtk:fix-type": "6"}; !reflect.DeepEqual(set, want) {
		t.Errorf("expected set %v, got %v", want, set)
	}
	if want := []string{"servo:pwm:9"}; !reflect.DeepEqual(del, want) {
		t.Errorf("expected del %v, got %v", want, del)
	}
	if want := []string{"rtk", "servo", "vehicle"}; !reflect.DeepEqual(groups(set, del), want) {
		t.Errorf("expected groups %v, got %v", want, groups(set, del))
	}

	if set, del := diff(next, next); len(set) != 0 || len(del) != 0 {
		t.Errorf("identical snapshots should not differ, got %v %v", set, del)
	}
}

func TestPublisher_OfferKeepsNewest(t *testing.T) {
	p := NewPublisher(nil)

	first := telemetry.Default()
	second := telemetry.Default()
	second.State.Mode = "AUTO"

	p.Offer(&first)
	p.Offer(&second)

	select {
	case got := <-p.updates:
		if got.State.Mode != "AUTO" {
			t.Errorf("expected the newest snapshot, got mode %q", got.State.Mode)
		}
	default:
		t.Fatal("expected a queued snapshot")
	}
}
