package command

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestServoConfig_Validate(t *testing.T) {
	base := ServoBase{ServoNumber: 9, PWMOn: 1900, PWMOff: 1100}

	testCases := []struct {
		name  string
		cfg   ServoConfig
		valid bool
	}{
		{"mark at waypoint", MarkAtWaypoint{ServoBase: base, SprayDuration: 1.5}, true},
		{"mark without duration", MarkAtWaypoint{ServoBase: base}, false},
		{"continuous line", ContinuousLine{ServoBase: base}, true},
		{"servo out of range", ContinuousLine{ServoBase: ServoBase{ServoNumber: 17, PWMOn: 1900, PWMOff: 1100}}, false},
		{"pwm out of range", ContinuousLine{ServoBase: ServoBase{ServoNumber: 1, PWMOn: 3000, PWMOff: 1100}}, false},
		{"interval spray", IntervalSpray{ServoBase: base, DistanceOnMeters: 1, DistanceOffMeters: 2, StartWP: 1, EndWP: 4}, true},
		{"interval reversed range", IntervalSpray{ServoBase: base, DistanceOnMeters: 1, DistanceOffMeters: 2, StartWP: 5, EndWP: 4}, false},
		{"interval zero distance", IntervalSpray{ServoBase: base, DistanceOffMeters: 2, StartWP: 1, EndWP: 4}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.valid && err != nil {
				t.Errorf("expected valid config, got %v", err)
			}
			if !tc.valid && !errors.Is(err, ErrInvalidServoConfig) {
				t.Errorf("expected ErrInvalidServoConfig, got %v", err)
			}
		})
	}
}

func TestServoConfig_EncodeDecode(t *testing.T) {
	configs := []ServoConfig{
		MarkAtWaypoint{ServoBase: ServoBase{ServoNumber: 9, PWMOn: 1900, PWMOff: 1100, SelectedIDs: []int{2, 4}}, SprayDuration: 2},
		ContinuousLine{ServoBase: ServoBase{ServoNumber: 10, PWMOn: 2000, PWMOff: 1000}},
		IntervalSpray{ServoBase: ServoBase{ServoNumber: 11, PWMOn: 1800, PWMOff: 1200}, DistanceOnMeters: 0.3, DistanceOffMeters: 0.7, StartWP: 1, EndWP: 9},
	}

	for _, cfg := range configs {
		t.Run(string(cfg.Mode()), func(t *testing.T) {
			data, err := json.Marshal(cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var head map[string]any
			_ = json.Unmarshal(data, &head)
			if head["mode"] != string(cfg.Mode()) {
				t.Errorf("encoded config is missing its mode: %s", data)
			}

			decoded, err := DecodeServoConfig(data)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(decoded, cfg) {
				t.Errorf("expected %+v, got %+v", cfg, decoded)
			}
		})
	}
}

func TestDecodeServoConfig_UnknownMode(t *testing.T) {
	if _, err := DecodeServoConfig([]byte(`{"mode":"LASER"}`)); !errors.Is(err, ErrInvalidServoConfig) {
		t.Errorf("expected ErrInvalidServoConfig, got %v", err)
	}
	if _, err := DecodeServoConfig([]byte(`nope`)); err == nil {
		t.Error("expected a decode error")
	}
}
