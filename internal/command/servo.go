package command

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ServoMode selects how a servo is driven along a mission
type ServoMode string

const (
	ServoMarkAtWaypoint ServoMode = "MARK_AT_WAYPOINT"
	ServoContinuousLine ServoMode = "CONTINUOUS_LINE"
	ServoIntervalSpray  ServoMode = "INTERVAL_SPRAY"
)

const (
	MinServoNumber = 1
	MaxServoNumber = 16
	MinPWM         = 500
	MaxPWM         = 2500
)

// ErrInvalidServoConfig is returned for servo mission configurations that fail validation
var ErrInvalidServoConfig = errors.New("invalid servo configuration")

// ServoConfig is one of MarkAtWaypoint, ContinuousLine or IntervalSpray
type ServoConfig interface {
	Mode() ServoMode
	Validate() error
}

// ServoBase holds the settings shared by every servo mode
type ServoBase struct {
	ServoNumber int   `json:"servoNumber"`
	PWMOn       int   `json:"pwmOn"`
	PWMOff      int   `json:"pwmOff"`
	SelectedIDs []int `json:"selectedIds,omitempty"` // Waypoint ids the config applies to
}

func (b ServoBase) validate() error {
	var errs []error
	if b.ServoNumber < MinServoNumber || b.ServoNumber > MaxServoNumber {
		errs = append(errs, fmt.Errorf("servo number %d out of range %d-%d", b.ServoNumber, MinServoNumber, MaxServoNumber))
	}
	if b.PWMOn < MinPWM || b.PWMOn > MaxPWM {
		errs = append(errs, fmt.Errorf("pwm on %d out of range %d-%d", b.PWMOn, MinPWM, MaxPWM))
	}
	if b.PWMOff < MinPWM || b.PWMOff > MaxPWM {
		errs = append(errs, fmt.Errorf("pwm off %d out of range %d-%d", b.PWMOff, MinPWM, MaxPWM))
	}
	return errors.Join(errs...)
}

// MarkAtWaypoint fires the servo for SprayDuration seconds at each selected waypoint
type MarkAtWaypoint struct {
	ServoBase
	SprayDuration float64 `json:"sprayDuration"`
}

func (MarkAtWaypoint) Mode() ServoMode { return ServoMarkAtWaypoint }

func (c MarkAtWaypoint) Validate() error {
	err := c.ServoBase.validate()
	if c.SprayDuration <= 0 {
		err = errors.Join(err, fmt.Errorf("spray duration must be positive, got %v", c.SprayDuration))
	}
	return wrapInvalid(err)
}

func (c MarkAtWaypoint) MarshalJSON() ([]byte, error) {
	type plain MarkAtWaypoint
	return json.Marshal(struct {
		Mode ServoMode `json:"mode"`
		plain
	}{c.Mode(), plain(c)})
}

// ContinuousLine holds the servo on across the selected waypoint range
type ContinuousLine struct {
	ServoBase
}

func (ContinuousLine) Mode() ServoMode { return ServoContinuousLine }

func (c ContinuousLine) Validate() error {
	return wrapInvalid(c.ServoBase.validate())
}

func (c ContinuousLine) MarshalJSON() ([]byte, error) {
	type plain ContinuousLine
	return json.Marshal(struct {
		Mode ServoMode `json:"mode"`
		plain
	}{c.Mode(), plain(c)})
}

// IntervalSpray alternates the servo on and off by travelled distance
// between StartWP and EndWP.
type IntervalSpray struct {
	ServoBase
	DistanceOnMeters  float64 `json:"distanceOnMeters"`
	DistanceOffMeters float64 `json:"distanceOffMeters"`
	StartWP           int     `json:"startWp"`
	EndWP             int     `json:"endWp"`
}

func (IntervalSpray) Mode() ServoMode { return ServoIntervalSpray }

func (c IntervalSpray) Validate() error {
	err := c.ServoBase.validate()
	if c.DistanceOnMeters <= 0 || c.DistanceOffMeters <= 0 {
		err = errors.Join(err, fmt.Errorf("interval distances must be positive, got on=%v off=%v", c.DistanceOnMeters, c.DistanceOffMeters))
	}
	if c.StartWP < 1 || c.EndWP < c.StartWP {
		err = errors.Join(err, fmt.Errorf("invalid waypoint range %d-%d", c.StartWP, c.EndWP))
	}
	return wrapInvalid(err)
}

func (c IntervalSpray) MarshalJSON() ([]byte, error) {
	type plain IntervalSpray
	return json.Marshal(struct {
		Mode ServoMode `json:"mode"`
		plain
	}{c.Mode(), plain(c)})
}

func wrapInvalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidServoConfig, err)
}

// DecodeServoConfig decodes a servo configuration, selecting the concrete
// type from its "mode" field.
func DecodeServoConfig(data []byte) (ServoConfig, error) {
	var head struct {
		Mode ServoMode `json:"mode"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding servo config: %w", err)
	}

	var cfg ServoConfig
	switch head.Mode {
	case ServoMarkAtWaypoint:
		var c MarkAtWaypoint
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decoding %s config: %w", head.Mode, err)
		}
		cfg = c
	case ServoContinuousLine:
		var c ContinuousLine
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decoding %s config: %w", head.Mode, err)
		}
		cfg = c
	case ServoIntervalSpray:
		var c IntervalSpray
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decoding %s config: %w", head.Mode, err)
		}
		cfg = c
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidServoConfig, head.Mode)
	}

	return cfg, nil
}
