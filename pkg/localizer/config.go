package localizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/angle"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/pose"
)

var ErrBadConfig = errors.New("invalid localizer config")

// Config holds every tunable of the procedure.  Speeds are wheel speeds in
// degrees/second, distances are signed travel in cm, headings are absolute
// and in degrees.
type Config struct {
	// Stage 1: back away from where we think the first line is.
	ApproachSpeed      float64 `mapstructure:"approachSpeed" yaml:"approachSpeed"`
	ApproachDistanceCM float64 `mapstructure:"approachDistanceCM" yaml:"approachDistanceCM"`

	// Stages 2 and 4: creep forward until the sensor sees a line.
	DetectSpeed   float64       `mapstructure:"detectSpeed" yaml:"detectSpeed"`
	DetectBrake   bool          `mapstructure:"detectBrake" yaml:"detectBrake"`
	DetectTimeout time.Duration `mapstructure:"detectTimeout" yaml:"detectTimeout"`

	// Stage 3.
	CorrectSpeed      float64       `mapstructure:"correctSpeed" yaml:"correctSpeed"`
	CorrectDistanceCM float64       `mapstructure:"correctDistanceCM" yaml:"correctDistanceCM"`
	RotateSpeed       float64       `mapstructure:"rotateSpeed" yaml:"rotateSpeed"`
	RotateBrake       bool          `mapstructure:"rotateBrake" yaml:"rotateBrake"`
	RotateTimeout     time.Duration `mapstructure:"rotateTimeout" yaml:"rotateTimeout"`
	RotateHeadingDeg  float64       `mapstructure:"rotateHeadingDeg" yaml:"rotateHeadingDeg"`
	BackoffSpeed      float64       `mapstructure:"backoffSpeed" yaml:"backoffSpeed"`
	BackoffDistanceCM float64       `mapstructure:"backoffDistanceCM" yaml:"backoffDistanceCM"`

	// Stage 5: move over the intersection and spin on the spot.
	SweepApproachSpeed      float64       `mapstructure:"sweepApproachSpeed" yaml:"sweepApproachSpeed"`
	SweepApproachDistanceCM float64       `mapstructure:"sweepApproachDistanceCM" yaml:"sweepApproachDistanceCM"`
	SweepSpeed              float64       `mapstructure:"sweepSpeed" yaml:"sweepSpeed"`
	SweepBrake              bool          `mapstructure:"sweepBrake" yaml:"sweepBrake"`
	SweepTimeout            time.Duration `mapstructure:"sweepTimeout" yaml:"sweepTimeout"`
	RequiredCrossings       int           `mapstructure:"requiredCrossings" yaml:"requiredCrossings"`
	// Count a line once however many consecutive samples see it.  Off by
	// default: every sample above threshold counts.
	RisingEdgesOnly bool `mapstructure:"risingEdgesOnly" yaml:"risingEdgesOnly"`

	// Stage 6.
	FinalTurnSpeed    float64       `mapstructure:"finalTurnSpeed" yaml:"finalTurnSpeed"`
	FinalTurnBrake    bool          `mapstructure:"finalTurnBrake" yaml:"finalTurnBrake"`
	FinalTurnTimeout  time.Duration `mapstructure:"finalTurnTimeout" yaml:"finalTurnTimeout"`
	FinalHeadingDeg   float64       `mapstructure:"finalHeadingDeg" yaml:"finalHeadingDeg"`
	FinalSpeed        float64       `mapstructure:"finalSpeed" yaml:"finalSpeed"`
	FinalDistanceCM   float64       `mapstructure:"finalDistanceCM" yaml:"finalDistanceCM"`
	ReferenceXCM      float64       `mapstructure:"referenceXCM" yaml:"referenceXCM"`
	ReferenceYCM      float64       `mapstructure:"referenceYCM" yaml:"referenceYCM"`
	ReferenceThetaDeg float64       `mapstructure:"referenceThetaDeg" yaml:"referenceThetaDeg"`

	Threshold    float64       `mapstructure:"threshold" yaml:"threshold"`
	Debounce     time.Duration `mapstructure:"debounce" yaml:"debounce"`
	PollInterval time.Duration `mapstructure:"pollInterval" yaml:"pollInterval"`
}

func DefaultConfig() Config {
	return Config{
		ApproachSpeed:      280,
		ApproachDistanceCM: -23,

		DetectSpeed:   250,
		DetectBrake:   true,
		DetectTimeout: 2 * time.Second,

		CorrectSpeed:      250,
		CorrectDistanceCM: 3.3,
		RotateSpeed:       250,
		RotateBrake:       false,
		RotateTimeout:     2 * time.Second,
		RotateHeadingDeg:  90,
		BackoffSpeed:      280,
		BackoffDistanceCM: -8,

		SweepApproachSpeed:      250,
		SweepApproachDistanceCM: 9.15,
		SweepSpeed:              180,
		SweepBrake:              true,
		SweepTimeout:            6 * time.Second,
		RequiredCrossings:       2,
		RisingEdgesOnly:         false,

		FinalTurnSpeed:    150,
		FinalTurnBrake:    false,
		FinalTurnTimeout:  6 * time.Second,
		FinalHeadingDeg:   13,
		FinalSpeed:        150,
		FinalDistanceCM:   5.9,
		ReferenceXCM:      0,
		ReferenceYCM:      0,
		ReferenceThetaDeg: 90,

		Threshold:    0.06,
		Debounce:     50 * time.Millisecond,
		PollInterval: time.Millisecond,
	}
}

// ReferencePose is the pose committed at the end of a successful run.
func (c Config) ReferencePose() pose.Pose {
	return pose.Pose{
		X:     c.ReferenceXCM,
		Y:     c.ReferenceYCM,
		Theta: angle.ToRadians(c.ReferenceThetaDeg),
	}
}

func (c Config) Validate() error {
	if c.Threshold <= 0 {
		return fmt.Errorf("%w: threshold must be positive, got %v", ErrBadConfig, c.Threshold)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("%w: negative debounce %v", ErrBadConfig, c.Debounce)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("%w: negative poll interval %v", ErrBadConfig, c.PollInterval)
	}
	if c.RequiredCrossings < 1 {
		return fmt.Errorf("%w: need at least one crossing, got %d", ErrBadConfig, c.RequiredCrossings)
	}
	for name, d := range map[string]time.Duration{
		"detectTimeout":    c.DetectTimeout,
		"rotateTimeout":    c.RotateTimeout,
		"sweepTimeout":     c.SweepTimeout,
		"finalTurnTimeout": c.FinalTurnTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrBadConfig, name, d)
		}
	}
	return nil
}
