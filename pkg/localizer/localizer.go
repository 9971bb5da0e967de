// Package localizer drives the bot onto a known grid intersection using a
// single downward-facing light sensor and then resets the tracked pose.
//
// The run is a fixed sequence of stages: back off, find a line, square up
// and turn, find the crossing line, spin over the intersection counting
// line crossings, then make a final heading and distance correction before
// committing the reference pose.
package localizer

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/angle"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/lightsensor"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/motion"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/pose"
)

// Signals is the operator feedback channel; one beep per detected line and
// one on completion.
type Signals interface {
	Beep()
}

type PoseWriter interface {
	Set(p pose.Pose)
}

// Sleeper is satisfied by clock.Clock.
type Sleeper interface {
	Sleep(d time.Duration)
}

type Localizer struct {
	config  Config
	nav     motion.Interface
	sensor  lightsensor.Interface
	poses   PoseWriter
	signals Signals
	sleeper Sleeper
	log     zerolog.Logger

	stage atomic.Int32
}

type Option func(l *Localizer)

func WithLogger(log zerolog.Logger) Option {
	return func(l *Localizer) {
		l.log = log
	}
}

func WithSleeper(s Sleeper) Option {
	return func(l *Localizer) {
		l.sleeper = s
	}
}

func New(
	config Config,
	nav motion.Interface,
	sensor lightsensor.Interface,
	poses PoseWriter,
	signals Signals,
	opts ...Option,
) (*Localizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	l := &Localizer{
		config:  config,
		nav:     nav,
		sensor:  sensor,
		poses:   poses,
		signals: signals,
		sleeper: clock.New(),
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Stage returns the stage currently executing.  Safe to call from any
// goroutine.
func (l *Localizer) Stage() Stage {
	return Stage(l.stage.Load())
}

// Localize runs the whole procedure once.  On success the pose store holds
// the reference pose.  If ctx is cancelled the motors are stopped, the pose
// store is left alone and ctx.Err() is returned.
//
// The line-detection loops have no timeout of their own: if the sensor never
// sees a line they spin until ctx is cancelled.
func (l *Localizer) Localize(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			l.nav.StopMotors()
			l.log.Warn().Err(err).Stringer("stage", l.Stage()).Msg("Localization aborted")
		}
	}()

	stages := []struct {
		stage Stage
		run   func(ctx context.Context) error
	}{
		{ApproachFirstLine, l.approachFirstLine},
		{DetectFirstLine, l.detectLine},
		{CorrectAndRotate, l.correctAndRotate},
		{DetectSecondLine, l.detectLine},
		{SweepAndCountCrossings, l.sweepAndCountCrossings},
		{FinalCorrection, l.finalCorrection},
	}
	for _, s := range stages {
		l.enter(s.stage)
		if err := s.run(ctx); err != nil {
			return err
		}
	}
	l.enter(Done)
	return nil
}

func (l *Localizer) enter(s Stage) {
	l.stage.Store(int32(s))
	l.log.Info().Stringer("stage", s).Msg("Entering stage")
}

func (l *Localizer) approachFirstLine(ctx context.Context) error {
	c := &l.config
	if err := l.goStraight(ctx, c.ApproachSpeed, c.ApproachDistanceCM); err != nil {
		return err
	}
	return l.debounce(ctx)
}

// detectLine creeps forward until the sensor crosses the threshold.  Used
// for both the first and the second line.
func (l *Localizer) detectLine(ctx context.Context) error {
	c := &l.config
	l.nav.SetSpeeds(c.DetectSpeed, c.DetectSpeed, c.DetectBrake, c.DetectTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		sample := l.sensor.ReadDifferential()
		if sample > c.Threshold {
			l.nav.StopMotors()
			l.signals.Beep()
			l.log.Info().Float64("sample", sample).Msg("Line detected")
			break
		}
		l.pause()
	}
	return l.debounce(ctx)
}

func (l *Localizer) correctAndRotate(ctx context.Context) error {
	c := &l.config
	if err := l.goStraight(ctx, c.CorrectSpeed, c.CorrectDistanceCM); err != nil {
		return err
	}
	if err := l.debounce(ctx); err != nil {
		return err
	}
	// Arms the turn speed and brake mode; TurnTo does the actual motion.
	l.nav.SetSpeeds(c.RotateSpeed, c.RotateSpeed, c.RotateBrake, c.RotateTimeout)
	if err := l.turnTo(ctx, c.RotateHeadingDeg); err != nil {
		return err
	}
	if err := l.debounce(ctx); err != nil {
		return err
	}
	if err := l.goStraight(ctx, c.BackoffSpeed, c.BackoffDistanceCM); err != nil {
		return err
	}
	return l.debounce(ctx)
}

// sweepAndCountCrossings spins on the spot over the intersection, counting
// every sample above threshold, and stops as soon as the count reaches
// RequiredCrossings.  With RisingEdgesOnly a sample only counts if the one
// before it was below threshold.
func (l *Localizer) sweepAndCountCrossings(ctx context.Context) error {
	c := &l.config
	if err := l.goStraight(ctx, c.SweepApproachSpeed, c.SweepApproachDistanceCM); err != nil {
		return err
	}
	if err := l.debounce(ctx); err != nil {
		return err
	}
	l.nav.SetSpeeds(-c.SweepSpeed, c.SweepSpeed, c.SweepBrake, c.SweepTimeout)
	count := 0
	wasHigh := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		sample := l.sensor.ReadDifferential()
		high := sample > c.Threshold
		if high && !(c.RisingEdgesOnly && wasHigh) {
			count++
			l.signals.Beep()
			l.log.Info().Float64("sample", sample).Int("count", count).Msg("Line crossing")
			if count >= c.RequiredCrossings {
				l.nav.StopMotors()
				return nil
			}
		}
		wasHigh = high
		l.pause()
	}
}

func (l *Localizer) finalCorrection(ctx context.Context) error {
	c := &l.config
	l.nav.SetSpeeds(c.FinalTurnSpeed, c.FinalTurnSpeed, c.FinalTurnBrake, c.FinalTurnTimeout)
	if err := l.turnTo(ctx, c.FinalHeadingDeg); err != nil {
		return err
	}
	if err := l.debounce(ctx); err != nil {
		return err
	}
	if err := l.goStraight(ctx, c.FinalSpeed, c.FinalDistanceCM); err != nil {
		return err
	}
	if err := l.debounce(ctx); err != nil {
		return err
	}

	ref := c.ReferencePose()
	l.poses.Set(ref)
	l.log.Info().
		Float64("x", ref.X).
		Float64("y", ref.Y).
		Float64("theta", angle.ToDegrees(ref.Theta)).
		Msg("Pose reset to reference")
	l.signals.Beep()
	return nil
}

func (l *Localizer) goStraight(ctx context.Context, speed, distanceCM float64) error {
	return l.checkMotion(ctx, "go-straight", l.nav.GoStraight(ctx, speed, speed, distanceCM))
}

func (l *Localizer) turnTo(ctx context.Context, headingDeg float64) error {
	return l.checkMotion(ctx, "turn-to", l.nav.TurnTo(ctx, angle.ToRadians(headingDeg)))
}

// checkMotion only propagates cancellation.  Any other motion failure is
// logged and the run carries on as if the move had completed.
func (l *Localizer) checkMotion(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	l.log.Warn().Err(err).Str("op", op).Msg("Motion failed, continuing")
	return nil
}

// debounce stops the wheels and lets the bot settle before the next move.
// The pause itself is not interruptible.
func (l *Localizer) debounce(ctx context.Context) error {
	l.nav.StopMotors()
	if l.config.Debounce > 0 {
		l.sleeper.Sleep(l.config.Debounce)
	}
	return ctx.Err()
}

func (l *Localizer) pause() {
	if l.config.PollInterval == 0 {
		runtime.Gosched()
		return
	}
	l.sleeper.Sleep(l.config.PollInterval)
}
