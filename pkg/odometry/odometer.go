package odometry

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/angle"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/pose"
)

// Encoders report the cumulative angle (degrees) each wheel has turned.
type Encoders interface {
	WheelRotations() (left, right float64, err error)
}

type PoseUpdater interface {
	Update(f func(p *pose.Pose))
}

// Odometer integrates wheel movement into the pose store.
type Odometer struct {
	encoders Encoders
	poses    PoseUpdater
	chassis  chassis.Chassis
	interval time.Duration
	clock    clock.Clock
	log      zerolog.Logger

	doneFirstPoll bool
	lastLeft      float64
	lastRight     float64
}

type Option func(o *Odometer)

func WithClock(c clock.Clock) Option {
	return func(o *Odometer) {
		o.clock = c
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Odometer) {
		o.log = l
	}
}

func New(encoders Encoders, poses PoseUpdater, c chassis.Chassis, interval time.Duration, opts ...Option) *Odometer {
	o := &Odometer{
		encoders: encoders,
		poses:    poses,
		chassis:  c,
		interval: interval,
		clock:    clock.New(),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Odometer) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer o.log.Info().Msg("Odometer loop exited")

	ticker := o.clock.Ticker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.Poll(); err != nil {
				o.log.Warn().Err(err).Msg("Failed to read wheel encoders")
			}
		}
	}
}

// Poll reads the encoders once and applies the movement since the previous
// poll.  The first poll only records the starting wheel angles.
func (o *Odometer) Poll() error {
	left, right, err := o.encoders.WheelRotations()
	if err != nil {
		return err
	}
	if !o.doneFirstPoll {
		o.lastLeft, o.lastRight = left, right
		o.doneFirstPoll = true
		return nil
	}

	dLeft := chassis.WheelDegreesToDistance(o.chassis.LeftRadiusCM, left-o.lastLeft)
	dRight := chassis.WheelDegreesToDistance(o.chassis.RightRadiusCM, right-o.lastRight)
	o.lastLeft, o.lastRight = left, right

	if dLeft == 0 && dRight == 0 {
		return nil
	}
	o.poses.Update(func(p *pose.Pose) {
		Advance(p, dLeft, dRight, o.chassis.TrackWidthCM)
	})
	return nil
}

// Advance moves p by the given wheel arc lengths using the midpoint
// heading for the displacement.
func Advance(p *pose.Pose, dLeft, dRight, trackWidth float64) {
	dCentre := (dLeft + dRight) / 2
	dTheta := (dRight - dLeft) / trackWidth
	mid := p.Theta + dTheta/2
	p.X += dCentre * math.Cos(mid)
	p.Y += dCentre * math.Sin(mid)
	p.Theta = angle.FromRadians(p.Theta + dTheta).Radians()
}
