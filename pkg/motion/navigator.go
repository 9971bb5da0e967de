package motion

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/angle"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/pose"
)

// DefaultTurnSpeed is used by TurnTo if SetSpeeds has never been called.
const DefaultTurnSpeed = 150.0

var ErrZeroSpeed = errors.New("move requested with zero wheel speed")

type PoseReader interface {
	Get() pose.Pose
}

// Navigator implements Interface on top of raw wheel motors, timing
// discrete moves from the chassis geometry.
type Navigator struct {
	motors  Motors
	poses   PoseReader
	chassis chassis.Chassis
	clock   clock.Clock
	log     zerolog.Logger

	lock        sync.Mutex
	armedLeft   float64
	armedRight  float64
	brakeOnStop bool
	watchdog    *clock.Timer
	generation  int
}

type Option func(n *Navigator)

func WithClock(c clock.Clock) Option {
	return func(n *Navigator) {
		n.clock = c
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(n *Navigator) {
		n.log = l
	}
}

func NewNavigator(motors Motors, poses PoseReader, c chassis.Chassis, opts ...Option) *Navigator {
	n := &Navigator{
		motors:  motors,
		poses:   poses,
		chassis: c,
		clock:   clock.New(),
		log:     zerolog.Nop(),
	}
	// Brake until a SetSpeeds says otherwise.
	n.brakeOnStop = true
	for _, o := range opts {
		o(n)
	}
	return n
}

var _ Interface = (*Navigator)(nil)

func (n *Navigator) GoStraight(ctx context.Context, leftSpeed, rightSpeed, distanceCM float64) error {
	if distanceCM == 0 {
		return nil
	}
	l, r := math.Abs(leftSpeed), math.Abs(rightSpeed)
	if l == 0 || r == 0 {
		return ErrZeroSpeed
	}
	sign := 1.0
	if distanceCM < 0 {
		sign = -1
	}
	dist := math.Abs(distanceCM)
	n.log.Debug().Float64("left", leftSpeed).Float64("right", rightSpeed).
		Float64("distanceCM", distanceCM).Msg("Go straight")

	return n.move(ctx,
		sign*l, sign*r,
		wheelTime(n.chassis.LeftDegrees(dist), l),
		wheelTime(n.chassis.RightDegrees(dist), r),
	)
}

func (n *Navigator) TurnTo(ctx context.Context, theta float64) error {
	current := n.poses.Get().Theta
	delta := angle.Shortest(current, theta)
	if delta == 0 {
		return nil
	}

	n.lock.Lock()
	speed := math.Max(math.Abs(n.armedLeft), math.Abs(n.armedRight))
	n.lock.Unlock()
	if speed == 0 {
		speed = DefaultTurnSpeed
	}

	// CCW is positive: left wheel backwards, right wheel forwards.
	dir := 1.0
	if delta < 0 {
		dir = -1
	}
	rotation := math.Abs(delta)
	n.log.Debug().Float64("from", angle.ToDegrees(current)).Float64("to", angle.ToDegrees(theta)).
		Float64("speed", speed).Msg("Turn to")

	return n.move(ctx,
		-dir*speed, dir*speed,
		wheelTime(n.chassis.SpinDegrees(n.chassis.LeftRadiusCM, rotation), speed),
		wheelTime(n.chassis.SpinDegrees(n.chassis.RightRadiusCM, rotation), speed),
	)
}

func (n *Navigator) SetSpeeds(leftSpeed, rightSpeed float64, brakeOnStop bool, timeout time.Duration) {
	n.lock.Lock()
	defer n.lock.Unlock()

	n.cancelWatchdogLocked()
	n.armedLeft, n.armedRight = leftSpeed, rightSpeed
	n.brakeOnStop = brakeOnStop

	if err := n.motors.SetWheelSpeeds(leftSpeed, rightSpeed); err != nil {
		n.log.Error().Err(err).Msg("Failed to set wheel speeds")
	}
	if timeout > 0 {
		gen := n.generation
		n.watchdog = n.clock.AfterFunc(timeout, func() {
			n.onWatchdog(gen)
		})
	}
}

func (n *Navigator) StopMotors() {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.stopLocked()
}

func (n *Navigator) onWatchdog(gen int) {
	n.lock.Lock()
	defer n.lock.Unlock()
	if gen != n.generation {
		// Superseded by a later command.
		return
	}
	n.log.Debug().Msg("Motion watchdog expired")
	n.stopLocked()
}

// stopLocked stops with the brake mode of the last SetSpeeds.  The mode
// sticks across blocking moves until the next SetSpeeds.
func (n *Navigator) stopLocked() {
	n.cancelWatchdogLocked()
	if err := n.motors.Stop(n.brakeOnStop); err != nil {
		n.log.Error().Err(err).Msg("Failed to stop motors")
	}
}

func (n *Navigator) cancelWatchdogLocked() {
	n.generation++
	if n.watchdog != nil {
		n.watchdog.Stop()
		n.watchdog = nil
	}
}

// move runs the wheels at the given speeds, stopping each one when its
// time is up, then stops both.
func (n *Navigator) move(ctx context.Context, left, right float64, tLeft, tRight time.Duration) error {
	n.lock.Lock()
	n.cancelWatchdogLocked()
	err := n.motors.SetWheelSpeeds(left, right)
	n.lock.Unlock()
	if err != nil {
		n.StopMotors()
		return err
	}

	first := tLeft
	if tRight < first {
		first = tRight
	}
	if err := n.wait(ctx, first); err != nil {
		n.StopMotors()
		return err
	}

	if tLeft != tRight {
		if tLeft < tRight {
			left = 0
		} else {
			right = 0
		}
		if err := n.motors.SetWheelSpeeds(left, right); err != nil {
			n.StopMotors()
			return err
		}
		if err := n.wait(ctx, absDuration(tRight-tLeft)); err != nil {
			n.StopMotors()
			return err
		}
	}

	n.StopMotors()
	return nil
}

func (n *Navigator) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := n.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func wheelTime(degrees, speed float64) time.Duration {
	return time.Duration(math.Abs(degrees) / speed * float64(time.Second))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
