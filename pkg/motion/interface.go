package motion

import (
	"context"
	"time"
)

// Interface is the set of motion primitives the localizer drives the bot
// with.  Speeds are wheel speeds in degrees/second.
type Interface interface {
	// GoStraight rolls both wheels through the angle needed to cover
	// distanceCM (negative is backwards) and blocks until the move is done.
	GoStraight(ctx context.Context, leftSpeed, rightSpeed, distanceCM float64) error
	// SetSpeeds starts continuous motion and returns immediately.  Motion
	// continues until StopMotors or until timeout elapses.  brakeOnStop
	// selects braking or coasting for every stop from here on, including
	// the end of later blocking moves, until the next SetSpeeds.
	SetSpeeds(leftSpeed, rightSpeed float64, brakeOnStop bool, timeout time.Duration)
	// TurnTo rotates in place to the absolute heading theta (radians) and
	// blocks until done.
	TurnTo(ctx context.Context, theta float64) error
	// StopMotors halts the wheels immediately.  Safe to call repeatedly.
	StopMotors()
}

// Motors is the raw two-wheel actuator underneath a Navigator.
type Motors interface {
	SetWheelSpeeds(left, right float64) error
	Stop(brake bool) error
}
