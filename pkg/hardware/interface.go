package hardware

import (
	"context"

	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/lightsensor"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/motion"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/odometry"
)

// Interface is everything the localizer binary needs from the bot.  Both the
// real Hardware and sim.Robot implement it.
type Interface interface {
	motion.Motors
	odometry.Encoders
	lightsensor.Source

	BattVolts() (float32, error)

	Start(ctx context.Context) error
	Shutdown()
}
