package sim_test

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/angle"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/config"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/lightsensor"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/localizer"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/motion"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/odometry"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/pose"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/sim"
)

type beepCounter struct {
	n atomic.Int32
}

func (b *beepCounter) Beep() {
	b.n.Add(1)
}

// The sim, odometry and light sensor are stepped in lock step with the mock
// clock; only the localizer runs in its own goroutine.
func TestDefaultRunEndsOnIntersection(t *testing.T) {
	if testing.Short() {
		t.Skip("steps several simulated seconds")
	}
	const tick = 5 * time.Millisecond

	cfg := config.Default()
	cfg.Localizer.PollInterval = tick

	mock := clock.NewMock()
	robot := sim.New(cfg.Sim, cfg.Chassis, sim.WithClock(mock))
	poses := pose.NewStore(pose.Pose{Theta: angle.ToRadians(cfg.StartThetaDeg)})
	odo := odometry.New(robot, poses, cfg.Chassis, tick, odometry.WithClock(mock))
	poller := lightsensor.New(robot, cfg.LightSensor, lightsensor.WithClock(mock))
	nav := motion.NewNavigator(robot, poses, cfg.Chassis, motion.WithClock(mock))
	signals := &beepCounter{}
	loc, err := localizer.New(cfg.Localizer, nav, poller, poses, signals, localizer.WithSleeper(mock))
	require.NoError(t, err)

	require.NoError(t, odo.Poll())
	for i := 0; i < 20; i++ {
		poller.Poll()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- loc.Localize(ctx)
	}()

	var elapsed time.Duration
	for running := true; running; {
		select {
		case err = <-done:
			running = false
		default:
			require.Less(t, elapsed, 30*time.Second, "still in stage %v", loc.Stage())
			mock.Add(tick)
			robot.Step(tick)
			require.NoError(t, odo.Poll())
			poller.Poll()
			elapsed += tick
		}
	}

	require.NoError(t, err)
	assert.Equal(t, localizer.Done, loc.Stage())

	ref := cfg.Localizer.ReferencePose()
	got := poses.Get()
	assert.InDelta(t, ref.X, got.X, 1e-9)
	assert.InDelta(t, ref.Y, got.Y, 1e-9)
	assert.InDelta(t, ref.Theta, got.Theta, 1e-9)

	// Two lines, two crossings and the completion beep.
	assert.Equal(t, int32(5), signals.n.Load())

	truth := robot.Truth()
	assert.Less(t, math.Hypot(truth.X, truth.Y), 4.0, "ended at %v", truth)
	assert.InDelta(t, 13, angle.ToDegrees(truth.Theta), 2)
}
