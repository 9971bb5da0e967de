// Package sim is a stand-in for the real robot: a differential-drive bot
// rolling over a floor with a square grid of dark lines.
package sim

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/odometry"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/pose"
)

// Config describes the floor and the bot.  SensorOffsetCM is how far the
// sensor sits ahead of the axle midpoint; negative is behind.
type Config struct {
	GridSpacingCM  float64       `mapstructure:"gridSpacingCM" yaml:"gridSpacingCM"`
	LineWidthCM    float64       `mapstructure:"lineWidthCM" yaml:"lineWidthCM"`
	SensorOffsetCM float64       `mapstructure:"sensorOffsetCM" yaml:"sensorOffsetCM"`
	FloorIntensity float64       `mapstructure:"floorIntensity" yaml:"floorIntensity"`
	LineIntensity  float64       `mapstructure:"lineIntensity" yaml:"lineIntensity"`
	Noise          float64       `mapstructure:"noise" yaml:"noise"`
	TickInterval   time.Duration `mapstructure:"tickInterval" yaml:"tickInterval"`
	StartX         float64       `mapstructure:"startX" yaml:"startX"`
	StartY         float64       `mapstructure:"startY" yaml:"startY"`
	StartThetaDeg  float64       `mapstructure:"startThetaDeg" yaml:"startThetaDeg"`
	Seed           int64         `mapstructure:"seed" yaml:"seed"`
}

// DefaultConfig starts the bot in the square up and to the right of the
// origin intersection, facing away from it, so a default run ends near
// (0, 0).
func DefaultConfig() Config {
	return Config{
		GridSpacingCM:  30.48,
		LineWidthCM:    0.5,
		SensorOffsetCM: 9.15,
		FloorIntensity: 0.55,
		LineIntensity:  0.15,
		Noise:          0.005,
		TickInterval:   2 * time.Millisecond,
		StartX:         4,
		StartY:         4,
		StartThetaDeg:  45,
		Seed:           1,
	}
}

// Robot integrates its true pose from the commanded wheel speeds.
type Robot struct {
	config  Config
	chassis chassis.Chassis
	clock   clock.Clock
	log     zerolog.Logger

	lock       sync.Mutex
	truth      pose.Pose
	leftSpeed  float64
	rightSpeed float64
	leftDeg    float64
	rightDeg   float64
	rng        *rand.Rand
	lastStep   time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(r *Robot)

func WithClock(c clock.Clock) Option {
	return func(r *Robot) {
		r.clock = c
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Robot) {
		r.log = l
	}
}

func New(config Config, c chassis.Chassis, opts ...Option) *Robot {
	r := &Robot{
		config:  config,
		chassis: c,
		clock:   clock.New(),
		log:     zerolog.Nop(),
		truth: pose.Pose{
			X:     config.StartX,
			Y:     config.StartY,
			Theta: config.StartThetaDeg * math.Pi / 180,
		},
		rng: rand.New(rand.NewSource(config.Seed)),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Robot) Start(ctx context.Context) error {
	var loopCtx context.Context
	loopCtx, r.cancel = context.WithCancel(ctx)
	r.lock.Lock()
	r.lastStep = r.clock.Now()
	r.log.Info().Stringer("truth", r.truth).Msg("Simulated robot started")
	r.lock.Unlock()
	r.wg.Add(1)
	go r.loop(loopCtx)
	return nil
}

func (r *Robot) Shutdown() {
	if r.cancel != nil {
		r.cancel()
		r.wg.Wait()
	}
	_ = r.Stop(true)
}

func (r *Robot) loop(ctx context.Context) {
	defer r.wg.Done()
	ticker := r.clock.Ticker(r.config.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.lock.Lock()
			r.stepLocked(now.Sub(r.lastStep))
			r.lastStep = now
			r.lock.Unlock()
		}
	}
}

// Step advances the simulation by dt.
func (r *Robot) Step(dt time.Duration) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.stepLocked(dt)
}

func (r *Robot) stepLocked(dt time.Duration) {
	dl := r.leftSpeed * dt.Seconds()
	dr := r.rightSpeed * dt.Seconds()
	r.leftDeg += dl
	r.rightDeg += dr
	odometry.Advance(&r.truth,
		chassis.WheelDegreesToDistance(r.chassis.LeftRadiusCM, dl),
		chassis.WheelDegreesToDistance(r.chassis.RightRadiusCM, dr),
		r.chassis.TrackWidthCM,
	)
}

func (r *Robot) SetWheelSpeeds(left, right float64) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.leftSpeed, r.rightSpeed = left, right
	return nil
}

// Stop halts both wheels.  The sim has no inertia so braking and coasting
// are the same.
func (r *Robot) Stop(brake bool) error {
	return r.SetWheelSpeeds(0, 0)
}

func (r *Robot) WheelRotations() (left, right float64, err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.leftDeg, r.rightDeg, nil
}

func (r *Robot) ReadIntensity() (float64, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	sx := r.truth.X + r.config.SensorOffsetCM*math.Cos(r.truth.Theta)
	sy := r.truth.Y + r.config.SensorOffsetCM*math.Sin(r.truth.Theta)
	v := r.config.FloorIntensity
	if r.onLine(sx) || r.onLine(sy) {
		v = r.config.LineIntensity
	}
	if r.config.Noise > 0 {
		v += r.rng.NormFloat64() * r.config.Noise
	}
	return math.Min(1, math.Max(0, v)), nil
}

func (r *Robot) onLine(c float64) bool {
	g := r.config.GridSpacingCM
	d := math.Abs(c - g*math.Round(c/g))
	return d <= r.config.LineWidthCM/2
}

func (r *Robot) BattVolts() (float32, error) {
	return 7.4, nil
}

// Truth returns the simulated actual pose, as opposed to what odometry
// believes.
func (r *Robot) Truth() pose.Pose {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.truth
}
