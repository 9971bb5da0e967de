package hardware

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/colorsensor"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/picobldc"
)

var ErrNotReady = errors.New("hardware not initialised")

type Config struct {
	// Name of the periph I2C bus the light sensor is on; "" for the first.
	LightBus              string        `mapstructure:"lightBus" yaml:"lightBus"`
	LightIntegrationSteps int           `mapstructure:"lightIntegrationSteps" yaml:"lightIntegrationSteps"`
	LightGain             int           `mapstructure:"lightGain" yaml:"lightGain"`
	PollInterval          time.Duration `mapstructure:"pollInterval" yaml:"pollInterval"`
	MotorWatchdog         time.Duration `mapstructure:"motorWatchdog" yaml:"motorWatchdog"`
	RetryDelay            time.Duration `mapstructure:"retryDelay" yaml:"retryDelay"`
}

func DefaultConfig() Config {
	return Config{
		LightIntegrationSteps: 2,
		LightGain:             int(colorsensor.Gain16x),
		PollInterval:          10 * time.Millisecond,
		MotorWatchdog:         250 * time.Millisecond,
		RetryDelay:            100 * time.Millisecond,
	}
}

type motorCommand struct {
	left, right float64
	stopped     bool
	brake       bool
}

// Hardware owns the motor controller and the light sensor.  All I2C traffic
// goes through lock.  A background loop polls the encoders and re-sends the
// current motor command to keep the controller's watchdog fed; if anything
// fails the devices are closed and reopened.
type Hardware struct {
	config     Config
	clock      clock.Clock
	log        zerolog.Logger
	openMotors func() (picobldc.Interface, error)
	openLight  func() (colorsensor.Interface, error)

	lock      sync.Mutex
	motors    picobldc.Interface
	light     colorsensor.Interface
	tracker   *picobldc.WheelTracker
	command   motorCommand
	wheelDeg  picobldc.PerMotorVal[float64]
	battVolts float32

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(h *Hardware)

func WithClock(c clock.Clock) Option {
	return func(h *Hardware) {
		h.clock = c
	}
}

func New(config Config, log zerolog.Logger, opts ...Option) *Hardware {
	h := &Hardware{
		config: config,
		clock:  clock.New(),
		log:    log,
		openMotors: func() (picobldc.Interface, error) {
			p, err := picobldc.New(log)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		openLight: func() (colorsensor.Interface, error) {
			return colorsensor.New(config.LightBus)
		},
		command: motorCommand{stopped: true, brake: true},
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

var _ Interface = (*Hardware)(nil)

// Start opens the devices and starts the background loop.  It returns once
// the first initialisation has either succeeded or failed.
func (h *Hardware) Start(ctx context.Context) error {
	var loopCtx context.Context
	loopCtx, h.cancel = context.WithCancel(ctx)
	started := make(chan error, 1)
	h.wg.Add(1)
	go h.loop(loopCtx, started)
	return <-started
}

func (h *Hardware) Shutdown() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
}

func (h *Hardware) SetWheelSpeeds(left, right float64) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.command = motorCommand{left: left, right: right}
	if h.motors == nil {
		return ErrNotReady
	}
	return h.motors.SetWheelSpeeds(left, right)
}

func (h *Hardware) Stop(brake bool) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.command = motorCommand{stopped: true, brake: brake}
	if h.motors == nil {
		return ErrNotReady
	}
	return h.motors.Stop(brake)
}

// WheelRotations returns the cumulative wheel angles in degrees as of the
// last encoder poll.  The totals survive a device reset.
func (h *Hardware) WheelRotations() (left, right float64, err error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.wheelDeg[picobldc.MotorLeft], h.wheelDeg[picobldc.MotorRight], nil
}

func (h *Hardware) ReadIntensity() (float64, error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.light == nil {
		return 0, ErrNotReady
	}
	return h.light.ReadIntensity()
}

// BattVolts returns the most recent battery reading.
func (h *Hardware) BattVolts() (float32, error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.motors == nil {
		return 0, ErrNotReady
	}
	return h.battVolts, nil
}
