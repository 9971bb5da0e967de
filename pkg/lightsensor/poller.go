package lightsensor

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

// Interface is what the localizer needs from the light sensor: the latest
// differential reading, with no buffering.
type Interface interface {
	ReadDifferential() float64
}

// Source produces raw reflected-light samples normalised to [0, 1].
type Source interface {
	ReadIntensity() (float64, error)
}

type Config struct {
	SampleInterval time.Duration `mapstructure:"sampleInterval" yaml:"sampleInterval"`
	// Weight of each new sample in the floor baseline.
	BaselineAlpha float64 `mapstructure:"baselineAlpha" yaml:"baselineAlpha"`
}

func DefaultConfig() Config {
	return Config{
		SampleInterval: 5 * time.Millisecond,
		BaselineAlpha:  0.05,
	}
}

// Poller samples a Source in the background and publishes the difference
// between a slow floor baseline and the latest sample.  The differential is
// positive when the sensor is over something darker than the floor, i.e. a
// grid line.
type Poller struct {
	source Source
	config Config
	clock  clock.Clock
	log    zerolog.Logger

	differential atomic.Uint64 // math.Float64bits
	samples      atomic.Int64

	baseline    float64
	haveSample  bool
	lastErrored bool
}

type Option func(p *Poller)

func WithClock(c clock.Clock) Option {
	return func(p *Poller) {
		p.clock = c
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Poller) {
		p.log = l
	}
}

func New(source Source, config Config, opts ...Option) *Poller {
	p := &Poller{
		source: source,
		config: config,
		clock:  clock.New(),
		log:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

var _ Interface = (*Poller)(nil)

func (p *Poller) ReadDifferential() float64 {
	return math.Float64frombits(p.differential.Load())
}

// Samples returns the number of successful reads so far.
func (p *Poller) Samples() int64 {
	return p.samples.Load()
}

// Loop samples the source until the context is cancelled.
func (p *Poller) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer p.log.Info().Msg("Light sensor loop exited")

	ticker := p.clock.Ticker(p.config.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll()
		}
	}
}

// Poll takes one sample.  On a read error the previous differential is kept.
func (p *Poller) Poll() {
	intensity, err := p.source.ReadIntensity()
	if err != nil {
		if !p.lastErrored {
			p.log.Warn().Err(err).Msg("Failed to read light sensor; keeping last value")
		}
		p.lastErrored = true
		return
	}
	if p.lastErrored {
		p.log.Info().Msg("Light sensor recovered")
		p.lastErrored = false
	}

	if !p.haveSample {
		p.baseline = intensity
		p.haveSample = true
	}
	diff := p.baseline - intensity
	p.baseline += p.config.BaselineAlpha * (intensity - p.baseline)

	p.differential.Store(math.Float64bits(diff))
	p.samples.Add(1)
}
