package localizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/pose"
)

// recorder collects every interaction with the localizer's collaborators, in
// order, as short strings.
type recorder struct {
	lock   sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...interface{}) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) Events() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) count(e string) int {
	n := 0
	for _, ev := range r.Events() {
		if ev == e {
			n++
		}
	}
	return n
}

type fakeNav struct {
	rec          *recorder
	brakes       []bool
	moveErr      error
	onGoStraight func()
}

func (n *fakeNav) GoStraight(ctx context.Context, l, r, d float64) error {
	n.rec.add("goStraight(%g,%g,%g)", l, r, d)
	if n.onGoStraight != nil {
		n.onGoStraight()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.moveErr
}

func (n *fakeNav) SetSpeeds(l, r float64, brake bool, timeout time.Duration) {
	n.brakes = append(n.brakes, brake)
	n.rec.add("setSpeeds(%g,%g,%v,%v)", l, r, brake, timeout)
}

func (n *fakeNav) TurnTo(ctx context.Context, theta float64) error {
	n.rec.add("turnTo(%.0f)", theta*180/math.Pi)
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.moveErr
}

func (n *fakeNav) StopMotors() {
	n.rec.add("stop")
}

// scriptedSensor plays back samples in order, then repeats fallback.  If
// cancelAfter is set, it cancels after that many reads.
type scriptedSensor struct {
	rec         *recorder
	samples     []float64
	fallback    float64
	reads       int
	cancelAfter int
	cancel      context.CancelFunc
}

func (s *scriptedSensor) ReadDifferential() float64 {
	s.reads++
	s.rec.add("read")
	if s.cancel != nil && s.reads == s.cancelAfter {
		s.cancel()
	}
	if len(s.samples) == 0 {
		return s.fallback
	}
	v := s.samples[0]
	s.samples = s.samples[1:]
	return v
}

type recordingSignals struct{ rec *recorder }

func (s recordingSignals) Beep() { s.rec.add("beep") }

type recordingSleeper struct{ rec *recorder }

func (s recordingSleeper) Sleep(d time.Duration) { s.rec.add("sleep(%v)", d) }

type recordingStore struct {
	*pose.Store
	rec *recorder
}

func (s recordingStore) Set(p pose.Pose) {
	s.rec.add("commit")
	s.Store.Set(p)
}

type harness struct {
	rec    *recorder
	nav    *fakeNav
	sensor *scriptedSensor
	store  recordingStore
	loc    *Localizer
}

func newHarness(t *testing.T, config Config, start pose.Pose, samples ...float64) *harness {
	rec := &recorder{}
	h := &harness{
		rec:    rec,
		nav:    &fakeNav{rec: rec},
		sensor: &scriptedSensor{rec: rec, samples: samples},
		store:  recordingStore{Store: pose.NewStore(start), rec: rec},
	}
	var err error
	h.loc, err = New(config, h.nav, h.sensor, h.store, recordingSignals{rec}, WithSleeper(recordingSleeper{rec}))
	require.NoError(t, err)
	return h
}

func testConfig() Config {
	c := DefaultConfig()
	c.PollInterval = 0
	return c
}

// happySamples finds both lines straight away and then two crossings
// separated by floor.
var happySamples = []float64{0.09, 0.09, 0.07, 0.0, 0.08}

func TestFullRunSequence(t *testing.T) {
	h := newHarness(t, testConfig(), pose.Pose{X: 3, Y: -4, Theta: 1}, happySamples...)

	require.NoError(t, h.loc.Localize(context.Background()))

	assert.Equal(t, []string{
		// Approach.
		"goStraight(280,280,-23)", "stop", "sleep(50ms)",
		// First line.
		"setSpeeds(250,250,true,2s)", "read", "stop", "beep", "stop", "sleep(50ms)",
		// Correct and rotate.
		"goStraight(250,250,3.3)", "stop", "sleep(50ms)",
		"setSpeeds(250,250,false,2s)", "turnTo(90)", "stop", "sleep(50ms)",
		"goStraight(280,280,-8)", "stop", "sleep(50ms)",
		// Second line.
		"setSpeeds(250,250,true,2s)", "read", "stop", "beep", "stop", "sleep(50ms)",
		// Sweep.
		"goStraight(250,250,9.15)", "stop", "sleep(50ms)",
		"setSpeeds(-180,180,true,6s)", "read", "beep", "read", "read", "beep", "stop",
		// Final correction.
		"setSpeeds(150,150,false,6s)", "turnTo(13)", "stop", "sleep(50ms)",
		"goStraight(150,150,5.9)", "stop", "sleep(50ms)",
		"commit", "beep",
	}, h.rec.Events())
	assert.Equal(t, Done, h.loc.Stage())
}

func TestCommitsReferencePose(t *testing.T) {
	h := newHarness(t, testConfig(), pose.Pose{X: 12.5, Y: 7, Theta: -2}, happySamples...)

	require.NoError(t, h.loc.Localize(context.Background()))

	p := h.store.Get()
	assert.Equal(t, 0.0, p.X)
	assert.Equal(t, 0.0, p.Y)
	assert.InDelta(t, math.Pi/2, p.Theta, 1e-12)
}

func TestSameResultFromDifferentStarts(t *testing.T) {
	var results []pose.Pose
	for _, start := range []pose.Pose{
		{X: -10, Y: -10, Theta: 0.3},
		{X: 25, Y: 4, Theta: -2.9},
	} {
		h := newHarness(t, testConfig(), start, happySamples...)
		require.NoError(t, h.loc.Localize(context.Background()))
		results = append(results, h.store.Get())
	}
	assert.Equal(t, results[0], results[1])
}

func TestBrakePattern(t *testing.T) {
	h := newHarness(t, testConfig(), pose.Pose{}, happySamples...)

	require.NoError(t, h.loc.Localize(context.Background()))

	assert.Equal(t, []bool{true, false, true, true, false}, h.nav.brakes)
}

func TestDetectsOnFirstSampleAboveThreshold(t *testing.T) {
	h := newHarness(t, testConfig(), pose.Pose{}, 0.02, 0.03, 0.09)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Stop the run once the next stage's first move starts.
	h.nav.onGoStraight = func() {
		if h.sensor.reads > 0 {
			cancel()
		}
	}

	err := h.loc.Localize(ctx)
	require.ErrorIs(t, err, context.Canceled)

	events := h.rec.Events()
	start := indexOf(events, "setSpeeds(250,250,true,2s)")
	require.GreaterOrEqual(t, start, 0)
	assert.Equal(t, []string{
		"setSpeeds(250,250,true,2s)",
		"read", "read", "read",
		"stop", "beep",
		"stop", "sleep(50ms)",
	}, events[start:start+8])
	assert.Equal(t, 3, h.sensor.reads)
	assert.Equal(t, 1, h.rec.count("beep"))
}

func TestCountsExactlyTwoCrossings(t *testing.T) {
	// Both detection stages fire on their first sample; the rest is the
	// sweep.
	h := newHarness(t, testConfig(), pose.Pose{}, 0.09, 0.09, 0.01, 0.07, 0.02, 0.08, 0.01)

	require.NoError(t, h.loc.Localize(context.Background()))

	events := h.rec.Events()
	start := indexOf(events, "setSpeeds(-180,180,true,6s)")
	end := indexOf(events, "setSpeeds(150,150,false,6s)")
	require.True(t, start >= 0 && end > start)
	assert.Equal(t, []string{
		"setSpeeds(-180,180,true,6s)",
		"read",
		"read", "beep",
		"read",
		"read", "beep",
		"stop",
	}, events[start:end])
	// The trailing 0.01 is never read.
	assert.Equal(t, 6, h.sensor.reads)
}

func TestConsecutiveHighSamplesEachCount(t *testing.T) {
	h := newHarness(t, testConfig(), pose.Pose{}, 0.09, 0.09, 0.07, 0.08, 0.01)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.sensor.cancelAfter = 50
	h.sensor.cancel = cancel

	require.NoError(t, h.loc.Localize(ctx))

	events := h.rec.Events()
	start := indexOf(events, "setSpeeds(-180,180,true,6s)")
	end := indexOf(events, "setSpeeds(150,150,false,6s)")
	require.True(t, start >= 0 && end > start)
	assert.Equal(t, []string{
		"setSpeeds(-180,180,true,6s)",
		"read", "beep",
		"read", "beep",
		"stop",
	}, events[start:end])
	assert.Equal(t, 4, h.sensor.reads)
	assert.Equal(t, Done, h.loc.Stage())
}

func TestRisingEdgesOnlyCountsHeldLineOnce(t *testing.T) {
	c := testConfig()
	c.RisingEdgesOnly = true
	h := newHarness(t, c, pose.Pose{}, 0.09, 0.09, 0.07, 0.08, 0.09, 0.0, 0.07)

	require.NoError(t, h.loc.Localize(context.Background()))

	// Two detection beeps, two crossing beeps, one completion beep.
	assert.Equal(t, 5, h.rec.count("beep"))
	assert.Equal(t, 7, h.sensor.reads)
}

func TestEveryMoveIsFollowedByDebounce(t *testing.T) {
	h := newHarness(t, testConfig(), pose.Pose{}, happySamples...)

	require.NoError(t, h.loc.Localize(context.Background()))

	events := h.rec.Events()
	moves := 0
	for i, e := range events {
		if !isBlockingMove(e) {
			continue
		}
		moves++
		require.Less(t, i+2, len(events))
		assert.Equal(t, "stop", events[i+1], "after %s", e)
		assert.Equal(t, "sleep(50ms)", events[i+2], "after %s", e)
	}
	assert.Equal(t, 7, moves)
}

func TestNeverSeeingALineDoesNotFinish(t *testing.T) {
	const n = 1000
	start := pose.Pose{X: 1, Y: 2, Theta: 3}
	h := newHarness(t, testConfig(), start)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.sensor.cancelAfter = n
	h.sensor.cancel = cancel

	err := h.loc.Localize(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, n, h.sensor.reads)
	assert.Equal(t, DetectFirstLine, h.loc.Stage())
	assert.Equal(t, 0, h.rec.count("beep"))
	assert.Equal(t, 0, h.rec.count("commit"))
	assert.Equal(t, start, h.store.Get())
	events := h.rec.Events()
	assert.Equal(t, "stop", events[len(events)-1])
}

func TestPollIntervalSleepsBetweenSamples(t *testing.T) {
	c := testConfig()
	c.PollInterval = 5 * time.Millisecond
	h := newHarness(t, c, pose.Pose{}, 0.0, 0.09, 0.09, 0.07, 0.0, 0.08)

	require.NoError(t, h.loc.Localize(context.Background()))

	events := h.rec.Events()
	first := indexOf(events, "read")
	assert.Equal(t, []string{"read", "sleep(5ms)", "read", "stop", "beep"}, events[first:first+5])
}

func TestMotionErrorsAreIgnored(t *testing.T) {
	h := newHarness(t, testConfig(), pose.Pose{X: 5}, happySamples...)
	h.nav.moveErr = errors.New("motor controller went away")

	require.NoError(t, h.loc.Localize(context.Background()))

	p := h.store.Get()
	assert.Equal(t, 0.0, p.X)
	assert.InDelta(t, math.Pi/2, p.Theta, 1e-12)
}

func TestCancelledBeforeStart(t *testing.T) {
	h := newHarness(t, testConfig(), pose.Pose{X: 5}, happySamples...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.loc.Localize(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, h.sensor.reads)
	assert.Equal(t, pose.Pose{X: 5}, h.store.Get())
}

func TestNewRejectsBadConfig(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero threshold", func(c *Config) { c.Threshold = 0 }},
		{"negative debounce", func(c *Config) { c.Debounce = -time.Millisecond }},
		{"negative poll", func(c *Config) { c.PollInterval = -1 }},
		{"no crossings", func(c *Config) { c.RequiredCrossings = 0 }},
		{"no sweep watchdog", func(c *Config) { c.SweepTimeout = 0 }},
		{"no detect watchdog", func(c *Config) { c.DetectTimeout = 0 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := DefaultConfig()
			tc.mutate(&c)
			_, err := New(c, &fakeNav{}, &scriptedSensor{}, pose.NewStore(pose.Pose{}), recordingSignals{})
			assert.ErrorIs(t, err, ErrBadConfig)
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestStageNames(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "sweep-and-count-crossings", SweepAndCountCrossings.String())
	assert.Equal(t, "done", Done.String())
	assert.Equal(t, "stage(42)", Stage(42).String())
}

func isBlockingMove(e string) bool {
	return strings.HasPrefix(e, "turnTo(") || strings.HasPrefix(e, "goStraight(")
}

func indexOf(events []string, e string) int {
	for i, ev := range events {
		if ev == e {
			return i
		}
	}
	return -1
}
