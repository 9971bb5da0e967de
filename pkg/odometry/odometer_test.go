package odometry

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/pose"
)

type fakeEncoders struct {
	lock        sync.Mutex
	left, right float64
	err         error
}

func (f *fakeEncoders) WheelRotations() (float64, float64, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.left, f.right, f.err
}

func (f *fakeEncoders) set(left, right float64) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.left, f.right = left, right
}

func TestStraightLine(t *testing.T) {
	c := chassis.Default()
	enc := &fakeEncoders{left: 100, right: 100}
	store := pose.NewStore(pose.Pose{Theta: math.Pi / 2})
	o := New(enc, store, c, 20*time.Millisecond)

	require.NoError(t, o.Poll())
	assert.Equal(t, pose.Pose{Theta: math.Pi / 2}, store.Get(), "first poll only seeds")

	deg := c.LeftDegrees(30)
	enc.set(100+deg, 100+deg)
	require.NoError(t, o.Poll())

	p := store.Get()
	assert.InDelta(t, 0, p.X, 1e-9)
	assert.InDelta(t, 30, p.Y, 1e-9)
	assert.InDelta(t, math.Pi/2, p.Theta, 1e-9)
}

func TestSpinInPlace(t *testing.T) {
	c := chassis.Default()
	enc := &fakeEncoders{}
	store := pose.NewStore(pose.Pose{X: 5, Y: 5})
	o := New(enc, store, c, 20*time.Millisecond)
	require.NoError(t, o.Poll())

	spin := c.SpinDegrees(c.LeftRadiusCM, math.Pi/2)
	enc.set(-spin, spin)
	require.NoError(t, o.Poll())

	p := store.Get()
	assert.InDelta(t, 5, p.X, 1e-9)
	assert.InDelta(t, 5, p.Y, 1e-9)
	assert.InDelta(t, math.Pi/2, p.Theta, 1e-9)
}

func TestHeadingWraps(t *testing.T) {
	p := pose.Pose{Theta: math.Pi - 0.1}
	Advance(&p, -1, 1, 10)
	assert.InDelta(t, -math.Pi+0.1, p.Theta, 1e-9)
}

func TestEncoderErrorLeavesPose(t *testing.T) {
	enc := &fakeEncoders{err: errors.New("bus error")}
	store := pose.NewStore(pose.Pose{X: 1})
	o := New(enc, store, chassis.Default(), 20*time.Millisecond)
	assert.Error(t, o.Poll())
	assert.Equal(t, pose.Pose{X: 1}, store.Get())
}

func TestLoopPollsOnTicker(t *testing.T) {
	mock := clock.NewMock()
	c := chassis.Default()
	enc := &fakeEncoders{}
	store := pose.NewStore(pose.Pose{})
	o := New(enc, store, c, 20*time.Millisecond, WithClock(mock))

	require.NoError(t, o.Poll())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go o.Loop(ctx, &wg)

	deg := c.LeftDegrees(10)
	enc.set(deg, deg)
	require.Eventually(t, func() bool {
		mock.Add(20 * time.Millisecond)
		return math.Abs(store.Get().X-10) < 1e-9
	}, time.Second, time.Millisecond)

	cancel()
	wg.Wait()
}
