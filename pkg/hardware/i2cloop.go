package hardware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/colorsensor"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/picobldc"
)

const battInterval = 10 * time.Second

func (h *Hardware) loop(ctx context.Context, started chan<- error) {
	defer h.wg.Done()
	h.log.Info().Msg("I2C loop started")

	var once sync.Once
	initDone := func(err error) {
		once.Do(func() { started <- err })
	}
	initialised := false

	for {
		err := h.loopUntilSomethingBadHappens(ctx, func() {
			initialised = true
			initDone(nil)
		})
		if ctx.Err() != nil {
			initDone(ctx.Err())
			return
		}
		if !initialised {
			initDone(err)
			return
		}
		h.log.Error().Err(err).Msg("I2C failure; trying to recover")
		select {
		case <-ctx.Done():
			return
		case <-h.clock.After(h.config.RetryDelay):
		}
	}
}

func (h *Hardware) loopUntilSomethingBadHappens(ctx context.Context, initDone func()) error {
	defer h.closeDevices()

	if err := h.openDevices(); err != nil {
		return err
	}
	initDone()

	ticker := h.clock.Ticker(h.config.PollInterval)
	defer ticker.Stop()
	var lastBattReading time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := h.tick(); err != nil {
			return err
		}

		if h.clock.Since(lastBattReading) > battInterval {
			h.readBattery()
			lastBattReading = h.clock.Now()
		}
	}
}

func (h *Hardware) openDevices() error {
	motors, err := h.openMotors()
	if err != nil {
		return fmt.Errorf("failed to open motor controller: %w", err)
	}
	if err := motors.SetWatchdog(h.config.MotorWatchdog); err != nil {
		_ = motors.Close()
		return fmt.Errorf("failed to set motor watchdog: %w", err)
	}
	light, err := h.openLight()
	if err != nil {
		_ = motors.Close()
		return fmt.Errorf("failed to open light sensor: %w", err)
	}
	if err := light.Configure(h.config.LightIntegrationSteps, colorsensor.Gain(h.config.LightGain)); err != nil {
		_ = light.Close()
		_ = motors.Close()
		return fmt.Errorf("failed to configure light sensor: %w", err)
	}

	h.lock.Lock()
	start := h.wheelDeg
	h.lock.Unlock()
	tracker := picobldc.NewWheelTracker(motors, start)
	if _, err := tracker.Poll(); err != nil {
		_ = light.Close()
		_ = motors.Close()
		return fmt.Errorf("failed to read encoders: %w", err)
	}

	h.lock.Lock()
	defer h.lock.Unlock()
	h.motors = motors
	h.light = light
	h.tracker = tracker
	return h.applyCommandLocked()
}

func (h *Hardware) closeDevices() {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.motors != nil {
		_ = h.motors.Stop(true)
		_ = h.motors.Close()
		h.motors = nil
	}
	if h.light != nil {
		_ = h.light.Close()
		h.light = nil
	}
	h.tracker = nil
}

// tick polls the encoders and re-sends the current motor command.
func (h *Hardware) tick() error {
	h.lock.Lock()
	defer h.lock.Unlock()

	deg, err := h.tracker.Poll()
	if err != nil {
		return fmt.Errorf("failed to read encoders: %w", err)
	}
	h.wheelDeg = deg
	return h.applyCommandLocked()
}

func (h *Hardware) applyCommandLocked() error {
	if h.command.stopped {
		return h.motors.Stop(h.command.brake)
	}
	return h.motors.SetWheelSpeeds(h.command.left, h.command.right)
}

func (h *Hardware) readBattery() {
	h.lock.Lock()
	defer h.lock.Unlock()
	v, err := h.motors.BattVolts()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read battery voltage")
		return
	}
	h.battVolts = v
	h.log.Info().Float32("volts", v).Msg("Battery")
}
