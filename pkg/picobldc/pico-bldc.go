package picobldc

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/exp/io/i2c"
)

const (
	PicoAddr = 0x42
)

type Register byte

const (
	RegCtrl Register = iota
	RegStatus
	RegWatchdogTimeout
	RegFaultCount

	RegMot0V
	RegMot1V

	RegMot0Calib
	RegMot1Calib

	RegMot0Travel // LSB = 1/256 rotation, wraps
	RegMot1Travel

	RegBattV // LSB=4mV
	RegCurrent
	RegPower

	RegTemperature // LSB = 0.01C
)

const (
	BattVLSB       = 0.004
	CurrentLSB     = 0.0001831054688
	PowerLSB       = CurrentLSB * 20
	TemperatureLSB = 0.01

	// Velocity registers are in wheel degrees per second.
	VelocityLSB = 1.0
)

const (
	RegCtrlEnableI2CControl uint16 = 1 << iota
	RegCtrlRun
	RegCtrlDoCalib
	RegCtrlReset
	RegCtrlWatchdogEnable
)

type StatusFlag uint16

const (
	RegStatusFault StatusFlag = 1 << iota
	RegStatusCalibDone
	RegStatusWatchdogExpired
)

const (
	MotorLeft = iota
	MotorRight
	NumMotors
)

// PerMotorVal holds one value per wheel, indexed by MotorLeft/MotorRight.
type PerMotorVal[T any] [NumMotors]T

var ErrNotReady = errors.New("Pico-BLDC not ready")

type Interface interface {
	SetWheelSpeeds(left, right float64) error
	Stop(brake bool) error
	SetWatchdog(timeout time.Duration) error
	RawDistancesTraveled() (PerMotorVal[int16], error)
	BattVolts() (float32, error)
	Close() error
}

type port interface {
	Write(buf []byte) error
	ReadReg(reg byte, buf []byte) error
	Close() error
}

type PicoBLDC struct {
	lock   sync.Mutex
	dev    port
	reopen func() (port, error)
	log    zerolog.Logger

	lastConfigWord  uint16
	lastConfigTime  time.Time
	watchdogEnabled bool
}

var i2cBus = &i2c.Devfs{Dev: "/dev/i2c-1"}

func New(log zerolog.Logger) (*PicoBLDC, error) {
	open := func() (port, error) {
		dev, err := i2c.Open(i2cBus, PicoAddr)
		if err != nil {
			return nil, err
		}
		return dev, nil
	}
	dev, err := open()
	if err != nil {
		return nil, err
	}
	return &PicoBLDC{
		dev:    dev,
		reopen: open,
		log:    log,
	}, nil
}

var _ Interface = (*PicoBLDC)(nil)

func (p *PicoBLDC) Reset() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.maybeConfigure(true, false)
}

// SetWatchdog makes the controller cut motor power if it doesn't hear from
// us within timeout.  Zero disables the watchdog.
func (p *PicoBLDC) SetWatchdog(timeout time.Duration) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if timeout == 0 {
		p.watchdogEnabled = false
		return p.maybeConfigure(false, false)
	}

	ms := timeout.Milliseconds()
	if ms > math.MaxUint16 {
		ms = math.MaxUint16
	}
	err := p.writeReg(RegWatchdogTimeout, uint16(ms))
	if err != nil {
		return err
	}

	p.watchdogEnabled = true
	return p.maybeConfigure(false, false)
}

// SetWheelSpeeds sets the wheel velocities in degrees/second.
func (p *PicoBLDC) SetWheelSpeeds(left, right float64) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.maybeConfigure(false, true); err != nil {
		return err
	}
	if err := p.writeReg(RegMot0V, uint16(toVelocityReg(left))); err != nil {
		return err
	}
	return p.writeReg(RegMot1V, uint16(toVelocityReg(right)))
}

// Stop zeroes both wheels.  With brake the controller keeps driving the
// motors to hold position; without it the run flag is dropped and the
// wheels coast.
func (p *PicoBLDC) Stop(brake bool) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.writeReg(RegMot0V, 0); err != nil {
		return err
	}
	if err := p.writeReg(RegMot1V, 0); err != nil {
		return err
	}
	return p.maybeConfigure(false, brake)
}

func (p *PicoBLDC) RawDistancesTraveled() (raw PerMotorVal[int16], err error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	for m, reg := range []Register{RegMot0Travel, RegMot1Travel} {
		v, err := p.readReg(reg)
		if err != nil {
			return raw, err
		}
		raw[m] = int16(v)
	}
	return raw, nil
}

func (p *PicoBLDC) Close() error {
	_ = p.Reset()
	return p.dev.Close()
}

func toVelocityReg(degPerSec float64) int16 {
	v := math.Round(degPerSec / VelocityLSB)
	if v <= math.MinInt16 {
		return math.MinInt16
	}
	if v >= math.MaxInt16 {
		return math.MaxInt16
	}
	return int16(v)
}

func (p *PicoBLDC) writeWithRetries(data []byte) error {
	var err error
	for tries := 0; tries < 20; tries++ {
		err = p.dev.Write(data)
		if err == nil {
			if tries > 0 {
				p.log.Info().Int("tries", tries).Msg("Successfully programmed Pico-BLDC after retries")
			}
			return nil
		}
		p.log.Warn().Err(err).Msg("Failed to write to Pico-BLDC")
		time.Sleep(1 * time.Millisecond)
		if p.reopen == nil {
			continue
		}
		_ = p.dev.Close()
		dev, err := p.reopen()
		if err != nil {
			continue
		}
		p.dev = dev
	}
	return err
}

func (p *PicoBLDC) maybeConfigure(resetMotorSpeeds bool, enableMotors bool) error {
	// Figure out if the config word has changed.
	var configWord uint16 = RegCtrlEnableI2CControl
	if resetMotorSpeeds {
		configWord |= RegCtrlReset
	}
	if enableMotors {
		configWord |= RegCtrlRun
	}
	if p.watchdogEnabled {
		configWord |= RegCtrlWatchdogEnable
	}

	if configWord == p.lastConfigWord && time.Since(p.lastConfigTime) < 100*time.Millisecond {
		// Skip writing config if we've done it recently.
		return nil
	}

	if p.lastConfigWord == 0 {
		// First time.  The controller refuses to run uncalibrated.
		calib, err := p.readReg(RegMot1Calib)
		if err != nil {
			return err
		}
		if calib == 0 {
			return ErrNotReady
		}
	}

	if err := p.writeReg(RegCtrl, configWord); err != nil {
		return err
	}
	if err := p.writeReg(RegStatus, uint16(RegStatusWatchdogExpired)); err != nil {
		return err
	}

	p.lastConfigTime = time.Now()
	p.lastConfigWord = configWord & (^RegCtrlReset) /* Reset flag is not persistent */
	return nil
}

func (p *PicoBLDC) BattVolts() (float32, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	raw, err := p.readReg(RegBattV)
	if err != nil {
		return 0, err
	}
	return float32(raw) * BattVLSB, nil
}

func (p *PicoBLDC) Status() (StatusFlag, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	raw, err := p.readReg(RegStatus)
	if err != nil {
		return 0, err
	}
	return StatusFlag(raw), nil
}

func (p *PicoBLDC) writeReg(reg Register, value uint16) error {
	return p.writeWithRetries([]byte{byte(reg), byte(value >> 8), byte(value)})
}

func (p *PicoBLDC) readReg(reg Register) (uint16, error) {
	var buf [2]byte
	err := p.dev.ReadReg(byte(reg), buf[:])
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}
