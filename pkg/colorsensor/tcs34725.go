package colorsensor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"
)

const (
	TCSAddr = 0x29

	// Every register access has the command bit set; auto-increment lets us
	// read all four channels in one transaction.
	CmdBit      = 0x80
	CmdAutoIncr = 0x20

	RegEnable  = 0x00
	RegATime   = 0x01
	RegControl = 0x0F
	RegID      = 0x12
	RegStatus  = 0x13
	RegCData   = 0x14 // C, R, G, B; 16 bits each, little endian

	EnablePON = 0x01
	EnableAEN = 0x02

	StatusAValid = 0x01
)

type Gain byte

const (
	Gain1x Gain = iota
	Gain4x
	Gain16x
	Gain60x
)

var (
	ErrUnknownDevice = errors.New("unexpected TCS34725 device ID")
	ErrNotReady      = errors.New("TCS34725 has no valid sample yet")
)

type Interface interface {
	Configure(integrationSteps int, gain Gain) error
	ReadRaw() (RGBC, error)
	ReadIntensity() (float64, error)
	Close() error
}

// RGBC is one set of raw channel counts.
type RGBC struct {
	R, G, B, C uint16
}

type port interface {
	ReadReg(reg byte, buf []byte) error
	WriteReg(reg byte, buf []byte) error
	Close() error
}

type TCS34725 struct {
	lock     sync.Mutex
	dev      port
	maxCount float64
}

// New opens the sensor on the named periph I2C bus ("" for the first one).
func New(busName string) (Interface, error) {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, err
	}
	s, err := NewWithPort(&I2CAdapter{
		bus: bus,
		dev: &i2c.Dev{Addr: TCSAddr, Bus: bus},
	})
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	return s, nil
}

func NewWithPort(p port) (*TCS34725, error) {
	var id [1]byte
	if err := p.ReadReg(RegID, id[:]); err != nil {
		return nil, err
	}
	if id[0] != 0x44 && id[0] != 0x4D {
		return nil, fmt.Errorf("%w: 0x%x", ErrUnknownDevice, id[0])
	}
	return &TCS34725{dev: p, maxCount: 1024}, nil
}

// Configure powers the sensor up and sets the integration time as a number
// of 2.4ms steps (1-256).
func (t *TCS34725) Configure(integrationSteps int, gain Gain) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if integrationSteps < 1 || integrationSteps > 256 {
		return fmt.Errorf("integration steps out of range: %d", integrationSteps)
	}
	if err := t.dev.WriteReg(RegATime, []byte{byte(256 - integrationSteps)}); err != nil {
		return err
	}
	if err := t.dev.WriteReg(RegControl, []byte{byte(gain)}); err != nil {
		return err
	}
	if err := t.dev.WriteReg(RegEnable, []byte{EnablePON}); err != nil {
		return err
	}
	// Datasheet: 2.4ms warm up after PON before enabling the ADC.
	time.Sleep(3 * time.Millisecond)
	if err := t.dev.WriteReg(RegEnable, []byte{EnablePON | EnableAEN}); err != nil {
		return err
	}
	t.maxCount = float64(integrationSteps) * 1024
	if t.maxCount > 65535 {
		t.maxCount = 65535
	}
	return nil
}

func (t *TCS34725) ReadRaw() (RGBC, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.readRawLocked()
}

func (t *TCS34725) readRawLocked() (RGBC, error) {
	var status [1]byte
	if err := t.dev.ReadReg(RegStatus, status[:]); err != nil {
		return RGBC{}, err
	}
	if status[0]&StatusAValid == 0 {
		return RGBC{}, ErrNotReady
	}
	var buf [8]byte
	if err := t.dev.ReadReg(RegCData|CmdAutoIncr, buf[:]); err != nil {
		return RGBC{}, err
	}
	le := func(i int) uint16 { return uint16(buf[i]) | uint16(buf[i+1])<<8 }
	return RGBC{C: le(0), R: le(2), G: le(4), B: le(6)}, nil
}

// ReadIntensity returns the clear channel scaled to [0, 1].
func (t *TCS34725) ReadIntensity() (float64, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	raw, err := t.readRawLocked()
	if err != nil {
		return 0, err
	}
	v := float64(raw.C) / t.maxCount
	if v > 1 {
		v = 1
	}
	return v, nil
}

func (t *TCS34725) Close() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	_ = t.dev.WriteReg(RegEnable, []byte{0})
	return t.dev.Close()
}

// I2CAdapter maps register accesses onto periph I2C transactions.
type I2CAdapter struct {
	bus i2c.BusCloser
	dev *i2c.Dev
}

func (a *I2CAdapter) ReadReg(reg byte, buf []byte) error {
	return a.dev.Tx([]byte{CmdBit | reg}, buf)
}

func (a *I2CAdapter) WriteReg(reg byte, buf []byte) error {
	w := make([]byte, 1+len(buf))
	w[0] = CmdBit | reg
	copy(w[1:], buf)
	return a.dev.Tx(w, nil)
}

func (a *I2CAdapter) Close() error {
	return a.bus.Close()
}
