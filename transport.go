package sxlora

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Bus is a synchronous byte-transfer primitive. One Tx call is exactly
// one device-select framed transaction: select is asserted before the
// first byte and released after the last, and is never held across
// calls. periph.io's spi.Conn satisfies this directly.
type Bus interface {
	Tx(w, r []byte) error
}

// PinOut drives a single output line, true meaning logic high. Used for
// the chip's reset pin.
type PinOut func(level bool) error

// Clock is the timing source consumed by the driver: millisecond-scale
// delays and elapsed-time measurement for the transmit deadline. The
// zero configuration uses the wall clock; tests substitute their own.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type wallClock struct{}

func (wallClock) Now() time.Time        { return time.Now() }
func (wallClock) Sleep(d time.Duration) { time.Sleep(d) }

// Open connects to the radio over a periph.io SPI port and GPIO reset
// pin, both referenced by name (e.g. "/dev/spidev0.0", "GPIO22"). It
// performs no chip I/O; call Init on the returned Radio.
func Open(spiPort, resetPin string) (*Radio, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}

	p, err := spireg.Open(spiPort)
	if err != nil {
		return nil, fmt.Errorf("open spi port %q: %w", spiPort, err)
	}

	c, err := p.Connect(8*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("connect spi: %w", err)
	}

	rst := gpioreg.ByName(resetPin)
	if rst == nil {
		return nil, fmt.Errorf("reset pin %q not found", resetPin)
	}
	if err := rst.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("drive reset pin: %w", err)
	}

	return New(c, func(level bool) error {
		return rst.Out(gpio.Level(level))
	}), nil
}
