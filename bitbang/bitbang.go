// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbang

import (
	"errors"
	"fmt"
	"time"

	"github.com/GermanBionicSystems/w1/owbus"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/host/v3/cpu"
)

// Opts contains the slot timings. The names follow Maxim AppNote 126.
type Opts struct {
	A time.Duration // write 1 / read low time
	B time.Duration // write 1 recovery
	C time.Duration // write 0 low time
	D time.Duration // write 0 recovery
	E time.Duration // read sample delay after release
	F time.Duration // read slot remainder
	H time.Duration // reset low time
	I time.Duration // presence sample delay after release
	J time.Duration // reset remainder

	// Pull is applied when releasing the line. Use gpio.Float with an
	// external pull-up resistor, which is the recommended set-up.
	Pull gpio.Pull
}

// DefaultOpts is the standard speed timing.
var DefaultOpts = Opts{
	A:    6 * time.Microsecond,
	B:    64 * time.Microsecond,
	C:    60 * time.Microsecond,
	D:    10 * time.Microsecond,
	E:    9 * time.Microsecond,
	F:    55 * time.Microsecond,
	H:    480 * time.Microsecond,
	I:    70 * time.Microsecond,
	J:    410 * time.Microsecond,
	Pull: gpio.PullUp,
}

// New returns a 1-wire physical layer driving p.
//
// The pin emulates an open drain output: it is driven low to pull the bus and
// switched to input to release it.
func New(p gpio.PinIO, opts *Opts) (*Dev, error) {
	if p == nil || p == gpio.INVALID {
		return nil, errors.New("bitbang: invalid pin")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{p: p, opts: *opts}
	if err := d.release(); err != nil {
		return nil, err
	}
	return d, nil
}

// Dev is a 1-wire master bit-banged on a GPIO pin. It implements
// owbus.BitChannel and owbus.StrongPuller.
//
// Timing is done by spinning the CPU; the process should run with a real time
// priority to keep slots within tolerance.
type Dev struct {
	p     gpio.PinIO
	opts  Opts
	armed bool // drive high after the next slot
}

func (d *Dev) String() string {
	return fmt.Sprintf("bitbang{%s}", d.p)
}

// Halt implements conn.Resource.
//
// It releases the line.
func (d *Dev) Halt() error {
	d.armed = false
	return d.release()
}

// Q returns the data pin.
func (d *Dev) Q() gpio.PinIO {
	return d.p
}

// Reset implements owbus.BitChannel.
func (d *Dev) Reset() (bool, error) {
	d.armed = false
	if err := d.drive(); err != nil {
		return false, err
	}
	delay(d.opts.H)
	if err := d.release(); err != nil {
		return false, err
	}
	delay(d.opts.I)
	present := d.p.Read() == gpio.Low
	delay(d.opts.J)
	return present, nil
}

// WriteBit implements owbus.BitChannel.
func (d *Dev) WriteBit(bit byte) error {
	if err := d.drive(); err != nil {
		return err
	}
	if bit != 0 {
		delay(d.opts.A)
		if err := d.release(); err != nil {
			return err
		}
		delay(d.opts.B)
	} else {
		delay(d.opts.C)
		if err := d.release(); err != nil {
			return err
		}
		delay(d.opts.D)
	}
	return d.endSlot()
}

// ReadBit implements owbus.BitChannel.
func (d *Dev) ReadBit() (byte, error) {
	if err := d.drive(); err != nil {
		return 0, err
	}
	delay(d.opts.A)
	if err := d.release(); err != nil {
		return 0, err
	}
	delay(d.opts.E)
	var v byte
	if d.p.Read() == gpio.High {
		v = 1
	}
	delay(d.opts.F)
	return v, d.endSlot()
}

// StrongPullup implements owbus.StrongPuller.
//
// The pin is driven high once the next slot completes, until the next Reset.
func (d *Dev) StrongPullup() error {
	d.armed = true
	return nil
}

func (d *Dev) endSlot() error {
	if !d.armed {
		return nil
	}
	d.armed = false
	if err := d.p.Out(gpio.High); err != nil {
		return fmt.Errorf("bitbang: strong pull-up: %w", err)
	}
	return nil
}

func (d *Dev) drive() error {
	if err := d.p.Out(gpio.Low); err != nil {
		return fmt.Errorf("bitbang: drive %s: %w", d.p, err)
	}
	return nil
}

func (d *Dev) release() error {
	if err := d.p.In(d.opts.Pull, gpio.NoEdge); err != nil {
		return fmt.Errorf("bitbang: release %s: %w", d.p, err)
	}
	return nil
}

var delay = cpu.Nanospin

var _ owbus.BitChannel = &Dev{}
var _ owbus.StrongPuller = &Dev{}
var _ conn.Resource = &Dev{}
