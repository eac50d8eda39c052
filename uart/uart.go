// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package uart

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/GermanBionicSystems/w1/owbus"
	"github.com/tarm/serial"
	"periph.io/x/conn/v3"
)

// Opts contains options to pass to the constructor.
type Opts struct {
	// ReadTimeout bounds the wait for the echo of each character. The port
	// rounds it to tenths of a second.
	ReadTimeout time.Duration
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	ReadTimeout: time.Second,
}

const (
	slotBaud  = 115200
	resetBaud = 9600
)

// New opens the serial port name and returns a 1-wire physical layer on it.
func New(name string, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{name: name, opts: *opts}
	p, err := d.open(slotBaud)
	if err != nil {
		return nil, err
	}
	d.p = p
	return d, nil
}

// Dev is a 1-wire master on a serial port. It implements owbus.BitChannel.
//
// A UART cannot source the strong pull-up parasitic devices need while
// converting; power them externally.
type Dev struct {
	name string
	opts Opts
	p    port
}

func (d *Dev) String() string {
	return fmt.Sprintf("uart{%s}", d.name)
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// Close closes the serial port.
func (d *Dev) Close() error {
	if d.p == nil {
		return nil
	}
	err := d.p.Close()
	d.p = nil
	return err
}

// Reset implements owbus.BitChannel.
//
// The port is reopened at 9600 bauds to send the reset character and then at
// 115200 bauds for the slots that follow.
func (d *Dev) Reset() (bool, error) {
	if err := d.Close(); err != nil {
		return false, err
	}
	p, err := d.open(resetBaud)
	if err != nil {
		return false, err
	}
	v, err := exchange(p, 0xf0)
	if cerr := p.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return false, err
	}
	if d.p, err = d.open(slotBaud); err != nil {
		return false, err
	}
	switch v {
	case 0xf0:
		// Nobody pulled the line.
		return false, nil
	case 0x00:
		return false, shortedBusError("uart: bus has a short")
	default:
		return true, nil
	}
}

// ReadBit implements owbus.BitChannel.
func (d *Dev) ReadBit() (byte, error) {
	if d.p == nil {
		return 0, errClosed
	}
	v, err := exchange(d.p, 0xff)
	if err != nil {
		return 0, err
	}
	if v == 0xff {
		return 1, nil
	}
	return 0, nil
}

// WriteBit implements owbus.BitChannel.
func (d *Dev) WriteBit(bit byte) error {
	if d.p == nil {
		return errClosed
	}
	if bit != 0 {
		_, err := exchange(d.p, 0xff)
		return err
	}
	v, err := exchange(d.p, 0x00)
	if err != nil {
		return err
	}
	if v != 0x00 {
		return fmt.Errorf("uart: echo %#x while holding the line low, check the wiring", v)
	}
	return nil
}

func (d *Dev) open(baud int) (port, error) {
	p, err := openPort(&serial.Config{
		Name:        d.name,
		Baud:        baud,
		ReadTimeout: d.opts.ReadTimeout,
		Size:        serial.DefaultSize,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	})
	if err != nil {
		return nil, fmt.Errorf("uart: opening %s at %d bauds: %w", d.name, baud, err)
	}
	return p, nil
}

// exchange sends one character and returns its echo.
func exchange(p port, c byte) (byte, error) {
	// Drop anything left over from an earlier slot.
	_ = p.Flush()
	if _, err := p.Write([]byte{c}); err != nil {
		return 0, fmt.Errorf("uart: %w", err)
	}
	var buf [1]byte
	if _, err := io.ReadFull(p, buf[:]); err != nil {
		return 0, fmt.Errorf("uart: no echo: %w", err)
	}
	return buf[0], nil
}

// port is the part of *serial.Port that is used.
type port interface {
	io.ReadWriter
	Flush() error
	Close() error
}

func openSerial(c *serial.Config) (port, error) {
	p, err := serial.OpenPort(c)
	if err != nil {
		return nil, err
	}
	return p, nil
}

var openPort = openSerial

// shortedBusError implements error, onewire.ShortedBusError and
// onewire.BusError.
type shortedBusError string

func (e shortedBusError) Error() string   { return string(e) }
func (e shortedBusError) IsShorted() bool { return true }
func (e shortedBusError) BusError() bool  { return true }

var errClosed = errors.New("uart: port closed")

var _ conn.Resource = &Dev{}
var _ owbus.BitChannel = &Dev{}
