// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package owbustest is meant to be used to test code using an
// owbus.BitChannel without hardware.
//
// Bus simulates devices sharing an open-drain line: on every read slot the
// value sampled is the wired-AND of what the selected devices drive. Devices
// implement the ROM commands (search, alarm search, match, skip, read) and
// forward the bytes that follow to an optional Function.
//
// A write 1 slot and a read slot look the same on the line, so during ROM
// commands either method serves for both. Once a device is selected, reads and
// writes are told apart by the method called.
package owbustest

import (
	"sync"

	"github.com/GermanBionicSystems/w1/owbus"
	"periph.io/x/conn/v3/onewire"
)

// NewROM builds an identifier from a family code and a 48-bit serial number,
// with a valid CRC.
func NewROM(family byte, serial uint64) owbus.ROM {
	var r owbus.ROM
	r[0] = family
	for i := 1; i < 7; i++ {
		r[i] = byte(serial >> uint(8*(i-1)))
	}
	r[7] = onewire.CalcCRC(r[:7])
	return r
}

// Function is the device specific part of a simulated device, reached after a
// ROM command selected it.
type Function interface {
	// Write receives each byte the master writes.
	Write(b byte)
	// Read returns the next byte the device sends. Return 0xff to leave the
	// line released.
	Read() byte
}

// Device is a simulated device.
type Device struct {
	ROM      owbus.ROM
	Alarm    bool     // take part in alarm searches
	Function Function // may be nil
}

// Bus implements owbus.BitChannel over a set of simulated devices.
//
// Modify its members to simulate bus events. Set Stuck to make every read slot
// sample 1, as if no device drove the line. Set Err to make every operation
// fail.
type Bus struct {
	sync.Mutex
	Devices []*Device
	Stuck   bool
	Err     error

	// Counters of operations seen on the line.
	Resets int
	Reads  int
	Writes int

	ph       phase
	selected []bool
	wv       byte // bits written so far in the current byte
	wn       int
	rv       byte // byte being read
	rn       int
	bit      int // current ROM bit, 0..63
	step     int // search: 0 read bit, 1 read complement, 2 write direction
	match    owbus.ROM
}

type phase int

const (
	phaseIdle phase = iota
	phaseROM
	phaseSearch
	phaseMatch
	phaseReadROM
	phaseFunction
)

func (b *Bus) String() string {
	return "owbustest"
}

// Reset implements owbus.BitChannel.
func (b *Bus) Reset() (bool, error) {
	b.Lock()
	defer b.Unlock()
	b.Resets++
	if b.Err != nil {
		return false, b.Err
	}
	b.ph = phaseIdle
	b.wv, b.wn, b.rn, b.bit, b.step = 0, 0, 0, 0, 0
	if len(b.Devices) == 0 {
		return false, nil
	}
	b.selected = make([]bool, len(b.Devices))
	for i := range b.selected {
		b.selected[i] = true
	}
	b.ph = phaseROM
	return true, nil
}

// ReadBit implements owbus.BitChannel.
func (b *Bus) ReadBit() (byte, error) {
	b.Lock()
	defer b.Unlock()
	b.Reads++
	if b.Err != nil {
		return 0, b.Err
	}
	if b.Stuck {
		return 1, nil
	}
	return b.read(), nil
}

// read samples the line. In a phase where the devices listen, the slot is a
// write 1 slot.
func (b *Bus) read() byte {
	switch b.ph {
	case phaseROM, phaseMatch:
		b.write(1)
		return 1
	case phaseSearch:
		switch b.step {
		case 0:
			b.step = 1
			return b.wiredAND(func(d *Device) byte { return d.ROM.Bit(b.bit + 1) })
		case 1:
			b.step = 2
			return b.wiredAND(func(d *Device) byte { return d.ROM.Bit(b.bit+1) ^ 1 })
		default:
			b.write(1)
			return 1
		}
	case phaseReadROM:
		v := b.wiredAND(func(d *Device) byte { return d.ROM.Bit(b.bit + 1) })
		if b.bit++; b.bit == 64 {
			b.ph = phaseFunction
		}
		return v
	case phaseFunction:
		if b.rn == 0 {
			b.rv = 0xff
			for i, d := range b.Devices {
				if b.selected[i] && d.Function != nil {
					b.rv &= d.Function.Read()
				}
			}
		}
		v := (b.rv >> uint(b.rn)) & 1
		b.rn = (b.rn + 1) & 7
		return v
	}
	return 1
}

// WriteBit implements owbus.BitChannel.
func (b *Bus) WriteBit(bit byte) error {
	b.Lock()
	defer b.Unlock()
	b.Writes++
	if b.Err != nil {
		return b.Err
	}
	b.write(bit & 1)
	return nil
}

// write handles a slot in which the master drives bit. In a phase where the
// devices talk, a write 1 slot is a read slot whose result is ignored.
func (b *Bus) write(bit byte) {
	switch b.ph {
	case phaseROM:
		if v, ok := b.shift(bit); ok {
			b.command(v)
		}
	case phaseSearch:
		if b.step != 2 {
			if bit != 0 {
				b.read()
			} else {
				b.ph = phaseIdle
			}
			return
		}
		for i, d := range b.Devices {
			if d.ROM.Bit(b.bit+1) != bit {
				b.selected[i] = false
			}
		}
		b.step = 0
		if b.bit++; b.bit == 64 {
			// The device found is selected, as after a match.
			b.ph = phaseFunction
		}
	case phaseMatch:
		if bit != 0 {
			b.match[b.bit>>3] |= 1 << uint(b.bit&7)
		}
		if b.bit++; b.bit == 64 {
			for i, d := range b.Devices {
				b.selected[i] = d.ROM == b.match
			}
			b.ph = phaseFunction
		}
	case phaseReadROM:
		if bit != 0 {
			b.read()
		} else {
			b.ph = phaseIdle
		}
	case phaseFunction:
		if v, ok := b.shift(bit); ok {
			for i, d := range b.Devices {
				if b.selected[i] && d.Function != nil {
					d.Function.Write(v)
				}
			}
		}
	default:
		b.ph = phaseIdle
	}
}

// shift accumulates written bits, LSB first, and returns the byte once
// complete.
func (b *Bus) shift(bit byte) (byte, bool) {
	b.wv |= bit << uint(b.wn)
	if b.wn++; b.wn < 8 {
		return 0, false
	}
	v := b.wv
	b.wv, b.wn = 0, 0
	return v, true
}

func (b *Bus) command(cmd byte) {
	b.bit, b.step = 0, 0
	switch cmd {
	case owbus.CmdSearchROM:
		b.ph = phaseSearch
	case owbus.CmdAlarmSearch:
		for i, d := range b.Devices {
			b.selected[i] = d.Alarm
		}
		b.ph = phaseSearch
	case owbus.CmdMatchROM:
		b.match = owbus.ROM{}
		b.ph = phaseMatch
	case owbus.CmdSkipROM:
		b.ph = phaseFunction
	case owbus.CmdReadROM:
		b.ph = phaseReadROM
	default:
		b.ph = phaseIdle
	}
}

// wiredAND returns 0 if any selected device pulls the line low.
func (b *Bus) wiredAND(out func(d *Device) byte) byte {
	for i, d := range b.Devices {
		if b.selected[i] && out(d) == 0 {
			return 0
		}
	}
	return 1
}

var _ owbus.BitChannel = &Bus{}
