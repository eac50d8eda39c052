// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owbus

// ROM command bytes.
const (
	CmdSearchROM   = 0xf0 // all devices take part in the search
	CmdAlarmSearch = 0xec // only devices in alarm state take part
	CmdMatchROM    = 0x55 // address one device
	CmdSkipROM     = 0xcc // address all devices
	CmdReadROM     = 0x33 // read the identifier of the only device
)

// BitChannel is the physical layer of a 1-wire bus.
//
// Implementations own the electrical timing. None of the methods are retried
// by this package.
//
// The error return is reserved for failures of the transport itself, for
// example an I²C bridge that stops responding, and for a shorted bus: Reset
// returns an error implementing onewire.ShortedBusError when the line stays
// low. Other conditions on the 1-wire bus, such as no device answering a
// reset, are reported through the values.
type BitChannel interface {
	// Reset issues a reset pulse and reports whether any device answered
	// with a presence pulse.
	Reset() (bool, error)
	// ReadBit issues a read time slot and returns the bit sampled, 0 or 1.
	ReadBit() (byte, error)
	// WriteBit issues a write time slot for the bit, which is 0 or 1.
	WriteBit(bit byte) error
}

// StrongPuller is implemented by a BitChannel that can power parasitic
// devices.
type StrongPuller interface {
	// StrongPullup switches the bus to strong pull-up once the next bit slot
	// completes. The next Reset switches it off again.
	StrongPullup() error
}

// Codec reads and writes bytes on a BitChannel, least significant bit first.
type Codec struct {
	ch BitChannel
}

// NewCodec returns a Codec bound to the channel.
func NewCodec(ch BitChannel) *Codec {
	return &Codec{ch: ch}
}

// Channel returns the underlying physical layer.
func (c *Codec) Channel() BitChannel {
	return c.ch
}

// Reset issues a reset pulse and reports whether any device is present.
func (c *Codec) Reset() (bool, error) {
	return c.ch.Reset()
}

// ReadBit reads one bit slot.
func (c *Codec) ReadBit() (byte, error) {
	b, err := c.ch.ReadBit()
	if b != 0 {
		b = 1
	}
	return b, err
}

// WriteBit writes one bit slot.
func (c *Codec) WriteBit(bit byte) error {
	if bit != 0 {
		bit = 1
	}
	return c.ch.WriteBit(bit)
}

// WriteByte writes 8 bits, least significant first.
func (c *Codec) WriteByte(v byte) error {
	return c.writeByte(v, false)
}

// ReadByte reads 8 bits, least significant first.
func (c *Codec) ReadByte() (byte, error) {
	return c.readByte(false)
}

// WriteBytes writes every byte of buf.
func (c *Codec) WriteBytes(buf []byte) error {
	return c.writeBytes(buf, false)
}

// ReadBytes fills buf with bytes read from the bus.
func (c *Codec) ReadBytes(buf []byte) error {
	return c.readBytes(buf, false)
}

// Select addresses the device with the given identifier. The bus must have
// been reset first.
func (c *Codec) Select(rom ROM) error {
	if err := c.WriteByte(CmdMatchROM); err != nil {
		return err
	}
	return c.WriteBytes(rom[:])
}

// Skip addresses every device on the bus. The bus must have been reset first.
func (c *Codec) Skip() error {
	return c.WriteByte(CmdSkipROM)
}

// ReadROM reads the identifier of the device on the bus. The result is only
// meaningful when a single device is attached. The bus must have been reset
// first.
func (c *Codec) ReadROM() (ROM, error) {
	var rom ROM
	if err := c.WriteByte(CmdReadROM); err != nil {
		return rom, err
	}
	err := c.ReadBytes(rom[:])
	return rom, err
}

// writeBytes writes buf; when power is set the strong pull-up is armed just
// before the very last bit.
func (c *Codec) writeBytes(buf []byte, power bool) error {
	for i, v := range buf {
		if err := c.writeByte(v, power && i == len(buf)-1); err != nil {
			return err
		}
	}
	return nil
}

func (c *Codec) readBytes(buf []byte, power bool) error {
	for i := range buf {
		v, err := c.readByte(power && i == len(buf)-1)
		if err != nil {
			return err
		}
		buf[i] = v
	}
	return nil
}

func (c *Codec) writeByte(v byte, power bool) error {
	for i := 0; i < 8; i++ {
		if power && i == 7 {
			if err := c.strongPullup(); err != nil {
				return err
			}
		}
		if err := c.ch.WriteBit((v >> uint(i)) & 1); err != nil {
			return err
		}
	}
	return nil
}

func (c *Codec) readByte(power bool) (byte, error) {
	var v byte
	for i := 0; i < 8; i++ {
		if power && i == 7 {
			if err := c.strongPullup(); err != nil {
				return 0, err
			}
		}
		b, err := c.ReadBit()
		if err != nil {
			return 0, err
		}
		v |= b << uint(i)
	}
	return v, nil
}

// strongPullup arms the strong pull-up when the channel supports it. Buses
// without the capability rely on external power.
func (c *Codec) strongPullup() error {
	if p, ok := c.ch.(StrongPuller); ok {
		return p.StrongPullup()
	}
	return nil
}
