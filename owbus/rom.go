// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owbus

import (
	"encoding/binary"
	"fmt"

	"periph.io/x/conn/v3/onewire"
)

// ROM is the 64-bit identifier of a device as it appears on the wire.
//
// Byte 0 is the family code, bytes 1 to 6 the serial number and byte 7 the
// CRC. Bits are numbered 1 to 64, least significant bit of byte 0 first.
type ROM [8]byte

// ROMFromAddress converts a periph address into the wire order.
func ROMFromAddress(a onewire.Address) ROM {
	var r ROM
	binary.LittleEndian.PutUint64(r[:], uint64(a))
	return r
}

// Address returns the identifier as a periph onewire.Address.
func (r ROM) Address() onewire.Address {
	return onewire.Address(binary.LittleEndian.Uint64(r[:]))
}

// Family returns the family code, which identifies the device type.
func (r ROM) Family() byte {
	return r[0]
}

// Bit returns the bit at position n, 1 to 64.
func (r ROM) Bit(n int) byte {
	return (r[(n-1)>>3] >> uint((n-1)&7)) & 1
}

func (r *ROM) setBit(n int, v byte) {
	mask := byte(1) << uint((n-1)&7)
	if v != 0 {
		r[(n-1)>>3] |= mask
	} else {
		r[(n-1)>>3] &^= mask
	}
}

// String returns the identifier as family.serial.crc, the serial printed
// most significant byte first.
func (r ROM) String() string {
	return fmt.Sprintf("%02x.%02x%02x%02x%02x%02x%02x.%02x", r[0], r[6], r[5], r[4], r[3], r[2], r[1], r[7])
}
