// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package w1 is a container for the 1-wire bus master and its drivers.
//
// owbus implements the bus protocol, ROM search included, on top of a
// bit-level physical layer. bitbang, ds248x and uart provide that layer from a
// GPIO pin, from a DS2482/DS2483 I²C bridge and from a serial port. ds18b20
// reads temperature sensors and cmd/w1scan lists the devices on a bus.
package w1
