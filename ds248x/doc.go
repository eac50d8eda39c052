// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds248x controls a Maxim DS2482-100, DS2482-800 or DS2483 1-wire
// interface chip over I²C.
//
// The chip generates the 1-wire slots in hardware; this package exposes them
// one bit at a time as an owbus.BitChannel, so ROM search and device access
// run in owbus.
//
// # Datasheets
//
// https://datasheets.maximintegrated.com/en/ds/DS2482-100.pdf
//
// https://datasheets.maximintegrated.com/en/ds/DS2482-800.pdf
//
// https://datasheets.maximintegrated.com/en/ds/DS2483.pdf
package ds248x
