// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package owbus implements a 1-wire bus master on top of a bit level physical
// layer.
//
// The physical layer is anything that can issue a reset pulse, sample one bit
// slot and drive one bit slot: a bit-banged GPIO pin, an I²C bridge such as the
// DS2482, or a simulator. It is described by the BitChannel interface.
//
// On top of it the package provides the byte codec (LSB first), the ROM level
// commands (match, skip, read) and the ROM search as described in Maxim's
// AppNote 187. The search is resumable: a Searcher keeps a single cursor, the
// last discrepancy, between calls instead of an explicit path stack, so each
// call to Next returns the next device in a fixed order.
//
// Bus adapts all of this to periph's onewire.Bus so existing device drivers can
// be used unchanged.
//
// # References
//
// https://www.maximintegrated.com/en/app-notes/index.mvp/id/187
//
// https://www.maximintegrated.com/en/app-notes/index.mvp/id/126
package owbus
