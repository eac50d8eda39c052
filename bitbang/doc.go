// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bitbang drives a 1-wire bus directly from a GPIO pin.
//
// Wire the data line to the pin with a 4.7kΩ pull-up resistor to 3.3V. The
// resulting Dev is an owbus.BitChannel; pass it to owbus.New to search the bus
// and talk to devices.
//
// # Datasheet
//
// https://www.maximintegrated.com/en/app-notes/index.mvp/id/126
package bitbang
