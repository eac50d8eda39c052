// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// w1scan lists the devices on a 1-wire bus.
//
// The bus is reached through a DS248x I²C bridge, a bit-banged GPIO pin, a
// serial port or the Linux kernel w1 subsystem:
//
//	w1scan --ds248x /dev/i2c-1 --addr 0x18
//	w1scan --pin GPIO4 --family 0x28 --temp
//	w1scan --uart /dev/ttyUSB0
//	w1scan --netlink 1 --alarm --format yaml
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "w1scan: %s.\n", err)
		os.Exit(1)
	}
}
