// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package uart drives a 1-wire bus from a serial port.
//
// The TX and RX lines are tied together to the bus through an open drain
// buffer. Each 1-wire slot is one character: at 115200 bauds the start bit is
// the low pulse, 0xff releases the line right after it and 0x00 holds it. The
// character read back tells what the devices drove. The reset pulse is a 0xf0
// character at 9600 bauds.
//
// # Application note
//
// https://www.analog.com/en/technical-articles/using-a-uart-to-implement-a-1wire-bus-master.html
package uart
