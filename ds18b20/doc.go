// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds18b20 interfaces to Dallas Semi / Maxim DS18B20 and DS18S20
// temperature sensors on a 1-wire bus.
//
// The driver works on any onewire.Bus. On an owbus.Bus, Scan finds the sensors
// with targeted searches and Alarmed lists those whose alarm thresholds were
// crossed.
//
// # Datasheets
//
// https://datasheets.maximintegrated.com/en/ds/DS18B20.pdf
//
// https://datasheets.maximintegrated.com/en/ds/DS18S20.pdf
package ds18b20
