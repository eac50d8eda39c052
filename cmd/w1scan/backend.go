// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"

	"github.com/GermanBionicSystems/w1/bitbang"
	"github.com/GermanBionicSystems/w1/ds248x"
	"github.com/GermanBionicSystems/w1/owbus"
	"github.com/GermanBionicSystems/w1/uart"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/netlink"
)

// backend selects how the bus is reached. Exactly one field is set.
type backend struct {
	bridge  bool   // DS248x on i2cBus
	i2cBus  string // empty for the first bus
	i2cAddr uint16
	channel int    // DS2482-800 channel
	pin     string // bit-banged GPIO
	serial  string // UART device
	master  int    // kernel w1 master, -1 when unused
}

// openBus opens the bus and returns a function releasing it.
var openBus = openHost

func openHost(b *backend, log *zap.Logger) (onewire.Bus, func() error, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, err
	}
	switch {
	case b.master >= 0:
		o, err := netlink.New(uint32(b.master))
		if err != nil {
			return nil, nil, fmt.Errorf("w1 master %d: %w", b.master, err)
		}
		log.Debug("using kernel w1 master", zap.Stringer("bus", o))
		return o, o.Close, nil

	case b.pin != "":
		p := gpioreg.ByName(b.pin)
		if p == nil {
			return nil, nil, fmt.Errorf("no pin named %q", b.pin)
		}
		d, err := bitbang.New(p, &bitbang.DefaultOpts)
		if err != nil {
			return nil, nil, err
		}
		log.Debug("bit-banging", zap.Stringer("pin", p))
		return owbus.New(d, &owbus.Opts{Logger: log}), d.Halt, nil

	case b.serial != "":
		d, err := uart.New(b.serial, &uart.DefaultOpts)
		if err != nil {
			return nil, nil, err
		}
		log.Debug("using serial port", zap.Stringer("dev", d))
		return owbus.New(d, &owbus.Opts{Logger: log}), d.Close, nil

	case b.bridge:
		i, err := i2creg.Open(b.i2cBus)
		if err != nil {
			return nil, nil, err
		}
		opts := ds248x.DefaultOpts
		opts.Logger = log
		d, err := ds248x.New(i, b.i2cAddr, &opts)
		if err != nil {
			i.Close()
			return nil, nil, err
		}
		if err := d.ChannelSelect(b.channel); err != nil {
			i.Close()
			return nil, nil, err
		}
		log.Debug("using bridge", zap.Stringer("dev", d))
		return owbus.New(d, &owbus.Opts{Logger: log}), i.Close, nil
	}
	return nil, nil, errors.New("no bus selected")
}
