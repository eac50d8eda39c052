// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"

	"github.com/GermanBionicSystems/w1/ds18b20"
	"github.com/GermanBionicSystems/w1/owbus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/onewire"
)

type options struct {
	backend    backend
	family     uint8
	filter     bool // family was given
	alarm      bool
	temp       bool
	resolution int
	format     string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	o := &options{backend: backend{master: -1}}
	cmd := &cobra.Command{
		Use:   "w1scan",
		Short: "List the devices on a 1-wire bus",
		Long: `Enumerate the devices on a 1-wire bus with the ROM search and print their
identifiers, optionally with the temperature of DS18B20 and DS18S20 sensors.

Examples:
  w1scan --ds248x /dev/i2c-1                   # All devices behind a DS2482
  w1scan --pin GPIO4 --family 0x28 --temp      # DS18B20 temperatures
  w1scan --uart /dev/ttyUSB0                   # Bus on a serial port
  w1scan --netlink 1 --alarm --format yaml     # Devices in alarm, as YAML`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.backend.bridge = cmd.Flags().Changed("ds248x")
			o.filter = cmd.Flags().Changed("family")
			return run(cmd.OutOrStdout(), o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.backend.i2cBus, "ds248x", "", "I²C bus of a DS2482/DS2483 bridge, empty for the first one")
	f.Uint16Var(&o.backend.i2cAddr, "addr", 0x18, "I²C address of the bridge")
	f.IntVar(&o.backend.channel, "channel", 0, "DS2482-800 channel")
	f.StringVar(&o.backend.pin, "pin", "", "GPIO pin to bit-bang the bus on")
	f.StringVar(&o.backend.serial, "uart", "", "serial port wired as a 1-wire master")
	f.IntVar(&o.backend.master, "netlink", -1, "kernel w1 bus master number")
	f.Uint8Var(&o.family, "family", 0, "only list devices of this family code")
	f.BoolVar(&o.alarm, "alarm", false, "only list devices in alarm state")
	f.BoolVar(&o.temp, "temp", false, "read the temperature of DS18B20 and DS18S20 sensors")
	f.IntVar(&o.resolution, "resolution", 12, "DS18B20 resolution in bits, 9 to 12")
	f.StringVarP(&o.format, "format", "f", "text", "output format: text or yaml")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "verbose logging")
	cmd.MarkFlagsMutuallyExclusive("ds248x", "pin", "uart", "netlink")
	cmd.MarkFlagsOneRequired("ds248x", "pin", "uart", "netlink")
	return cmd
}

func run(w io.Writer, o *options) error {
	out, err := newPrinter(w, o.format)
	if err != nil {
		return err
	}
	if o.temp && (o.resolution < 9 || o.resolution > 12) {
		return fmt.Errorf("invalid resolution %d", o.resolution)
	}
	log, err := newLogger(o.verbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	bus, closeBus, err := openBus(&o.backend, log)
	if err != nil {
		return err
	}
	defer closeBus()

	family := -1
	if o.filter {
		family = int(o.family)
	}
	addrs, err := scan(bus, family, o.alarm)
	if err != nil {
		// Print what was found before reporting the failure.
		log.Warn("search failed", zap.Error(err), zap.Int("found", len(addrs)))
	}
	devs := make([]device, 0, len(addrs))
	for _, a := range addrs {
		devs = append(devs, newDevice(a))
	}
	if o.temp {
		readTemperatures(bus, devs, o.resolution, log)
	}
	if perr := out.print(bus.String(), devs); perr != nil {
		return perr
	}
	return err
}

// scan enumerates the bus. A family filter uses a targeted search when the
// bus supports it.
func scan(bus onewire.Bus, family int, alarm bool) ([]onewire.Address, error) {
	if b, ok := bus.(*owbus.Bus); ok && family >= 0 && !alarm {
		return b.SearchFamily(byte(family))
	}
	addrs, err := bus.Search(alarm)
	if family < 0 {
		return addrs, err
	}
	out := addrs[:0]
	for _, a := range addrs {
		if int(a&0xff) == family {
			out = append(out, a)
		}
	}
	return out, err
}

// readTemperatures converts on every sensor at once and then reads each one.
func readTemperatures(bus onewire.Bus, devs []device, resolution int, log *zap.Logger) {
	sensors := map[int]*ds18b20.Dev{}
	for i := range devs {
		f := ds18b20.Family(devs[i].addr & 0xff)
		if f != ds18b20.DS18B20 && f != ds18b20.DS18S20 {
			continue
		}
		s, err := ds18b20.New(bus, devs[i].addr, resolution)
		if err != nil {
			devs[i].Error = err.Error()
			continue
		}
		sensors[i] = s
	}
	if len(sensors) == 0 {
		return
	}
	if err := ds18b20.ConvertAll(bus, resolution); err != nil {
		log.Warn("conversion failed", zap.Error(err))
		for i := range sensors {
			devs[i].Error = err.Error()
		}
		return
	}
	for i, s := range sensors {
		t, err := s.LastTemp()
		if err != nil {
			devs[i].Error = err.Error()
			continue
		}
		devs[i].Temperature = t.String()
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
