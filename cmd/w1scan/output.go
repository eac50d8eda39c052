// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/GermanBionicSystems/w1/owbus"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/onewire"
)

// device is one line of the report.
type device struct {
	addr onewire.Address

	ROM         string `yaml:"rom"`
	Address     string `yaml:"address"`
	Family      string `yaml:"family"`
	Temperature string `yaml:"temperature,omitempty"`
	Error       string `yaml:"error,omitempty"`
}

func newDevice(a onewire.Address) device {
	rom := owbus.ROMFromAddress(a)
	return device{
		addr:    a,
		ROM:     rom.String(),
		Address: fmt.Sprintf("%#016x", uint64(a)),
		Family:  familyName(rom.Family()),
	}
}

// report is the yaml document.
type report struct {
	Bus     string   `yaml:"bus"`
	Devices []device `yaml:"devices"`
}

type printer struct {
	w      io.Writer
	yaml   bool
	colors bool
}

// newPrinter returns a printer for the format. When w is the standard output
// of a terminal the text format is colored.
func newPrinter(w io.Writer, format string) (*printer, error) {
	p := &printer{w: w}
	switch format {
	case "text":
	case "yaml":
		p.yaml = true
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	if f, ok := w.(*os.File); ok && f == os.Stdout && isatty.IsTerminal(f.Fd()) {
		p.w = colorable.NewColorableStdout()
		p.colors = !p.yaml
	}
	return p, nil
}

func (p *printer) print(bus string, devs []device) error {
	if p.yaml {
		e := yaml.NewEncoder(p.w)
		e.SetIndent(2)
		if err := e.Encode(report{Bus: bus, Devices: devs}); err != nil {
			return err
		}
		return e.Close()
	}
	if len(devs) == 0 {
		_, err := fmt.Fprintf(p.w, "No device found on %s\n", bus)
		return err
	}
	for _, d := range devs {
		line := fmt.Sprintf("%s  %-8s", d.ROM, d.Family)
		if p.colors {
			line = fmt.Sprintf("\033[1m%s\033[0m  \033[36m%-8s\033[0m", d.ROM, d.Family)
		}
		switch {
		case d.Error != "":
			if p.colors {
				line += "  \033[31m" + d.Error + "\033[0m"
			} else {
				line += "  " + d.Error
			}
		case d.Temperature != "":
			line += "  " + d.Temperature
		}
		if _, err := fmt.Fprintln(p.w, line); err != nil {
			return err
		}
	}
	return nil
}

// familyName returns the part number for common family codes.
func familyName(f byte) string {
	switch f {
	case 0x01:
		return "DS2401"
	case 0x10:
		return "DS18S20"
	case 0x12:
		return "DS2406"
	case 0x1d:
		return "DS2423"
	case 0x22:
		return "DS1822"
	case 0x26:
		return "DS2438"
	case 0x28:
		return "DS18B20"
	case 0x29:
		return "DS2408"
	case 0x2d:
		return "DS2431"
	case 0x3a:
		return "DS2413"
	case 0x3b:
		return "DS1825"
	case 0x42:
		return "DS28EA00"
	default:
		return fmt.Sprintf("0x%02x", f)
	}
}
