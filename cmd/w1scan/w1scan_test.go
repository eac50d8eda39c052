// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/GermanBionicSystems/w1/owbus"
	"github.com/GermanBionicSystems/w1/owbus/owbustest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/onewire"
)

// thermometer answers convert and read scratchpad with a fixed 25.0625°C.
type thermometer struct {
	spad [9]byte
	out  []byte
}

func newThermometer() *thermometer {
	t := &thermometer{spad: [9]byte{0x50, 0x05, 75, 70, 0x7f, 0xff, 0x0c, 0x10}}
	t.spad[8] = onewire.CalcCRC(t.spad[:8])
	return t
}

func (t *thermometer) Write(b byte) {
	switch b {
	case 0x44:
		t.spad[0], t.spad[1] = 0x91, 0x01
		t.spad[8] = onewire.CalcCRC(t.spad[:8])
	case 0xbe:
		t.out = append([]byte(nil), t.spad[:]...)
	}
}

func (t *thermometer) Read() byte {
	if len(t.out) == 0 {
		return 0xff
	}
	v := t.out[0]
	t.out = t.out[1:]
	return v
}

var (
	romA = owbustest.NewROM(0x28, 0x0000070e41ac)
	romB = owbustest.NewROM(0x28, 0x0000070e41ad)
	romC = owbustest.NewROM(0x3a, 0x000000000042)
)

// simulate makes the command use a simulated bus.
func simulate(t *testing.T) *owbustest.Bus {
	sim := &owbustest.Bus{Devices: []*owbustest.Device{
		{ROM: romA, Function: newThermometer()},
		{ROM: romB, Function: newThermometer(), Alarm: true},
		{ROM: romC},
	}}
	prev := openBus
	openBus = func(b *backend, log *zap.Logger) (onewire.Bus, func() error, error) {
		require.Equal(t, "GPIO4", b.pin)
		return owbus.New(sim, &owbus.Opts{Name: "sim", Logger: log}), func() error { return nil }, nil
	}
	t.Cleanup(func() { openBus = prev })
	return sim
}

func execute(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

func TestText(t *testing.T) {
	simulate(t)
	out, err := execute(t, "--pin", "GPIO4")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	for _, r := range []owbus.ROM{romA, romB, romC} {
		require.Contains(t, out, r.String())
	}
	require.Contains(t, out, "DS18B20")
	require.Contains(t, out, "DS2413")
}

func TestText_empty(t *testing.T) {
	sim := simulate(t)
	sim.Devices = nil
	out, err := execute(t, "--pin", "GPIO4")
	require.NoError(t, err)
	require.Equal(t, "No device found on owbus{sim}\n", out)
}

func TestYAML_temperature(t *testing.T) {
	simulate(t)
	out, err := execute(t, "--pin", "GPIO4", "--family", "0x28", "--temp", "--format", "yaml")
	require.NoError(t, err)
	var r report
	require.NoError(t, yaml.Unmarshal([]byte(out), &r))
	require.Equal(t, "owbus{sim}", r.Bus)
	require.Len(t, r.Devices, 2)
	for _, d := range r.Devices {
		require.Equal(t, "DS18B20", d.Family)
		require.Empty(t, d.Error)
		require.Contains(t, d.Temperature, "25.06")
	}
	require.ElementsMatch(t, []string{romA.String(), romB.String()}, []string{r.Devices[0].ROM, r.Devices[1].ROM})
}

func TestAlarm(t *testing.T) {
	simulate(t)
	out, err := execute(t, "--pin", "GPIO4", "--alarm")
	require.NoError(t, err)
	require.Equal(t, romB.String()+"  DS18B20", strings.TrimSpace(out))
}

func TestFlags(t *testing.T) {
	simulate(t)
	_, err := execute(t)
	require.Error(t, err, "a bus is required")
	_, err = execute(t, "--pin", "GPIO4", "--netlink", "1")
	require.Error(t, err, "only one bus")
	_, err = execute(t, "--pin", "GPIO4", "--format", "json")
	require.Error(t, err)
	_, err = execute(t, "--pin", "GPIO4", "--temp", "--resolution", "8")
	require.Error(t, err)
	_, err = execute(t, "--pin", "GPIO4", "extra")
	require.Error(t, err)
}

func TestOpenError(t *testing.T) {
	prev := openBus
	openBus = func(*backend, *zap.Logger) (onewire.Bus, func() error, error) {
		return nil, nil, errors.New("no such pin")
	}
	defer func() { openBus = prev }()
	_, err := execute(t, "--pin", "GPIO99")
	require.EqualError(t, err, "no such pin")
}

// fixedBus is a bus without targeted search.
type fixedBus []onewire.Address

func (f fixedBus) String() string                                   { return "fixed" }
func (f fixedBus) Tx(w, r []byte, power onewire.Pullup) error       { return errors.New("not supported") }
func (f fixedBus) Search(alarmOnly bool) ([]onewire.Address, error) { return append([]onewire.Address(nil), f...), nil }

func TestScan_filter(t *testing.T) {
	b := fixedBus{romA.Address(), romC.Address(), romB.Address()}
	got, err := scan(b, 0x28, false)
	require.NoError(t, err)
	require.Equal(t, []onewire.Address{romA.Address(), romB.Address()}, got)
	got, err = scan(b, -1, false)
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestFamilyName(t *testing.T) {
	require.Equal(t, "DS18S20", familyName(0x10))
	require.Equal(t, "0x05", familyName(0x05))
}
