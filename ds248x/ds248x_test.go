// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds248x

import (
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/GermanBionicSystems/w1/owbus"
	"github.com/GermanBionicSystems/w1/owbus/owbustest"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/physic"
)

// pbInit is the initialization of a DS2482-100, which has neither a port
// configuration register nor a channel selection register.
var pbInit = []i2ctest.IO{
	{Addr: 0x18, W: []byte{cmdReset}},
	{Addr: 0x18, W: []byte{cmdSetReadPtr, regStatus}, R: []byte{0x18}},
	{Addr: 0x18, W: []byte{cmdWriteConfig, 0xe1}, R: []byte{0x01}},
}

func playback(ops ...[]i2ctest.IO) *i2ctest.Playback {
	pb := &i2ctest.Playback{DontPanic: true}
	for _, o := range ops {
		pb.Ops = append(pb.Ops, o...)
	}
	return pb
}

func TestNew_address(t *testing.T) {
	if _, err := New(playback(), 0x30, nil); err == nil {
		t.Fatal("expected error on unsupported address")
	}
}

func TestNew_status(t *testing.T) {
	pb := playback([]i2ctest.IO{
		{Addr: 0x18, W: []byte{cmdReset}},
		{Addr: 0x18, W: []byte{cmdSetReadPtr, regStatus}, R: []byte{0x00}},
	})
	if _, err := New(pb, 0x18, nil); err == nil {
		t.Fatal("expected error on invalid status register")
	}
}

func TestNew_config(t *testing.T) {
	pb := playback(pbInit[:2], []i2ctest.IO{
		{Addr: 0x18, W: []byte{cmdWriteConfig, 0xe1}, R: []byte{0x00}},
	})
	if _, err := New(pb, 0x18, nil); err == nil {
		t.Fatal("expected error on config register readback")
	}
}

func TestNew_DS2482x100(t *testing.T) {
	pb := playback(pbInit)
	d, err := New(pb, 0x18, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s := d.String(); !strings.HasPrefix(s, "DS2482-100{") {
		t.Fatal(s)
	}
	if err := d.ChannelSelect(3); err != nil {
		t.Fatal(err)
	}
	if ch := d.SelectedChannel(); ch != 0 {
		t.Fatal(ch)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNew_DS2483(t *testing.T) {
	pb := playback(pbInit, []i2ctest.IO{
		{Addr: 0x18, W: []byte{cmdSetReadPtr, regPCR}},
		{Addr: 0x18, W: []byte{cmdAdjPort, 0x06, 0x26, 0x46, 0x66, 0x86}},
	})
	d, err := New(pb, 0x18, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s := d.String(); !strings.HasPrefix(s, "DS2483{") {
		t.Fatal(s)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNew_DS2482x800(t *testing.T) {
	pb := playback(pbInit, []i2ctest.IO{
		{Addr: 0x18, W: []byte{cmdSetReadPtr, regCSR}},
		{Addr: 0x18, W: []byte{cmdChannelSelect, cscIO0w}},
		{Addr: 0x18, W: []byte{cmdChannelSelect, cscIO3w}},
		{Addr: 0x18, W: []byte{cmdSetReadPtr, regCSR}, R: []byte{cscIO3r}},
		{Addr: 0x18, W: []byte{cmdChannelSelect, cscIO7w}},
	})
	d, err := New(pb, 0x18, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s := d.String(); !strings.HasPrefix(s, "DS2482-800{") {
		t.Fatal(s)
	}
	if err := d.ChannelSelect(3); err != nil {
		t.Fatal(err)
	}
	if ch := d.SelectedChannel(); ch != 3 {
		t.Fatal(ch)
	}
	// Out of range channels are clamped.
	if err := d.ChannelSelect(12); err != nil {
		t.Fatal(err)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestBits(t *testing.T) {
	pb := playback(pbInit, []i2ctest.IO{
		// Reset, busy then presence.
		{Addr: 0x18, W: []byte{cmd1WReset}},
		{Addr: 0x18, R: []byte{st1WB}},
		{Addr: 0x18, R: []byte{0x10 | stPPD}},
		// Write 0.
		{Addr: 0x18, W: []byte{cmd1WBit, 0x00}},
		{Addr: 0x18, R: []byte{0x00}},
		// Write 1.
		{Addr: 0x18, W: []byte{cmd1WBit, 0x80}},
		{Addr: 0x18, R: []byte{stSBR}},
		// Read 0.
		{Addr: 0x18, W: []byte{cmd1WBit, 0x80}},
		{Addr: 0x18, R: []byte{0x00}},
		// Read 1, with the triplet bits left over.
		{Addr: 0x18, W: []byte{cmd1WBit, 0x80}},
		{Addr: 0x18, R: []byte{stSBR | 0x40}},
		// Strong pull-up, active pull-up kept.
		{Addr: 0x18, W: []byte{cmdWriteConfig, 0xa5}},
	})
	d, err := New(pb, 0x18, nil)
	if err != nil {
		t.Fatal(err)
	}
	present, err := d.Reset()
	if err != nil || !present {
		t.Fatalf("present=%t err=%v", present, err)
	}
	if err := d.WriteBit(0); err != nil {
		t.Fatal(err)
	}
	if err := d.WriteBit(1); err != nil {
		t.Fatal(err)
	}
	for _, want := range []byte{0, 1} {
		v, err := d.ReadBit()
		if err != nil {
			t.Fatal(err)
		}
		if v != want {
			t.Fatalf("read %d, expected %d", v, want)
		}
	}
	if err := d.StrongPullup(); err != nil {
		t.Fatal(err)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestReset_short(t *testing.T) {
	pb := playback(pbInit, []i2ctest.IO{
		{Addr: 0x18, W: []byte{cmd1WReset}},
		{Addr: 0x18, R: []byte{stPPD | stSD}},
		{Addr: 0x18, W: []byte{cmd1WReset}},
		{Addr: 0x18, R: []byte{0x00}},
	})
	d, err := New(pb, 0x18, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = d.Reset()
	var s onewire.ShortedBusError
	if !errors.As(err, &s) || !s.IsShorted() {
		t.Fatalf("expected a shorted bus error, got %v", err)
	}
	if b, ok := err.(onewire.BusError); !ok || !b.BusError() {
		t.Fatal("a short is a bus error")
	}
	// A short does not break the bridge.
	present, err := d.Reset()
	if err != nil || present {
		t.Fatalf("present=%t err=%v", present, err)
	}
}

func TestPersistentError(t *testing.T) {
	d, err := New(playback(pbInit), 0x18, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err1 := d.Reset()
	if err1 == nil {
		t.Fatal("expected an error from the exhausted playback")
	}
	if _, err := d.ReadBit(); err == nil || err.Error() != err1.Error() {
		t.Fatalf("expected the persistent error, got %v", err)
	}
	if err := d.WriteBit(0); err == nil || err.Error() != err1.Error() {
		t.Fatalf("expected the persistent error, got %v", err)
	}
	if err := d.StrongPullup(); err == nil || err.Error() != err1.Error() {
		t.Fatalf("expected the persistent error, got %v", err)
	}
}

// busyBus reports the 1-wire bus as always busy.
type busyBus struct{}

func (busyBus) String() string                    { return "busy" }
func (busyBus) SetSpeed(f physic.Frequency) error { return nil }
func (busyBus) Tx(addr uint16, w, r []byte) error {
	if len(r) != 0 {
		r[0] = st1WB
	}
	return nil
}

func TestWaitIdle_timeout(t *testing.T) {
	d := &Dev{
		i2c:    &i2c.Dev{Bus: busyBus{}, Addr: 0x18},
		tReset: time.Microsecond,
		tSlot:  time.Microsecond,
		log:    zaptest.NewLogger(t),
	}
	if _, err := d.Reset(); err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("expected a timeout, got %v", err)
	}
	if _, err := d.ReadBit(); err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("expected the timeout to persist, got %v", err)
	}
}

const regConfig = 0xc3

// bridge emulates a DS2482-100 in front of a BitChannel.
type bridge struct {
	ch     owbus.BitChannel
	ptr    byte
	status byte
	conf   byte
}

func (b *bridge) String() string                    { return "bridge" }
func (b *bridge) SetSpeed(f physic.Frequency) error { return nil }

func (b *bridge) Tx(addr uint16, w, r []byte) error {
	if len(w) != 0 {
		switch w[0] {
		case cmdReset:
			b.status, b.ptr = 0x18, regStatus
		case cmdSetReadPtr:
			if w[1] != regStatus && w[1] != regConfig {
				return errors.New("bridge: no such register")
			}
			b.ptr = w[1]
		case cmdWriteConfig:
			b.conf, b.ptr = w[1]&0x0f, regConfig
		case cmd1WReset:
			present, err := b.ch.Reset()
			if err != nil {
				return err
			}
			b.status, b.ptr = 0, regStatus
			if present {
				b.status = stPPD
			}
		case cmd1WBit:
			var v byte
			var err error
			if w[1]&0x80 != 0 {
				v, err = b.ch.ReadBit()
			} else {
				err = b.ch.WriteBit(0)
			}
			if err != nil {
				return err
			}
			b.status, b.ptr = v<<5, regStatus
		default:
			return errors.New("bridge: unsupported command")
		}
	}
	if len(r) != 0 {
		if b.ptr == regConfig {
			r[0] = b.conf
		} else {
			r[0] = b.status
		}
	}
	return nil
}

func TestSearch_simulatedBus(t *testing.T) {
	roms := []owbus.ROM{
		owbustest.NewROM(0x28, 0x0000070e41ac),
		owbustest.NewROM(0x28, 0x0000070e41ad),
		owbustest.NewROM(0x10, 0x000008023b1f),
	}
	sim := &owbustest.Bus{}
	for _, r := range roms {
		sim.Devices = append(sim.Devices, &owbustest.Device{ROM: r})
	}
	d, err := New(&bridge{ch: sim}, 0x18, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s := d.String(); s != "DS2482-100{bridge(24)}" {
		t.Fatal(s)
	}
	got, err := owbus.New(d, nil).Search(false)
	if err != nil {
		t.Fatal(err)
	}
	var want []onewire.Address
	for _, r := range roms {
		want = append(want, r.Address())
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestReadROM_simulatedBus(t *testing.T) {
	rom := owbustest.NewROM(0x28, 0x0000070e41ac)
	sim := &owbustest.Bus{Devices: []*owbustest.Device{{ROM: rom}}}
	d, err := New(&bridge{ch: sim}, 0x18, nil)
	if err != nil {
		t.Fatal(err)
	}
	c := owbus.NewCodec(d)
	present, err := c.Reset()
	if err != nil || !present {
		t.Fatalf("present=%t err=%v", present, err)
	}
	got, err := c.ReadROM()
	if err != nil {
		t.Fatal(err)
	}
	if got != rom {
		t.Fatalf("%s != %s", got, rom)
	}
}

func init() {
	sleep = func(time.Duration) {}
}
