// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owbus

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/onewire"
)

// Opts contains options to pass to the constructor.
type Opts struct {
	Name   string      // returned by String, defaults to the channel's own name
	Logger *zap.Logger // nil disables logging
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{}

// Bus is a 1-wire bus master driving a BitChannel.
//
// It implements onewire.Bus so that drivers written against periph, such as
// ds18b20, can use it. Each Tx and Search holds the bus for its whole
// duration.
type Bus struct {
	mu   sync.Mutex
	c    *Codec
	name string
	log  *zap.Logger
}

// New returns a Bus using ch as the physical layer.
func New(ch BitChannel, opts *Opts) *Bus {
	if opts == nil {
		opts = &DefaultOpts
	}
	b := &Bus{c: NewCodec(ch), name: opts.Name, log: opts.Logger}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	if b.name == "" {
		if s, ok := ch.(fmt.Stringer); ok {
			b.name = s.String()
		} else {
			b.name = "bitchannel"
		}
	}
	return b
}

func (b *Bus) String() string {
	return "owbus{" + b.name + "}"
}

// Halt implements conn.Resource.
func (b *Bus) Halt() error {
	return nil
}

// Codec returns the byte level access to the bus. The caller must not use it
// concurrently with the Bus.
func (b *Bus) Codec() *Codec {
	return b.c
}

// Tx resets the bus, writes w, reads r and then leaves the bus weakly or
// strongly pulled up depending on power.
//
// The strong pull-up is armed before the last bit transferred, so it needs
// at least one byte in w or r.
//
// A missing presence pulse is returned as an error implementing
// onewire.NoDevicesError.
func (b *Bus) Tx(w, r []byte, power onewire.Pullup) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	strong := power == onewire.StrongPullup
	if strong && len(w) == 0 && len(r) == 0 {
		return errors.New("owbus: strong pull-up requested without any byte to transfer")
	}
	present, err := b.c.Reset()
	if err != nil {
		return err
	}
	if !present {
		return noDevicesError("owbus: no device present")
	}
	if err := b.c.writeBytes(w, strong && len(r) == 0); err != nil {
		return err
	}
	return b.c.readBytes(r, strong)
}

// Search returns the addresses of all devices on the bus if alarmOnly is false
// and of all devices in alarm state if alarmOnly is true.
//
// An empty bus is not an error. If the search breaks off after some devices
// were found, they are returned with an error implementing onewire.BusError.
func (b *Bus) Search(alarmOnly bool) ([]onewire.Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.newSearcher(alarmOnly)
	var devices []onewire.Address
	for {
		rom, found, err := s.Next()
		if err != nil {
			return devices, err
		}
		if !found {
			return devices, b.searchErr(s, alarmOnly, len(devices))
		}
		devices = append(devices, rom.Address())
	}
}

// SearchFamily returns the addresses of all devices whose family code is
// family, using a targeted search.
func (b *Bus) SearchFamily(family byte) ([]onewire.Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.newSearcher(false)
	s.Target(family)
	var devices []onewire.Address
	for {
		rom, found, err := s.Next()
		if err != nil {
			return devices, err
		}
		if !found {
			return devices, b.searchErr(s, false, len(devices))
		}
		if rom.Family() != family {
			// Past the last device of the family.
			return devices, nil
		}
		devices = append(devices, rom.Address())
	}
}

// Verify reports whether the device with the identifier is on the bus.
func (b *Bus) Verify(rom ROM) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.newSearcher(false)
	s.state.rom = rom
	s.state.lastDiscrepancy = 64
	got, found, err := s.Next()
	if err != nil || !found {
		return false, err
	}
	return got == rom, nil
}

// Searcher returns a Searcher bound to this bus for incremental enumeration.
//
// The Searcher does not lock the bus; the caller must not run Tx or Search
// while using it.
func (b *Bus) Searcher(alarmOnly bool) *Searcher {
	return b.newSearcher(alarmOnly)
}

func (b *Bus) newSearcher(alarmOnly bool) *Searcher {
	cmd := byte(CmdSearchROM)
	if alarmOnly {
		cmd = CmdAlarmSearch
	}
	s := NewSearcher(b.c, cmd)
	s.log = b.log.With(zap.String("bus", b.name))
	return s
}

// searchErr converts the reason a search stopped into the error returned by
// Search.
func (b *Bus) searchErr(s *Searcher, alarmOnly bool, found int) error {
	switch s.Fault() {
	case FaultExhausted, FaultNone:
		return nil
	case FaultNoPresence:
		if found == 0 {
			return nil
		}
		return busError("owbus: devices disappeared during search")
	case FaultContention:
		if found == 0 && alarmOnly {
			// Nobody answers an alarm search when no device is in alarm.
			return nil
		}
		return busError("owbus: devices disappeared during search")
	default:
		return busError(fmt.Sprintf("owbus: search failed after %d devices: %s", found, s.Fault()))
	}
}

// noDevicesError implements error, onewire.NoDevicesError and
// onewire.BusError.
type noDevicesError string

func (e noDevicesError) Error() string   { return string(e) }
func (e noDevicesError) NoDevices() bool { return true }
func (e noDevicesError) BusError() bool  { return true }

// busError implements error and onewire.BusError.
type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }

var _ onewire.Bus = &Bus{}
var _ conn.Resource = &Bus{}
var _ onewire.NoDevicesError = noDevicesError("")
var _ onewire.BusError = busError("")
