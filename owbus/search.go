// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owbus

import (
	"errors"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/onewire"
)

// SearchState is the part of a ROM search that survives between calls.
//
// The zero value is ready to start a full enumeration.
type SearchState struct {
	rom                   ROM  // last identifier found, or the seed
	lastDiscrepancy       int  // 0..64, position of the last unexplored 1 branch
	lastFamilyDiscrepancy int  // 0..8, same as lastDiscrepancy within the family code
	lastDevice            bool // enumeration exhausted
}

// Reset clears the state so the next search starts a fresh enumeration.
func (s *SearchState) Reset() {
	*s = SearchState{}
}

// Target seeds the state so the next search looks for devices of the family
// first.
//
// Every discrepancy before bit 64 replays the seed: the family code followed
// by zero bits. This is best effort; when no device of the family is present
// the search returns whatever device comes next.
func (s *SearchState) Target(family byte) {
	*s = SearchState{lastDiscrepancy: 64}
	s.rom[0] = family
}

// SkipFamily arranges for the next search to skip every remaining device that
// shares the family code of the last device found.
func (s *SearchState) SkipFamily() {
	s.lastDiscrepancy = s.lastFamilyDiscrepancy
	s.lastFamilyDiscrepancy = 0
	if s.lastDiscrepancy == 0 {
		s.lastDevice = true
	}
}

// ROM returns the last identifier found.
func (s *SearchState) ROM() ROM {
	return s.rom
}

// LastDiscrepancy returns the bit position, 1 to 64, where the search resumes
// next; 0 when no branch is left unexplored.
func (s *SearchState) LastDiscrepancy() int {
	return s.lastDiscrepancy
}

// LastFamilyDiscrepancy is LastDiscrepancy restricted to the family code.
func (s *SearchState) LastFamilyDiscrepancy() int {
	return s.lastFamilyDiscrepancy
}

// Done reports whether the enumeration is exhausted.
func (s *SearchState) Done() bool {
	return s.lastDevice
}

// Fault tells why the last search call did not return a device.
type Fault int

const (
	// FaultNone means the last call found a device.
	FaultNone Fault = iota
	// FaultNoPresence means no device answered the reset pulse.
	FaultNoPresence
	// FaultContention means both the bit and its complement read 1 during
	// the walk: no device drove the line.
	FaultContention
	// FaultDegenerate means the walk completed with a zero family code.
	FaultDegenerate
	// FaultExhausted means every device was already returned.
	FaultExhausted
	// FaultTransport means the physical layer returned an error.
	FaultTransport
	// FaultShorted means the physical layer found the line held low.
	FaultShorted
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultNoPresence:
		return "no presence"
	case FaultContention:
		return "contention"
	case FaultDegenerate:
		return "degenerate"
	case FaultExhausted:
		return "exhausted"
	case FaultTransport:
		return "transport"
	case FaultShorted:
		return "shorted"
	default:
		return "unknown"
	}
}

// Searcher enumerates the devices on a bus one at a time.
//
// A Searcher is not safe for concurrent use and assumes exclusive access to
// the bus for the duration of each call.
type Searcher struct {
	c     *Codec
	cmd   byte
	log   *zap.Logger
	state SearchState
	fault Fault
}

// NewSearcher returns a Searcher issuing cmd, normally CmdSearchROM or
// CmdAlarmSearch.
func NewSearcher(c *Codec, cmd byte) *Searcher {
	return &Searcher{c: c, cmd: cmd, log: zap.NewNop()}
}

// State gives access to the search state, to reset, target or inspect it.
func (s *Searcher) State() *SearchState {
	return &s.state
}

// Reset is shorthand for State().Reset().
func (s *Searcher) Reset() {
	s.state.Reset()
}

// Target is shorthand for State().Target(family).
func (s *Searcher) Target(family byte) {
	s.state.Target(family)
}

// Fault returns why the last call to Next returned no device.
func (s *Searcher) Fault() Fault {
	return s.fault
}

// Next looks for the next device.
//
// It returns false once every device has been found, and also when the bus is
// empty, shorted or devices vanished mid-walk; Fault tells these apart. In
// every case but exhaustion the state is cleared so the following call starts
// over. Calling Next from a cleared state until it returns false yields each
// device exactly once, in increasing order of the identifiers read from bit 1
// to bit 64.
//
// err is only set when the BitChannel fails.
func (s *Searcher) Next() (ROM, bool, error) {
	if s.state.lastDevice {
		s.fault = FaultExhausted
		return ROM{}, false, nil
	}
	present, err := s.c.Reset()
	if err != nil {
		return s.abort(err)
	}
	if !present {
		return s.fail(FaultNoPresence)
	}
	if err := s.c.WriteByte(s.cmd); err != nil {
		return s.abort(err)
	}

	lastZero := 0
	n := 1
	for ; n <= 64; n++ {
		id, err := s.c.ReadBit()
		if err != nil {
			return s.abort(err)
		}
		cmp, err := s.c.ReadBit()
		if err != nil {
			return s.abort(err)
		}
		if id == 1 && cmp == 1 {
			break
		}
		dir := id
		if id == cmp {
			// Devices disagree on this bit.
			switch {
			case n < s.state.lastDiscrepancy:
				dir = s.state.rom.Bit(n)
			case n == s.state.lastDiscrepancy:
				dir = 1
			default:
				dir = 0
			}
			if dir == 0 {
				lastZero = n
				if n <= 8 {
					s.state.lastFamilyDiscrepancy = n
				}
			}
		}
		// Devices whose bit differs from dir drop out of the search.
		if err := s.c.WriteBit(dir); err != nil {
			return s.abort(err)
		}
		s.state.rom.setBit(n, dir)
	}
	if n <= 64 {
		s.log.Debug("owbus: search aborted", zap.Int("bit", n))
		return s.fail(FaultContention)
	}

	s.state.lastDiscrepancy = lastZero
	if lastZero == 0 {
		s.state.lastDevice = true
	}
	if s.state.rom[0] == 0 {
		return s.fail(FaultDegenerate)
	}
	s.fault = FaultNone
	return s.state.rom, true, nil
}

func (s *Searcher) fail(f Fault) (ROM, bool, error) {
	s.log.Debug("owbus: search failed", zap.Stringer("fault", f))
	s.state.Reset()
	s.fault = f
	return ROM{}, false, nil
}

func (s *Searcher) abort(err error) (ROM, bool, error) {
	s.log.Debug("owbus: search transport error", zap.Error(err))
	s.state.Reset()
	s.fault = FaultTransport
	var se onewire.ShortedBusError
	if errors.As(err, &se) && se.IsShorted() {
		s.fault = FaultShorted
	}
	return ROM{}, false, err
}
