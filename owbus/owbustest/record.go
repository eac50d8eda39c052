// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owbustest

import (
	"fmt"
	"sync"

	"github.com/GermanBionicSystems/w1/owbus"
)

// Kind is the type of a bus operation.
type Kind int

// Operations seen on a BitChannel.
const (
	ResetOp Kind = iota
	ReadOp
	WriteOp
	PullupOp
)

func (k Kind) String() string {
	switch k {
	case ResetOp:
		return "reset"
	case ReadOp:
		return "read"
	case WriteOp:
		return "write"
	case PullupOp:
		return "pullup"
	default:
		return "unknown"
	}
}

// IO registers one operation on a BitChannel.
type IO struct {
	Kind Kind
	Bit  byte // bit read or written; 1 for a reset that saw a presence pulse
}

func (i IO) String() string {
	return fmt.Sprintf("%s:%d", i.Kind, i.Bit)
}

// Record implements owbus.BitChannel and owbus.StrongPuller, recording every
// operation forwarded to Channel.
type Record struct {
	sync.Mutex
	Channel owbus.BitChannel // Channel can be nil if only writes are recorded.
	Ops     []IO
}

func (r *Record) String() string {
	return "record"
}

// Reset implements owbus.BitChannel.
func (r *Record) Reset() (bool, error) {
	present := false
	if r.Channel != nil {
		var err error
		if present, err = r.Channel.Reset(); err != nil {
			return false, err
		}
	}
	r.add(IO{Kind: ResetOp, Bit: b2i(present)})
	return present, nil
}

// ReadBit implements owbus.BitChannel.
func (r *Record) ReadBit() (byte, error) {
	if r.Channel == nil {
		return 0, fmt.Errorf("owbustest: read unsupported when no channel is connected")
	}
	v, err := r.Channel.ReadBit()
	if err != nil {
		return 0, err
	}
	r.add(IO{Kind: ReadOp, Bit: v})
	return v, nil
}

// WriteBit implements owbus.BitChannel.
func (r *Record) WriteBit(bit byte) error {
	if r.Channel != nil {
		if err := r.Channel.WriteBit(bit); err != nil {
			return err
		}
	}
	r.add(IO{Kind: WriteOp, Bit: bit})
	return nil
}

// StrongPullup implements owbus.StrongPuller.
func (r *Record) StrongPullup() error {
	if p, ok := r.Channel.(owbus.StrongPuller); ok {
		if err := p.StrongPullup(); err != nil {
			return err
		}
	}
	r.add(IO{Kind: PullupOp})
	return nil
}

// Written returns the bytes written, decoded LSB first, ignoring reads and
// resets. A trailing partial byte is dropped.
func (r *Record) Written() []byte {
	r.Lock()
	defer r.Unlock()
	var out []byte
	var v byte
	n := 0
	for _, op := range r.Ops {
		if op.Kind != WriteOp {
			continue
		}
		v |= op.Bit << uint(n)
		if n++; n == 8 {
			out = append(out, v)
			v, n = 0, 0
		}
	}
	return out
}

func (r *Record) add(io IO) {
	r.Lock()
	defer r.Unlock()
	r.Ops = append(r.Ops, io)
}

func b2i(b bool) byte {
	if b {
		return 1
	}
	return 0
}

var _ owbus.BitChannel = &Record{}
var _ owbus.StrongPuller = &Record{}
