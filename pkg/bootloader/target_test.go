// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bootloader

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/Thermoquad/stboot/pkg/stm32boot"
)

type targetState int

const (
	tsCommand targetState = iota
	tsReadAddress
	tsReadLength
	tsWriteAddress
	tsWriteData
	tsErase
	tsGoAddress
)

// simTarget emulates an STM32 system bootloader behind a stm32boot.Conn.
// Frames are processed as they are written and replies are queued for Read.
type simTarget struct {
	mu sync.Mutex

	base     uint32
	pageSize int
	flash    []byte
	ops      []byte
	version  byte
	pid      []byte
	prefix   bool // Expect a length byte before WRITE data

	mute       bool // Never reply
	nackWrite  int  // Page index whose WRITE data is NACKed, -1 for none
	nackRead   int  // Page index whose READ address is NACKed, -1 for none
	writeErr   error
	synced     bool
	state      targetState
	addr       uint32
	rx         []byte
	tx         []byte
	timeout    time.Duration
	closed     bool
	writes     int
	frames     [][]byte
	jumpedTo   uint32
	jumped     bool
	writePages int
}

func newSimTarget(pages int) *simTarget {
	flash := bytes.Repeat([]byte{0xFF}, pages*stm32boot.PageSize)
	return &simTarget{
		base:      stm32boot.FlashBase,
		pageSize:  stm32boot.PageSize,
		flash:     flash,
		ops:       []byte{0x00, 0x01, 0x02, 0x11, 0x21, 0x31, 0x44, 0x63, 0x73, 0x82, 0x92},
		version:   0x31,
		pid:       []byte{0x04, 0x13},
		nackWrite: -1,
		nackRead:  -1,
		timeout:   10 * time.Millisecond,
	}
}

func (t *simTarget) Read(p []byte) (int, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, errors.New("port closed")
	}
	if len(t.tx) == 0 {
		timeout := t.timeout
		t.mu.Unlock()
		time.Sleep(timeout)
		return 0, nil
	}
	n := copy(p, t.tx)
	t.tx = t.tx[n:]
	t.mu.Unlock()
	return n, nil
}

func (t *simTarget) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return 0, t.writeErr
	}
	if t.closed {
		return 0, errors.New("port closed")
	}
	t.writes++
	t.frames = append(t.frames, append([]byte(nil), p...))
	t.rx = append(t.rx, p...)
	t.process()
	return len(p), nil
}

func (t *simTarget) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *simTarget) SetReadTimeout(d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d > 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	t.timeout = d
	return nil
}

func (t *simTarget) ResetInput() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tx = nil
	return nil
}

func (t *simTarget) reply(b ...byte) {
	if !t.mute {
		t.tx = append(t.tx, b...)
	}
}

func (t *simTarget) supports(op byte) bool {
	return bytes.IndexByte(t.ops, op) >= 0
}

func (t *simTarget) take(n int) ([]byte, bool) {
	if len(t.rx) < n {
		return nil, false
	}
	b := t.rx[:n]
	t.rx = t.rx[n:]
	return b, true
}

func (t *simTarget) process() {
	for {
		switch t.state {
		case tsCommand:
			if !t.synced {
				b, ok := t.take(1)
				if !ok {
					return
				}
				if b[0] == stm32boot.Init {
					t.synced = true
					t.reply(stm32boot.Ack)
				}
				continue
			}
			if len(t.rx) == 1 && t.rx[0] == stm32boot.Init {
				t.rx = nil
				t.reply(stm32boot.Nack)
				return
			}
			frame, ok := t.take(2)
			if !ok {
				return
			}
			if frame[0]^frame[1] != 0xFF || !t.supports(frame[0]) {
				t.reply(stm32boot.Nack)
				continue
			}
			t.dispatch(frame[0])

		case tsReadAddress, tsWriteAddress, tsGoAddress:
			frame, ok := t.take(5)
			if !ok {
				return
			}
			addr, err := stm32boot.DecodeAddress(frame)
			if err != nil || (t.state == tsReadAddress && int(addr-t.base)/t.pageSize == t.nackRead) {
				t.reply(stm32boot.Nack)
				t.state = tsCommand
				continue
			}
			t.addr = addr
			t.reply(stm32boot.Ack)
			switch t.state {
			case tsReadAddress:
				t.state = tsReadLength
			case tsWriteAddress:
				t.state = tsWriteData
			default:
				t.jumped = true
				t.jumpedTo = addr
				t.synced = false
				t.state = tsCommand
			}

		case tsReadLength:
			frame, ok := t.take(2)
			if !ok {
				return
			}
			t.state = tsCommand
			if !stm32boot.IsComplement(frame) {
				t.reply(stm32boot.Nack)
				continue
			}
			t.reply(stm32boot.Ack)
			off := int(t.addr - t.base)
			t.reply(t.flash[off : off+int(frame[0])+1]...)

		case tsWriteData:
			size := t.pageSize + 1
			if t.prefix {
				size++
			}
			frame, ok := t.take(size)
			if !ok {
				return
			}
			t.state = tsCommand
			data := frame[:len(frame)-1]
			length := byte(t.pageSize - 1)
			if t.prefix {
				length = data[0]
				data = data[1:]
			}
			page := int(t.addr-t.base) / t.pageSize
			if stm32boot.BlockChecksum(length, data) != frame[len(frame)-1] || page == t.nackWrite {
				t.reply(stm32boot.Nack)
				continue
			}
			copy(t.flash[int(t.addr-t.base):], data)
			t.writePages++
			t.reply(stm32boot.Ack)

		case tsErase:
			frame, ok := t.take(3)
			if !ok {
				return
			}
			t.state = tsCommand
			if !bytes.Equal(frame, stm32boot.MassEraseFrame()) {
				t.reply(stm32boot.Nack)
				continue
			}
			for i := range t.flash {
				t.flash[i] = 0xFF
			}
			t.reply(stm32boot.Ack)
		}
	}
}

func (t *simTarget) dispatch(op byte) {
	switch op {
	case stm32boot.OpGet:
		t.reply(stm32boot.Ack, byte(len(t.ops)), t.version)
		t.reply(t.ops...)
		t.reply(stm32boot.Ack)
	case stm32boot.OpGetVersion:
		t.reply(stm32boot.Ack, t.version, 0x00, 0x00, stm32boot.Ack)
	case stm32boot.OpGetID:
		t.reply(stm32boot.Ack, byte(len(t.pid)-1))
		t.reply(t.pid...)
		t.reply(stm32boot.Ack)
	case stm32boot.OpReadMemory:
		t.reply(stm32boot.Ack)
		t.state = tsReadAddress
	case stm32boot.OpWriteMemory:
		t.reply(stm32boot.Ack)
		t.state = tsWriteAddress
	case stm32boot.OpExtendedErase:
		t.reply(stm32boot.Ack)
		t.state = tsErase
	case stm32boot.OpGo:
		t.reply(stm32boot.Ack)
		t.state = tsGoAddress
	default:
		t.reply(stm32boot.Nack)
	}
}

func (t *simTarget) writeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writes
}

// scriptConn replays a fixed reply stream and records every write
type scriptConn struct {
	mu      sync.Mutex
	replies []byte
	written [][]byte
}

func (c *scriptConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	if len(c.replies) == 0 {
		c.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		return 0, nil
	}
	n := copy(p, c.replies)
	c.replies = c.replies[n:]
	c.mu.Unlock()
	return n, nil
}

func (c *scriptConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), p...))
	return len(p), nil
}

func (c *scriptConn) Close() error                       { return nil }
func (c *scriptConn) SetReadTimeout(time.Duration) error { return nil }
func (c *scriptConn) ResetInput() error                  { return nil }

func (c *scriptConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.written)
}

// gateConn blocks every Read until release is closed, then answers ACK once
type gateConn struct {
	scriptConn
	release chan struct{}
	reading chan struct{}
	once    sync.Once
}

func newGateConn() *gateConn {
	return &gateConn{release: make(chan struct{}), reading: make(chan struct{})}
}

func (c *gateConn) Read(p []byte) (int, error) {
	c.once.Do(func() { close(c.reading) })
	<-c.release
	if len(p) == 0 {
		return 0, nil
	}
	p[0] = stm32boot.Ack
	return 1, nil
}
