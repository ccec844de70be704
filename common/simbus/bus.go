//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package simbus streams file contents into a simulated design over the
// ioctl download lines.
//
// The evaluation engine owns the signal cells and calls BeforeEval and
// AfterEval exactly once per cycle, in that order, from a single goroutine.
// Both hooks return immediately: a stall is expressed by not advancing the
// byte cursor. QueueDownload must be called from the same goroutine, between
// cycles. Nothing in this package takes a lock.
//
// Per cycle, for the active transfer:
//
//	BeforeEval: download=1, index, addr=cursor, dout=byte, wr=1 unless the
//	            previous AfterEval saw wait
//	AfterEval:  wait=0 and wr was issued -> cursor++, complete on EOF
//
// After a transfer completes, download stays low for Options.SettleCycles
// evaluations before the next queued request is opened.
package simbus

import (
	"fmt"
	"io"
	"strconv"

	"github.com/juju/errors"
)

const (
	// NoIndex is the reserved "no request" index. It is never queued.
	NoIndex = -1

	// MaxIndex is the largest index the 8-bit ioctl_index cell can carry.
	MaxIndex = 0xff
)

var ErrInvalidRequest = errors.New("invalid download request")

// Request is one pending download.
type Request struct {
	File  string
	Index int
}

func (r Request) String() string {
	return fmt.Sprintf("%d:%s", r.Index, r.File)
}

type Options struct {
	// Opener resolves request file names. Required.
	Opener Opener

	// Metrics, if not nil, records transfer activity.
	Metrics *Metrics

	// SettleCycles is the number of evaluations with download deasserted
	// between the end of one transfer and the start of the next.
	SettleCycles int
}

// state is either idle or *active.
type state interface {
	isState()
}

type idle struct {
	// settle counts down the remaining evaluations with download low.
	settle int
}

type active struct {
	req    Request
	label  string
	src    Source
	cursor int
	cur    byte

	// strobed is set when BeforeEval issued wr for cur this cycle.
	strobed bool
	// stalled is set when the last AfterEval observed wait.
	stalled bool
}

func (idle) isState()    {}
func (*active) isState() {}

// Bus is the loader side of the ioctl download handshake.
type Bus struct {
	c       Console
	sig     Signals
	opener  Opener
	metrics *Metrics
	settle  int

	queue []Request
	st    state

	// waitSeen is the wait level observed by the last AfterEval.
	waitSeen bool
}

// New binds a Bus to the console and signal cells. Every cell must be bound.
func New(c Console, sig Signals, opts Options) (*Bus, error) {
	if c == nil {
		return nil, errors.New("console is required")
	}
	if err := sig.check(); err != nil {
		return nil, errors.Annotatef(err, "invalid signals")
	}
	if opts.Opener == nil {
		return nil, errors.New("opener is required")
	}
	if opts.SettleCycles < 0 {
		return nil, errors.Errorf("invalid settle cycles %d", opts.SettleCycles)
	}
	return &Bus{
		c:       c,
		sig:     sig,
		opener:  opts.Opener,
		metrics: opts.Metrics,
		settle:  opts.SettleCycles,
		st:      idle{},
	}, nil
}

// QueueDownload appends a request to the download queue. It does not open
// the file or touch any signal. Requests with an empty file name, the
// reserved NoIndex or an index that does not fit ioctl_index are rejected
// with ErrInvalidRequest and not queued.
func (b *Bus) QueueDownload(file string, index int) error {
	if file == "" {
		return errors.Annotatef(ErrInvalidRequest, "empty file name")
	}
	if index < 0 || index > MaxIndex {
		return errors.Annotatef(ErrInvalidRequest, "%s: index %d", file, index)
	}
	b.queue = append(b.queue, Request{File: file, Index: index})
	b.metrics.setQueueDepth(len(b.queue))
	return nil
}

// Len returns the number of queued requests, not counting the active one.
func (b *Bus) Len() int {
	return len(b.queue)
}

// Active returns the request currently being streamed.
func (b *Bus) Active() (Request, bool) {
	if t, ok := b.st.(*active); ok {
		return t.req, true
	}
	return Request{}, false
}

// Cursor returns the offset of the next byte of the active transfer, or 0
// when idle.
func (b *Bus) Cursor() int {
	if t, ok := b.st.(*active); ok {
		return t.cursor
	}
	return 0
}

// Busy reports whether a transfer is active or queued.
func (b *Bus) Busy() bool {
	_, isIdle := b.st.(idle)
	return !isIdle || len(b.queue) > 0
}

// BeforeEval drives the download lines for the coming evaluation.
func (b *Bus) BeforeEval() {
	if st, ok := b.st.(idle); ok {
		switch {
		case st.settle > 0:
			b.st = idle{settle: st.settle - 1}
		case len(b.queue) > 0:
			req := b.queue[0]
			b.queue = b.queue[1:]
			b.metrics.setQueueDepth(len(b.queue))
			b.start(req)
		}
	}

	switch t := b.st.(type) {
	case *active:
		*b.sig.Download = 1
		*b.sig.Index = uint8(t.req.Index)
		*b.sig.Addr = uint32(t.cursor)
		*b.sig.Dout = t.cur
		if t.stalled {
			*b.sig.Wr = 0
			t.strobed = false
		} else {
			*b.sig.Wr = 1
			t.strobed = true
		}
	default:
		*b.sig.Download = 0
		*b.sig.Wr = 0
	}
}

// AfterEval inspects the handshake after the design has evaluated.
func (b *Bus) AfterEval() {
	b.waitSeen = *b.sig.Wait != 0
	t, ok := b.st.(*active)
	if !ok {
		return
	}
	if b.waitSeen {
		t.stalled = true
		b.metrics.recordStall()
		return
	}
	t.stalled = false
	if !t.strobed {
		return
	}
	t.strobed = false
	b.metrics.recordByte(t.label)

	next, err := t.src.ReadByte()
	switch {
	case err == nil:
		t.cursor++
		t.cur = next
	case errors.Cause(err) == io.EOF:
		t.cursor++
		b.finish(t, ResultComplete, nil)
	default:
		t.cursor++
		b.finish(t, ResultReadFail, err)
	}
}

// start opens req and makes it the active transfer. Failures are reported
// to the console and leave the bus idle.
func (b *Bus) start(req Request) {
	src, err := b.opener.Open(req.File)
	if err != nil {
		b.c.Printf("simbus: %s: open failed, dropping request: %s", req, err)
		b.metrics.recordTransfer(ResultOpenFail)
		return
	}
	first, err := src.ReadByte()
	if err != nil {
		b.closeSource(req, src)
		if errors.Cause(err) == io.EOF {
			b.c.Printf("simbus: %s: empty, nothing to download", req)
			b.metrics.recordTransfer(ResultEmpty)
		} else {
			b.c.Printf("simbus: %s: read failed, dropping request: %s", req, err)
			b.metrics.recordTransfer(ResultReadFail)
		}
		return
	}
	b.c.Printf("simbus: %s: download started", req)
	b.st = &active{
		req:     req,
		label:   strconv.Itoa(req.Index),
		src:     src,
		cur:     first,
		stalled: b.waitSeen,
	}
}

func (b *Bus) finish(t *active, result string, err error) {
	b.closeSource(t.req, t.src)
	if err != nil {
		b.c.Printf("simbus: %s: read failed at offset %d, transfer aborted: %s", t.req, t.cursor, err)
	} else {
		b.c.Printf("simbus: %s: download complete, %d bytes", t.req, t.cursor)
	}
	b.metrics.recordTransfer(result)
	b.st = idle{settle: b.settle}
	*b.sig.Download = 0
	*b.sig.Wr = 0
}

func (b *Bus) closeSource(req Request, src Source) {
	if err := src.Close(); err != nil {
		b.c.Printf("simbus: %s: close failed: %s", req, err)
	}
}
