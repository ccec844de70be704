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
package simbus

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConsole struct {
	lines []string
}

func (c *testConsole) Printf(format string, args ...interface{}) {
	c.lines = append(c.lines, fmt.Sprintf(format, args...))
}

func (c *testConsole) contains(s string) bool {
	for _, l := range c.lines {
		if strings.Contains(l, s) {
			return true
		}
	}
	return false
}

type memSource struct {
	*bytes.Reader
	failAt int
	read   int
	closed bool
}

func (s *memSource) ReadByte() (byte, error) {
	if s.failAt > 0 && s.read == s.failAt {
		return 0, errors.New("media error")
	}
	s.read++
	return s.Reader.ReadByte()
}

func (s *memSource) Close() error {
	s.closed = true
	return nil
}

type memOpener struct {
	files   map[string]string
	failAt  map[string]int
	opened  []*memSource
}

func (o *memOpener) Open(id string) (Source, error) {
	data, ok := o.files[id]
	if !ok {
		return nil, errors.NotFoundf("%s", id)
	}
	s := &memSource{Reader: bytes.NewReader([]byte(data)), failAt: o.failAt[id]}
	o.opened = append(o.opened, s)
	return s, nil
}

// write is one byte accepted by the test design.
type write struct {
	index uint8
	addr  uint32
	data  byte
}

type harness struct {
	t *testing.T

	addr                                        uint32
	index, wait, download, upload, wr, dout, din uint8

	bus    *Bus
	con    *testConsole
	opener *memOpener

	cycle   int
	strobes int
	writes  []write
	starts  []uint8
	lastDL  uint8
	dlTrace []uint8

	// waitAt returns the wait level the design drives during a cycle.
	waitAt func(cycle int) bool
}

func newHarness(t *testing.T, files map[string]string, opts Options) *harness {
	h := &harness{
		t:      t,
		con:    &testConsole{},
		opener: &memOpener{files: files, failAt: map[string]int{}},
	}
	opts.Opener = h.opener
	bus, err := New(h.con, h.signals(), opts)
	require.NoError(t, err)
	h.bus = bus
	return h
}

func (h *harness) signals() Signals {
	return Signals{
		Addr:     &h.addr,
		Index:    &h.index,
		Wait:     &h.wait,
		Download: &h.download,
		Upload:   &h.upload,
		Wr:       &h.wr,
		Dout:     &h.dout,
		Din:      &h.din,
	}
}

// eval plays the part of the simulated design.
func (h *harness) eval() {
	h.cycle++
	h.wait = 0
	if h.waitAt != nil && h.waitAt(h.cycle) {
		h.wait = 1
	}
	if h.download == 1 && h.lastDL == 0 {
		h.starts = append(h.starts, h.index)
	}
	h.lastDL = h.download
	h.dlTrace = append(h.dlTrace, h.download)
	if h.wr == 1 {
		h.strobes++
		if h.wait == 0 {
			h.writes = append(h.writes, write{index: h.index, addr: h.addr, data: h.dout})
		}
	}
}

func (h *harness) step() {
	h.bus.BeforeEval()
	h.eval()
	h.bus.AfterEval()
}

func (h *harness) run(limit int) {
	for i := 0; i < limit && h.bus.Busy(); i++ {
		h.step()
	}
	require.False(h.t, h.bus.Busy(), "bus still busy after %d cycles", limit)
	// One more cycle to observe the idle state.
	h.step()
}

func (h *harness) written(index uint8) string {
	var buf bytes.Buffer
	for i, w := range h.writes {
		if w.index != index {
			continue
		}
		if int(w.addr) != buf.Len() {
			h.t.Fatalf("write %d: addr %d, expected %d", i, w.addr, buf.Len())
		}
		buf.WriteByte(w.data)
	}
	return buf.String()
}

func TestNewValidatesSignals(t *testing.T) {
	var addr uint32
	var index, download, upload, wr, dout uint8
	sig := Signals{
		Addr:     &addr,
		Index:    &index,
		Download: &download,
		Upload:   &upload,
		Wr:       &wr,
		Dout:     &dout,
	}
	opts := Options{Opener: &memOpener{}}

	_, err := New(&testConsole{}, sig, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ioctl_wait")
	assert.Contains(t, err.Error(), "ioctl_din")
	assert.NotContains(t, err.Error(), "ioctl_addr")

	var wait, din uint8
	sig.Wait = &wait
	sig.Din = &din

	_, err = New(nil, sig, opts)
	assert.Error(t, err)

	_, err = New(&testConsole{}, sig, Options{})
	assert.Error(t, err)

	_, err = New(&testConsole{}, sig, Options{Opener: &memOpener{}, SettleCycles: -1})
	assert.Error(t, err)

	b, err := New(&testConsole{}, sig, opts)
	require.NoError(t, err)
	assert.False(t, b.Busy())
}

func TestQueueDownloadRejectsInvalid(t *testing.T) {
	h := newHarness(t, nil, Options{})
	cases := []struct {
		file  string
		index int
	}{
		{"", NoIndex},
		{"valid", NoIndex},
		{"", 0},
		{"valid", -2},
		{"valid", MaxIndex + 1},
	}
	for _, c := range cases {
		err := h.bus.QueueDownload(c.file, c.index)
		require.Errorf(t, err, "%q %d", c.file, c.index)
		assert.Equalf(t, ErrInvalidRequest, errors.Cause(err), "%q %d", c.file, c.index)
	}
	assert.Equal(t, 0, h.bus.Len())
	assert.False(t, h.bus.Busy())

	require.NoError(t, h.bus.QueueDownload("valid", MaxIndex))
	require.NoError(t, h.bus.QueueDownload("valid", 0))
	assert.Equal(t, 2, h.bus.Len())
	// Queueing alone opens nothing.
	assert.Empty(t, h.opener.opened)
	assert.Equal(t, uint8(0), h.download)
}

func TestOneStrobePerByte(t *testing.T) {
	h := newHarness(t, map[string]string{"boot.rom": "OHAI!"}, Options{})
	require.NoError(t, h.bus.QueueDownload("boot.rom", 0))

	h.run(100)

	assert.Equal(t, 5, h.strobes)
	assert.Equal(t, "OHAI!", h.written(0))
	assert.Equal(t, uint8(0), h.download)
	assert.Equal(t, uint8(0), h.wr)
	require.Len(t, h.opener.opened, 1)
	assert.True(t, h.opener.opened[0].closed)
	assert.True(t, h.con.contains("download complete, 5 bytes"))
}

func TestBackpressureHoldsByte(t *testing.T) {
	h := newHarness(t, map[string]string{"f": "abc"}, Options{})
	require.NoError(t, h.bus.QueueDownload("f", 1))

	// The design holds wait during cycles 2..4.
	h.waitAt = func(cycle int) bool { return cycle >= 2 && cycle <= 4 }

	h.step()
	assert.Equal(t, 1, h.bus.Cursor())

	for i := 0; i < 4; i++ {
		h.step()
		assert.Equalf(t, 1, h.bus.Cursor(), "cycle %d", h.cycle)
		assert.Equalf(t, byte('b'), h.dout, "cycle %d", h.cycle)
		if h.cycle > 2 {
			assert.Equalf(t, uint8(0), h.wr, "cycle %d", h.cycle)
		}
		assert.Equalf(t, uint8(1), h.download, "cycle %d", h.cycle)
	}

	h.run(100)
	assert.Equal(t, "abc", h.written(1))
	// 'b' was strobed once into the asserted wait and once more after it.
	assert.Equal(t, 4, h.strobes)
}

func TestWaitBeforeStartHoldsFirstByte(t *testing.T) {
	h := newHarness(t, map[string]string{"f": "ab"}, Options{})

	// The design holds wait while the bus is still idle.
	h.waitAt = func(cycle int) bool { return cycle <= 2 }
	h.step()
	h.step()

	require.NoError(t, h.bus.QueueDownload("f", 0))
	h.bus.BeforeEval()
	assert.Equal(t, uint8(1), h.download)
	assert.Equal(t, uint8(0), h.wr)
	assert.Equal(t, byte('a'), h.dout)
	h.eval()
	h.bus.AfterEval()
	assert.Equal(t, 0, h.bus.Cursor())

	h.run(100)
	assert.Equal(t, "ab", h.written(0))
	assert.Equal(t, 2, h.strobes)
}

func TestFIFOOrder(t *testing.T) {
	files := map[string]string{"a": "AA", "b": "B", "c": "CCC"}
	h := newHarness(t, files, Options{SettleCycles: 1})
	require.NoError(t, h.bus.QueueDownload("a", 3))
	require.NoError(t, h.bus.QueueDownload("b", 1))
	require.NoError(t, h.bus.QueueDownload("c", 2))

	h.run(100)

	assert.Equal(t, []uint8{3, 1, 2}, h.starts)
	assert.Equal(t, "AA", h.written(3))
	assert.Equal(t, "B", h.written(1))
	assert.Equal(t, "CCC", h.written(2))
}

func TestCompletionStartsNext(t *testing.T) {
	files := map[string]string{"a": "A", "b": "B"}

	for _, settle := range []int{0, 1, 3} {
		h := newHarness(t, files, Options{SettleCycles: settle})
		require.NoError(t, h.bus.QueueDownload("a", 1))
		require.NoError(t, h.bus.QueueDownload("b", 2))

		h.step()
		req, ok := h.bus.Active()
		assert.False(t, ok, "settle %d: a should be complete, got %s", settle, req)
		assert.Equal(t, uint8(0), h.download)

		for i := 0; i < settle; i++ {
			h.step()
			assert.Equalf(t, uint8(0), h.dlTrace[len(h.dlTrace)-1], "settle %d, gap cycle %d", settle, i)
		}

		h.bus.BeforeEval()
		req, ok = h.bus.Active()
		require.True(t, ok, "settle %d", settle)
		assert.Equal(t, Request{File: "b", Index: 2}, req)
		h.eval()
		h.bus.AfterEval()

		h.run(10)
		assert.Equal(t, "A", h.written(1))
		assert.Equal(t, "B", h.written(2))
		if settle == 0 {
			assert.Equal(t, []uint8{1}, h.starts, "download never drops between back-to-back transfers")
		} else {
			assert.Equal(t, []uint8{1, 2}, h.starts)
		}
	}
}

func TestDropOnOpenFailure(t *testing.T) {
	h := newHarness(t, map[string]string{"ok": "xy"}, Options{})
	require.NoError(t, h.bus.QueueDownload("missing", 5))
	require.NoError(t, h.bus.QueueDownload("ok", 6))

	h.step()
	_, ok := h.bus.Active()
	assert.False(t, ok)
	assert.Equal(t, uint8(0), h.download)
	assert.True(t, h.con.contains("missing"))
	assert.Equal(t, 1, h.bus.Len())

	h.run(100)
	assert.Equal(t, "", h.written(5))
	assert.Equal(t, "xy", h.written(6))
	assert.Equal(t, []uint8{6}, h.starts)
}

func TestEmptySource(t *testing.T) {
	h := newHarness(t, map[string]string{"empty": "", "next": "n"}, Options{})
	require.NoError(t, h.bus.QueueDownload("empty", 1))
	require.NoError(t, h.bus.QueueDownload("next", 2))

	h.run(100)
	assert.Equal(t, []uint8{2}, h.starts)
	assert.Equal(t, 1, h.strobes)
	require.Len(t, h.opener.opened, 2)
	assert.True(t, h.opener.opened[0].closed)
	assert.True(t, h.con.contains("empty"))
}

func TestReadFailureAbortsTransfer(t *testing.T) {
	h := newHarness(t, map[string]string{"bad": "0123456789", "good": "g"}, Options{})
	h.opener.failAt["bad"] = 3
	require.NoError(t, h.bus.QueueDownload("bad", 1))
	require.NoError(t, h.bus.QueueDownload("good", 2))

	h.run(100)
	assert.Equal(t, "012", h.written(1))
	assert.Equal(t, "g", h.written(2))
	assert.True(t, h.opener.opened[0].closed)
	assert.True(t, h.con.contains("transfer aborted"))
}

func TestUploadLinesNotDriven(t *testing.T) {
	h := newHarness(t, map[string]string{"f": "abc"}, Options{})
	h.upload = 7
	h.din = 0x5a
	require.NoError(t, h.bus.QueueDownload("f", 0))
	h.run(100)
	assert.Equal(t, uint8(7), h.upload)
	assert.Equal(t, uint8(0x5a), h.din)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	h := newHarness(t, map[string]string{"f": "abcd"}, Options{Metrics: m})
	h.waitAt = func(cycle int) bool { return cycle == 2 }
	require.NoError(t, h.bus.QueueDownload("f", 4))
	require.NoError(t, h.bus.QueueDownload("nope", 5))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.QueueDepth))

	h.run(100)

	assert.Equal(t, float64(4), testutil.ToFloat64(m.BytesTotal.WithLabelValues("4")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StallCycles))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TransfersTotal.WithLabelValues(ResultComplete)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TransfersTotal.WithLabelValues(ResultOpenFail)))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.QueueDepth))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.recordTransfer(ResultComplete)
	m.recordByte("0")
	m.recordStall()
	m.setQueueDepth(1)
}

func TestOpenerFunc(t *testing.T) {
	var got string
	o := OpenerFunc(func(id string) (Source, error) {
		got = id
		return nil, io.ErrUnexpectedEOF
	})
	_, err := o.Open("x")
	assert.Equal(t, io.ErrUnexpectedEOF, err)
	assert.Equal(t, "x", got)
}
