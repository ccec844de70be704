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
package sim

import (
	"github.com/mongoose-os/simload/common/fwbundle"
)

// Transfer is one download as seen by the design.
type Transfer struct {
	Index      uint8
	Bytes      int
	StartCycle uint64
	EndCycle   uint64
	// SHA1 is the digest of the image this transfer left in its RAM.
	SHA1 string
}

// RAMLoader models the download port of a design that writes every strobed
// byte into a RAM selected by ioctl_index. It can pace the loader by holding
// wait for WaitFor cycles after every WaitEvery accepted bytes.
//
// A new transfer starts on the rising edge of download, or when a byte is
// written at address 0 while download stays high. It ends on the falling
// edge.
type RAMLoader struct {
	WaitEvery int
	WaitFor   int

	// Images holds the last image received for each index.
	Images map[uint8][]byte
	// Transfers lists completed transfers in order.
	Transfers []Transfer

	cycle    uint64
	prevDL   uint8
	waitLeft int
	accepted int
	cur      *Transfer
}

func NewRAMLoader() *RAMLoader {
	return &RAMLoader{Images: make(map[uint8][]byte)}
}

func (r *RAMLoader) Eval(c *Cells) {
	r.cycle++
	switch {
	case c.Download == 1 && r.prevDL == 0:
		r.begin(c.Index)
	case c.Download == 0 && r.prevDL == 1:
		r.end()
	}
	r.prevDL = c.Download

	c.Wait = 0
	if r.waitLeft > 0 {
		r.waitLeft--
		c.Wait = 1
		return
	}
	if c.Download == 0 || c.Wr == 0 {
		return
	}
	switch {
	case r.cur == nil:
		r.begin(c.Index)
	case c.Addr == 0 && r.cur.Bytes > 0:
		r.end()
		r.begin(c.Index)
	}
	img := r.Images[c.Index]
	for uint32(len(img)) <= c.Addr {
		img = append(img, 0)
	}
	img[c.Addr] = c.Dout
	r.Images[c.Index] = img
	r.cur.Bytes++
	r.accepted++
	if r.WaitEvery > 0 && r.accepted%r.WaitEvery == 0 {
		r.waitLeft = r.WaitFor
	}
}

// Busy reports whether a transfer is in progress.
func (r *RAMLoader) Busy() bool {
	return r.cur != nil
}

func (r *RAMLoader) begin(index uint8) {
	r.cur = &Transfer{Index: index, StartCycle: r.cycle}
	r.Images[index] = nil
}

func (r *RAMLoader) end() {
	if r.cur == nil {
		return
	}
	r.cur.EndCycle = r.cycle
	r.cur.SHA1 = fwbundle.ComputeSHA1(r.Images[r.cur.Index])
	r.Transfers = append(r.Transfers, *r.cur)
	r.cur = nil
}
