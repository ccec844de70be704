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
	"github.com/juju/errors"

	"github.com/mongoose-os/simload/common/multierror"
)

// Signals holds references to the ioctl signal cells of the simulated design.
// The cells are owned by the evaluation engine; the bus only reads and writes
// through these pointers.
type Signals struct {
	Addr     *uint32 // byte offset of the current byte
	Index    *uint8  // target slot of the active download
	Wait     *uint8  // driven by the design to pause the stream
	Download *uint8  // high while a download is in progress
	Upload   *uint8  // reserved, never driven
	Wr       *uint8  // one-cycle strobe per delivered byte
	Dout     *uint8  // byte presented to the design
	Din      *uint8  // byte presented by the design, reserved
}

// check returns an error naming every unbound cell.
func (s *Signals) check() error {
	cells := []struct {
		name  string
		bound bool
	}{
		{"ioctl_addr", s.Addr != nil},
		{"ioctl_index", s.Index != nil},
		{"ioctl_wait", s.Wait != nil},
		{"ioctl_download", s.Download != nil},
		{"ioctl_upload", s.Upload != nil},
		{"ioctl_wr", s.Wr != nil},
		{"ioctl_dout", s.Dout != nil},
		{"ioctl_din", s.Din != nil},
	}
	var errs error
	for _, c := range cells {
		if !c.bound {
			errs = multierror.Append(errs, errors.Errorf("%s: signal is not bound", c.name))
		}
	}
	return errs
}
