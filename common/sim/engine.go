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

// Package sim is a minimal evaluation engine for exercising a loader against
// a software model of the design, without an HDL simulator.
package sim

import (
	"context"

	"github.com/juju/errors"

	"github.com/mongoose-os/simload/common/simbus"
)

// ctxCheckInterval is how often, in cycles, Run looks at its context.
const ctxCheckInterval = 1024

var ErrCycleLimit = errors.New("cycle limit reached")

// Cells is the storage for the ioctl signal cells.
type Cells struct {
	Addr     uint32
	Index    uint8
	Wait     uint8
	Download uint8
	Upload   uint8
	Wr       uint8
	Dout     uint8
	Din      uint8
}

// Signals returns references to the cells for simbus.New.
func (c *Cells) Signals() simbus.Signals {
	return simbus.Signals{
		Addr:     &c.Addr,
		Index:    &c.Index,
		Wait:     &c.Wait,
		Download: &c.Download,
		Upload:   &c.Upload,
		Wr:       &c.Wr,
		Dout:     &c.Dout,
		Din:      &c.Din,
	}
}

// Circuit is the design under simulation. Eval recomputes its outputs from
// the current cell values.
type Circuit interface {
	Eval(c *Cells)
}

// Loader is the pair of hooks an engine calls around every evaluation.
type Loader interface {
	BeforeEval()
	AfterEval()
	Busy() bool
}

type Engine struct {
	cells   *Cells
	loader  Loader
	circuit Circuit
	cycle   uint64
}

func NewEngine(cells *Cells, loader Loader, circuit Circuit) *Engine {
	return &Engine{cells: cells, loader: loader, circuit: circuit}
}

// Cycle returns the number of cycles evaluated so far.
func (e *Engine) Cycle() uint64 {
	return e.cycle
}

// Step evaluates one cycle.
func (e *Engine) Step() {
	e.loader.BeforeEval()
	e.circuit.Eval(e.cells)
	e.loader.AfterEval()
	e.cycle++
}

// Run steps the engine until the loader has nothing left to do, then runs one
// more cycle so the design sees the final state of the download lines.
// maxCycles of 0 means no limit.
func (e *Engine) Run(ctx context.Context, maxCycles uint64) error {
	var n uint64
	for e.loader.Busy() {
		if maxCycles > 0 && n >= maxCycles {
			return errors.Annotatef(ErrCycleLimit, "after %d cycles", n)
		}
		if n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return errors.Trace(err)
			}
		}
		e.Step()
		n++
	}
	e.Step()
	return nil
}
