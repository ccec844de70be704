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
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/simload/cli/flags"
	"github.com/mongoose-os/simload/cli/ourutil"
	"github.com/mongoose-os/simload/common/imgsrc"
	"github.com/mongoose-os/simload/common/ourio"
	"github.com/mongoose-os/simload/common/sim"
	"github.com/mongoose-os/simload/common/simbus"
)

type loadOptions struct {
	BaseDir      string
	HexFill      uint8
	SettleCycles int
	WaitEvery    int
	WaitFor      int
	MaxCycles    uint64
	Console      simbus.Console
	Registry     prometheus.Registerer
}

type loadResult struct {
	Cycles    uint64
	Elapsed   time.Duration
	Images    map[uint8][]byte
	Transfers []sim.Transfer
}

// runLoad queues reqs on a fresh bus wired to the RAM loader model and runs
// the engine until every request has been handled. On a run error the
// partial result is returned along with it.
func runLoad(ctx context.Context, reqs []simbus.Request, opts loadOptions) (*loadResult, error) {
	cells := &sim.Cells{}
	resolver := imgsrc.NewResolver(opts.BaseDir)
	resolver.HexFill = opts.HexFill

	var metrics *simbus.Metrics
	if opts.Registry != nil {
		metrics = simbus.NewMetrics(opts.Registry)
	}
	console := opts.Console
	if console == nil {
		console = simbus.GlogConsole{}
	}
	bus, err := simbus.New(console, cells.Signals(), simbus.Options{
		Opener:       resolver,
		Metrics:      metrics,
		SettleCycles: opts.SettleCycles,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	for _, r := range reqs {
		if err := bus.QueueDownload(r.File, r.Index); err != nil {
			return nil, errors.Trace(err)
		}
	}

	ram := sim.NewRAMLoader()
	ram.WaitEvery = opts.WaitEvery
	ram.WaitFor = opts.WaitFor
	engine := sim.NewEngine(cells, bus, ram)

	start := time.Now()
	runErr := engine.Run(ctx, opts.MaxCycles)
	res := &loadResult{
		Cycles:    engine.Cycle(),
		Elapsed:   time.Since(start),
		Images:    ram.Images,
		Transfers: ram.Transfers,
	}
	glog.V(1).Infof("Ran %d cycles in %s", res.Cycles, res.Elapsed)
	if runErr != nil {
		return res, errors.Annotatef(runErr, "simulation stopped at cycle %d", res.Cycles)
	}
	return res, nil
}

func load(ctx context.Context) error {
	var plan *loadPlan
	if *flags.Plan != "" {
		var err error
		if plan, err = readPlan(*flags.Plan); err != nil {
			return errors.Trace(err)
		}
	}

	baseDir := *flags.BaseDir
	settle := *flags.SettleCycles
	core := ""
	if plan != nil {
		if baseDir == "" {
			baseDir = plan.BaseDir
		}
		if plan.SettleCycles != nil && !flag.CommandLine.Changed("settle-cycles") {
			settle = *plan.SettleCycles
		}
		core = plan.Core
	}

	reqs, err := collectDownloads(plan, baseDir, *flags.Bundle, *flags.Downloads)
	if err != nil {
		return errors.Trace(err)
	}
	if len(reqs) == 0 {
		return errors.Errorf("nothing to download, use --download, --bundle or --plan")
	}

	if *flags.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *flags.Timeout)
		defer cancel()
	}

	reg := prometheus.NewRegistry()
	ourutil.Reportf("Loading %d image(s)...", len(reqs))
	res, runErr := runLoad(ctx, reqs, loadOptions{
		BaseDir:      baseDir,
		HexFill:      *flags.HexFill,
		SettleCycles: settle,
		WaitEvery:    *flags.WaitEvery,
		WaitFor:      *flags.WaitFor,
		MaxCycles:    *flags.MaxCycles,
		Console:      &ourutil.Console{Quiet: *flags.Quiet},
		Registry:     reg,
	})
	if res == nil {
		return errors.Trace(runErr)
	}

	printSummary(os.Stdout, res)

	if *flags.DumpDir != "" {
		if err := dumpImages(*flags.DumpDir, res.Images); err != nil {
			return errors.Trace(err)
		}
	}
	if *flags.Report != "" {
		rep := newReport(core, reqs, res, runErr)
		if _, err := ourio.WriteYAMLFileIfDifferent(*flags.Report, rep, 0644); err != nil {
			return errors.Annotatef(err, "failed to write report")
		}
		ourutil.Reportf("Wrote report to %s", *flags.Report)
	}
	if *flags.MetricsFile != "" {
		if err := writeMetrics(reg, *flags.MetricsFile); err != nil {
			return errors.Annotatef(err, "failed to write metrics")
		}
	}
	return errors.Trace(runErr)
}

func imageFileName(index uint8) string {
	return fmt.Sprintf("image_%d.bin", index)
}

func sortedIndices(images map[uint8][]byte) []int {
	var ii []int
	for i := range images {
		ii = append(ii, int(i))
	}
	sort.Ints(ii)
	return ii
}

func dumpImages(dir string, images map[uint8][]byte) error {
	for _, i := range sortedIndices(images) {
		fname := filepath.Join(dir, imageFileName(uint8(i)))
		written, err := ourio.WriteFileIfDifferent(fname, images[uint8(i)], 0644)
		if err != nil {
			return errors.Trace(err)
		}
		if written {
			ourutil.Reportf("Wrote %s (%d bytes)", fname, len(images[uint8(i)]))
		} else {
			glog.Infof("%s is up to date", fname)
		}
	}
	return nil
}

func printSummary(out io.Writer, res *loadResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "INDEX\tBYTES\tSTART\tEND\n")
	for _, t := range res.Transfers {
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\n", t.Index, t.Bytes, t.StartCycle, t.EndCycle)
	}
	w.Flush()
	fmt.Fprintf(out, "%d transfer(s), %d cycles, %s\n", len(res.Transfers), res.Cycles, res.Elapsed.Round(time.Millisecond))
}
