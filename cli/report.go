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
	"bytes"
	"os"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/mongoose-os/simload/common/ourio"
	"github.com/mongoose-os/simload/common/simbus"
	"github.com/mongoose-os/simload/version"
)

type loadReport struct {
	Tool      string           `yaml:"tool"`
	Core      string           `yaml:"core,omitempty"`
	Cycles    uint64           `yaml:"cycles"`
	ElapsedMs int64            `yaml:"elapsed_ms"`
	Requested []string         `yaml:"requested"`
	Transfers []reportTransfer `yaml:"transfers"`
	Error     string           `yaml:"error,omitempty"`
}

type reportTransfer struct {
	Index      uint8  `yaml:"index"`
	Bytes      int    `yaml:"bytes"`
	StartCycle uint64 `yaml:"start_cycle"`
	EndCycle   uint64 `yaml:"end_cycle"`
	SHA1       string `yaml:"sha1"`
}

func newReport(core string, reqs []simbus.Request, res *loadResult, runErr error) *loadReport {
	rep := &loadReport{
		Tool:      version.String(),
		Core:      core,
		Cycles:    res.Cycles,
		ElapsedMs: res.Elapsed.Milliseconds(),
	}
	for _, r := range reqs {
		rep.Requested = append(rep.Requested, r.String())
	}
	for _, t := range res.Transfers {
		rep.Transfers = append(rep.Transfers, reportTransfer{
			Index:      t.Index,
			Bytes:      t.Bytes,
			StartCycle: t.StartCycle,
			EndCycle:   t.EndCycle,
			SHA1:       t.SHA1,
		})
	}
	if runErr != nil {
		rep.Error = runErr.Error()
	}
	return rep
}

// writeMetrics dumps everything registered in g in the Prometheus text
// exposition format.
func writeMetrics(g prometheus.Gatherer, fname string) error {
	mfs, err := g.Gather()
	if err != nil {
		return errors.Trace(err)
	}
	var buf bytes.Buffer
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return errors.Trace(err)
		}
	}
	_, err = ourio.WriteFileIfDifferent(fname, buf.Bytes(), os.FileMode(0644))
	return errors.Trace(err)
}
