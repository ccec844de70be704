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
package flags

import (
	flag "github.com/spf13/pflag"
)

var (
	Bundle    = flag.String("bundle", "", "Bundle archive; with load, every part is downloaded in index order")
	Plan      = flag.String("plan", "", "YAML load plan file")
	Downloads = flag.StringArray("download", nil, `Download in the format "index:file". Can be used multiple times.`)
	BaseDir   = flag.String("base-dir", "", "Resolve relative file names in this directory and refuse names outside of it")
	HexFill   = flag.Uint8("hex-fill", 0xff, "Byte used to fill gaps in Intel HEX images")

	MaxCycles    = flag.Uint64("max-cycles", 100000000, "Give up after this many cycles, 0 - no limit")
	SettleCycles = flag.Int("settle-cycles", 1, "Cycles with ioctl_download low between two downloads")
	WaitEvery    = flag.Int("wait-every", 0, "Design model: hold ioctl_wait after every N accepted bytes, 0 - never")
	WaitFor      = flag.Int("wait-for", 1, "Design model: number of cycles to hold ioctl_wait for")
	Timeout      = flag.Duration("timeout", 0, "Wall-clock limit for the simulation, 0 - no limit")

	DumpDir     = flag.String("dump-dir", "", "Write the images received by the design into this directory")
	Report      = flag.String("report", "", "Write a YAML report of the run to this file")
	MetricsFile = flag.String("metrics-file", "", "Write loader metrics in Prometheus text format to this file")
	Quiet       = flag.Bool("quiet", false, "Only log loader diagnostics, do not print them")

	// create-bundle flags.
	Parts       = flag.StringArray("part", nil, `Bundle part in the format "name:index=N,src=file,...". Can be used multiple times.`)
	Output      = flag.StringP("output", "o", "", "Output file")
	Manifest    = flag.String("manifest", "", "Start from this manifest.json; parts listed in it are read from --base-dir")
	Name        = flag.String("name", "", "Bundle name")
	Core        = flag.String("core", "", "Name of the core the bundle is for")
	Description = flag.String("description", "", "Bundle description")
	BundleVer   = flag.String("bundle-version", "", "Bundle version")
	Compress    = flag.Bool("compress", true, "Compress bundle contents")
	Attr        = flag.StringArray("attr", nil, "manifest attribute, name=value, can be used multiple times")

	Verbose = flag.Bool("verbose", false, "Verbose output")
)
