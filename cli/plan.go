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
	"io/ioutil"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/juju/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/mongoose-os/simload/common/fwbundle"
	"github.com/mongoose-os/simload/common/simbus"
)

// loadPlan is the YAML form of a list of downloads:
//
//	core: arcade
//	base_dir: roms
//	settle_cycles: 2
//	downloads:
//	  - file: boot.rom
//	    index: 0
//	  - file: game.zip:maincpu
//	    index: 1
type loadPlan struct {
	Core         string         `yaml:"core,omitempty"`
	BaseDir      string         `yaml:"base_dir,omitempty"`
	SettleCycles *int           `yaml:"settle_cycles,omitempty"`
	Downloads    []planDownload `yaml:"downloads"`
}

type planDownload struct {
	File  string `yaml:"file"`
	Index int    `yaml:"index"`
}

func readPlan(fname string) (*loadPlan, error) {
	data, err := ioutil.ReadFile(fname)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var p loadPlan
	if err := yaml.UnmarshalStrict(data, &p); err != nil {
		return nil, errors.Annotatef(err, "%s: invalid plan", fname)
	}
	if p.BaseDir != "" && !filepath.IsAbs(p.BaseDir) {
		p.BaseDir = filepath.Join(filepath.Dir(fname), p.BaseDir)
	}
	for i, d := range p.Downloads {
		if d.File == "" {
			return nil, errors.Errorf("%s: download %d has no file", fname, i)
		}
	}
	return &p, nil
}

// parseDownload parses "index:file". The file part may contain colons.
func parseDownload(s string) (simbus.Request, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return simbus.Request{}, errors.Errorf("invalid download %q, must be 'index:file'", s)
	}
	index, err := strconv.ParseInt(parts[0], 0, 32)
	if err != nil {
		return simbus.Request{}, errors.Errorf("invalid download %q: bad index %q", s, parts[0])
	}
	return simbus.Request{File: parts[1], Index: int(index)}, nil
}

// bundleDownloads lists every part of the bundle in index order. With a
// baseDir, bundleFile must be relative to it, the same as for the resolver.
func bundleDownloads(baseDir, bundleFile string) ([]simbus.Request, error) {
	if !strings.HasSuffix(bundleFile, ".zip") {
		return nil, errors.Errorf("%s: bundle file name must end with .zip", bundleFile)
	}
	fname := bundleFile
	if baseDir != "" {
		if filepath.IsAbs(fname) {
			return nil, errors.Errorf("%s: absolute bundle path is not allowed with a base dir, make it relative to %s", bundleFile, baseDir)
		}
		fname = filepath.Join(baseDir, fname)
	}
	b, err := fwbundle.ReadZipBundle(fname)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var reqs []simbus.Request
	for _, p := range b.PartsByIndex() {
		reqs = append(reqs, simbus.Request{File: bundleFile + ":" + p.Name, Index: p.Index})
	}
	return reqs, nil
}

// collectDownloads returns the downloads of the plan, then of the bundle,
// then those given on the command line.
func collectDownloads(plan *loadPlan, baseDir, bundleFile string, specs []string) ([]simbus.Request, error) {
	var reqs []simbus.Request
	if plan != nil {
		for _, d := range plan.Downloads {
			reqs = append(reqs, simbus.Request{File: d.File, Index: d.Index})
		}
	}
	if bundleFile != "" {
		br, err := bundleDownloads(baseDir, bundleFile)
		if err != nil {
			return nil, errors.Trace(err)
		}
		reqs = append(reqs, br...)
	}
	for _, s := range specs {
		r, err := parseDownload(s)
		if err != nil {
			return nil, errors.Trace(err)
		}
		reqs = append(reqs, r)
	}
	return reqs, nil
}
