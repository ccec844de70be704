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
	"io/ioutil"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/simload/cli/flags"
	"github.com/mongoose-os/simload/cli/ourutil"
	"github.com/mongoose-os/simload/common/fwbundle"
)

func createBundle(ctx context.Context) error {
	if *flags.Output == "" {
		return errors.Errorf("--output is required")
	}
	specs := append([]string{}, *flags.Parts...)
	if len(flag.Args()) > 1 {
		specs = append(specs, flag.Args()[1:]...)
	}
	var m *fwbundle.Manifest
	if *flags.Manifest != "" {
		ourutil.Reportf("Reading manifest from %s", *flags.Manifest)
		var err error
		if m, err = fwbundle.ReadManifest(*flags.Manifest); err != nil {
			return errors.Annotatef(err, "error reading existing manifest")
		}
	}
	b, err := buildBundle(m, specs, bundleOptions{
		BaseDir:     *flags.BaseDir,
		HexFill:     *flags.HexFill,
		Name:        *flags.Name,
		Core:        *flags.Core,
		Description: *flags.Description,
		Version:     *flags.BundleVer,
		Attrs:       *flags.Attr,
	})
	if err != nil {
		return errors.Trace(err)
	}
	ourutil.Reportf("Writing %s", *flags.Output)
	return errors.Trace(fwbundle.WriteZipBundle(b, *flags.Output, *flags.Compress))
}

type bundleOptions struct {
	BaseDir     string
	HexFill     uint8
	Name        string
	Core        string
	Description string
	Version     string
	Attrs       []string
}

// buildBundle creates a bundle from an optional existing manifest m and part
// specs. Fields given in opts override those of m.
func buildBundle(m *fwbundle.Manifest, specs []string, opts bundleOptions) (*fwbundle.Bundle, error) {
	b := fwbundle.NewBundle()
	if m != nil {
		b.Manifest = *m
	}
	if len(specs) == 0 && len(b.Parts) == 0 {
		return nil, errors.Errorf("no parts specified, use --part")
	}
	if opts.Name != "" {
		b.Name = opts.Name
	}
	if opts.Core != "" {
		b.Core = opts.Core
	}
	if opts.Description != "" {
		b.Description = opts.Description
	}
	if opts.Version != "" {
		b.Version = opts.Version
	}
	now := time.Now().UTC()
	b.BuildTimestamp = &now

	srcPath := func(src string) string {
		if !filepath.IsAbs(src) && opts.BaseDir != "" {
			return filepath.Join(opts.BaseDir, src)
		}
		return src
	}
	readSrc := func(name, src string) ([]byte, error) {
		return ioutil.ReadFile(srcPath(src))
	}
	for _, p := range b.Parts {
		p.SetDataProvider(readSrc)
	}
	for _, ps := range specs {
		p, err := fwbundle.PartFromString(ps)
		if err != nil {
			return nil, errors.Annotatef(err, "%s", ps)
		}
		if p.Src == "" {
			return nil, errors.Errorf("%s: part has no src", ps)
		}
		if p.Index < 0 || p.Index > 0xff {
			return nil, errors.Errorf("%s: index %d is out of range", ps, p.Index)
		}
		if strings.HasSuffix(p.Src, ".hex") || strings.HasSuffix(p.Src, ".ihex") {
			fill := opts.HexFill
			if p.Fill != nil {
				fill = *p.Fill
			}
			hp, err := fwbundle.PartFromHexFile(srcPath(p.Src), p.Name, p.Index, fill)
			if err != nil {
				return nil, errors.Annotatef(err, "%s", ps)
			}
			hp.Src = strings.TrimSuffix(filepath.Base(p.Src), filepath.Ext(p.Src)) + ".bin"
			p = hp
		} else {
			p.SetDataProvider(readSrc)
		}
		if err := b.AddPart(p); err != nil {
			return nil, errors.Annotatef(err, "%s", ps)
		}
	}
	for _, a := range opts.Attrs {
		nv := strings.SplitN(a, "=", 2)
		if len(nv) != 2 || nv[0] == "" {
			return nil, errors.Errorf("invalid attribute %q, must be 'name=value'", a)
		}
		b.SetAttr(nv[0], attrValue(nv[1]))
	}
	return b, nil
}

// attrValue guesses the type of an attribute value given on the command line.
func attrValue(s string) interface{} {
	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return i
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
