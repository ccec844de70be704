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

// Package imgsrc resolves download file identifiers to byte streams.
//
// Identifiers take one of three forms:
//
//	path/to/bundle.zip:part   a part of a bundle archive
//	path/to/image.hex         an Intel HEX file, flattened
//	path/to/image.bin         anything else, streamed as is
package imgsrc

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/simload/common/fwbundle"
	"github.com/mongoose-os/simload/common/simbus"
)

const bundleSep = ".zip:"

// Resolver implements simbus.Opener.
type Resolver struct {
	// BaseDir, if set, is the directory relative identifiers are resolved
	// in. Identifiers that are absolute or escape it are rejected.
	BaseDir string

	// HexFill fills the gaps between Intel HEX segments.
	HexFill byte

	bundles map[string]*fwbundle.Bundle
}

func NewResolver(baseDir string) *Resolver {
	return &Resolver{BaseDir: baseDir, HexFill: 0xff}
}

// Open implements simbus.Opener.
func (r *Resolver) Open(id string) (simbus.Source, error) {
	if i := strings.LastIndex(id, bundleSep); i > 0 {
		return r.openBundlePart(id[:i+len(bundleSep)-1], id[i+len(bundleSep):])
	}
	fname, err := r.path(id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	switch strings.ToLower(filepath.Ext(fname)) {
	case ".hex", ".ihex":
		return r.openHex(fname)
	}
	f, err := os.Open(fname)
	if err != nil {
		return nil, errors.Trace(err)
	}
	glog.V(1).Infof("%s: opened %s", id, fname)
	return &fileSource{f: f, r: bufio.NewReader(f)}, nil
}

func (r *Resolver) path(name string) (string, error) {
	if r.BaseDir == "" {
		return name, nil
	}
	if filepath.IsAbs(name) {
		return "", errors.Errorf("%s: absolute paths are not allowed", name)
	}
	full := filepath.Join(r.BaseDir, name)
	rel, err := filepath.Rel(r.BaseDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Errorf("%s: outside of %s", name, r.BaseDir)
	}
	return full, nil
}

func (r *Resolver) openHex(fname string) (simbus.Source, error) {
	p, err := fwbundle.PartFromHexFile(fname, filepath.Base(fname), 0, r.HexFill)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", fname)
	}
	data, err := p.GetData()
	if err != nil {
		return nil, errors.Trace(err)
	}
	glog.V(1).Infof("%s: %d bytes linked at 0x%x", fname, len(data), p.Addr)
	return bytesSource{bytes.NewReader(data)}, nil
}

// openBundlePart reads the bundle once per resolver; later parts of the same
// bundle come from the cached copy.
func (r *Resolver) openBundlePart(bundleName, partName string) (simbus.Source, error) {
	fname, err := r.path(bundleName)
	if err != nil {
		return nil, errors.Trace(err)
	}
	b, ok := r.bundles[fname]
	if !ok {
		b, err = fwbundle.ReadZipBundle(fname)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if r.bundles == nil {
			r.bundles = make(map[string]*fwbundle.Bundle)
		}
		r.bundles[fname] = b
	}
	data, err := b.GetPartData(partName)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", bundleName)
	}
	return bytesSource{bytes.NewReader(data)}, nil
}

type fileSource struct {
	f *os.File
	r *bufio.Reader
}

func (s *fileSource) ReadByte() (byte, error) {
	return s.r.ReadByte()
}

func (s *fileSource) Close() error {
	return s.f.Close()
}

type bytesSource struct {
	*bytes.Reader
}

func (bytesSource) Close() error {
	return nil
}
