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
package fwbundle

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"encoding/json"
	"io"
	"io/ioutil"
	"path"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/juju/errors"
)

// ReadZipBundle reads a bundle archive. Part data is read from the archive
// on demand and stays in memory with the bundle.
func ReadZipBundle(fname string) (*Bundle, error) {
	zipData, err := ioutil.ReadFile(fname)
	if err != nil {
		return nil, errors.Trace(err)
	}
	b, err := ReadZipBundleBytes(zipData)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", fname)
	}
	return b, nil
}

func ReadZipBundleBytes(zipData []byte) (*Bundle, error) {
	r, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return nil, errors.Annotatef(err, "invalid bundle file")
	}

	blobs := make(map[string][]byte)
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Annotatef(err, "%s: failed to open", f.Name)
		}
		data, err := ioutil.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, errors.Annotatef(err, "%s: failed to read", f.Name)
		}
		blobs[path.Base(f.Name)] = data
	}
	manifestData := blobs[ManifestFileName]
	if manifestData == nil {
		return nil, errors.Errorf("no %s in the archive", ManifestFileName)
	}
	b := NewBundle()
	if err := json.Unmarshal(manifestData, &b.Manifest); err != nil {
		return nil, errors.Annotatef(err, "failed to parse manifest")
	}
	for _, p := range b.Parts {
		p.SetDataProvider(func(name, src string) ([]byte, error) {
			data, ok := blobs[src]
			if !ok {
				return nil, errors.NotFoundf("%s in the archive", src)
			}
			return data, nil
		})
	}
	glog.V(1).Infof("Read bundle %q (%d parts)", b.Name, len(b.Parts))
	return b, nil
}

// WriteZipBundleBytes writes the manifest and the data of every part with a
// source into an archive. Sources are rewritten relative to the archive.
func WriteZipBundleBytes(b *Bundle, buf *bytes.Buffer, compress bool) error {
	zw := zip.NewWriter(buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	method := zip.Store
	if compress {
		method = zip.Deflate
	}
	blobs := make(map[string][]byte)
	for _, p := range b.PartsByIndex() {
		if p.Src == "" {
			continue
		}
		data, err := p.GetData()
		if err != nil {
			return errors.Annotatef(err, "error getting data for %s", p.Name)
		}
		p.SetData(data)
		p.Src = filepath.Base(p.Src)
		if _, dup := blobs[p.Src]; dup {
			return errors.Errorf("%s: duplicate source name %s", p.Name, p.Src)
		}
		blobs[p.Src] = data
	}
	manifestData, err := json.MarshalIndent(&b.Manifest, "", " ")
	if err != nil {
		return errors.Annotatef(err, "error marshaling manifest")
	}
	glog.V(1).Infof("Manifest:\n%s", string(manifestData))
	if err := addZipFile(zw, ManifestFileName, method, manifestData); err != nil {
		return errors.Trace(err)
	}
	for _, p := range b.PartsByIndex() {
		if p.Src == "" {
			continue
		}
		if err := addZipFile(zw, p.Src, method, blobs[p.Src]); err != nil {
			return errors.Annotatef(err, "%s", p.Name)
		}
	}
	if err := zw.Close(); err != nil {
		return errors.Annotatef(err, "error closing the archive")
	}
	return nil
}

func WriteZipBundle(b *Bundle, fname string, compress bool) error {
	buf := new(bytes.Buffer)
	if err := WriteZipBundleBytes(b, buf, compress); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(ioutil.WriteFile(fname, buf.Bytes(), 0644))
}

func addZipFile(zw *zip.Writer, name string, method uint16, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return errors.Annotatef(err, "error adding %s", name)
	}
	if _, err := w.Write(data); err != nil {
		return errors.Annotatef(err, "error writing %s", name)
	}
	return nil
}
