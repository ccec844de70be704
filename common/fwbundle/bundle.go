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
	"encoding/json"
	"io/ioutil"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/juju/errors"
)

const (
	ManifestFileName = "manifest.json"
)

// Bundle is a set of images to be downloaded into one simulated core.
type Bundle struct {
	Manifest
}

type manifest struct {
	Name           string           `json:"name,omitempty"`
	Core           string           `json:"core,omitempty"`
	Description    string           `json:"description,omitempty"`
	Version        string           `json:"version,omitempty"`
	BuildTimestamp *time.Time       `json:"build_timestamp,omitempty"`
	Parts          map[string]*Part `json:"parts"`

	// Extra attributes.
	attrs map[string]interface{}
}

type Manifest manifest

func NewBundle() *Bundle {
	return &Bundle{}
}

func (b *Bundle) AddPart(p *Part) error {
	if p.Name == "" {
		return errors.Errorf("part has no name")
	}
	if b.Manifest.Parts == nil {
		b.Manifest.Parts = make(map[string]*Part)
	}
	if _, ok := b.Manifest.Parts[p.Name]; ok {
		return errors.Errorf("%q: duplicate part", p.Name)
	}
	b.Manifest.Parts[p.Name] = p
	return nil
}

// PartsByIndex returns parts in download order: by ioctl index, then name.
func (b *Bundle) PartsByIndex() []*Part {
	var pp []*Part
	for _, p := range b.Parts {
		pp = append(pp, p)
	}
	sort.Slice(pp, func(i, j int) bool {
		if pp[i].Index != pp[j].Index {
			return pp[i].Index < pp[j].Index
		}
		return pp[i].Name < pp[j].Name
	})
	return pp
}

func (b *Bundle) GetPartData(name string) ([]byte, error) {
	p := b.Parts[name]
	if p == nil {
		return nil, errors.NotFoundf("part %q", name)
	}
	return p.GetData()
}

func (b *Bundle) SetAttr(attr string, value interface{}) {
	if b.Manifest.attrs == nil {
		b.Manifest.attrs = make(map[string]interface{})
	}
	b.Manifest.attrs[attr] = value
}

func (b *Bundle) Attr(attr string) interface{} {
	return b.Manifest.attrs[attr]
}

// AttrNames returns the names of extra manifest attributes, sorted.
func (b *Bundle) AttrNames() []string {
	var names []string
	for n := range b.Manifest.attrs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func ReadManifest(fname string) (*Manifest, error) {
	data, err := ioutil.ReadFile(fname)
	if err != nil {
		return nil, errors.Annotatef(err, "ReadManifest(%s)", fname)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Annotatef(err, "ReadManifest(%s)", fname)
	}
	return &m, nil
}

func (m *Manifest) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(manifest(*m), m.attrs)
}

func (m *Manifest) UnmarshalJSON(b []byte) error {
	var m1 manifest
	if err := json.Unmarshal(b, &m1); err != nil {
		return err
	}
	*m = Manifest(m1)
	for n, p := range m.Parts {
		p.Name = n
	}
	extra, err := extraFields(b, m)
	if err != nil {
		return err
	}
	m.attrs = extra
	return nil
}

// marshalWithExtra encodes v, which must marshal to a JSON object, and splices
// the extra keys into it.
func marshalWithExtra(v interface{}, extra map[string]interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return b, nil
	}
	eb, err := json.Marshal(extra)
	if err != nil {
		return nil, err
	}
	if len(b) == 2 {
		// Empty object, nothing to separate.
		return eb, nil
	}
	eb[0] = ','
	return append(b[:len(b)-1], eb...), nil
}

// extraFields returns the keys of the JSON object b that do not correspond to
// a field of the struct pointed to by i.
func extraFields(b []byte, i interface{}) (map[string]interface{}, error) {
	var mp map[string]interface{}
	if err := json.Unmarshal(b, &mp); err != nil {
		return nil, err
	}
	var extra map[string]interface{}
	for k, v := range mp {
		if !isJSONField(i, k) {
			if extra == nil {
				extra = make(map[string]interface{})
			}
			extra[k] = v
		}
	}
	return extra, nil
}

func isJSONField(i interface{}, k string) bool {
	t := reflect.Indirect(reflect.ValueOf(i)).Type()
	for fi := 0; fi < t.NumField(); fi++ {
		sf := t.Field(fi)
		jk := strings.Split(sf.Tag.Get("json"), ",")[0]
		if k == jk {
			return true
		}
	}
	return false
}
