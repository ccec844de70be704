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
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

type part struct {
	Name string `json:"-"`
	// Index is the ioctl_index value the part is downloaded with.
	Index int    `json:"index"`
	Src   string `json:"src,omitempty"`
	// Addr is the address the image was linked at. Informational.
	Addr           uint32 `json:"addr,omitempty"`
	Size           uint32 `json:"size,omitempty"`
	Fill           *uint8 `json:"fill,omitempty"`
	ChecksumSHA1   string `json:"cs_sha1,omitempty"`
	ChecksumSHA256 string `json:"cs_sha256,omitempty"`

	// Other user-specified properties are preserved here.
	properties   map[string]interface{}
	data         []byte
	dataProvider DataProvider
}

// Part is one image of a bundle.
type Part part

type DataProvider func(name, src string) ([]byte, error)

// PartFromString parses a part spec of the form "name:prop=value,...", e.g.
// "boot:index=0,src=boot.rom".
func PartFromString(ps string) (*Part, error) {
	np := strings.SplitN(ps, ":", 2)
	if len(np) < 2 || np[0] == "" {
		return nil, errors.Errorf("invalid part spec '%s', must be 'name:prop=value,...'", ps)
	}
	// Create properties JSON and re-parse it.
	m := make(map[string]interface{})
	for _, prop := range strings.Split(np[1], ",") {
		if len(prop) == 0 {
			continue
		}
		kv := strings.SplitN(prop, "=", 2)
		if len(kv) < 2 {
			return nil, errors.Errorf("invalid property spec '%s', must be 'prop=value'", prop)
		}
		k, v := kv[0], kv[1]
		switch {
		case v == "":
			m[k] = ""
		case v == "true":
			m[k] = true
		case v == "false":
			m[k] = false
		case v[0] == '\'' && len(v) > 1:
			m[k] = strings.Replace(v[1:len(v)-1], `\'`, `'`, -1)
		case v[0] == '"' && len(v) > 1:
			m[k] = strings.Replace(v[1:len(v)-1], `\"`, `"`, -1)
		default:
			if n, nerr := strconv.ParseInt(v, 0, 64); nerr == nil {
				m[k] = n
			} else {
				m[k] = v
			}
		}
	}
	mb, _ := json.Marshal(&m)
	var p Part
	if err := json.Unmarshal(mb, &p); err != nil {
		return nil, errors.Annotatef(err, "invalid part spec '%s'", ps)
	}
	p.Name = np[0]
	return &p, nil
}

// ComputeSHA1 returns the hex encoded SHA-1 digest of data.
func ComputeSHA1(data []byte) string {
	cs := sha1.Sum(data)
	return hex.EncodeToString(cs[:])
}

func computeSHA256(data []byte) string {
	cs := sha256.Sum256(data)
	return hex.EncodeToString(cs[:])
}

// SetData attaches data to the part and updates size and checksums.
func (p *Part) SetData(data []byte) {
	p.data = data
	p.Size = uint32(len(data))
	p.ChecksumSHA1 = ComputeSHA1(data)
	p.ChecksumSHA256 = computeSHA256(data)
}

func (p *Part) SetDataProvider(dp DataProvider) {
	p.dataProvider = dp
}

func (p *Part) Property(name string) interface{} {
	return p.properties[name]
}

// GetData returns the part contents: attached data, then the data provider,
// then the fill pattern. Checksums, if present, must match.
func (p *Part) GetData() ([]byte, error) {
	var data []byte
	switch {
	case p.data != nil:
		data = p.data
	case p.Src != "" && p.dataProvider != nil:
		var err error
		data, err = p.dataProvider(p.Name, p.Src)
		if err != nil {
			return nil, errors.Annotatef(err, "%s: error retrieving data", p.Name)
		}
	case p.Src == "" && p.Fill != nil && p.Size > 0:
		data = make([]byte, p.Size)
		for i := range data {
			data[i] = *p.Fill
		}
		return data, nil
	default:
		return nil, errors.Errorf("%s: no suitable data source", p.Name)
	}
	if p.ChecksumSHA1 != "" {
		if cs := ComputeSHA1(data); !strings.EqualFold(p.ChecksumSHA1, cs) {
			return nil, errors.Errorf("%s: checksum does not match (want %s, got %s)", p.Name, p.ChecksumSHA1, cs)
		}
	}
	if p.ChecksumSHA256 != "" {
		if cs := computeSHA256(data); !strings.EqualFold(p.ChecksumSHA256, cs) {
			return nil, errors.Errorf("%s: checksum does not match (want %s, got %s)", p.Name, p.ChecksumSHA256, cs)
		}
	}
	return data, nil
}

func (p *Part) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(part(*p), p.properties)
}

func (p *Part) UnmarshalJSON(b []byte) error {
	var p1 part
	if err := json.Unmarshal(b, &p1); err != nil {
		return err
	}
	*p = Part(p1)
	props, err := extraFields(b, p)
	if err != nil {
		return err
	}
	p.properties = props
	return nil
}
