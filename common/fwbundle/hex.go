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
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"io/ioutil"
	"sort"

	"github.com/juju/errors"
)

// Intel HEX record types.
const (
	hexRecData = iota
	hexRecEOF
	hexRecExtSegAddr
	hexRecStartSegAddr
	hexRecExtLinAddr
	hexRecStartLinAddr
)

// MaxImageSize is the largest flattened image PartFromHex will produce.
const MaxImageSize = 64 << 20

// HexImage is the result of parsing an Intel HEX file: contiguous data
// segments and the start address, if one was given.
type HexImage struct {
	Segments []*HexSegment
	Start    uint32
}

type HexSegment struct {
	Addr uint32
	Data []byte
}

type hexParser struct {
	img        *HexImage
	fill       byte
	maxGapSize int

	base    uint32 // from extended address records
	segBase uint32
	segData []byte
	next    uint32 // address following the last data byte
}

// ParseHex parses Intel HEX data. Gaps between data records shorter than
// maxGapSize are filled with fill, longer ones start a new segment.
func ParseHex(hexData []byte, fill byte, maxGapSize int) (*HexImage, error) {
	hp := &hexParser{img: &HexImage{}, fill: fill, maxGapSize: maxGapSize}
	scanner := bufio.NewScanner(bytes.NewReader(hexData))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		l := bytes.TrimSpace(scanner.Bytes())
		if len(l) == 0 {
			continue
		}
		eof, err := hp.record(l)
		if err != nil {
			return nil, errors.Annotatef(err, "line %d", lineNo)
		}
		if eof {
			hp.flush()
			return hp.img, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Annotatef(err, "line %d", lineNo)
	}
	return nil, errors.Errorf("unexpected end of data")
}

func (hp *hexParser) record(l []byte) (bool, error) {
	if l[0] != ':' {
		return false, errors.Errorf("invalid start of the line")
	}
	if len(l) < 11 || len(l)%2 != 1 {
		return false, errors.Errorf("too short (%d)", len(l))
	}
	rec := make([]byte, hex.DecodedLen(len(l)-1))
	if _, err := hex.Decode(rec, l[1:]); err != nil {
		return false, errors.Errorf("error decoding record body")
	}
	recLen := int(rec[0])
	if len(rec) != 4+recLen+1 {
		return false, errors.Errorf("invalid length %d", len(rec))
	}
	cs := uint8(0)
	for _, b := range rec[:len(rec)-1] {
		cs += b
	}
	cs = (cs ^ 0xff) + 1
	if want := rec[len(rec)-1]; cs != want {
		return false, errors.Errorf("invalid checksum (want %02x, got %02x)", want, cs)
	}
	offset := binary.BigEndian.Uint16(rec[1:3])
	recType := rec[3]
	body := rec[4 : 4+recLen]
	switch recType {
	case hexRecData:
		hp.data(hp.base+uint32(offset), body)
	case hexRecEOF:
		return true, nil
	case hexRecExtSegAddr:
		if recLen != 2 {
			return false, errors.Errorf("invalid extended segment address")
		}
		hp.base = uint32(binary.BigEndian.Uint16(body)) << 4
	case hexRecStartSegAddr:
		if recLen != 4 {
			return false, errors.Errorf("invalid start segment address")
		}
		cseg := binary.BigEndian.Uint16(body[0:2])
		ip := binary.BigEndian.Uint16(body[2:4])
		hp.img.Start = uint32(cseg)<<4 | uint32(ip)
	case hexRecExtLinAddr:
		if recLen != 2 {
			return false, errors.Errorf("invalid extended linear address")
		}
		hp.base = uint32(binary.BigEndian.Uint16(body)) << 16
	case hexRecStartLinAddr:
		if recLen != 4 {
			return false, errors.Errorf("invalid start linear address")
		}
		hp.img.Start = binary.BigEndian.Uint32(body)
	default:
		return false, errors.Errorf("unsupported record type (%d)", recType)
	}
	return false, nil
}

func (hp *hexParser) data(addr uint32, data []byte) {
	if hp.segData != nil && addr != hp.next {
		gap := int(addr) - int(hp.next)
		if gap > 0 && gap < hp.maxGapSize {
			for i := 0; i < gap; i++ {
				hp.segData = append(hp.segData, hp.fill)
			}
		} else {
			hp.flush()
		}
	}
	if hp.segData == nil {
		hp.segBase = addr
	}
	hp.segData = append(hp.segData, data...)
	hp.next = addr + uint32(len(data))
}

func (hp *hexParser) flush() {
	if hp.segData != nil {
		hp.img.Segments = append(hp.img.Segments, &HexSegment{Addr: hp.segBase, Data: hp.segData})
	}
	hp.segData = nil
}

// Span returns the lowest segment address and the size of the flattened
// image.
func (img *HexImage) Span() (uint32, uint64) {
	if len(img.Segments) == 0 {
		return 0, 0
	}
	base := img.Segments[0].Addr
	var end uint64
	for _, s := range img.Segments {
		if s.Addr < base {
			base = s.Addr
		}
		if e := uint64(s.Addr) + uint64(len(s.Data)); e > end {
			end = e
		}
	}
	return base, end - uint64(base)
}

// Flatten lays out all segments in one buffer starting at the lowest segment
// address, filling gaps with fill. Check Span first, the buffer is not
// bounded.
func (img *HexImage) Flatten(fill byte) (uint32, []byte) {
	if len(img.Segments) == 0 {
		return 0, nil
	}
	ss := make([]*HexSegment, len(img.Segments))
	copy(ss, img.Segments)
	sort.SliceStable(ss, func(i, j int) bool { return ss[i].Addr < ss[j].Addr })
	base, size := img.Span()
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = fill
	}
	for _, s := range ss {
		copy(buf[s.Addr-base:], s.Data)
	}
	return base, buf
}

// PartFromHex converts Intel HEX data into a single part with the segments
// flattened.
func PartFromHex(hexData []byte, name string, index int, fill byte) (*Part, error) {
	img, err := ParseHex(hexData, fill, 0)
	if err != nil {
		return nil, errors.Annotatef(err, "error parsing hex data")
	}
	if base, size := img.Span(); size > MaxImageSize {
		return nil, errors.Errorf("image at 0x%x spans %d bytes, more than %d", base, size, MaxImageSize)
	}
	addr, data := img.Flatten(fill)
	p := &Part{
		Name:  name,
		Index: index,
		Src:   name + ".bin",
		Addr:  addr,
	}
	p.SetData(data)
	return p, nil
}

func PartFromHexFile(fname, name string, index int, fill byte) (*Part, error) {
	hexData, err := ioutil.ReadFile(fname)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return PartFromHex(hexData, name, index, fill)
}
