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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/simload/common/fwbundle"
	"github.com/mongoose-os/simload/common/simbus"
)

func TestParseDownload(t *testing.T) {
	cases := []struct {
		s     string
		req   simbus.Request
		isErr bool
	}{
		{s: "0:boot.rom", req: simbus.Request{File: "boot.rom", Index: 0}},
		{s: "3:game.zip:maincpu", req: simbus.Request{File: "game.zip:maincpu", Index: 3}},
		{s: "0x10:a.bin", req: simbus.Request{File: "a.bin", Index: 16}},
		{s: "-1:a.bin", req: simbus.Request{File: "a.bin", Index: -1}},
		{s: "boot.rom", isErr: true},
		{s: "1:", isErr: true},
		{s: "x:a.bin", isErr: true},
		{s: "", isErr: true},
	}
	for _, c := range cases {
		req, err := parseDownload(c.s)
		if c.isErr {
			assert.Error(t, err, c.s)
			continue
		}
		require.NoError(t, err, c.s)
		assert.Equal(t, c.req, req, c.s)
	}
}

func writeFile(t *testing.T, fname, data string) string {
	t.Helper()
	require.NoError(t, ioutil.WriteFile(fname, []byte(data), 0644))
	return fname
}

func TestReadPlan(t *testing.T) {
	dir := t.TempDir()
	fname := writeFile(t, filepath.Join(dir, "plan.yml"), `
core: arcade
base_dir: roms
settle_cycles: 0
downloads:
  - file: boot.rom
    index: 0
  - file: game.zip:maincpu
    index: 1
`)
	p, err := readPlan(fname)
	require.NoError(t, err)
	assert.Equal(t, "arcade", p.Core)
	assert.Equal(t, filepath.Join(dir, "roms"), p.BaseDir)
	require.NotNil(t, p.SettleCycles)
	assert.Equal(t, 0, *p.SettleCycles)
	assert.Equal(t, []planDownload{{File: "boot.rom", Index: 0}, {File: "game.zip:maincpu", Index: 1}}, p.Downloads)

	_, err = readPlan(writeFile(t, filepath.Join(dir, "typo.yml"), "downlaods: []\n"))
	assert.Error(t, err)

	_, err = readPlan(writeFile(t, filepath.Join(dir, "nofile.yml"), "downloads:\n  - index: 1\n"))
	assert.Error(t, err)

	_, err = readPlan(filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}

func writeTestBundle(t *testing.T, fname string, parts map[string]int) {
	t.Helper()
	b := fwbundle.NewBundle()
	b.Name = "test"
	for name, index := range parts {
		p := &fwbundle.Part{Name: name, Index: index, Src: name + ".bin"}
		p.SetData([]byte(name))
		require.NoError(t, b.AddPart(p))
	}
	require.NoError(t, fwbundle.WriteZipBundle(b, fname, true))
}

func TestCollectDownloads(t *testing.T) {
	dir := t.TempDir()
	writeTestBundle(t, filepath.Join(dir, "game.zip"), map[string]int{"gfx": 2, "maincpu": 1, "sound": 2})

	plan := &loadPlan{Downloads: []planDownload{{File: "boot.rom", Index: 0}}}
	reqs, err := collectDownloads(plan, dir, "game.zip", []string{"4:nvram.bin"})
	require.NoError(t, err)
	assert.Equal(t, []simbus.Request{
		{File: "boot.rom", Index: 0},
		{File: "game.zip:maincpu", Index: 1},
		{File: "game.zip:gfx", Index: 2},
		{File: "game.zip:sound", Index: 2},
		{File: "nvram.bin", Index: 4},
	}, reqs)

	reqs, err = collectDownloads(nil, "", "", nil)
	require.NoError(t, err)
	assert.Empty(t, reqs)

	_, err = collectDownloads(nil, dir, "game.tar", nil)
	assert.Error(t, err)
	_, err = collectDownloads(nil, dir, "missing.zip", nil)
	assert.Error(t, err)
	_, err = collectDownloads(nil, dir, filepath.Join(dir, "game.zip"), nil)
	assert.Error(t, err)

	reqs, err = collectDownloads(nil, "", filepath.Join(dir, "game.zip"), nil)
	require.NoError(t, err)
	assert.Len(t, reqs, 3)
	_, err = collectDownloads(nil, "", "", []string{"nope"})
	assert.Error(t, err)
}
