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
package version

import (
	"strings"
	"testing"
)

func TestLooksLikeVersionNumber(t *testing.T) {
	for s, want := range map[string]bool{
		"1.0":     true,
		"2.17.3":  true,
		"latest":  false,
		"":        false,
		"v1.0":    false,
		"1.0-rc1": false,
	} {
		if got := LooksLikeVersionNumber(s); got != want {
			t.Errorf("%q: got %v, want %v", s, got, want)
		}
	}
}

func TestString(t *testing.T) {
	defer func(v, b, ts string) { Version, BuildId, BuildTimestamp = v, b, ts }(Version, BuildId, BuildTimestamp)

	Version, BuildId, BuildTimestamp = "dev", "", ""
	if got := String(); !strings.HasPrefix(got, "simload latest ") {
		t.Errorf("got %q", got)
	}

	Version, BuildId, BuildTimestamp = "1.2", "20190320-abcdef", "2019-03-20T23:58:44Z"
	if got, want := String(), "simload 1.2 (20190320-abcdef), built 2019-03-20 23:58 "; !strings.HasPrefix(got, want) {
		t.Errorf("got %q, want prefix %q", got, want)
	}
}
