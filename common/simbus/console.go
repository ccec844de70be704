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
package simbus

import (
	"io"

	"github.com/golang/glog"
)

// Console receives diagnostics emitted from inside the cycle hooks. The hooks
// cannot return errors to the evaluation engine, so this is the only place
// per-request failures show up.
type Console interface {
	Printf(format string, args ...interface{})
}

// GlogConsole sends diagnostics to glog at the info level.
type GlogConsole struct{}

func (GlogConsole) Printf(format string, args ...interface{}) {
	glog.Infof(format, args...)
}

// Source is an open byte stream for one transfer. ReadByte returns io.EOF
// after the last byte.
type Source interface {
	io.ByteReader
	io.Closer
}

// Opener resolves a file identifier to a Source. Identifiers are opaque to
// the bus.
type Opener interface {
	Open(id string) (Source, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(id string) (Source, error)

func (f OpenerFunc) Open(id string) (Source, error) {
	return f(id)
}
