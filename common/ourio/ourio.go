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
package ourio

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	yaml "gopkg.in/yaml.v2"
)

// WriteFileIfDifferent writes data to filename unless the file already holds
// the same contents. Missing parent directories are created. The new contents
// are written to a temporary file first and renamed into place.
// Returns true if the file was written.
func WriteFileIfDifferent(filename string, data []byte, perm os.FileMode) (bool, error) {
	exData, err := ioutil.ReadFile(filename)
	if err == nil && bytes.Equal(exData, data) {
		return false, nil
	}

	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, errors.Trace(err)
	}
	tf, err := ioutil.TempFile(dir, "."+filepath.Base(filename)+".")
	if err != nil {
		return false, errors.Trace(err)
	}
	tmpName := tf.Name()
	_, werr := tf.Write(data)
	cerr := tf.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Chmod(tmpName, perm)
	}
	if werr == nil {
		werr = os.Rename(tmpName, filename)
	}
	if werr != nil {
		os.Remove(tmpName)
		return false, errors.Annotatef(werr, "failed to write %s", filename)
	}
	return true, nil
}

// WriteYAMLFileIfDifferent writes s as YAML to filename but avoids overwriting
// a file with the same contents. Returns true if the file was updated.
func WriteYAMLFileIfDifferent(filename string, s interface{}, perm os.FileMode) (bool, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return false, errors.Trace(err)
	}
	return WriteFileIfDifferent(filename, data, perm)
}
