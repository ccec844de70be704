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
package pflagenv

import (
	"os"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/pflag"

	"github.com/mongoose-os/simload/common/multierror"
)

// ParseFlagSet sets every flag of fs that was not given on the command line
// from the environment variable named envPrefix + the flag name, uppercased,
// with dashes replaced by underscores ("--max-cycles" -> "SIMLOAD_MAX_CYCLES").
//
// It should be called after Parse is called for the given FlagSet. Values that
// the flag rejects are collected into the returned error; the remaining flags
// are still applied. A rejected flag is reset to its default and stays
// unchanged.
func ParseFlagSet(fs *pflag.FlagSet, envPrefix string) error {
	var unset []*pflag.Flag
	fs.VisitAll(func(f *pflag.Flag) {
		if !f.Changed {
			unset = append(unset, f)
		}
	})
	sort.Slice(unset, func(i, j int) bool { return unset[i].Name < unset[j].Name })

	var errs error
	for _, f := range unset {
		name := EnvName(f.Name, envPrefix)
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		if err := fs.Set(f.Name, v); err != nil {
			// Some values store a partial result before failing.
			f.Value.Set(f.DefValue)
			f.Changed = false
			errs = multierror.Append(errs, errors.Annotatef(err, "%s", name))
		}
	}
	return errs
}

// The same as ParseFlagSet, but operates on a default FlagSet: pflag.CommandLine
func Parse(envPrefix string) error {
	return ParseFlagSet(pflag.CommandLine, envPrefix)
}

func EnvName(flagName, envPrefix string) string {
	return envPrefix + strings.ToUpper(strings.Replace(flagName, "-", "_", -1))
}
