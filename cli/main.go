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
	"context"
	goflag "flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/golang/glog"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/simload/cli/flags"
	"github.com/mongoose-os/simload/common/pflagenv"
	"github.com/mongoose-os/simload/version"
)

const (
	envPrefix = "SIMLOAD_"
)

var (
	versionFlag = flag.Bool("version", false, "Print version and exit")
	helpFull    = flag.Bool("helpfull", false, "Show full help, including advanced flags")
)

type command struct {
	name     string
	handler  handler
	short    string
	required []string
	optional []string
}

type handler func(ctx context.Context) error

var (
	// put all commands here
	commands = []command{
		{"load", load, `Download images into the design model and report what it received`, []string{}, []string{"download", "bundle", "plan", "base-dir", "hex-fill", "settle-cycles", "wait-every", "wait-for", "max-cycles", "timeout", "dump-dir", "report", "metrics-file", "quiet"}},
		{"create-bundle", createBundle, `Pack images into a bundle archive`, []string{"output"}, []string{"part", "manifest", "name", "core", "description", "bundle-version", "attr", "compress", "base-dir", "hex-fill"}},
		{"inspect", inspect, `Show the contents of a bundle archive`, []string{"bundle"}, []string{}},
		{"version", showVersion, `Print version and exit`, []string{}, []string{}},
	}
)

func showVersion(ctx context.Context) error {
	fmt.Println(version.String())
	return nil
}

func run(ctx context.Context) error {
	name := flag.Arg(0)
	for _, c := range commands {
		if c.name == name {
			// check required flags
			if err := checkFlags(c.required); err != nil {
				return errors.Trace(err)
			}
			// run the handler
			if err := c.handler(ctx); err != nil {
				return errors.Trace(err)
			}
			return nil
		}
	}
	usage()
	if name != "" && name != "help" {
		return errors.Errorf("unknown command %q", name)
	}
	return nil
}

func main() {
	initFlags()
	flag.Parse()
	if err := pflagenv.Parse(envPrefix); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	if *helpFull {
		unhideFlags()
		usage()
		return
	} else if *versionFlag {
		fmt.Println(version.String())
		return
	}

	if *flags.Verbose {
		goflag.Set("v", "1")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	glog.Flush()
	if err != nil {
		glog.Infof("Error: %s", errors.ErrorStack(err))
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
