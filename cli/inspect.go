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
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/juju/errors"

	"github.com/mongoose-os/simload/cli/flags"
	"github.com/mongoose-os/simload/common/fwbundle"
)

func inspect(ctx context.Context) error {
	b, err := fwbundle.ReadZipBundle(*flags.Bundle)
	if err != nil {
		return errors.Annotatef(err, "failed to read bundle")
	}
	return errors.Trace(printBundle(os.Stdout, b))
}

// printBundle lists the manifest and the parts of b in download order. Data
// of every part is read and verified against its checksums.
func printBundle(out io.Writer, b *fwbundle.Bundle) error {
	bold := color.New(color.Bold).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()

	fmt.Fprintf(out, "%s %s\n", bold("Name:"), b.Name)
	if b.Core != "" {
		fmt.Fprintf(out, "%s %s\n", bold("Core:"), b.Core)
	}
	if b.Description != "" {
		fmt.Fprintf(out, "%s %s\n", bold("Description:"), b.Description)
	}
	if b.Version != "" {
		fmt.Fprintf(out, "%s %s\n", bold("Version:"), b.Version)
	}
	if b.BuildTimestamp != nil {
		fmt.Fprintf(out, "%s %s\n", bold("Built:"), b.BuildTimestamp.Format("2006-01-02T15:04:05Z07:00"))
	}
	for _, n := range b.AttrNames() {
		fmt.Fprintf(out, "%s %v\n", bold(n+":"), b.Attr(n))
	}
	fmt.Fprintln(out)

	var nBad int
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "INDEX\tNAME\tSRC\tSIZE\tSHA1\n")
	for _, p := range b.PartsByIndex() {
		status := p.ChecksumSHA1
		if _, err := p.GetData(); err != nil {
			status = bad(err.Error())
			nBad++
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", p.Index, p.Name, p.Src, p.Size, status)
	}
	w.Flush()
	if nBad > 0 {
		return errors.Errorf("%d part(s) failed verification", nBad)
	}
	return nil
}
