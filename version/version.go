/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package version

import (
	"fmt"
	"io"
	"time"
)

const (
	MajorVersion int = 0
	MinorVersion int = 1
	PointVersion int = 0
)

var (
	BuildDate time.Time = time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
)

// String renders the dotted version triple, e.g. "0.1.0".
func String() string {
	return fmt.Sprintf("%d.%d.%d", MajorVersion, MinorVersion, PointVersion)
}

// PrintVersion writes version and build date to wtr, in the same layout the
// supervisor uses for its other diagnostic dumps.
func PrintVersion(wtr io.Writer) {
	fmt.Fprintf(wtr, "sysg version:\t%s\n", String())
	fmt.Fprintf(wtr, "BuildDate:\t%s\n", BuildDate.Format(`2006-01-02 15:04:05`))
}
