/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Command sysg is the systemg process supervisor: a daemon that starts,
// restarts, and schedules the units declared in systemg.yaml, and the CLI
// used to drive it over its control socket.
package main

import (
	"fmt"
	"os"

	"github.com/sysgio/sysg/internal/privilege"
)

func main() {
	if privilege.IsReexecInvocation(os.Args) {
		if err := privilege.RunReexec(os.Args); err != nil {
			fmt.Fprintln(os.Stderr, "sysg reexec:", err)
			os.Exit(1)
		}
		return
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
