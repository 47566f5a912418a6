/*************************************************************************
 * Copyright 2019 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package utils holds small process-lifecycle helpers shared by the
// daemon's command-line entrypoint.
package utils

import (
	"os"
	"os/signal"
	"syscall"
)

// NotifyShutdown registers ch for the signals that should cause the
// daemon to stop serving: SIGINT, SIGQUIT, SIGTERM.
func NotifyShutdown(ch chan os.Signal) {
	signal.Notify(ch, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
}

// NotifyReload registers ch for SIGHUP, the signal that asks the daemon
// to reread its config in place rather than exit.
func NotifyReload(ch chan os.Signal) {
	signal.Notify(ch, syscall.SIGHUP)
}
