//go:build !windows

package mcp

import (
	"os"
	"syscall"
)

// shutdownSignals cancel long computations: Ctrl+C and SIGTERM.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
