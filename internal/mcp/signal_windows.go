//go:build windows

package mcp

import "os"

// shutdownSignals cancel long computations. Windows has no SIGTERM.
var shutdownSignals = []os.Signal{os.Interrupt}
