// Windows signal handling. Only os.Interrupt exists; the runtime maps
// CTRL_BREAK_EVENT and console close onto it. Runtime control on Windows is
// limited to config file reloads.

//go:build windows

package main

import (
	"os"
	"os/signal"
	"time"

	"tools.zach/dev/presencewatch/internal/monitor"
)

// ///////////////////////////////////////////////
// Signal Handling
// ///////////////////////////////////////////////

// shutdownSignals returns a channel receiving os.Interrupt.
func shutdownSignals() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	return ch
}

// controlSignals returns nil: there are no user signals on Windows.
func controlSignals() <-chan os.Signal {
	return nil
}

func commandFor(os.Signal, time.Duration) (monitor.Command, bool) {
	return monitor.Command{}, false
}
