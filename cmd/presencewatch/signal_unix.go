// Unix signal handling: SIGINT/SIGTERM stop the daemon, and a set of user
// signals flips notification toggles or adjusts polling intervals at runtime.
//
//	SIGUSR1          toggle online/offline notifications
//	SIGUSR2          toggle game change notifications
//	SIGCONT          toggle full status notifications (Away included)
//	SIGVTALRM        send a test notification
//	SIGTRAP/SIGABRT  online interval +/- one step
//	SIGTTIN/SIGTTOU  offline interval +/- one step

//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"tools.zach/dev/presencewatch/internal/monitor"
)

// ///////////////////////////////////////////////
// Signal Handling
// ///////////////////////////////////////////////

// shutdownSignals returns a channel receiving SIGINT and SIGTERM.
func shutdownSignals() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch
}

// controlSet lists the runtime control signals. SIGPIPE must never be in
// it: once notified, the runtime forwards a SIGPIPE for every broken network
// write instead of turning it into an EPIPE error only.
var controlSet = []os.Signal{
	syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGCONT, syscall.SIGVTALRM,
	syscall.SIGTRAP, syscall.SIGABRT, syscall.SIGTTIN, syscall.SIGTTOU,
}

// controlSignals returns a channel receiving the runtime control signals.
func controlSignals() <-chan os.Signal {
	ch := make(chan os.Signal, 8)
	signal.Notify(ch, controlSet...)
	return ch
}

// commandFor maps a control signal to an engine command. step is the
// interval adjustment.
func commandFor(sig os.Signal, step time.Duration) (monitor.Command, bool) {
	switch sig {
	case syscall.SIGUSR1:
		return monitor.Command{Kind: monitor.TogglePresence}, true
	case syscall.SIGUSR2:
		return monitor.Command{Kind: monitor.ToggleGame}, true
	case syscall.SIGCONT:
		return monitor.Command{Kind: monitor.ToggleStatus}, true
	case syscall.SIGVTALRM:
		return monitor.Command{Kind: monitor.SendTest}, true
	case syscall.SIGTRAP:
		return monitor.Command{Kind: monitor.AdjustOnline, Delta: step}, true
	case syscall.SIGABRT:
		return monitor.Command{Kind: monitor.AdjustOnline, Delta: -step}, true
	case syscall.SIGTTIN:
		return monitor.Command{Kind: monitor.AdjustOffline, Delta: step}, true
	case syscall.SIGTTOU:
		return monitor.Command{Kind: monitor.AdjustOffline, Delta: -step}, true
	}
	return monitor.Command{}, false
}
