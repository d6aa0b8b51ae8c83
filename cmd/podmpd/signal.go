package main

import (
	"os"
	"os/signal"
	"syscall"
)

// ///////////////////////////////////////////////
// Signal Handling
// ///////////////////////////////////////////////

// signalChannels returns buffered channels for shutdown (SIGINT, SIGTERM)
// and for the update menu action (SIGUSR1), plus a func that stops delivery.
// The buffer size of 1 keeps a signal that arrives while the receiver is
// busy.
func signalChannels() (shutdown, update <-chan os.Signal, stop func()) {
	sd := make(chan os.Signal, 1)
	signal.Notify(sd, os.Interrupt, syscall.SIGTERM)
	up := make(chan os.Signal, 1)
	signal.Notify(up, syscall.SIGUSR1)
	return sd, up, func() {
		signal.Stop(sd)
		signal.Stop(up)
	}
}
