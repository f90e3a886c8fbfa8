// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"os/signal"
)

// shutdownRequestChannel lets an in-process subsystem trigger the same
// shutdown path as an interrupt signal.
var shutdownRequestChannel = make(chan struct{})

// interruptSignals are the signals that trigger a graceful shutdown.
var interruptSignals = []os.Signal{os.Interrupt}

// interruptListener returns a channel that is closed once SIGINT/SIGTERM
// arrives or shutdownRequestChannel fires.
func interruptListener() <-chan struct{} {
	c := make(chan struct{})

	go func() {
		interruptChannel := make(chan os.Signal, 1)
		signal.Notify(interruptChannel, interruptSignals...)

		select {
		case sig := <-interruptChannel:
			log.Infof("received signal (%s), shutting down", sig)
		case <-shutdownRequestChannel:
			log.Infof("shutdown requested, shutting down")
		}

		close(c)
	}()

	return c
}
