// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build windows

package main

import (
	"fmt"

	"github.com/btcsuite/winsvc/eventlog"
	"github.com/btcsuite/winsvc/svc"
)

const (
	svcName        = "peerdsvc"
	svcDisplayName = "Peerd Service"
	svcDesc        = "Relays and synchronizes block headers with the peer-to-peer network."
)

// elog sends messages to the Windows event log.
var elog *eventlog.Log

// peerdService launches peerdMain under the Windows service control
// manager, translating its stop/shutdown requests into a
// shutdownRequestChannel signal.
type peerdService struct{}

func (s *peerdService) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	const cmdsAccepted = svc.AcceptStop | svc.AcceptShutdown
	changes <- svc.Status{State: svc.StartPending}

	doneChan := make(chan error)
	go func() {
		doneChan <- peerdMain()
	}()

	changes <- svc.Status{State: svc.Running, Accepts: cmdsAccepted}

loop:
	for {
		select {
		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus
			case svc.Stop, svc.Shutdown:
				changes <- svc.Status{State: svc.StopPending}
				shutdownRequestChannel <- struct{}{}
			default:
				elog.Error(1, fmt.Sprintf("unexpected control request #%d", c))
			}
		case err := <-doneChan:
			if err != nil {
				elog.Error(1, err.Error())
			}
			break loop
		}
	}

	changes <- svc.Status{State: svc.Stopped}
	return false, 0
}

// serviceMain reports whether peerd is running non-interactively under the
// service control manager and, if so, drives peerdMain through it.
func serviceMain() (bool, error) {
	isInteractive, err := svc.IsAnInteractiveSession()
	if err != nil {
		return false, err
	}
	if isInteractive {
		return false, nil
	}

	elog, err = eventlog.Open(svcName)
	if err != nil {
		return false, err
	}
	defer elog.Close()

	if err := svc.Run(svcName, &peerdService{}); err != nil {
		elog.Error(1, fmt.Sprintf("service start failed: %v", err))
		return true, err
	}

	return true, nil
}

func init() {
	winServiceMain = serviceMain
}
