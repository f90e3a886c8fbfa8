// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package logctx wires every package's logger to one rotating file plus
// stdout, grounded on btcd's cmd/btcd/log.go: a single btclog.Backend
// feeds one Logger per subsystem, and jrick/logrotate handles on-disk
// rotation so the process can run unattended.
package logctx

import (
	"fmt"
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"

	"github.com/btcrelay/peerd/addrmgr"
	"github.com/btcrelay/peerd/netsync"
	"github.com/btcrelay/peerd/node"
	"github.com/btcrelay/peerd/peer"
	"github.com/btcrelay/peerd/rpc"
)

// logRotatorMaxSize is the size, in kilobytes, a log file is allowed to reach
// before the rotator starts a new one.
const logRotatorMaxSize = 10 * 1024

// logRotatorMaxRolls bounds how many rotated log files are kept alongside
// the active one.
const logRotatorMaxRolls = 3

var logRotator *rotator.Rotator

// logWriter fans every write out to both stdout and the rotator, mirroring
// the teacher's practice of always keeping a live console tail alongside
// the on-disk history.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

var backend = btclog.NewBackend(logWriter{})

// subsystemLoggers maps each package's subsystem tag to the Logger handed
// to its UseLogger function, so SetLogLevel(s) can look one up by name.
var subsystemLoggers = newSubsystemLoggers()

func newSubsystemLoggers() map[string]btclog.Logger {
	nodeLog := backend.Logger("NODE")
	peerLog := backend.Logger("PEER")
	syncLog := backend.Logger("SYNC")
	adxrLog := backend.Logger("ADXR")
	rpcsLog := backend.Logger("RPCS")
	peerdLog := backend.Logger("PRRD")

	node.UseLogger(nodeLog)
	peer.UseLogger(peerLog)
	netsync.UseLogger(syncLog)
	addrmgr.UseLogger(adxrLog)
	rpc.UseLogger(rpcsLog)

	return map[string]btclog.Logger{
		"NODE": nodeLog,
		"PEER": peerLog,
		"SYNC": syncLog,
		"ADXR": adxrLog,
		"RPCS": rpcsLog,
		"PRRD": peerdLog,
	}
}

// MainLogger returns the top-level "PRRD" subsystem logger, used by
// cmd/peerd for its own startup/shutdown lines so they share the same
// backend and --debuglevel control as every other subsystem.
func MainLogger() btclog.Logger {
	return subsystemLoggers["PRRD"]
}

// InitLogRotator opens logFile for writing, rotating it once it exceeds
// logRotatorMaxSize, and directs every subsystem's file output there in
// addition to stdout. Must be called before any logging happens if
// on-disk logs are wanted; without it, logWriter silently drops the file
// half of its fan-out.
func InitLogRotator(logFile string) error {
	r, err := rotator.New(logFile, logRotatorMaxSize, false, logRotatorMaxRolls)
	if err != nil {
		return fmt.Errorf("failed to create log rotator: %w", err)
	}
	logRotator = r
	return nil
}

// SetLogLevel sets the logging level for the named subsystem. Returns
// false if the subsystem is unknown.
func SetLogLevel(subsystemID, logLevel string) bool {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return false
	}
	level, ok := btclog.LevelFromString(logLevel)
	if !ok {
		return false
	}
	logger.SetLevel(level)
	return true
}

// SetLogLevels sets logLevel on every known subsystem.
func SetLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		SetLogLevel(subsystemID, logLevel)
	}
}

// SupportedSubsystems returns the known subsystem tags, for a --debuglevel
// usage message.
func SupportedSubsystems() []string {
	tags := make([]string, 0, len(subsystemLoggers))
	for tag := range subsystemLoggers {
		tags = append(tags, tag)
	}
	return tags
}
