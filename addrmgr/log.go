// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import "github.com/btcsuite/btclog"

// log is a logger that is initialized with no output filters. This means
// the package will not perform any logging by default until the caller
// requests it via UseLogger.
var log = btclog.Disabled

// DisableLog disables all package log output.
func DisableLog() {
	log = btclog.Disabled
}

// UseLogger sets the logger used for package-level diagnostic output.
func UseLogger(logger btclog.Logger) {
	log = logger
}
