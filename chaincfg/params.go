// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaincfg defines the chain-level parameters (network magic,
// default port, target block spacing) that the peer and netsync packages
// need to identify which network they are speaking on and how fast that
// network expects to produce blocks.
package chaincfg

import (
	"time"

	"github.com/btcrelay/peerd/wire"
)

// Params holds the chain parameters a peer connection and the partition
// monitor need. It intentionally carries none of the consensus parameters
// (proof-of-work limits, genesis block, difficulty retarget window) since
// those belong to the out-of-scope validation layer.
type Params struct {
	// Name is a human-readable network identifier, e.g. "mainnet".
	Name string

	// Net is the magic bytes identifying the network at the wire level.
	Net wire.BitcoinNet

	// DefaultPort is the default peer-to-peer listening port.
	DefaultPort string

	// TargetTimePerBlock is the desired average spacing between blocks,
	// used by the direct-fetch gate and the partition monitor's Poisson
	// model.
	TargetTimePerBlock time.Duration
}

// MainNetParams are the parameters for the main network.
var MainNetParams = Params{
	Name:               "mainnet",
	Net:                wire.MainNet,
	DefaultPort:        "8333",
	TargetTimePerBlock: 10 * time.Minute,
}

// TestNet3Params are the parameters for the test network.
var TestNet3Params = Params{
	Name:               "testnet3",
	Net:                wire.TestNet3,
	DefaultPort:        "18333",
	TargetTimePerBlock: 10 * time.Minute,
}

// SimNetParams are the parameters for the locally-run simulation network,
// with one-second block spacing so tests don't wait on Poisson timing.
var SimNetParams = Params{
	Name:               "simnet",
	Net:                wire.SimNet,
	DefaultPort:        "18555",
	TargetTimePerBlock: time.Second,
}
