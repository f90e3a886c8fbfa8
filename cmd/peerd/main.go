// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command peerd runs a standalone Bitcoin-family peer-to-peer node: it
// speaks the wire protocol, tracks known addresses, synchronizes block
// headers across many peers, and relays blocks and transactions,
// without performing consensus validation or holding a wallet.
package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcrelay/peerd/addrmgr"
	"github.com/btcrelay/peerd/blockindex"
	"github.com/btcrelay/peerd/config"
	"github.com/btcrelay/peerd/internal/logctx"
	"github.com/btcrelay/peerd/netsync"
	"github.com/btcrelay/peerd/node"
	"github.com/btcrelay/peerd/rpc"
	"github.com/btcrelay/peerd/wire"
)

// log is peerd's own startup/shutdown logger, sharing the backend and
// --debuglevel control every other subsystem uses.
var log = logctx.MainLogger()

// winServiceMain is only set on Windows, by service_windows.go's init.
// It detects whether peerd is running under the Windows service control
// manager and, if so, drives peerdMain through it instead of directly.
var winServiceMain func() (bool, error)

func main() {
	if winServiceMain != nil {
		isService, err := winServiceMain()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if isService {
			return
		}
	}

	if err := peerdMain(); err != nil {
		os.Exit(1)
	}
}

// peerdMain is the real entry point, split out from main so a Windows
// service and an interactive run share the same startup path.
func peerdMain() error {
	cfg, _, err := config.Load()
	if err != nil {
		return err
	}

	logFile := filepath.Join(cfg.LogDir, "peerd.log")
	if err := logctx.InitLogRotator(logFile); err != nil {
		fmt.Fprintf(os.Stderr, "unable to initialize log rotation: %v\n", err)
		return err
	}
	parseAndSetDebugLevels(cfg.DebugLevel)

	log.Infof("version %s", config.Version())
	log.Infof("using chain %s", cfg.ActiveParams().Name)

	interrupt := interruptListener()
	defer log.Infof("shutdown complete")

	idx := blockindex.New()
	params := cfg.ActiveParams()
	genesisHeader := genesisHeaders[params.Name]
	genesisIdx := idx.AddGenesis(&genesisHeader)

	validator := newRelayValidator()
	chain := node.NewChain(idx, validator, params.TargetTimePerBlock)
	chain.SetActiveTip(genesisIdx)

	reqMgr := netsync.NewRequestManager(chain)
	headerSync := netsync.NewHeaderSync(chain, chain, reqMgr, params.TargetTimePerBlock)
	partition := netsync.NewPartitionMonitor(chain, params.TargetTimePerBlock)

	states := node.NewNodeStateMap()
	bans := node.NewBanList()
	misbehavior := node.NewMisbehaviorTracker(bans, cfg.BanDuration)
	relay := node.NewRelayMap(5000)

	addrManager := addrmgr.New(cfg.DataDir)
	addrManager.Start()
	defer addrManager.Stop()

	for _, addr := range normalizeAddresses(cfg.AddPeers, params.DefaultPort) {
		addrManager.AddAddressByIPPort(addr)
	}

	dispatcherCfg := node.DispatcherConfig{
		BlocksOnly:       cfg.BlocksOnly,
		SendBufferCap:    1000,
		BanDuration:      cfg.BanDuration,
		MaxThinBloomSize: bloomFilterSizeCeiling,
	}
	dispatcher := node.NewDispatcher(dispatcherCfg, chain, reqMgr, headerSync, states,
		misbehavior, relay, bans, addrManager, nil, nil, validator, nil, nil)

	senderCfg := node.SenderConfig{
		InitialHeadersTimeout: 2 * time.Minute,
		LenientSyncTimeout:    false,
	}
	sender := node.NewPeerSender(senderCfg, chain, reqMgr, bans, nil, dispatcher)

	listeners := normalizeAddresses(cfg.Listeners, params.DefaultPort)
	if cfg.DisableListen {
		listeners = nil
	}
	serverCfg := node.ServerConfig{
		ChainParams:      params,
		ListenAddrs:      listeners,
		UserAgentName:    "peerd",
		UserAgentVersion: config.Version(),
		Services:         wire.SFNodeNetwork,
		ProtocolVersion:  wire.ProtocolVersion,
		DisableRelayTx:   cfg.BlocksOnly,
	}
	srv := node.NewServer(serverCfg, chain, reqMgr, headerSync, states, dispatcher,
		sender, addrManager, bans)

	if err := srv.Start(); err != nil {
		log.Errorf("unable to start server: %v", err)
		return err
	}

	var rpcServer *rpc.Server
	if !cfg.DisableRPC {
		rpcServer = rpc.NewServer(cfg.RPCListen, states, chain, bans)
		rpcServer.Start()
		log.Infof("status rpc listening on %s", cfg.RPCListen)
	}

	partitionTicker := time.NewTicker(params.TargetTimePerBlock)
	defer partitionTicker.Stop()

	go func() {
		for {
			select {
			case <-partitionTicker.C:
				if warning := partition.Check(time.Now()); warning != "" {
					log.Warnf("%s", warning)
				}
			case <-interrupt:
				return
			}
		}
	}()

	<-interrupt

	log.Infof("gracefully shutting down")
	if rpcServer != nil {
		if err := rpcServer.Stop(); err != nil {
			log.Warnf("error stopping rpc server: %v", err)
		}
	}
	srv.Stop()
	srv.WaitForShutdown()

	return nil
}

// bloomFilterSizeCeiling is the maximum xthin bloom filter size this node
// advertises via filtersizextn right after verack. The floor a peer's own
// advertisement must meet is wire.SmallestMaxBloomFilterSize.
const bloomFilterSizeCeiling = 1 << 22

// parseAndSetDebugLevels applies a --debuglevel value of either a single
// level applied to every subsystem ("info") or a comma-separated list of
// SUBSYSTEM=LEVEL pairs ("SYNC=debug,PEER=trace").
func parseAndSetDebugLevels(debugLevel string) {
	if !strings.Contains(debugLevel, "=") {
		logctx.SetLogLevels(debugLevel)
		return
	}

	for _, pair := range strings.Split(debugLevel, ",") {
		fields := strings.Split(pair, "=")
		if len(fields) != 2 {
			continue
		}
		subsystem, level := fields[0], fields[1]
		if !logctx.SetLogLevel(subsystem, level) {
			fmt.Fprintf(os.Stderr, "unknown subsystem %q in --debuglevel\n", subsystem)
		}
	}
}

// normalizeAddresses appends defaultPort to every addr in addrs that
// doesn't already specify one, mirroring the teacher's config.go helper
// of the same purpose.
func normalizeAddresses(addrs []string, defaultPort string) []string {
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, normalizeAddress(addr, defaultPort))
	}
	return out
}

func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}
