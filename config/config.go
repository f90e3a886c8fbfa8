// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package config loads peerd's on-disk and command-line configuration,
// grounded on the teacher's config.go: a jessevdk/go-flags struct parsed
// twice, once to discover an alternate config file and once for real, so
// command-line flags always win over the ini file's defaults.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/btcrelay/peerd/chaincfg"
)

const (
	defaultConfigFilename = "peerd.conf"
	defaultLogFilename    = "peerd.log"
	defaultLogLevel       = "info"
	defaultMaxPeers       = 125
	defaultBanDuration    = 24 * time.Hour
	defaultListenPort     = "8333"
	defaultRPCListen      = "127.0.0.1:8334"
)

// Config defines every configuration option peerd accepts, either from
// peerd.conf or the command line.
type Config struct {
	ShowVersion    bool          `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile     string        `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir        string        `short:"b" long:"datadir" description:"Directory to store address manager and ban list state"`
	LogDir         string        `long:"logdir" description:"Directory to log output"`
	AddPeers       []string      `short:"a" long:"addpeer" description:"Add a peer to connect with at startup"`
	Listeners      []string      `long:"listen" description:"Add an interface/port to listen for connections"`
	DisableListen  bool          `long:"nolisten" description:"Disable listening for incoming connections"`
	MaxPeers       int           `long:"maxpeers" description:"Not applied: the server keeps at most 8 outbound peers and turns inbound peers away once 32 peers are connected"`
	BanDuration    time.Duration `long:"banduration" description:"How long to ban misbehaving peers. Valid time units are {s, m, h}. Minimum 1 second"`
	DisableDNSSeed bool          `long:"nodnsseed" description:"Not applied: peerd does no DNS seeding"`
	TestNet3       bool          `long:"testnet" description:"Use the test network"`
	SimNet         bool          `long:"simnet" description:"Use the simulation test network"`
	DebugLevel     string        `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- may also be specified per subsystem, e.g. SYNC=debug"`
	BlocksOnly     bool          `long:"blocksonly" description:"Do not accept transactions from remote peers"`
	Whitelists     []string      `long:"whitelist" description:"Not applied: no peer is whitelisted from this list"`
	RPCListen      string        `long:"rpclisten" description:"Address to listen for read-only status RPC requests"`
	DisableRPC     bool          `long:"norpc" description:"Disable the status RPC listener"`

	activeParams *chaincfg.Params
}

func peerdHomeDir() string {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, "peerd")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".peerd")
	}
	return "."
}

func cleanAndExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		path = strings.Replace(path, "~", filepath.Dir(peerdHomeDir()), 1)
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// ActiveParams returns the chain parameters selected by TestNet3/SimNet,
// defaulting to mainnet.
func (cfg *Config) ActiveParams() *chaincfg.Params {
	return cfg.activeParams
}

// Load parses peerd's configuration the way the teacher's loadConfig
// does: defaults, then the ini file, then the command line again so
// flags always win.
func Load() (*Config, []string, error) {
	defaultConfigFile := filepath.Join(peerdHomeDir(), defaultConfigFilename)

	cfg := Config{
		ConfigFile:  defaultConfigFile,
		DataDir:     filepath.Join(peerdHomeDir(), "data"),
		LogDir:      filepath.Join(peerdHomeDir(), "logs"),
		DebugLevel:  defaultLogLevel,
		MaxPeers:    defaultMaxPeers,
		BanDuration: defaultBanDuration,
		Listeners:   []string{net.JoinHostPort("", defaultListenPort)},
		RPCListen:   defaultRPCListen,
	}

	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	if _, err := preParser.Parse(); err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			preParser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	if preCfg.ShowVersion {
		fmt.Println(filepath.Base(os.Args[0]), "version", Version())
		os.Exit(0)
	}

	if preCfg.ConfigFile != defaultConfigFile {
		cfg.ConfigFile = cleanAndExpandPath(preCfg.ConfigFile)
	}

	parser := flags.NewParser(&cfg, flags.Default)
	if err := flags.NewIniParser(parser).ParseFile(cfg.ConfigFile); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
			return nil, nil, err
		}
	}

	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	if cfg.TestNet3 && cfg.SimNet {
		return nil, nil, fmt.Errorf("testnet and simnet cannot be used together")
	}

	switch {
	case cfg.TestNet3:
		cfg.activeParams = &chaincfg.TestNet3Params
	case cfg.SimNet:
		cfg.activeParams = &chaincfg.SimNetParams
	default:
		cfg.activeParams = &chaincfg.MainNetParams
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	return &cfg, remainingArgs, nil
}
