// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wire implements the Bitcoin-family peer-to-peer wire protocol:
// message envelope framing, compact-size integers, and the payload codec
// for every command the peer and netsync packages speak.
package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Protocol version thresholds at which a given feature became available.
const (
	// MinPeerProtoVersion is the minimum protocol version a remote peer
	// must advertise to stay connected.
	MinPeerProtoVersion uint32 = 209

	// ProtocolVersion is the latest protocol version this package speaks.
	ProtocolVersion uint32 = 70016

	// BIP0031Version is the protocol version after which the pong
	// message and nonce-carrying pings are used.
	BIP0031Version uint32 = 60000

	// BIP0111Version is the protocol version which added the SFNodeBloom
	// service flag and the bloom-filter family of messages.
	BIP0111Version uint32 = 70011

	// NoBloomVersion is the protocol version at and above which a peer
	// is expected to have dropped bloom-filter support; peers at this
	// version or higher that still send filter* commands are
	// misbehaving.
	NoBloomVersion uint32 = 70011

	// SendHeadersVersion is the protocol version which added the
	// sendheaders message.
	SendHeadersVersion uint32 = 70012

	// FeeFilterVersion is the protocol version which added the
	// feefilter/sendcmpct exchange.
	FeeFilterVersion uint32 = 70013

	// BUVersion is the protocol version at and above which the BU
	// extension handshake (buversion/buverack) is attempted.
	BUVersion uint32 = 80002
)

// ServiceFlag identifies services supported by a peer.
type ServiceFlag uint64

const (
	// SFNodeNetwork indicates a peer is a full node capable of serving
	// blocks and transactions.
	SFNodeNetwork ServiceFlag = 1 << iota

	// SFNodeGetUTXO indicates a peer supports the (deprecated) getutxo
	// message.
	SFNodeGetUTXO

	// SFNodeBloom indicates a peer supports bloom filtering.
	SFNodeBloom

	// SFNodeXthin indicates a peer supports BU-style thin blocks.
	SFNodeXthin
)

var sfStrings = map[ServiceFlag]string{
	SFNodeNetwork: "SFNodeNetwork",
	SFNodeGetUTXO: "SFNodeGetUTXO",
	SFNodeBloom:   "SFNodeBloom",
	SFNodeXthin:   "SFNodeXthin",
}

var orderedSFStrings = []ServiceFlag{
	SFNodeNetwork, SFNodeGetUTXO, SFNodeBloom, SFNodeXthin,
}

// String returns the ServiceFlag in human-readable form.
func (f ServiceFlag) String() string {
	if f == 0 {
		return "0x0"
	}
	s := ""
	for _, flag := range orderedSFStrings {
		if f&flag == flag {
			s += sfStrings[flag] + "|"
			f -= flag
		}
	}
	s = strings.TrimSuffix(s, "|")
	if f != 0 {
		s += "|0x" + strconv.FormatUint(uint64(f), 16)
	}
	return strings.TrimPrefix(s, "|")
}

// BitcoinNet represents which bitcoin network a message belongs to.
type BitcoinNet uint32

const (
	// MainNet is the main network.
	MainNet BitcoinNet = 0xd9b4bef9

	// TestNet3 is the test network.
	TestNet3 BitcoinNet = 0x0709110b

	// SimNet is the simulation test network used for in-process
	// integration tests.
	SimNet BitcoinNet = 0x12141c16
)

func (n BitcoinNet) String() string {
	switch n {
	case MainNet:
		return "MainNet"
	case TestNet3:
		return "TestNet3"
	case SimNet:
		return "SimNet"
	default:
		return fmt.Sprintf("Unknown BitcoinNet (%d)", uint32(n))
	}
}

// InvType represents the allowed types of an inventory vector.
type InvType uint32

const (
	InvTypeError          InvType = 0
	InvTypeTx             InvType = 1
	InvTypeBlock          InvType = 2
	InvTypeFilteredBlock  InvType = 3
	InvTypeThinBlock      InvType = 4
	InvTypeGrapheneBlock  InvType = 5
)

var ivStrings = map[InvType]string{
	InvTypeError:         "ERROR",
	InvTypeTx:            "MSG_TX",
	InvTypeBlock:         "MSG_BLOCK",
	InvTypeFilteredBlock: "MSG_FILTERED_BLOCK",
	InvTypeThinBlock:     "MSG_THINBLOCK",
	InvTypeGrapheneBlock: "MSG_GRAPHENEBLOCK",
}

func (i InvType) String() string {
	if s, ok := ivStrings[i]; ok {
		return s
	}
	return fmt.Sprintf("Unknown InvType (%d)", uint32(i))
}

// RejectCode represents a numeric code sent in a reject message.
type RejectCode uint8

const (
	RejectMalformed       RejectCode = 0x01
	RejectInvalid         RejectCode = 0x10
	RejectObsolete        RejectCode = 0x11
	RejectDuplicate       RejectCode = 0x12
	RejectNonstandard     RejectCode = 0x40
	RejectDust            RejectCode = 0x41
	RejectInsufficientFee RejectCode = 0x42
	RejectCheckpoint      RejectCode = 0x43
)

func (code RejectCode) String() string {
	switch code {
	case RejectMalformed:
		return "REJECT_MALFORMED"
	case RejectInvalid:
		return "REJECT_INVALID"
	case RejectObsolete:
		return "REJECT_OBSOLETE"
	case RejectDuplicate:
		return "REJECT_DUPLICATE"
	case RejectNonstandard:
		return "REJECT_NONSTANDARD"
	case RejectDust:
		return "REJECT_DUST"
	case RejectInsufficientFee:
		return "REJECT_INSUFFICIENTFEE"
	case RejectCheckpoint:
		return "REJECT_CHECKPOINT"
	default:
		return fmt.Sprintf("Unknown RejectCode (%d)", uint8(code))
	}
}
