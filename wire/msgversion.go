// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
	"strings"
	"time"
)

// MaxUserAgentLen is the maximum allowed length for the user agent field
// in a version message.
const MaxUserAgentLen = 256

// DefaultUserAgent is used if a caller does not supply one when building a
// local version message.
const DefaultUserAgent = "/peerd:0.1.0/"

// MsgVersion implements the Message interface and represents the initial
// handshake message exchanged between peers.
type MsgVersion struct {
	ProtocolVersion int32
	Services        ServiceFlag
	Timestamp       time.Time
	AddrYou         NetAddress
	AddrMe          NetAddress
	Nonce           uint64
	UserAgent       string
	LastBlock       int32
	DisableRelayTx  bool
}

// HasService returns whether the peer supports the given service.
func (msg *MsgVersion) HasService(service ServiceFlag) bool {
	return msg.Services&service == service
}

// AddService adds service as a supported service by the peer generating
// the message.
func (msg *MsgVersion) AddService(service ServiceFlag) {
	msg.Services |= service
}

// BtcDecode decodes r using the bitcoin protocol encoding into msg.
func (msg *MsgVersion) BtcDecode(r io.Reader, pver uint32) error {
	if err := readElement(r, &msg.ProtocolVersion); err != nil {
		return err
	}
	if err := readElement(r, &msg.Services); err != nil {
		return err
	}
	var ts int64
	if err := readElement(r, &ts); err != nil {
		return err
	}
	msg.Timestamp = time.Unix(ts, 0)

	if err := readNetAddress(r, &msg.AddrYou, false); err != nil {
		return err
	}
	if err := readNetAddress(r, &msg.AddrMe, false); err != nil {
		return err
	}
	if err := readElement(r, &msg.Nonce); err != nil {
		return err
	}

	ua, err := ReadVarString(r, MaxUserAgentLen)
	if err != nil {
		return err
	}
	msg.UserAgent = sanitizeUserAgent(ua)

	if err := readElement(r, &msg.LastBlock); err != nil {
		return err
	}

	// relay-tx flag is absent on older protocol versions; absence means
	// "relay everything" per the reference behavior.
	var fRelay bool
	if err := readElement(r, &fRelay); err != nil {
		if err == io.EOF {
			msg.DisableRelayTx = false
			return nil
		}
		return err
	}
	msg.DisableRelayTx = !fRelay
	return nil
}

// BtcEncode encodes msg to w using the bitcoin protocol encoding.
func (msg *MsgVersion) BtcEncode(w io.Writer, pver uint32) error {
	if err := writeElement(w, msg.ProtocolVersion); err != nil {
		return err
	}
	if err := writeElement(w, msg.Services); err != nil {
		return err
	}
	if err := writeElement(w, msg.Timestamp.Unix()); err != nil {
		return err
	}
	if err := writeNetAddress(w, &msg.AddrYou, false); err != nil {
		return err
	}
	if err := writeNetAddress(w, &msg.AddrMe, false); err != nil {
		return err
	}
	if err := writeElement(w, msg.Nonce); err != nil {
		return err
	}
	if err := WriteVarString(w, msg.UserAgent); err != nil {
		return err
	}
	if err := writeElement(w, msg.LastBlock); err != nil {
		return err
	}
	return writeElement(w, !msg.DisableRelayTx)
}

func (msg *MsgVersion) Command() string { return CmdVersion }

func (msg *MsgVersion) MaxPayloadLength(pver uint32) uint32 {
	return 4 + 8 + 8 + 26 + 26 + 8 + uint32(VarIntSerializeSize(MaxUserAgentLen)) + MaxUserAgentLen + 4 + 1
}

// sanitizeUserAgent strips control characters and caps length, mirroring
// the node's DoS cap on the subversion field.
func sanitizeUserAgent(ua string) string {
	var b strings.Builder
	for _, r := range ua {
		if r >= 0x20 && r != 0x7f {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > MaxUserAgentLen {
		s = s[:MaxUserAgentLen]
	}
	return s
}

// NewMsgVersion returns a new version message using the provided
// parameters and defaults for the remaining fields.
func NewMsgVersion(me, you *NetAddress, nonce uint64, lastBlock int32) *MsgVersion {
	return &MsgVersion{
		ProtocolVersion: int32(ProtocolVersion),
		Services:        0,
		Timestamp:       time.Now(),
		AddrYou:         *you,
		AddrMe:          *me,
		Nonce:           nonce,
		UserAgent:       DefaultUserAgent,
		LastBlock:       lastBlock,
		DisableRelayTx:  false,
	}
}
