// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"testing"
	"time"

	"github.com/btcrelay/peerd/chainhash"
)

func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteMessage(&buf, msg, ProtocolVersion, MainNet); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	got, _, err := ReadMessage(&buf, ProtocolVersion, MainNet)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return got
}

func TestVersionRoundTrip(t *testing.T) {
	me := NewNetAddressIPPort(nil, 8333, SFNodeNetwork)
	you := NewNetAddressIPPort(nil, 8333, SFNodeNetwork)
	want := NewMsgVersion(me, you, 0x1234567890abcdef, 100)
	want.UserAgent = "/peerd:0.1.0/"

	got, ok := roundTrip(t, want).(*MsgVersion)
	if !ok {
		t.Fatalf("wrong type returned")
	}
	if got.Nonce != want.Nonce || got.LastBlock != want.LastBlock ||
		got.UserAgent != want.UserAgent || got.DisableRelayTx != want.DisableRelayTx {
		t.Fatalf("roundtrip mismatch: got %+v, want %+v", got, want)
	}
}

func TestPingPongRoundTrip(t *testing.T) {
	ping := NewMsgPing(42)
	got, ok := roundTrip(t, ping).(*MsgPing)
	if !ok || got.Nonce != 42 {
		t.Fatalf("ping roundtrip failed: %+v", got)
	}

	pong := NewMsgPong(42)
	gotPong, ok := roundTrip(t, pong).(*MsgPong)
	if !ok || gotPong.Nonce != 42 {
		t.Fatalf("pong roundtrip failed: %+v", gotPong)
	}
}

func TestInvBoundaries(t *testing.T) {
	inv := NewMsgInv()
	for i := 0; i < MaxInvPerMsg; i++ {
		h := chainhash.DoubleHashH([]byte{byte(i), byte(i >> 8)})
		if err := inv.AddInvVect(NewInvVect(InvTypeBlock, &h)); err != nil {
			t.Fatalf("AddInvVect at %d: %v", i, err)
		}
	}
	if err := inv.AddInvVect(NewInvVect(InvTypeBlock, &chainhash.Hash{})); err == nil {
		t.Fatalf("expected error adding beyond MaxInvPerMsg")
	}

	got, ok := roundTrip(t, inv).(*MsgInv)
	if !ok || len(got.InvList) != MaxInvPerMsg {
		t.Fatalf("roundtrip count mismatch: got %d, want %d", len(got.InvList), MaxInvPerMsg)
	}
}

func TestHeadersBoundary(t *testing.T) {
	hdrs := NewMsgHeaders()
	for i := 0; i < MaxHeadersPerMsg; i++ {
		bh := NewBlockHeader(1, &chainhash.Hash{}, &chainhash.Hash{}, 0, uint32(i))
		if err := hdrs.AddBlockHeader(bh); err != nil {
			t.Fatalf("AddBlockHeader at %d: %v", i, err)
		}
	}
	if err := hdrs.AddBlockHeader(NewBlockHeader(1, &chainhash.Hash{}, &chainhash.Hash{}, 0, 0)); err == nil {
		t.Fatalf("expected error beyond MaxHeadersPerMsg")
	}

	got, ok := roundTrip(t, hdrs).(*MsgHeaders)
	if !ok || len(got.Headers) != MaxHeadersPerMsg {
		t.Fatalf("roundtrip count mismatch: got %d, want %d", len(got.Headers), MaxHeadersPerMsg)
	}
}

func TestFilterAddBoundary(t *testing.T) {
	ok520 := &MsgFilterAdd{Data: bytes.Repeat([]byte{0x01}, MaxFilterAddDataSize)}
	if _, err := encodeMsg(ok520); err != nil {
		t.Fatalf("520 bytes should encode fine: %v", err)
	}

	tooBig := &MsgFilterAdd{Data: bytes.Repeat([]byte{0x01}, MaxFilterAddDataSize+1)}
	if _, err := encodeMsg(tooBig); err == nil {
		t.Fatalf("521 bytes should fail to encode")
	}
}

func encodeMsg(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	err := msg.BtcEncode(&buf, ProtocolVersion)
	return buf.Bytes(), err
}

func TestReadMessageBadMagic(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, NewMsgVerAck(), ProtocolVersion, TestNet3); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	_, _, err := ReadMessage(&buf, ProtocolVersion, MainNet)
	if _, ok := err.(*ErrUnknownMagic); !ok {
		t.Fatalf("expected ErrUnknownMagic, got %v", err)
	}
}

func TestReadMessageChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, NewMsgPing(7), ProtocolVersion, MainNet); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	raw := buf.Bytes()
	// Corrupt a payload byte without touching the header so the
	// checksum no longer matches.
	raw[len(raw)-1] ^= 0xff
	_, _, err := ReadMessage(bytes.NewReader(raw), ProtocolVersion, MainNet)
	if err != ErrChecksumMismatch {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestBlockHashDeterministic(t *testing.T) {
	h1 := NewBlockHeader(1, &chainhash.Hash{}, &chainhash.Hash{}, 0x1d00ffff, 0)
	h1.Timestamp = time.Unix(1231006505, 0)
	h2 := *h1

	if h1.BlockHash() != h2.BlockHash() {
		t.Fatalf("expected identical hashes for identical headers")
	}
}
