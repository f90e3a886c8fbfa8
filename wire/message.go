// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
)

// MessageStartSize is the number of bytes in a message's network magic.
const MessageStartSize = 4

// CommandSize is the fixed, zero-padded size of a message command.
const CommandSize = 12

// checksumSize is the number of bytes of the double-SHA256 checksum
// carried in the envelope.
const checksumSize = 4

// Message command strings, one per dispatcher handler.
const (
	CmdVersion         = "version"
	CmdVerAck          = "verack"
	CmdGetAddr         = "getaddr"
	CmdAddr            = "addr"
	CmdGetBlocks       = "getblocks"
	CmdInv             = "inv"
	CmdGetData         = "getdata"
	CmdNotFound        = "notfound"
	CmdBlock           = "block"
	CmdTx              = "tx"
	CmdGetHeaders      = "getheaders"
	CmdHeaders         = "headers"
	CmdPing            = "ping"
	CmdPong            = "pong"
	CmdReject          = "reject"
	CmdSendHeaders     = "sendheaders"
	CmdSendCmpct       = "sendcmpct"
	CmdFilterLoad      = "filterload"
	CmdFilterAdd       = "filteradd"
	CmdFilterClear     = "filterclear"
	CmdFilterSizeXthin = "filtersizextn"
	CmdMemPool         = "mempool"
	CmdMerkleBlock     = "merkleblock"
	CmdBUVersion       = "buversion"
	CmdBUVerAck        = "buverack"
)

// Message is the interface every wire protocol payload implements.
type Message interface {
	BtcDecode(r io.Reader, pver uint32) error
	BtcEncode(w io.Writer, pver uint32) error
	Command() string
	MaxPayloadLength(pver uint32) uint32
}

// makeEmptyMessage returns a new, empty message for the given command so it
// can be decoded into.
func makeEmptyMessage(command string) (Message, error) {
	switch command {
	case CmdVersion:
		return &MsgVersion{}, nil
	case CmdVerAck:
		return &MsgVerAck{}, nil
	case CmdGetAddr:
		return &MsgGetAddr{}, nil
	case CmdAddr:
		return &MsgAddr{}, nil
	case CmdGetBlocks:
		return &MsgGetBlocks{}, nil
	case CmdInv:
		return &MsgInv{}, nil
	case CmdGetData:
		return &MsgGetData{}, nil
	case CmdNotFound:
		return &MsgNotFound{}, nil
	case CmdBlock:
		return &MsgBlock{}, nil
	case CmdTx:
		return &MsgTx{}, nil
	case CmdGetHeaders:
		return &MsgGetHeaders{}, nil
	case CmdHeaders:
		return &MsgHeaders{}, nil
	case CmdPing:
		return &MsgPing{}, nil
	case CmdPong:
		return &MsgPong{}, nil
	case CmdReject:
		return &MsgReject{}, nil
	case CmdSendHeaders:
		return &MsgSendHeaders{}, nil
	case CmdSendCmpct:
		return &MsgSendCmpct{}, nil
	case CmdFilterLoad:
		return &MsgFilterLoad{}, nil
	case CmdFilterAdd:
		return &MsgFilterAdd{}, nil
	case CmdFilterClear:
		return &MsgFilterClear{}, nil
	case CmdFilterSizeXthin:
		return &MsgFilterSizeXthin{}, nil
	case CmdMemPool:
		return &MsgMemPool{}, nil
	case CmdMerkleBlock:
		return &MsgMerkleBlock{}, nil
	case CmdBUVersion:
		return &MsgBUVersion{}, nil
	case CmdBUVerAck:
		return &MsgBUVerAck{}, nil
	default:
		return nil, fmt.Errorf("unhandled command [%s]", command)
	}
}

// messageHeader holds the decoded fields of a message envelope.
type messageHeader struct {
	magic    BitcoinNet
	command  string
	length   uint32
	checksum [checksumSize]byte
}

func readMessageHeader(r io.Reader) (int, *messageHeader, error) {
	var headerBytes [MessageStartSize + CommandSize + 4 + checksumSize]byte
	n, err := io.ReadFull(r, headerBytes[:])
	if err != nil {
		return n, nil, err
	}
	hr := bytes.NewReader(headerBytes[:])

	hdr := messageHeader{}
	var command [CommandSize]byte
	var magic uint32

	if err := binary.Read(hr, binary.LittleEndian, &magic); err != nil {
		return n, nil, err
	}
	hdr.magic = BitcoinNet(magic)
	if _, err := io.ReadFull(hr, command[:]); err != nil {
		return n, nil, err
	}
	hdr.command = string(bytes.TrimRight(command[:], "\x00"))
	if err := binary.Read(hr, binary.LittleEndian, &hdr.length); err != nil {
		return n, nil, err
	}
	if _, err := io.ReadFull(hr, hdr.checksum[:]); err != nil {
		return n, nil, err
	}

	return n, &hdr, nil
}

// ErrUnknownMagic is returned when a message's network magic does not
// match the magic of the network we are connected to.
type ErrUnknownMagic struct {
	Got BitcoinNet
}

func (e *ErrUnknownMagic) Error() string {
	return fmt.Sprintf("unexpected network magic 0x%08x", uint32(e.Got))
}

// ErrChecksumMismatch is returned when the double-SHA256 checksum of the
// payload does not match the checksum carried in the header.
var ErrChecksumMismatch = fmt.Errorf("payload checksum mismatch")

// ReadMessage reads, validates and parses the next bitcoin message from r
// for the provided protocol version and network. It performs two
// envelope-level gates: a magic mismatch is returned as *ErrUnknownMagic
// (the caller bans), and a checksum mismatch is returned as
// ErrChecksumMismatch (the caller skips the message and keeps the
// connection).
func ReadMessage(r io.Reader, pver uint32, btcnet BitcoinNet) (Message, []byte, error) {
	totalBytes := 0
	n, hdr, err := readMessageHeader(r)
	totalBytes += n
	if err != nil {
		return nil, nil, err
	}

	if hdr.magic != btcnet {
		return nil, nil, &ErrUnknownMagic{Got: hdr.magic}
	}

	if hdr.length > MaxMessagePayload {
		return nil, nil, fmt.Errorf("message payload is too large - "+
			"header indicates %d bytes, but max message payload is %d bytes",
			hdr.length, MaxMessagePayload)
	}

	payload := make([]byte, hdr.length)
	n, err = io.ReadFull(r, payload)
	totalBytes += n
	if err != nil {
		return nil, nil, err
	}

	checksum := chainDoubleHashFirstFour(payload)
	if !bytes.Equal(checksum, hdr.checksum[:]) {
		return nil, nil, ErrChecksumMismatch
	}

	msg, err := makeEmptyMessage(hdr.command)
	if err != nil {
		return nil, nil, err
	}

	pr := bytes.NewReader(payload)
	if err := msg.BtcDecode(pr, pver); err != nil {
		return nil, nil, err
	}

	return msg, payload, nil
}

// WriteMessage writes a bitcoin message to w including the appropriate
// message envelope.
func WriteMessage(w io.Writer, msg Message, pver uint32, btcnet BitcoinNet) error {
	var bw bytes.Buffer
	if err := msg.BtcEncode(&bw, pver); err != nil {
		return err
	}
	payload := bw.Bytes()
	lenp := len(payload)

	command := msg.Command()
	if len(command) > CommandSize {
		return fmt.Errorf("command [%s] is too long", command)
	}

	var hdr bytes.Buffer
	hdr.Grow(MessageStartSize + CommandSize + 4 + checksumSize)
	_ = binary.Write(&hdr, binary.LittleEndian, uint32(btcnet))

	var cmdBuf [CommandSize]byte
	copy(cmdBuf[:], command)
	hdr.Write(cmdBuf[:])

	_ = binary.Write(&hdr, binary.LittleEndian, uint32(lenp))
	hdr.Write(chainDoubleHashFirstFour(payload))

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func chainDoubleHashFirstFour(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:checksumSize]
}
