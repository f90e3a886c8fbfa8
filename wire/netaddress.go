// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
	"net"
	"time"
)

// MaxNetAddressPayload returns the max length of a NetAddress based on the
// protocol version.
func MaxNetAddressPayload(pver uint32) int {
	plen := 26
	if pver >= BIP0111Version {
		plen = 30 // timestamp
	}
	return plen
}

// NetAddress defines information about a peer on the network, including
// the time it was last seen, the services it supports, its IP address, and
// port.
type NetAddress struct {
	// Timestamp is the last time the address was seen, ignored in the
	// version message.
	Timestamp time.Time

	// Services the peer supports.
	Services ServiceFlag

	// IP the peer's IP address.
	IP net.IP

	// Port the peer is listening on.
	Port uint16
}

// NewNetAddressIPPort returns a new NetAddress using the provided IP,
// port, and supported services with defaults for the remaining fields.
func NewNetAddressIPPort(ip net.IP, port uint16, services ServiceFlag) *NetAddress {
	return &NetAddress{
		Timestamp: time.Now(),
		Services:  services,
		IP:        ip,
		Port:      port,
	}
}

func readNetAddress(r io.Reader, na *NetAddress, ts bool) error {
	var ip [16]byte

	if ts {
		var stamp uint32
		if err := readElement(r, &stamp); err != nil {
			return err
		}
		na.Timestamp = time.Unix(int64(stamp), 0)
	}

	if err := readElement(r, &na.Services); err != nil {
		return err
	}
	if _, err := io.ReadFull(r, ip[:]); err != nil {
		return err
	}
	var port uint16
	if err := readBigEndianUint16(r, &port); err != nil {
		return err
	}

	*na = NetAddress{
		Timestamp: na.Timestamp,
		Services:  na.Services,
		IP:        net.IP(append([]byte(nil), ip[:]...)),
		Port:      port,
	}
	return nil
}

func writeNetAddress(w io.Writer, na *NetAddress, ts bool) error {
	if ts {
		if err := writeElement(w, uint32(na.Timestamp.Unix())); err != nil {
			return err
		}
	}

	if err := writeElement(w, na.Services); err != nil {
		return err
	}

	var ip [16]byte
	if na.IP != nil {
		copy(ip[:], na.IP.To16())
	}
	if _, err := w.Write(ip[:]); err != nil {
		return err
	}

	return writeBigEndianUint16(w, na.Port)
}

func readBigEndianUint16(r io.Reader, v *uint16) error {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	*v = uint16(b[0])<<8 | uint16(b[1])
	return nil
}

func writeBigEndianUint16(w io.Writer, v uint16) error {
	b := [2]byte{byte(v >> 8), byte(v)}
	_, err := w.Write(b[:])
	return err
}
