// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"net"
	"strconv"

	"github.com/btcrelay/peerd/wire"
)

var rfc1918Nets = []net.IPNet{
	{IP: net.ParseIP("10.0.0.0"), Mask: net.CIDRMask(8, 32)},
	{IP: net.ParseIP("172.16.0.0"), Mask: net.CIDRMask(12, 32)},
	{IP: net.ParseIP("192.168.0.0"), Mask: net.CIDRMask(16, 32)},
}

var rfc3927Net = net.IPNet{IP: net.ParseIP("169.254.0.0"), Mask: net.CIDRMask(16, 32)}
var rfc3849Net = net.IPNet{IP: net.ParseIP("2001:0DB8::"), Mask: net.CIDRMask(32, 128)}
var rfc4193Net = net.IPNet{IP: net.ParseIP("FC00::"), Mask: net.CIDRMask(7, 128)}
var rfc4862Net = net.IPNet{IP: net.ParseIP("FE80::"), Mask: net.CIDRMask(64, 128)}
var zero4Net = net.IPNet{IP: net.ParseIP("0.0.0.0"), Mask: net.CIDRMask(8, 32)}

func isRFC1918(ip net.IP) bool {
	for _, n := range rfc1918Nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// isLocal returns whether the address is a loopback or all-zeros address.
func isLocal(ip net.IP) bool {
	return ip.IsLoopback() || zero4Net.Contains(ip)
}

// isValid returns false for the handful of address formats that can never
// be dialed: unspecified, the IPv6 documentation range, and the IPv4
// broadcast address.
func isValid(ip net.IP) bool {
	return !(ip.IsUnspecified() || rfc3849Net.Contains(ip) || ip.Equal(net.IPv4bcast))
}

// Routable reports whether na is potentially reachable over the public
// internet: valid, and not in any of the reserved/local/link-local
// ranges.
func Routable(na *wire.NetAddress) bool {
	ip := na.IP
	if ip == nil {
		return false
	}
	if !isValid(ip) {
		return false
	}
	if isRFC1918(ip) || rfc3927Net.Contains(ip) || rfc4862Net.Contains(ip) ||
		rfc4193Net.Contains(ip) || isLocal(ip) {
		return false
	}
	return true
}

// Key returns a string key in the form ip:port for IPv4 addresses or
// [ip]:port for IPv6 addresses, used to dedupe and index known addresses.
func Key(na *wire.NetAddress) string {
	return net.JoinHostPort(na.IP.String(), strconv.FormatUint(uint64(na.Port), 10))
}

// GroupKey returns a string identifying the network group (roughly, /16
// for IPv4) that an address belongs to, used to avoid selecting too many
// peers from the same network block.
func GroupKey(na *wire.NetAddress) string {
	ip := na.IP
	if isLocal(ip) {
		return "local"
	}
	if !Routable(na) {
		return "unroutable"
	}
	if ipv4 := ip.To4(); ipv4 != nil {
		return (&net.IPNet{IP: ipv4, Mask: net.CIDRMask(16, 32)}).String()
	}
	return (&net.IPNet{IP: ip, Mask: net.CIDRMask(32, 128)}).String()
}
