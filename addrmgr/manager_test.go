// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr_test

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/btcrelay/peerd/addrmgr"
	"github.com/btcrelay/peerd/wire"
)

func mkAddr(ip string, port uint16) *wire.NetAddress {
	return &wire.NetAddress{
		Timestamp: time.Now(),
		IP:        net.ParseIP(ip),
		Port:      port,
		Services:  wire.SFNodeNetwork,
	}
}

func TestKeyFormatsIPv4AndIPv6(t *testing.T) {
	tests := []struct {
		ip   string
		port uint16
		want string
	}{
		{"127.0.0.1", 8333, "127.0.0.1:8333"},
		{"::1", 8333, "[::1]:8333"},
		{"2001:db8::1", 8444, "[2001:db8::1]:8444"},
	}
	for _, tc := range tests {
		got := addrmgr.Key(mkAddr(tc.ip, tc.port))
		if got != tc.want {
			t.Errorf("Key(%s:%d) = %s, want %s", tc.ip, tc.port, got, tc.want)
		}
	}
}

func TestRoutableRejectsReservedRanges(t *testing.T) {
	notRoutable := []string{"10.0.0.1", "172.16.0.1", "192.168.1.1", "169.254.1.1", "127.0.0.1", "0.0.0.0"}
	for _, ip := range notRoutable {
		if addrmgr.Routable(mkAddr(ip, 8333)) {
			t.Errorf("expected %s to be non-routable", ip)
		}
	}

	routable := []string{"8.8.8.8", "1.1.1.1"}
	for _, ip := range routable {
		if !addrmgr.Routable(mkAddr(ip, 8333)) {
			t.Errorf("expected %s to be routable", ip)
		}
	}
}

func TestGroupKeyGroupsByIPv4Slash16(t *testing.T) {
	a := addrmgr.GroupKey(mkAddr("8.8.1.1", 8333))
	b := addrmgr.GroupKey(mkAddr("8.8.2.2", 8333))
	if a != b {
		t.Errorf("expected same /16 group, got %s and %s", a, b)
	}

	c := addrmgr.GroupKey(mkAddr("9.9.1.1", 8333))
	if a == c {
		t.Errorf("expected different group for unrelated /16, got same %s", a)
	}
}

func TestManagerAddAndRetrieve(t *testing.T) {
	m := addrmgr.New("")
	src := mkAddr("1.2.3.4", 8333)

	if m.NumAddresses() != 0 {
		t.Fatalf("expected empty manager")
	}

	for i := 0; i < 10; i++ {
		na := mkAddr("8.8.0."+strconv.Itoa(i+1), 8333)
		m.AddAddress(na, src)
	}
	if m.NumAddresses() == 0 {
		t.Fatalf("expected addresses to be tracked after AddAddress")
	}

	if got := m.GetAddress(); got == nil {
		t.Fatalf("expected GetAddress to return a candidate")
	}
}

func TestManagerGoodPromotesToTried(t *testing.T) {
	m := addrmgr.New("")
	na := mkAddr("8.8.8.8", 8333)
	m.AddAddress(na, na)
	m.Attempt(na)
	m.Good(na)

	got := m.GetAddress()
	if got == nil {
		t.Fatalf("expected a candidate after promoting to tried")
	}
}

func TestManagerIgnoresUnroutable(t *testing.T) {
	m := addrmgr.New("")
	na := mkAddr("10.0.0.5", 8333)
	m.AddAddress(na, na)
	if m.NumAddresses() != 0 {
		t.Fatalf("expected unroutable address to be ignored")
	}
}

func TestNeedMoreAddresses(t *testing.T) {
	m := addrmgr.New("")
	if !m.NeedMoreAddresses() {
		t.Fatalf("empty manager should need more addresses")
	}
}
