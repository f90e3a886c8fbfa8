// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import "testing"

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"127.0.0.1", "127.0.0.1:8333"},
		{"127.0.0.1:9999", "127.0.0.1:9999"},
		{"example.com", "example.com:8333"},
		{"[::1]:1234", "[::1]:1234"},
	}

	for _, test := range tests {
		got := normalizeAddress(test.addr, "8333")
		if got != test.want {
			t.Errorf("normalizeAddress(%q) = %q, want %q", test.addr, got, test.want)
		}
	}
}

func TestNormalizeAddresses(t *testing.T) {
	got := normalizeAddresses([]string{"1.1.1.1", "2.2.2.2:5555"}, "8333")
	want := []string{"1.1.1.1:8333", "2.2.2.2:5555"}

	if len(got) != len(want) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseAndSetDebugLevelsSingleLevel(t *testing.T) {
	parseAndSetDebugLevels("debug")
}

func TestParseAndSetDebugLevelsPerSubsystem(t *testing.T) {
	parseAndSetDebugLevels("SYNC=debug,PEER=trace")
}
