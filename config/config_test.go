// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/btcrelay/peerd/chaincfg"
)

func TestCleanAndExpandPath(t *testing.T) {
	home := peerdHomeDir()

	tests := []struct {
		path string
		want string
	}{
		{"~", filepath.Clean(filepath.Dir(home))},
		{"~/data", filepath.Join(filepath.Dir(home), "data")},
		{"/tmp/foo", "/tmp/foo"},
	}

	for _, test := range tests {
		got := cleanAndExpandPath(test.path)
		if got != test.want {
			t.Errorf("cleanAndExpandPath(%q) = %q, want %q", test.path, got, test.want)
		}
	}
}

func TestCleanAndExpandPathEnv(t *testing.T) {
	os.Setenv("PEERDTESTVAR", "envval")
	defer os.Unsetenv("PEERDTESTVAR")

	got := cleanAndExpandPath("$PEERDTESTVAR/sub")
	want := filepath.Clean("envval/sub")
	if got != want {
		t.Errorf("cleanAndExpandPath env expansion = %q, want %q", got, want)
	}
}

func TestActiveParamsDefaultsToMainNet(t *testing.T) {
	cfg := Config{activeParams: &chaincfg.MainNetParams}
	if cfg.ActiveParams().Name != chaincfg.MainNetParams.Name {
		t.Errorf("ActiveParams() = %s, want %s", cfg.ActiveParams().Name, chaincfg.MainNetParams.Name)
	}
}

func TestVersion(t *testing.T) {
	v := Version()
	if v == "" {
		t.Fatal("Version() returned empty string")
	}
}
