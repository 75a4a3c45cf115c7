// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// DefaultConfig tests
// ---------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"Network", cfg.Network, "mainnet"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogFile", cfg.LogFile, ""},
		{"StoreBackend", cfg.StoreBackend, "bolt"},
		{"SecretBackend", cfg.SecretBackend, "vault"},
		{"CoinType", cfg.CoinType, uint32(4218)},
		{"SubmitAttempts", cfg.SubmitAttempts, 5},
		{"SubmitBackoff", cfg.SubmitBackoff, time.Second},
		{"SubmitMaxBackoff", cfg.SubmitMaxBackoff, 30 * time.Second},
		{"PollInterval", cfg.PollInterval, 5 * time.Second},
		{"InclusionTimeout", cfg.InclusionTimeout, 5 * time.Minute},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %v, want %v", tc.got, tc.want)
			}
		})
	}

	if !strings.HasSuffix(cfg.DataDir, ".libledger") {
		t.Errorf("DataDir %q should end with .libledger", cfg.DataDir)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

// ---------------------------------------------------------------------------
// SaveConfig / LoadConfig round-trip tests
// ---------------------------------------------------------------------------

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")

	original := Config{
		DataDir:             "/tmp/test-ledger",
		Network:             "testnet",
		LogLevel:            "debug",
		LogFile:             "/tmp/ledger.log",
		NodeURL:             "https://node.example:14265",
		NodeUser:            "alice",
		NodePassword:        "s3cret",
		StoreBackend:        "leveldb",
		SecretBackend:       "device",
		VaultPath:           "/tmp/vault.json",
		DeviceURL:           "http://127.0.0.1:9999",
		RequireConfirmation: true,
		CoinType:            4219,
		SubmitAttempts:      7,
		SubmitBackoff:       250 * time.Millisecond,
		SubmitMaxBackoff:    10 * time.Second,
		PollInterval:        2 * time.Second,
		InclusionTimeout:    time.Minute,
	}

	if err := SaveConfig(path, original); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded != original {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", loaded, original)
	}
}

func TestSaveConfig_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "config")

	if err := SaveConfig(path, DefaultConfig()); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file should exist: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestSaveConfig_FileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	if err := SaveConfig(path, DefaultConfig()); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	content := string(data)

	if !strings.HasPrefix(content, "# libledger configuration\n") {
		t.Error("config file should start with the header comment")
	}
	for _, want := range []string{"network = mainnet", "store = bolt", "submit_backoff = 1s", "confirm = false"} {
		if !strings.Contains(content, want+"\n") {
			t.Errorf("config file missing line %q", want)
		}
	}
}

// ---------------------------------------------------------------------------
// LoadConfig parsing tests
// ---------------------------------------------------------------------------

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadConfig_NotFound(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("got %v, want ErrConfigNotFound", err)
	}
}

func TestLoadConfig_CommentsAndBlankLines(t *testing.T) {
	path := writeConfig(t, "# comment\n\n   \n  # indented comment\nnetwork = devnet\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Network != "devnet" {
		t.Errorf("Network = %q, want devnet", cfg.Network)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("unset keys should keep defaults, LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoadConfig_UnknownKeysIgnored(t *testing.T) {
	path := writeConfig(t, "listen = :8080\nfuture_option = 1\nstore = badger\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.StoreBackend != "badger" {
		t.Errorf("StoreBackend = %q, want badger", cfg.StoreBackend)
	}
}

func TestLoadConfig_ValueWithEquals(t *testing.T) {
	path := writeConfig(t, "node_pass = a=b=c\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.NodePassword != "a=b=c" {
		t.Errorf("NodePassword = %q, want a=b=c", cfg.NodePassword)
	}
}

func TestLoadConfig_WhitespaceAndCase(t *testing.T) {
	path := writeConfig(t, "  NETWORK   =   testnet  \nlogfile =\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Network != "testnet" {
		t.Errorf("Network = %q, want testnet", cfg.Network)
	}
	if cfg.LogFile != "" {
		t.Errorf("LogFile = %q, want empty", cfg.LogFile)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"missing equals", "network mainnet\n", ErrInvalidConfigLine},
		{"empty key", " = value\n", ErrInvalidConfigLine},
		{"bad duration", "poll_interval = soon\n", ErrInvalidConfigValue},
		{"bad bool", "confirm = maybe\n", ErrInvalidConfigValue},
		{"bad attempts", "submit_attempts = many\n", ErrInvalidConfigValue},
		{"coin type overflow", "cointype = 4294967295\n", ErrInvalidConfigValue},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.content))
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ValidateConfig tests
// ---------------------------------------------------------------------------

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{"valid", func(c *Config) {}, nil},
		{"empty datadir", func(c *Config) { c.DataDir = "" }, ErrEmptyDataDir},
		{"bad network", func(c *Config) { c.Network = "regtest" }, ErrInvalidNetwork},
		{"upper log level", func(c *Config) { c.LogLevel = "DEBUG" }, nil},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, ErrInvalidLogLevel},
		{"bad store", func(c *Config) { c.StoreBackend = "sqlite" }, ErrInvalidBackend},
		{"bad secret", func(c *Config) { c.SecretBackend = "hsm" }, ErrInvalidBackend},
		{"device without url", func(c *Config) { c.SecretBackend = "device" }, ErrInvalidURL},
		{"device with url", func(c *Config) {
			c.SecretBackend = "device"
			c.DeviceURL = "http://127.0.0.1:9000"
		}, nil},
		{"node url scheme", func(c *Config) { c.NodeURL = "ftp://node" }, ErrInvalidURL},
		{"node url host", func(c *Config) { c.NodeURL = "http://" }, ErrInvalidURL},
		{"zero attempts", func(c *Config) { c.SubmitAttempts = 0 }, ErrInvalidTiming},
		{"max below base", func(c *Config) { c.SubmitMaxBackoff = time.Millisecond }, ErrInvalidTiming},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }, ErrInvalidTiming},
		{"timeout below poll", func(c *Config) { c.InclusionTimeout = time.Second }, ErrInvalidTiming},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := ValidateConfig(cfg)
			if tc.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

func TestConfigPath(t *testing.T) {
	got := ConfigPath("/data/ledger/")
	want := filepath.Join("/data/ledger", "config")
	if got != want {
		t.Errorf("ConfigPath = %q, want %q", got, want)
	}
}

func TestKeys(t *testing.T) {
	keys := Keys()
	if len(keys) != len(keyOrder) {
		t.Fatalf("Keys() has %d entries, keyOrder has %d", len(keys), len(keyOrder))
	}
	for _, k := range keyOrder {
		if _, ok := fields[k]; !ok {
			t.Errorf("keyOrder entry %q has no field", k)
		}
	}
}
