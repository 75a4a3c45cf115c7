// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config loads and saves the library configuration file.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Config holds every setting the library reads from its configuration file.
// It is passed explicitly to constructors; nothing is read from the process
// environment behind the caller's back.
type Config struct {
	DataDir  string
	Network  string
	LogLevel string
	LogFile  string

	NodeURL      string
	NodeUser     string
	NodePassword string

	// StoreBackend is one of "bolt", "badger", "leveldb" or "memory".
	StoreBackend string
	// SecretBackend is one of "mnemonic", "vault" or "device".
	SecretBackend       string
	VaultPath           string
	DeviceURL           string
	RequireConfirmation bool
	CoinType            uint32

	SubmitAttempts   int
	SubmitBackoff    time.Duration
	SubmitMaxBackoff time.Duration
	PollInterval     time.Duration
	InclusionTimeout time.Duration
}

// DefaultDataDir returns ~/.libledger, or .libledger when the home
// directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".libledger"
	}
	return filepath.Join(home, ".libledger")
}

// ConfigPath returns the configuration file path inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(filepath.Clean(dataDir), "config")
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		DataDir:          DefaultDataDir(),
		Network:          "mainnet",
		LogLevel:         "info",
		StoreBackend:     "bolt",
		SecretBackend:    "vault",
		CoinType:         4218,
		SubmitAttempts:   5,
		SubmitBackoff:    time.Second,
		SubmitMaxBackoff: 30 * time.Second,
		PollInterval:     5 * time.Second,
		InclusionTimeout: 5 * time.Minute,
	}
}

// field binds a configuration key to a Config field.
type field struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringField(p func(c *Config) *string) field {
	return field{
		get: func(c *Config) string { return *p(c) },
		set: func(c *Config, v string) error { *p(c) = v; return nil },
	}
}

func durationField(p func(c *Config) *time.Duration) field {
	return field{
		get: func(c *Config) string { return p(c).String() },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			*p(c) = d
			return nil
		},
	}
}

var fields = map[string]field{
	"datadir":   stringField(func(c *Config) *string { return &c.DataDir }),
	"network":   stringField(func(c *Config) *string { return &c.Network }),
	"loglevel":  stringField(func(c *Config) *string { return &c.LogLevel }),
	"logfile":   stringField(func(c *Config) *string { return &c.LogFile }),
	"node_url":  stringField(func(c *Config) *string { return &c.NodeURL }),
	"node_user": stringField(func(c *Config) *string { return &c.NodeUser }),
	"node_pass": stringField(func(c *Config) *string { return &c.NodePassword }),
	"store":     stringField(func(c *Config) *string { return &c.StoreBackend }),
	"secret":    stringField(func(c *Config) *string { return &c.SecretBackend }),
	"vault":     stringField(func(c *Config) *string { return &c.VaultPath }),
	"device":    stringField(func(c *Config) *string { return &c.DeviceURL }),
	"confirm": {
		get: func(c *Config) string { return strconv.FormatBool(c.RequireConfirmation) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			c.RequireConfirmation = b
			return err
		},
	},
	"cointype": {
		get: func(c *Config) string { return strconv.FormatUint(uint64(c.CoinType), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 31)
			c.CoinType = uint32(n)
			return err
		},
	},
	"submit_attempts": {
		get: func(c *Config) string { return strconv.Itoa(c.SubmitAttempts) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			c.SubmitAttempts = n
			return err
		},
	},
	"submit_backoff":     durationField(func(c *Config) *time.Duration { return &c.SubmitBackoff }),
	"submit_max_backoff": durationField(func(c *Config) *time.Duration { return &c.SubmitMaxBackoff }),
	"poll_interval":      durationField(func(c *Config) *time.Duration { return &c.PollInterval }),
	"inclusion_timeout":  durationField(func(c *Config) *time.Duration { return &c.InclusionTimeout }),
}

// keyOrder is the order SaveConfig writes keys in.
var keyOrder = []string{
	"datadir", "network", "loglevel", "logfile",
	"node_url", "node_user", "node_pass",
	"store", "secret", "vault", "device", "confirm", "cointype",
	"submit_attempts", "submit_backoff", "submit_max_backoff", "poll_interval", "inclusion_timeout",
}

// LoadConfig reads a key = value configuration file on top of DefaultConfig.
// Blank lines and lines starting with '#' are skipped; unknown keys are
// ignored so newer files still load.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, err := parseKeyValue(line)
		if err != nil {
			return cfg, fmt.Errorf("%w: line %d: %q", err, lineNo, line)
		}
		fd, ok := fields[key]
		if !ok {
			continue
		}
		if err := fd.set(&cfg, value); err != nil {
			return cfg, fmt.Errorf("%w: line %d: %s: %w", ErrInvalidConfigValue, lineNo, key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	return cfg, nil
}

// parseKeyValue splits a line on its first '='.
func parseKeyValue(line string) (string, string, error) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", ErrInvalidConfigLine
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "", "", ErrInvalidConfigLine
	}
	return key, strings.TrimSpace(value), nil
}

// SaveConfig writes cfg to path, creating the parent directory. The file
// may hold the node password, so it is only readable by the owner.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# libledger configuration\n")
	for _, key := range keyOrder {
		fmt.Fprintf(&b, "%s = %s\n", key, fields[key].get(&cfg))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Keys returns the recognised configuration keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
