// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// validLogLevels lists the accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validNetworks = map[string]bool{
	"mainnet": true,
	"testnet": true,
	"devnet":  true,
}

var validStores = map[string]bool{
	"bolt":    true,
	"badger":  true,
	"leveldb": true,
	"memory":  true,
}

var validSecrets = map[string]bool{
	"mnemonic": true,
	"vault":    true,
	"device":   true,
}

// ValidateConfig checks that all configuration values are within acceptable
// ranges and returns the first error encountered, or nil if valid.
func ValidateConfig(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrEmptyDataDir
	}

	if !validNetworks[cfg.Network] {
		return ErrInvalidNetwork
	}

	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return ErrInvalidLogLevel
	}

	if !validStores[cfg.StoreBackend] {
		return fmt.Errorf("%w: store %q", ErrInvalidBackend, cfg.StoreBackend)
	}
	if !validSecrets[cfg.SecretBackend] {
		return fmt.Errorf("%w: secret %q", ErrInvalidBackend, cfg.SecretBackend)
	}
	if cfg.SecretBackend == "device" && cfg.DeviceURL == "" {
		return fmt.Errorf("%w: device backend needs a device URL", ErrInvalidURL)
	}

	for name, raw := range map[string]string{"node": cfg.NodeURL, "device": cfg.DeviceURL} {
		if raw == "" {
			continue
		}
		if err := validateURL(raw); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidURL, name, err)
		}
	}

	if cfg.SubmitAttempts <= 0 {
		return fmt.Errorf("%w: submit attempts must be positive", ErrInvalidTiming)
	}
	if cfg.SubmitBackoff <= 0 || cfg.SubmitMaxBackoff < cfg.SubmitBackoff {
		return fmt.Errorf("%w: backoff %s..%s", ErrInvalidTiming, cfg.SubmitBackoff, cfg.SubmitMaxBackoff)
	}
	if cfg.PollInterval <= 0 || cfg.InclusionTimeout < cfg.PollInterval {
		return fmt.Errorf("%w: poll %s within %s", ErrInvalidTiming, cfg.PollInterval, cfg.InclusionTimeout)
	}

	return nil
}

// validateURL checks that raw is an absolute http or https URL.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
