// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import "errors"

var (
	// ErrInvalidNetwork indicates the network name is not recognized.
	ErrInvalidNetwork = errors.New("config: invalid network (must be \"mainnet\", \"testnet\", or \"devnet\")")

	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("config: invalid log level (must be \"debug\", \"info\", \"warn\", or \"error\")")

	// ErrEmptyDataDir indicates the data directory path is empty.
	ErrEmptyDataDir = errors.New("config: data directory must not be empty")

	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config: configuration file not found")

	// ErrInvalidConfigLine indicates a line in the config file is malformed.
	ErrInvalidConfigLine = errors.New("config: invalid configuration line")

	// ErrInvalidConfigValue indicates a value that does not parse for its key.
	ErrInvalidConfigValue = errors.New("config: invalid configuration value")

	// ErrInvalidBackend indicates an unknown store or secret backend.
	ErrInvalidBackend = errors.New("config: invalid backend")

	// ErrInvalidURL indicates a node or device URL that is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("config: invalid URL")

	// ErrInvalidTiming indicates a non-positive retry or polling setting.
	ErrInvalidTiming = errors.New("config: invalid submission timing")
)
