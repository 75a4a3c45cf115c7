package network

import (
	"fmt"
	"time"
)

// RPCConfig holds the connection parameters of a node's JSON-RPC interface.
type RPCConfig struct {
	URL      string        `json:"url"`
	User     string        `json:"user"`
	Password string        `json:"password"`
	Network  string        `json:"network"`
	Timeout  time.Duration `json:"timeout"`
}

// Environment variables consulted by ResolveConfig.
const (
	EnvNodeURL      = "LIBLEDGER_NODE_URL"
	EnvNodeUser     = "LIBLEDGER_NODE_USER"
	EnvNodePassword = "LIBLEDGER_NODE_PASS"
)

// NetworkPresets contains default node endpoints for known networks.
// Mainnet is intentionally omitted to require explicit configuration.
var NetworkPresets = map[string]RPCConfig{
	"devnet":  {URL: "http://localhost:14265"},
	"testnet": {URL: "http://localhost:14265"},
}

// ResolveConfig merges node configuration from three sources with decreasing priority:
//  1. Explicit settings (flags or config file)
//  2. Environment variables (LIBLEDGER_NODE_URL, LIBLEDGER_NODE_USER, LIBLEDGER_NODE_PASS)
//  3. Network presets (devnet/testnet only)
func ResolveConfig(flags *RPCConfig, env map[string]string, network string) (*RPCConfig, error) {
	result := RPCConfig{Network: network}

	if preset, ok := NetworkPresets[network]; ok {
		result = preset
		result.Network = network
	}

	if env != nil {
		if v := env[EnvNodeURL]; v != "" {
			result.URL = v
		}
		if v := env[EnvNodeUser]; v != "" {
			result.User = v
		}
		if v := env[EnvNodePassword]; v != "" {
			result.Password = v
		}
	}

	if flags != nil {
		if flags.URL != "" {
			result.URL = flags.URL
		}
		if flags.User != "" {
			result.User = flags.User
		}
		if flags.Password != "" {
			result.Password = flags.Password
		}
		if flags.Timeout > 0 {
			result.Timeout = flags.Timeout
		}
	}

	if result.URL == "" {
		return nil, fmt.Errorf("network: %s requires an explicit node URL (set node_url or %s)", network, EnvNodeURL)
	}
	return &result, nil
}
