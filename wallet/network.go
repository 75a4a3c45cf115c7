package wallet

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bitfsorg/libledger-go/ledger"
)

// NetworkConfig names a ledger network and the address and key settings
// accounts on it use.
type NetworkConfig struct {
	Name        string `json:"name"`
	Bech32HRP   string `json:"bech32_hrp"`
	CoinType    uint32 `json:"coin_type"`
	TokenSupply uint64 `json:"token_supply"`
}

// Predefined network configurations.
var (
	MainNet = NetworkConfig{
		Name:        "mainnet",
		Bech32HRP:   "iota",
		CoinType:    4218,
		TokenSupply: 4_600_000_000_000_000,
	}

	TestNet = NetworkConfig{
		Name:        "testnet",
		Bech32HRP:   "atoi",
		CoinType:    4218,
		TokenSupply: 4_600_000_000_000_000,
	}

	DevNet = NetworkConfig{
		Name:        "devnet",
		Bech32HRP:   "rms",
		CoinType:    4219,
		TokenSupply: 1_813_620_509_061_365,
	}
)

// predefined maps network names to their configs.
var predefined = map[string]*NetworkConfig{
	"mainnet": &MainNet,
	"testnet": &TestNet,
	"devnet":  &DevNet,
}

// GetNetwork returns a predefined network by name.
// If the name is not predefined, it returns ErrInvalidNetwork.
func GetNetwork(name string) (*NetworkConfig, error) {
	if net, ok := predefined[name]; ok {
		return net, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidNetwork, name)
}

// LoadCustomNetwork loads a NetworkConfig from a JSON file.
func LoadCustomNetwork(path string) (*NetworkConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wallet: failed to read network config: %w", err)
	}

	var config NetworkConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("wallet: failed to parse network config: %w", err)
	}

	if config.Name == "" {
		return nil, fmt.Errorf("%w: network config must have a name", ErrInvalidNetwork)
	}
	if config.Bech32HRP == "" {
		return nil, fmt.Errorf("%w: network %q has no bech32 prefix", ErrInvalidNetwork, config.Name)
	}

	return &config, nil
}

// Params returns default protocol parameters for the network. They are used
// when preparing offline; an online driver asks the node instead.
func (n *NetworkConfig) Params() *ledger.ProtocolParameters {
	p := ledger.DefaultProtocolParameters(n.Name, n.Bech32HRP)
	if n.TokenSupply > 0 {
		p.TokenSupply = n.TokenSupply
	}
	return p
}

// Matches checks that a node's parameters belong to this network.
func (n *NetworkConfig) Matches(p *ledger.ProtocolParameters) error {
	if p == nil {
		return fmt.Errorf("%w: node reported no parameters", ErrNetworkMismatch)
	}
	if p.NetworkName != n.Name || p.Bech32HRP != n.Bech32HRP {
		return fmt.Errorf("%w: node runs %q (%s), configured %q (%s)",
			ErrNetworkMismatch, p.NetworkName, p.Bech32HRP, n.Name, n.Bech32HRP)
	}
	return nil
}
