package ledger

import (
	"encoding/binary"
	"fmt"
)

// RentStructure prices the storage an output occupies on a node.
type RentStructure struct {
	VByteCost    uint32 `json:"vByteCost"`
	VBFactorData uint8  `json:"vByteFactorData"`
	VBFactorKey  uint8  `json:"vByteFactorKey"`
}

// ProtocolParameters are the network rules a transaction is built against.
type ProtocolParameters struct {
	NetworkName     string        `json:"networkName"`
	Bech32HRP       string        `json:"bech32Hrp"`
	TokenSupply     uint64        `json:"tokenSupply"`
	RentStructure   RentStructure `json:"rentStructure"`
	MaxInputs       int           `json:"maxInputs"`
	MaxOutputs      int           `json:"maxOutputs"`
	MaxNativeTokens int           `json:"maxNativeTokens"`
}

const (
	DefaultMaxInputs       = 128
	DefaultMaxOutputs      = 128
	DefaultMaxNativeTokens = 64
)

// DefaultRentStructure is used when a node does not report its own.
var DefaultRentStructure = RentStructure{VByteCost: 100, VBFactorData: 1, VBFactorKey: 10}

// DefaultProtocolParameters returns parameters for a named network with the default limits.
func DefaultProtocolParameters(networkName, hrp string) *ProtocolParameters {
	return &ProtocolParameters{
		NetworkName:     networkName,
		Bech32HRP:       hrp,
		TokenSupply:     4_600_000_000_000_000,
		RentStructure:   DefaultRentStructure,
		MaxInputs:       DefaultMaxInputs,
		MaxOutputs:      DefaultMaxOutputs,
		MaxNativeTokens: DefaultMaxNativeTokens,
	}
}

// NetworkID is the first eight bytes of the BLAKE2b-256 hash of the network name, little-endian.
func (p *ProtocolParameters) NetworkID() uint64 {
	d := Blake2b256([]byte(p.NetworkName))
	return binary.LittleEndian.Uint64(d[:8])
}

// Validate checks that limits and the rent structure are usable.
func (p *ProtocolParameters) Validate() error {
	if p.NetworkName == "" {
		return fmt.Errorf("%w: network name is required", ErrInvalidParameters)
	}
	if p.Bech32HRP == "" {
		return fmt.Errorf("%w: bech32 prefix is required", ErrInvalidParameters)
	}
	if p.MaxInputs <= 0 || p.MaxOutputs <= 0 || p.MaxNativeTokens <= 0 {
		return fmt.Errorf("%w: limits must be positive", ErrInvalidParameters)
	}
	return nil
}

// MinStorageDeposit returns the smallest amount o must hold to pay for the
// storage it occupies: every output pays for its id and ledger metadata as
// key bytes plus its serialized size as data bytes.
func (p *ProtocolParameters) MinStorageDeposit(o Output) (uint64, error) {
	data, err := EncodeOutput(o)
	if err != nil {
		return 0, err
	}
	rs := p.RentStructure
	offset := uint64(rs.VBFactorKey)*OutputIDLength +
		uint64(rs.VBFactorData)*(BlockIDLength+4+4)
	vbytes := offset + uint64(rs.VBFactorData)*uint64(len(data))
	return uint64(rs.VByteCost) * vbytes, nil
}
