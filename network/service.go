package network

import (
	"context"

	"github.com/bitfsorg/libledger-go/ledger"
)

// Client is the node the library prepares transactions for. It is the only
// way the library talks to the ledger.
type Client interface {
	// SubmitBlock wraps payload in a block, sends it and returns the block id.
	SubmitBlock(ctx context.Context, payload *ledger.TransactionPayload) (ledger.BlockID, error)

	// GetOutput returns an output together with its ledger metadata.
	GetOutput(ctx context.Context, id ledger.OutputID) (*OutputResponse, error)

	// GetOutputIDs returns the ids of the unspent outputs matching query.
	GetOutputIDs(ctx context.Context, query OutputQuery) ([]ledger.OutputID, error)

	// GetBlockMetadata returns the inclusion state of a block's transaction.
	GetBlockMetadata(ctx context.Context, id ledger.BlockID) (*BlockMetadata, error)

	// ProtocolParameters returns the parameters of the network the node runs.
	ProtocolParameters(ctx context.Context) (*ledger.ProtocolParameters, error)
}

// OutputResponse is an output as reported by a node.
type OutputResponse struct {
	Output   ledger.Output
	Metadata ledger.OutputMetadata
}

// OutputQuery filters unspent outputs by their unlock conditions.
type OutputQuery struct {
	// Address is the bech32 form of the owning address.
	Address string `json:"address"`
	// Optional filters; nil means "don't care".
	HasStorageDepositReturn *bool `json:"hasStorageDepositReturn,omitempty"`
	HasTimelock             *bool `json:"hasTimelock,omitempty"`
	HasExpiration           *bool `json:"hasExpiration,omitempty"`
	HasNativeTokens         *bool `json:"hasNativeTokens,omitempty"`
}

// BlockMetadata is the ledger view of a submitted block.
type BlockMetadata struct {
	BlockID        ledger.BlockID        `json:"blockId"`
	InclusionState ledger.InclusionState `json:"-"`
	// ConflictReason is set when the transaction was rejected by the ledger.
	ConflictReason uint8 `json:"conflictReason,omitempty"`
}
