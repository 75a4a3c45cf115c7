package network

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/bitfsorg/libledger-go/ledger"
)

// Compile-time interface check.
var _ Client = (*RPCClient)(nil)

func encodeHex(b []byte) string { return "0x" + hex.EncodeToString(b) }

func decodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return b, nil
}

// SubmitBlock calls `submitblock "payloadhex"`. Node errors other than
// transport failures are reported as ErrSubmitRejected.
func (c *RPCClient) SubmitBlock(ctx context.Context, payload *ledger.TransactionPayload) (ledger.BlockID, error) {
	if payload == nil {
		return ledger.BlockID{}, fmt.Errorf("%w: nil payload", ErrSubmitRejected)
	}
	data, err := payload.Bytes()
	if err != nil {
		return ledger.BlockID{}, err
	}
	var id ledger.BlockID
	if err := c.Call(ctx, "submitblock", []any{encodeHex(data)}, &id); err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.Unwrap() == nil {
			return ledger.BlockID{}, fmt.Errorf("%w: %w", ErrSubmitRejected, err)
		}
		return ledger.BlockID{}, err
	}
	return id, nil
}

type getOutputResult struct {
	Output   string                `json:"output"`
	Metadata ledger.OutputMetadata `json:"metadata"`
}

// GetOutput calls `getoutput "outputid"`. The output travels as hex of its
// canonical encoding.
func (c *RPCClient) GetOutput(ctx context.Context, id ledger.OutputID) (*OutputResponse, error) {
	var result *getOutputResult
	if err := c.Call(ctx, "getoutput", []any{id.Hex()}, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("%w: output %s", ErrNotFound, id)
	}
	raw, err := decodeHex(result.Output)
	if err != nil {
		return nil, err
	}
	o, err := ledger.DecodeOutput(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: output %s: %w", ErrInvalidResponse, id, err)
	}
	return &OutputResponse{Output: o, Metadata: result.Metadata}, nil
}

// GetOutputIDs calls `getoutputids {query}`.
func (c *RPCClient) GetOutputIDs(ctx context.Context, query OutputQuery) ([]ledger.OutputID, error) {
	if query.Address == "" {
		return nil, errors.New("network: output query without address")
	}
	var ids []ledger.OutputID
	if err := c.Call(ctx, "getoutputids", []any{query}, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

type blockMetadataResult struct {
	BlockID        ledger.BlockID `json:"blockId"`
	InclusionState string         `json:"ledgerInclusionState"`
	ConflictReason uint8          `json:"conflictReason"`
}

// GetBlockMetadata calls `getblockmetadata "blockid"`.
func (c *RPCClient) GetBlockMetadata(ctx context.Context, id ledger.BlockID) (*BlockMetadata, error) {
	var result *blockMetadataResult
	if err := c.Call(ctx, "getblockmetadata", []any{id.Hex()}, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("%w: block %s", ErrNotFound, id)
	}
	state, err := ledger.ParseInclusionState(result.InclusionState)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return &BlockMetadata{
		BlockID:        result.BlockID,
		InclusionState: state,
		ConflictReason: result.ConflictReason,
	}, nil
}

// ProtocolParameters calls `getprotocolparameters`.
func (c *RPCClient) ProtocolParameters(ctx context.Context) (*ledger.ProtocolParameters, error) {
	var params ledger.ProtocolParameters
	if err := c.Call(ctx, "getprotocolparameters", nil, &params); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return &params, nil
}
