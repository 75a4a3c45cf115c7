package network

import (
	"context"

	"github.com/bitfsorg/libledger-go/ledger"
)

// MockClient is a test double for Client.
// All function fields must be set before the corresponding method is called.
type MockClient struct {
	SubmitBlockFn        func(ctx context.Context, payload *ledger.TransactionPayload) (ledger.BlockID, error)
	GetOutputFn          func(ctx context.Context, id ledger.OutputID) (*OutputResponse, error)
	GetOutputIDsFn       func(ctx context.Context, query OutputQuery) ([]ledger.OutputID, error)
	GetBlockMetadataFn   func(ctx context.Context, id ledger.BlockID) (*BlockMetadata, error)
	ProtocolParametersFn func(ctx context.Context) (*ledger.ProtocolParameters, error)
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) SubmitBlock(ctx context.Context, payload *ledger.TransactionPayload) (ledger.BlockID, error) {
	return m.SubmitBlockFn(ctx, payload)
}
func (m *MockClient) GetOutput(ctx context.Context, id ledger.OutputID) (*OutputResponse, error) {
	return m.GetOutputFn(ctx, id)
}
func (m *MockClient) GetOutputIDs(ctx context.Context, query OutputQuery) ([]ledger.OutputID, error) {
	return m.GetOutputIDsFn(ctx, query)
}
func (m *MockClient) GetBlockMetadata(ctx context.Context, id ledger.BlockID) (*BlockMetadata, error) {
	return m.GetBlockMetadataFn(ctx, id)
}
func (m *MockClient) ProtocolParameters(ctx context.Context) (*ledger.ProtocolParameters, error) {
	return m.ProtocolParametersFn(ctx)
}
