package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libledger-go/ledger"
)

// rpcTestServer creates a mock JSON-RPC server for testing RPCClient methods.
// handlers maps RPC method names to handler functions that receive the request params
// and return either a result or an RPCError.
func rpcTestServer(t *testing.T, handlers map[string]func(params []any) (any, *RPCError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		handler, ok := handlers[req.Method]
		if !ok {
			t.Errorf("unexpected RPC method: %s", req.Method)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		result, rpcErr := handler(req.Params)
		resp := rpcResponse{ID: req.ID}
		if rpcErr != nil {
			resp.Error = rpcErr
			w.WriteHeader(http.StatusInternalServerError)
		} else {
			resp.Result, _ = json.Marshal(result)
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func fill(b byte) [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = b
	}
	return out
}

func testOutput() ledger.BasicOutput {
	return ledger.BasicOutput{
		Amount:           1_000_000,
		UnlockConditions: ledger.UnlockConditions{ledger.AddressUnlockCondition{Address: ledger.Ed25519Address(fill(0x11))}},
	}
}

func testPayload() *ledger.TransactionPayload {
	return &ledger.TransactionPayload{
		Essence: &ledger.TransactionEssence{
			NetworkID: 7,
			Inputs:    []ledger.OutputID{ledger.NewOutputID(ledger.TransactionID(fill(1)), 0)},
			Outputs:   ledger.Outputs{testOutput()},
		},
		Unlocks: ledger.Unlocks{ledger.SignatureUnlock{}},
	}
}

func TestGetOutput(t *testing.T) {
	id := ledger.NewOutputID(ledger.TransactionID(fill(2)), 3)
	data, err := ledger.EncodeOutput(testOutput())
	require.NoError(t, err)

	server := rpcTestServer(t, map[string]func(params []any) (any, *RPCError){
		"getoutput": func(params []any) (any, *RPCError) {
			require.Len(t, params, 1)
			assert.Equal(t, id.Hex(), params[0])
			return map[string]any{
				"output": encodeHex(data),
				"metadata": map[string]any{
					"blockId":                  ledger.BlockID(fill(9)).Hex(),
					"transactionId":            ledger.TransactionID(fill(2)).Hex(),
					"outputIndex":              3,
					"isSpent":                  false,
					"milestoneIndexBooked":     12,
					"milestoneTimestampBooked": 1_700_000_000,
				},
			}, nil
		},
	})
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL})
	resp, err := client.GetOutput(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, testOutput(), resp.Output)
	assert.Equal(t, ledger.BlockID(fill(9)), resp.Metadata.BlockID)
	assert.Equal(t, uint16(3), resp.Metadata.OutputIndex)
	assert.Equal(t, uint32(12), resp.Metadata.BookedIndex)
}

func TestGetOutput_NotFound(t *testing.T) {
	server := rpcTestServer(t, map[string]func(params []any) (any, *RPCError){
		"getoutput": func(params []any) (any, *RPCError) {
			return nil, &RPCError{Code: CodeNotFound, Message: "no such output"}
		},
	})
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL})
	_, err := client.GetOutput(context.Background(), ledger.OutputID{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetOutput_Malformed(t *testing.T) {
	server := rpcTestServer(t, map[string]func(params []any) (any, *RPCError){
		"getoutput": func(params []any) (any, *RPCError) {
			return map[string]any{"output": "0xff"}, nil
		},
	})
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL})
	_, err := client.GetOutput(context.Background(), ledger.OutputID{})
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestGetOutputIDs(t *testing.T) {
	want := []ledger.OutputID{
		ledger.NewOutputID(ledger.TransactionID(fill(1)), 0),
		ledger.NewOutputID(ledger.TransactionID(fill(2)), 1),
	}
	no := false
	server := rpcTestServer(t, map[string]func(params []any) (any, *RPCError){
		"getoutputids": func(params []any) (any, *RPCError) {
			require.Len(t, params, 1)
			q, ok := params[0].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "rms1qz", q["address"])
			assert.Equal(t, false, q["hasTimelock"])
			assert.NotContains(t, q, "hasExpiration")
			return []string{want[0].Hex(), want[1].Hex()}, nil
		},
	})
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL})
	ids, err := client.GetOutputIDs(context.Background(), OutputQuery{Address: "rms1qz", HasTimelock: &no})
	require.NoError(t, err)
	assert.Equal(t, want, ids)

	_, err = client.GetOutputIDs(context.Background(), OutputQuery{})
	assert.Error(t, err)
}

func TestSubmitBlock(t *testing.T) {
	blockID := ledger.BlockID(fill(0xB1))
	payload := testPayload()
	server := rpcTestServer(t, map[string]func(params []any) (any, *RPCError){
		"submitblock": func(params []any) (any, *RPCError) {
			require.Len(t, params, 1)
			raw, err := decodeHex(params[0].(string))
			require.NoError(t, err)
			decoded, err := ledger.DecodeTransactionPayload(raw)
			require.NoError(t, err)
			assert.Equal(t, payload.Essence.NetworkID, decoded.Essence.NetworkID)
			return blockID.Hex(), nil
		},
	})
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL})
	id, err := client.SubmitBlock(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, blockID, id)
}

func TestSubmitBlock_Rejected(t *testing.T) {
	tests := []struct {
		name string
		err  *RPCError
	}{
		{"rejected code", &RPCError{Code: CodeRejected, Message: "inputs already spent"}},
		{"generic code", &RPCError{Code: CodeMisc, Message: "invalid transaction"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := rpcTestServer(t, map[string]func(params []any) (any, *RPCError){
				"submitblock": func(params []any) (any, *RPCError) { return nil, tt.err },
			})
			defer server.Close()

			client := NewRPCClient(RPCConfig{URL: server.URL})
			_, err := client.SubmitBlock(context.Background(), testPayload())
			assert.ErrorIs(t, err, ErrSubmitRejected)
			assert.False(t, IsRetryable(err))
		})
	}
}

func TestGetBlockMetadata(t *testing.T) {
	tests := []struct {
		state string
		want  ledger.InclusionState
	}{
		{"", ledger.InclusionPending},
		{"included", ledger.InclusionIncluded},
		{"conflicting", ledger.InclusionConflicting},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			id := ledger.BlockID(fill(5))
			server := rpcTestServer(t, map[string]func(params []any) (any, *RPCError){
				"getblockmetadata": func(params []any) (any, *RPCError) {
					assert.Equal(t, id.Hex(), params[0])
					return map[string]any{"blockId": id.Hex(), "ledgerInclusionState": tt.state}, nil
				},
			})
			defer server.Close()

			client := NewRPCClient(RPCConfig{URL: server.URL})
			md, err := client.GetBlockMetadata(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, id, md.BlockID)
			assert.Equal(t, tt.want, md.InclusionState)
		})
	}
}

func TestProtocolParameters(t *testing.T) {
	want := ledger.DefaultProtocolParameters("testnet", "rms")
	server := rpcTestServer(t, map[string]func(params []any) (any, *RPCError){
		"getprotocolparameters": func(params []any) (any, *RPCError) {
			assert.Empty(t, params)
			return want, nil
		},
	})
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL})
	got, err := client.ProtocolParameters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, want.NetworkID(), got.NetworkID())
}

func TestProtocolParameters_Invalid(t *testing.T) {
	server := rpcTestServer(t, map[string]func(params []any) (any, *RPCError){
		"getprotocolparameters": func(params []any) (any, *RPCError) {
			return map[string]any{"networkName": "x"}, nil
		},
	})
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL})
	_, err := client.ProtocolParameters(context.Background())
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestMockClient(t *testing.T) {
	var submitted *ledger.TransactionPayload
	m := &MockClient{
		SubmitBlockFn: func(_ context.Context, p *ledger.TransactionPayload) (ledger.BlockID, error) {
			submitted = p
			return ledger.BlockID(fill(1)), nil
		},
	}
	var c Client = m
	id, err := c.SubmitBlock(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, ledger.BlockID(fill(1)), id)
	assert.NotNil(t, submitted)
}
