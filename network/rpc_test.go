package network

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCClientCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "testuser", user)
		assert.Equal(t, "testpass", pass)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getinfo", req.Method)

		resp := rpcResponse{ID: req.ID, Result: json.RawMessage(`100`)}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL, User: "testuser", Password: "testpass"})
	var n int
	err := client.Call(context.Background(), "getinfo", nil, &n)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
}

func TestRPCClientRPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		resp := rpcResponse{
			Error: &RPCError{Code: CodeNotFound, Message: "output not found"},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL})
	var result json.RawMessage
	err := client.Call(context.Background(), "getoutput", []any{"0x00"}, &result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output not found")
	assert.ErrorIs(t, err, ErrNotFound)

	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, CodeNotFound, rpcErr.Code)
}

func TestRPCClientAuthFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL, User: "bad"})
	err := client.Call(context.Background(), "getinfo", nil, nil)
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.False(t, IsRetryable(err))
}

func TestRPCClientConnectionError(t *testing.T) {
	client := NewRPCClient(RPCConfig{URL: "http://localhost:1"})
	var result int
	err := client.Call(context.Background(), "getinfo", nil, &result)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.True(t, IsRetryable(err))
}

func TestRPCClientContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var result int
	err := client.Call(ctx, "getinfo", nil, &result)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsRetryable(err))
}

func TestRPCClientInvalidResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL})
	err := client.Call(context.Background(), "getinfo", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestRPCClientSequentialIDs(t *testing.T) {
	var ids []int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		ids = append(ids, req.ID)
		resp := rpcResponse{ID: req.ID, Result: json.RawMessage(`0`)}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewRPCClient(RPCConfig{URL: server.URL})
	for i := 0; i < 3; i++ {
		var n int
		client.Call(context.Background(), "getinfo", nil, &n)
	}
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection", ErrConnectionFailed, true},
		{"deadline", context.DeadlineExceeded, true},
		{"warmup", &RPCError{Code: CodeInWarmup}, true},
		{"rejected", &RPCError{Code: CodeRejected}, false},
		{"not found", ErrNotFound, false},
		{"canceled", context.Canceled, false},
		{"other rpc", &RPCError{Code: CodeMisc}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
