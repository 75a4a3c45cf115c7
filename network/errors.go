package network

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConnectionFailed indicates the client could not reach the node.
	ErrConnectionFailed = errors.New("network: connection failed")

	// ErrAuthFailed indicates the RPC credentials were rejected.
	ErrAuthFailed = errors.New("network: authentication failed")

	// ErrNotFound indicates the requested output, block or id is unknown to the node.
	ErrNotFound = errors.New("network: not found")

	// ErrSubmitRejected indicates the node refused the submitted transaction.
	ErrSubmitRejected = errors.New("network: submission rejected")

	// ErrInvalidResponse indicates the node returned a malformed or unexpected response.
	ErrInvalidResponse = errors.New("network: invalid response")
)

// RPC error codes with a dedicated meaning.
const (
	CodeNotFound       = -5
	CodeRejected       = -26
	CodeAlreadyKnown   = -27
	CodeInWarmup       = -28
	CodeMisc           = -1
	CodeInvalidParams  = -32602
	CodeMethodNotFound = -32601
)

// RPCError is an error reported by the node in a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("network: rpc error %d: %s", e.Code, e.Message)
}

// Unwrap maps well-known codes onto the package sentinels.
func (e *RPCError) Unwrap() error {
	switch e.Code {
	case CodeNotFound:
		return ErrNotFound
	case CodeRejected, CodeAlreadyKnown:
		return ErrSubmitRejected
	case CodeInWarmup:
		return ErrConnectionFailed
	default:
		return nil
	}
}

// IsRetryable reports whether err is transient: the node could not be
// reached or is still starting. Rejections, unknown ids, malformed data and
// cancellation are final.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrSubmitRejected) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidResponse) || errors.Is(err, ErrAuthFailed) {
		return false
	}
	return errors.Is(err, ErrConnectionFailed) || errors.Is(err, context.DeadlineExceeded)
}
