// Package devicesim emulates a hardware signing device behind its HTTP
// bridge. It derives keys from a seed it holds and asks an Approver before
// answering commands that require confirmation.
package devicesim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/bitfsorg/libledger-go/keys"
	"github.com/bitfsorg/libledger-go/secret"
)

// Approver decides whether the device user confirms cmd. It must return
// promptly once ctx is done.
type Approver func(ctx context.Context, cmd secret.DeviceCommand) (bool, error)

// AlwaysApprove confirms every command.
func AlwaysApprove(context.Context, secret.DeviceCommand) (bool, error) { return true, nil }

// AlwaysReject declines every command.
func AlwaysReject(context.Context, secret.DeviceCommand) (bool, error) { return false, nil }

// NeverAnswer waits until the confirmation window closes.
func NeverAnswer(ctx context.Context, _ secret.DeviceCommand) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

// Server is a simulated device bridge.
type Server struct {
	seed    []byte
	logger  zerolog.Logger
	router  *mux.Router
	mu      sync.Mutex
	status  secret.DeviceStatus
	approve Approver
	served  int
}

// Option customizes a Server.
type Option func(*Server)

// WithApprover sets the confirmation behaviour; the default approves.
func WithApprover(a Approver) Option {
	return func(s *Server) { s.approve = a }
}

// WithLogger sets the server logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New returns a connected, unlocked simulator holding seed.
func New(seed []byte, opts ...Option) *Server {
	s := &Server{
		seed:    append([]byte(nil), seed...),
		logger:  zerolog.Nop(),
		approve: AlwaysApprove,
		status: secret.DeviceStatus{
			Connected:          true,
			AppOpen:            true,
			FirmwareCompatible: true,
			Firmware:           "sim-1.0.0",
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = mux.NewRouter()
	s.router.HandleFunc(secret.DeviceStatusPath, s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc(secret.DeviceCommandPath, s.handleCommand).Methods(http.MethodPost)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetStatus replaces the simulated device state.
func (s *Server) SetStatus(status secret.DeviceStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// SetApprover replaces the confirmation behaviour.
func (s *Server) SetApprover(a Approver) {
	s.mu.Lock()
	s.approve = a
	s.mu.Unlock()
}

// Served returns the number of commands answered successfully.
func (s *Server) Served() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.served
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSONResponse(w, secret.StatusCode(err), secret.DeviceResponse{Error: err.Error()})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	status := s.status
	s.mu.Unlock()
	s.writeJSONResponse(w, http.StatusOK, status)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd secret.DeviceCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		s.logger.Error().Err(err).Msg("failed to decode device command")
		s.writeJSONResponse(w, http.StatusBadRequest, secret.DeviceResponse{Error: "invalid command format"})
		return
	}

	s.mu.Lock()
	status := s.status
	approve := s.approve
	s.mu.Unlock()

	if err := status.Ready(); err != nil {
		s.writeError(w, err)
		return
	}

	if cmd.Confirm {
		if err := s.confirm(r.Context(), approve, cmd); err != nil {
			s.logger.Info().Stringer("command", cmd.Type).Err(err).Msg("command not confirmed")
			s.writeError(w, err)
			return
		}
	}

	resp, err := s.execute(cmd)
	if err != nil {
		s.logger.Error().Stringer("command", cmd.Type).Err(err).Msg("command failed")
		s.writeJSONResponse(w, http.StatusBadRequest, secret.DeviceResponse{Error: err.Error()})
		return
	}

	s.mu.Lock()
	s.served++
	s.mu.Unlock()
	s.logger.Info().Stringer("command", cmd.Type).Stringer("chain", cmd.Chain).Msg("command served")
	s.writeJSONResponse(w, http.StatusOK, resp)
}

func (s *Server) confirm(ctx context.Context, approve Approver, cmd secret.DeviceCommand) error {
	timeout := secret.DefaultConfirmationTimeout
	if cmd.ConfirmTimeoutMS > 0 {
		timeout = time.Duration(cmd.ConfirmTimeoutMS) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := approve(ctx, cmd)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return secret.ErrConfirmationTimeout
	case err != nil:
		return err
	case !ok:
		return secret.ErrUserRejected
	default:
		return nil
	}
}

func (s *Server) execute(cmd secret.DeviceCommand) (*secret.DeviceResponse, error) {
	switch cmd.Type {
	case secret.CommandEd25519Address:
		kp, err := keys.Derive(s.seed, keys.Ed25519, cmd.Chain)
		if err != nil {
			return nil, err
		}
		defer kp.Zero()
		addr, err := kp.Ed25519Address()
		if err != nil {
			return nil, err
		}
		return &secret.DeviceResponse{Address: addr[:]}, nil
	case secret.CommandSignEssence:
		if len(cmd.Hash) != 32 {
			return nil, secret.ErrInvalidHash
		}
		kp, err := keys.Derive(s.seed, keys.Ed25519, cmd.Chain)
		if err != nil {
			return nil, err
		}
		defer kp.Zero()
		sig, err := kp.SignEd25519(cmd.Hash)
		if err != nil {
			return nil, err
		}
		return &secret.DeviceResponse{PublicKey: sig.PublicKey[:], Signature: sig.Signature[:]}, nil
	case secret.CommandEVMAddress:
		kp, err := keys.Derive(s.seed, keys.Secp256k1, cmd.Chain)
		if err != nil {
			return nil, err
		}
		defer kp.Zero()
		addr, err := kp.EVMAddress()
		if err != nil {
			return nil, err
		}
		return &secret.DeviceResponse{Address: addr[:]}, nil
	case secret.CommandSignSecp256k1:
		if len(cmd.Hash) != 32 {
			return nil, secret.ErrInvalidHash
		}
		kp, err := keys.Derive(s.seed, keys.Secp256k1, cmd.Chain)
		if err != nil {
			return nil, err
		}
		defer kp.Zero()
		sig, err := kp.SignSecp256k1(cmd.Hash)
		if err != nil {
			return nil, err
		}
		return &secret.DeviceResponse{Signature: sig}, nil
	default:
		return nil, fmt.Errorf("devicesim: unknown command %s", cmd.Type)
	}
}
