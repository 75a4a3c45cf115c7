package secret

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bitfsorg/libledger-go/keys"
	"github.com/bitfsorg/libledger-go/ledger"
)

// Bridge endpoints.
const (
	DeviceStatusPath  = "/status"
	DeviceCommandPath = "/command"
)

// DefaultConfirmationTimeout is how long the device user has to answer a prompt.
const DefaultConfirmationTimeout = 120 * time.Second

// DefaultTransportTimeout bounds the HTTP round trip to the bridge. It is
// added to the confirmation timeout when a prompt is shown.
const DefaultTransportTimeout = 10 * time.Second

// CommandType discriminates the requests a device understands.
type CommandType uint8

const (
	CommandEd25519Address CommandType = iota + 1
	CommandSignEssence
	CommandEVMAddress
	CommandSignSecp256k1
)

func (c CommandType) String() string {
	switch c {
	case CommandEd25519Address:
		return "ed25519-address"
	case CommandSignEssence:
		return "sign-essence"
	case CommandEVMAddress:
		return "evm-address"
	case CommandSignSecp256k1:
		return "sign-secp256k1"
	default:
		return fmt.Sprintf("command(%d)", uint8(c))
	}
}

// DeviceCommand is one request sent to the device bridge.
type DeviceCommand struct {
	Type  CommandType `json:"type"`
	Chain keys.Chain  `json:"chain"`
	Hash  []byte      `json:"hash,omitempty"`
	// Confirm asks the device to show the request and wait for the user.
	Confirm bool `json:"confirm"`
	// ConfirmTimeoutMS bounds how long the bridge waits for the user.
	ConfirmTimeoutMS int64 `json:"confirm_timeout_ms,omitempty"`
}

// DeviceResponse is the bridge's answer to a DeviceCommand.
type DeviceResponse struct {
	Address   []byte `json:"address,omitempty"`
	PublicKey []byte `json:"public_key,omitempty"`
	Signature []byte `json:"signature,omitempty"`
	Error     string `json:"error,omitempty"`
}

// DeviceStatus describes the state of the device behind the bridge.
type DeviceStatus struct {
	Connected          bool   `json:"connected"`
	Locked             bool   `json:"locked"`
	AppOpen            bool   `json:"app_open"`
	FirmwareCompatible bool   `json:"firmware_compatible"`
	Firmware           string `json:"firmware,omitempty"`
}

// Ready reports whether the device can serve commands.
func (s DeviceStatus) Ready() error {
	switch {
	case !s.Connected:
		return ErrDeviceNotConnected
	case s.Locked:
		return ErrDeviceLocked
	case !s.AppOpen:
		return ErrAppNotOpen
	case !s.FirmwareCompatible:
		return ErrFirmwareIncompatible
	default:
		return nil
	}
}

// StatusError maps a bridge HTTP status to the matching sentinel error.
func StatusError(code int) error {
	switch code {
	case http.StatusOK:
		return nil
	case http.StatusForbidden:
		return ErrUserRejected
	case http.StatusGatewayTimeout:
		return ErrConfirmationTimeout
	case http.StatusLocked:
		return ErrDeviceLocked
	case http.StatusServiceUnavailable:
		return ErrDeviceNotConnected
	case http.StatusConflict:
		return ErrAppNotOpen
	case http.StatusPreconditionFailed:
		return ErrFirmwareIncompatible
	default:
		return fmt.Errorf("%w: bridge returned status %d", ErrDeviceProtocol, code)
	}
}

// StatusCode is the inverse of StatusError, used by bridge implementations.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUserRejected):
		return http.StatusForbidden
	case errors.Is(err, ErrConfirmationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrDeviceLocked):
		return http.StatusLocked
	case errors.Is(err, ErrDeviceNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrAppNotOpen):
		return http.StatusConflict
	case errors.Is(err, ErrFirmwareIncompatible):
		return http.StatusPreconditionFailed
	default:
		return http.StatusBadRequest
	}
}

// DeviceConfig configures a DeviceManager.
type DeviceConfig struct {
	// URL is the base URL of the bridge, e.g. http://localhost:18790.
	URL                 string
	RequireConfirmation bool
	ConfirmationTimeout time.Duration
	TransportTimeout    time.Duration
	HTTPClient          *http.Client
	Logger              zerolog.Logger
}

// DeviceManager proxies key operations to a hardware device through its HTTP
// bridge. A device handles one request at a time, so calls are serialized.
type DeviceManager struct {
	baseURL        string
	confirm        bool
	confirmTimeout time.Duration
	ioTimeout      time.Duration
	client         *http.Client
	logger         zerolog.Logger

	// sem holds one token; an operation owns the device while it holds it.
	sem chan struct{}
}

var (
	_ Manager   = (*DeviceManager)(nil)
	_ EVMSigner = (*DeviceManager)(nil)
	_ Serial    = (*DeviceManager)(nil)
)

// NewDeviceManager creates a proxy for the bridge at cfg.URL.
func NewDeviceManager(cfg DeviceConfig) *DeviceManager {
	timeout := cfg.ConfirmationTimeout
	if timeout <= 0 {
		timeout = DefaultConfirmationTimeout
	}
	ioTimeout := cfg.TransportTimeout
	if ioTimeout <= 0 {
		ioTimeout = DefaultTransportTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &DeviceManager{
		baseURL:        strings.TrimRight(cfg.URL, "/"),
		confirm:        cfg.RequireConfirmation,
		confirmTimeout: timeout,
		ioTimeout:      ioTimeout,
		client:         client,
		logger:         cfg.Logger.With().Str("component", "device").Logger(),
		sem:            make(chan struct{}, 1),
	}
}

// acquire waits for the device or for ctx, whichever comes first.
func (d *DeviceManager) acquire(ctx context.Context) error {
	select {
	case d.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *DeviceManager) release() { <-d.sem }

// Serial reports that the device serves one request at a time.
func (d *DeviceManager) Serial() bool { return true }

// Status queries the device state.
func (d *DeviceManager) Status(ctx context.Context) (DeviceStatus, error) {
	if err := d.acquire(ctx); err != nil {
		return DeviceStatus{}, err
	}
	defer d.release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+DeviceStatusPath, nil)
	if err != nil {
		return DeviceStatus{}, fmt.Errorf("secret: build status request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return DeviceStatus{}, ctx.Err()
		}
		return DeviceStatus{}, fmt.Errorf("%w: %w", ErrDeviceNotConnected, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return DeviceStatus{}, StatusError(resp.StatusCode)
	}
	var status DeviceStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return DeviceStatus{}, fmt.Errorf("%w: decode status: %w", ErrDeviceProtocol, err)
	}
	return status, nil
}

// do sends cmd and blocks until the bridge answers, the confirmation window
// closes, or ctx is cancelled. A user who does not answer in time is
// reported by the bridge; a local deadline is a transport failure.
func (d *DeviceManager) do(ctx context.Context, cmd DeviceCommand) (*DeviceResponse, error) {
	if err := d.acquire(ctx); err != nil {
		return nil, err
	}
	defer d.release()

	cmd.Confirm = d.confirm
	if d.confirm {
		cmd.ConfirmTimeoutMS = d.confirmTimeout.Milliseconds()
	}
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("secret: encode device command: %w", err)
	}

	deadline := d.ioTimeout
	if d.confirm {
		deadline += d.confirmTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, d.baseURL+DeviceCommandPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("secret: build device request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	d.logger.Debug().Stringer("command", cmd.Type).Stringer("chain", cmd.Chain).Bool("confirm", cmd.Confirm).Msg("device command")
	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrDeviceTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrDeviceNotConnected, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		err := StatusError(resp.StatusCode)
		d.logger.Warn().Stringer("command", cmd.Type).Err(err).Msg("device command failed")
		return nil, err
	}
	var out DeviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrDeviceProtocol, err)
	}
	return &out, nil
}

func (d *DeviceManager) Ed25519Address(ctx context.Context, chain keys.Chain) (ledger.Ed25519Address, error) {
	resp, err := d.do(ctx, DeviceCommand{Type: CommandEd25519Address, Chain: chain})
	if err != nil {
		return ledger.Ed25519Address{}, err
	}
	if len(resp.Address) != ledger.AddressIDLength {
		return ledger.Ed25519Address{}, fmt.Errorf("%w: address length %d", ErrDeviceProtocol, len(resp.Address))
	}
	var addr ledger.Ed25519Address
	copy(addr[:], resp.Address)
	return addr, nil
}

// SignEssenceHash asks the device to sign hash. The returned signature is
// checked against the hash before it is handed out.
func (d *DeviceManager) SignEssenceHash(ctx context.Context, hash ledger.Digest, chain keys.Chain) (ledger.Ed25519Signature, error) {
	resp, err := d.do(ctx, DeviceCommand{Type: CommandSignEssence, Chain: chain, Hash: hash.Bytes()})
	if err != nil {
		return ledger.Ed25519Signature{}, err
	}
	var sig ledger.Ed25519Signature
	if len(resp.PublicKey) != len(sig.PublicKey) || len(resp.Signature) != len(sig.Signature) {
		return ledger.Ed25519Signature{}, fmt.Errorf("%w: signature shape", ErrDeviceProtocol)
	}
	copy(sig.PublicKey[:], resp.PublicKey)
	copy(sig.Signature[:], resp.Signature)
	if !sig.Valid(hash[:]) {
		return ledger.Ed25519Signature{}, fmt.Errorf("%w: signature does not verify", ErrDeviceProtocol)
	}
	return sig, nil
}

func (d *DeviceManager) EVMAddress(ctx context.Context, chain keys.Chain) ([20]byte, error) {
	resp, err := d.do(ctx, DeviceCommand{Type: CommandEVMAddress, Chain: chain})
	if err != nil {
		return [20]byte{}, err
	}
	var addr [20]byte
	if len(resp.Address) != len(addr) {
		return [20]byte{}, fmt.Errorf("%w: address length %d", ErrDeviceProtocol, len(resp.Address))
	}
	copy(addr[:], resp.Address)
	return addr, nil
}

func (d *DeviceManager) SignSecp256k1(ctx context.Context, hash []byte, chain keys.Chain) ([]byte, error) {
	if len(hash) != 32 {
		return nil, ErrInvalidHash
	}
	resp, err := d.do(ctx, DeviceCommand{Type: CommandSignSecp256k1, Chain: chain, Hash: hash})
	if err != nil {
		return nil, err
	}
	if len(resp.Signature) == 0 {
		return nil, fmt.Errorf("%w: empty signature", ErrDeviceProtocol)
	}
	return resp.Signature, nil
}
