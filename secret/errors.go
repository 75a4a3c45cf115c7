package secret

import "errors"

var (
	// ErrInvalidMnemonic indicates the mnemonic fails BIP39 validation.
	ErrInvalidMnemonic = errors.New("secret: invalid BIP39 mnemonic")

	// ErrInvalidEntropy indicates entropy bits is not 128 or 256.
	ErrInvalidEntropy = errors.New("secret: entropy bits must be 128 or 256")

	// ErrLocked indicates a signing request against a vault that has not been unlocked.
	ErrLocked = errors.New("secret: vault is locked")

	// ErrUserRejected indicates the device user declined the request.
	ErrUserRejected = errors.New("secret: request rejected on device")

	// ErrConfirmationTimeout indicates the device user did not answer in time.
	ErrConfirmationTimeout = errors.New("secret: device confirmation timed out")

	// ErrDeviceTimeout indicates the bridge did not answer before the local
	// transport deadline.
	ErrDeviceTimeout = errors.New("secret: device bridge timed out")

	// ErrDeviceLocked indicates the device is connected but PIN-locked.
	ErrDeviceLocked = errors.New("secret: device is locked")

	// ErrDeviceNotConnected indicates the device bridge or device cannot be reached.
	ErrDeviceNotConnected = errors.New("secret: device not connected")

	// ErrAppNotOpen indicates the ledger application is not running on the device.
	ErrAppNotOpen = errors.New("secret: device application not open")

	// ErrFirmwareIncompatible indicates the device firmware cannot serve the request.
	ErrFirmwareIncompatible = errors.New("secret: device firmware incompatible")

	// ErrDeviceProtocol indicates a malformed bridge response.
	ErrDeviceProtocol = errors.New("secret: device protocol error")

	// ErrInvalidHash indicates a hash of the wrong length.
	ErrInvalidHash = errors.New("secret: hash must be 32 bytes")
)
