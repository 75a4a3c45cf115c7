package wallet

import "errors"

var (
	// ErrInvalidNetwork indicates unknown network name with no custom config.
	ErrInvalidNetwork = errors.New("wallet: invalid network name")

	// ErrNetworkMismatch indicates the node serves a different network than configured.
	ErrNetworkMismatch = errors.New("wallet: node network does not match configuration")

	// ErrInvalidAlias indicates an empty or malformed account alias.
	ErrInvalidAlias = errors.New("wallet: invalid account alias")

	// ErrAccountExists indicates the account alias is already taken.
	ErrAccountExists = errors.New("wallet: account already exists")

	// ErrAccountNotFound indicates the named account does not exist.
	ErrAccountNotFound = errors.New("wallet: account not found")

	// ErrAccountLimit indicates no further BIP44 account index is available.
	ErrAccountLimit = errors.New("wallet: account index would exceed hardened boundary")

	// ErrNoSigner indicates an operation that needs keys on a wallet without a secret manager.
	ErrNoSigner = errors.New("wallet: no secret manager configured")

	// ErrNotVault indicates Unlock or Lock on a wallet not backed by a vault file.
	ErrNotVault = errors.New("wallet: secret manager is not a vault")

	// ErrNoExchange indicates an offline operation without an exchange directory.
	ErrNoExchange = errors.New("wallet: no exchange directory")

	// ErrClosed indicates use of a closed wallet.
	ErrClosed = errors.New("wallet: closed")
)
