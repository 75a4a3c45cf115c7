// Package wallet ties the library together: it opens the store, the node
// client and the secret manager named by a config.Config and hands out
// accounts that prepare, sign and submit transactions.
package wallet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bitfsorg/libledger-go/config"
	"github.com/bitfsorg/libledger-go/keys"
	"github.com/bitfsorg/libledger-go/network"
	"github.com/bitfsorg/libledger-go/secret"
	"github.com/bitfsorg/libledger-go/storage"
	"github.com/bitfsorg/libledger-go/submit"
)

// MaxAliasLength bounds account aliases.
const MaxAliasLength = 64

var (
	prefixIndex  = []byte("index/")
	keyNextIndex = []byte("meta/next-index")
)

// Wallet owns the resources shared by its accounts.
type Wallet struct {
	cfg      config.Config
	network  *NetworkConfig
	kv       storage.KV
	client   network.Client
	signer   secret.Manager
	exchange *storage.FileExchange
	logger   zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	accounts map[string]*Account
	closed   bool
}

// Option customises Open.
type Option func(*Wallet)

// WithClient replaces the JSON-RPC node client built from the config.
func WithClient(c network.Client) Option {
	return func(w *Wallet) { w.client = c }
}

// WithSigner replaces the secret manager built from the config. It is the
// only way to use the mnemonic back end, as mnemonics never live in config files.
func WithSigner(m secret.Manager) Option {
	return func(w *Wallet) { w.signer = m }
}

// WithStore uses kv instead of opening the configured backend. The wallet
// takes ownership of kv.
func WithStore(kv storage.KV) Option {
	return func(w *Wallet) { w.kv = kv }
}

// WithNetwork uses a custom network instead of a predefined one.
func WithNetwork(n *NetworkConfig) Option {
	return func(w *Wallet) { w.network = n }
}

// WithLogger sets the logger handed to every component.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Wallet) { w.logger = l }
}

// WithClock sets the clock used for ownership and timelock checks.
func WithClock(now func() time.Time) Option {
	return func(w *Wallet) { w.now = now }
}

// Open validates cfg and wires the wallet's collaborators.
func Open(cfg config.Config, opts ...Option) (*Wallet, error) {
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	w := &Wallet{
		cfg:      cfg,
		logger:   zerolog.Nop(),
		now:      time.Now,
		accounts: make(map[string]*Account),
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.network == nil {
		n, err := GetNetwork(cfg.Network)
		if err != nil {
			return nil, err
		}
		w.network = n
	}

	if w.client == nil {
		rpc, err := network.ResolveConfig(&network.RPCConfig{
			URL:      cfg.NodeURL,
			User:     cfg.NodeUser,
			Password: cfg.NodePassword,
		}, nil, w.network.Name)
		if err != nil {
			return nil, err
		}
		w.client = network.NewRPCClient(*rpc)
	}

	if w.signer == nil {
		w.signer = signerFor(cfg, w.logger)
	}

	if w.kv == nil {
		backend, err := storage.ParseBackend(cfg.StoreBackend)
		if err != nil {
			return nil, err
		}
		kv, err := storage.Open(backend, filepath.Join(cfg.DataDir, "store."+string(backend)), w.logger)
		if err != nil {
			return nil, err
		}
		w.kv = kv
	}

	ex, err := storage.NewFileExchange(filepath.Join(cfg.DataDir, "exchange"))
	if err != nil {
		_ = w.kv.Close()
		return nil, err
	}
	w.exchange = ex

	w.logger.Info().
		Str("network", w.network.Name).
		Str("store", cfg.StoreBackend).
		Str("secret", cfg.SecretBackend).
		Bool("signer", w.signer != nil).
		Msg("wallet opened")
	return w, nil
}

// signerFor builds the secret manager named by cfg. The mnemonic back end
// yields nil: it must be supplied with WithSigner.
func signerFor(cfg config.Config, logger zerolog.Logger) secret.Manager {
	switch cfg.SecretBackend {
	case "vault":
		path := cfg.VaultPath
		if path == "" {
			path = filepath.Join(cfg.DataDir, "vault.json")
		}
		return secret.NewVaultManager(path, logger)
	case "device":
		return secret.NewDeviceManager(secret.DeviceConfig{
			URL:                 cfg.DeviceURL,
			RequireConfirmation: cfg.RequireConfirmation,
			Logger:              logger,
		})
	}
	return nil
}

// Network returns the network the wallet operates on.
func (w *Wallet) Network() *NetworkConfig { return w.network }

// Signer returns the secret manager, or nil for a wallet that only prepares
// and submits.
func (w *Wallet) Signer() secret.Manager { return w.signer }

// Exchange returns the directory used to move transactions to and from an
// offline signer.
func (w *Wallet) Exchange() *storage.FileExchange { return w.exchange }

// Unlock decrypts the vault backing the wallet.
func (w *Wallet) Unlock(password string) error {
	vm, ok := w.signer.(*secret.VaultManager)
	if !ok {
		return ErrNotVault
	}
	return vm.Unlock(password)
}

// Lock wipes the vault seed from memory.
func (w *Wallet) Lock() error {
	vm, ok := w.signer.(*secret.VaultManager)
	if !ok {
		return ErrNotVault
	}
	vm.Lock()
	return nil
}

// ValidateAlias checks that alias can name an account.
func ValidateAlias(alias string) error {
	if alias == "" || len(alias) > MaxAliasLength {
		return fmt.Errorf("%w: %q", ErrInvalidAlias, alias)
	}
	if strings.ContainsAny(alias, "/ \t\r\n") {
		return fmt.Errorf("%w: %q contains a separator", ErrInvalidAlias, alias)
	}
	return nil
}

func indexKey(alias string) []byte {
	return append(append([]byte{}, prefixIndex...), alias...)
}

// Accounts lists account aliases in order.
func (w *Wallet) Accounts() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	var aliases []string
	err := w.kv.ForEach(prefixIndex, func(key, _ []byte) error {
		aliases = append(aliases, string(key[len(prefixIndex):]))
		return nil
	})
	return aliases, err
}

// nextIndexLocked returns the BIP44 account index to hand out next.
// Indices of removed accounts are never reused.
func (w *Wallet) nextIndexLocked() (uint32, error) {
	raw, err := w.kv.Get(keyNextIndex)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 4 {
		return 0, fmt.Errorf("%w: account index of %d bytes", storage.ErrCorrupt, len(raw))
	}
	next := binary.BigEndian.Uint32(raw)
	if next > keys.MaxIndex {
		return 0, ErrAccountLimit
	}
	return next, nil
}

func putIndex(kv storage.KV, key []byte, idx uint32) error {
	var raw [4]byte
	binary.BigEndian.PutUint32(raw[:], idx)
	return kv.Put(key, raw[:])
}

// CreateAccount registers a new account under the next free BIP44 account index.
func (w *Wallet) CreateAccount(alias string) (*Account, error) {
	if err := ValidateAlias(alias); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	if _, err := w.kv.Get(indexKey(alias)); err == nil {
		return nil, fmt.Errorf("%w: %q", ErrAccountExists, alias)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	idx, err := w.nextIndexLocked()
	if err != nil {
		return nil, err
	}
	state := &storage.AccountState{Alias: alias, CoinType: w.cfg.CoinType, Index: idx}
	a, err := w.newAccount(state)
	if err != nil {
		return nil, err
	}
	if err := a.store.SaveAccountState(state); err != nil {
		return nil, err
	}
	if err := putIndex(w.kv, indexKey(alias), idx); err != nil {
		return nil, err
	}
	if err := putIndex(w.kv, keyNextIndex, idx+1); err != nil {
		return nil, err
	}
	w.accounts[alias] = a
	w.logger.Info().Str("alias", alias).Uint32("index", idx).Msg("account created")
	return a, nil
}

// Account returns the account registered under alias.
func (w *Wallet) Account(alias string) (*Account, error) {
	if err := ValidateAlias(alias); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	if a, ok := w.accounts[alias]; ok {
		return a, nil
	}
	store := w.accountStore(alias)
	state, err := store.LoadAccountState(alias)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrAccountNotFound, alias)
		}
		return nil, err
	}
	a, err := w.newAccount(state)
	if err != nil {
		return nil, err
	}
	w.accounts[alias] = a
	return a, nil
}

// RemoveAccount forgets an account and its pending transactions. Its BIP44
// index stays reserved.
func (w *Wallet) RemoveAccount(alias string) error {
	if err := ValidateAlias(alias); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if _, err := w.kv.Get(indexKey(alias)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrAccountNotFound, alias)
		}
		return err
	}
	store := w.accountStore(alias)
	pending, err := store.ListPending()
	if err != nil {
		return err
	}
	for _, h := range pending {
		if err := store.DeletePending(h); err != nil {
			return err
		}
	}
	if err := store.DeleteAccountState(alias); err != nil {
		return err
	}
	if err := w.kv.Delete(indexKey(alias)); err != nil {
		return err
	}
	delete(w.accounts, alias)
	w.logger.Info().Str("alias", alias).Msg("account removed")
	return nil
}

func (w *Wallet) accountStore(alias string) *storage.AccountStore {
	return storage.NewAccountStore(storage.Prefixed(w.kv, "accounts/"+alias+"/"), w.logger)
}

func (w *Wallet) newAccount(state *storage.AccountState) (*Account, error) {
	store := w.accountStore(state.Alias)
	a := &Account{
		w:      w,
		store:  store,
		state:  state,
		logger: w.logger.With().Str("account", state.Alias).Logger(),
	}
	pool, err := newPool(state, store)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	driver, err := submit.NewDriver(w.client, w.signer, pool, store, submit.Options{
		SubmitAttempts:   w.cfg.SubmitAttempts,
		SubmitBackoff:    w.cfg.SubmitBackoff,
		SubmitMaxBackoff: w.cfg.SubmitMaxBackoff,
		PollInterval:     w.cfg.PollInterval,
		InclusionTimeout: w.cfg.InclusionTimeout,
		Now:              w.now,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	a.driver = driver
	return a, nil
}

// Close releases the store. Accounts handed out before must not be used afterwards.
func (w *Wallet) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.accounts = nil
	return w.kv.Close()
}
