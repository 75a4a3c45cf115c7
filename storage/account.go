package storage

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bitfsorg/libledger-go/keys"
	"github.com/bitfsorg/libledger-go/ledger"
	"github.com/bitfsorg/libledger-go/tx"
)

const accountStateVersion = 1

var (
	prefixAccount = []byte("account/")
	prefixPending = []byte("pending/")
)

// AddressRecord is a generated address and the chain that derives it.
type AddressRecord struct {
	Address  ledger.Ed25519Address
	Chain    keys.Chain
	Internal bool
}

// AccountState holds persisted account metadata and its known unspent outputs.
type AccountState struct {
	Alias            string
	CoinType         uint32
	Index            uint32
	NextReceiveIndex uint32
	NextChangeIndex  uint32
	Addresses        []AddressRecord
	Outputs          []tx.InputSigningData
}

type addressRecordWire struct {
	_        struct{} `cbor:",toarray"`
	ID       []byte
	Chain    keys.Chain
	Internal bool
}

type accountStateWire struct {
	_                struct{} `cbor:",toarray"`
	Version          uint8
	Alias            string
	CoinType         uint32
	Index            uint32
	NextReceiveIndex uint32
	NextChangeIndex  uint32
	Addresses        []addressRecordWire
	Outputs          []tx.InputSigningData
}

func (s *AccountState) MarshalCBOR() ([]byte, error) {
	w := accountStateWire{
		Version:          accountStateVersion,
		Alias:            s.Alias,
		CoinType:         s.CoinType,
		Index:            s.Index,
		NextReceiveIndex: s.NextReceiveIndex,
		NextChangeIndex:  s.NextChangeIndex,
		Addresses:        make([]addressRecordWire, 0, len(s.Addresses)),
		Outputs:          s.Outputs,
	}
	if w.Outputs == nil {
		w.Outputs = []tx.InputSigningData{}
	}
	for _, a := range s.Addresses {
		w.Addresses = append(w.Addresses, addressRecordWire{ID: a.Address[:], Chain: a.Chain, Internal: a.Internal})
	}
	return ledger.Encode(w)
}

func (s *AccountState) UnmarshalCBOR(data []byte) error {
	var w accountStateWire
	if err := ledger.Decode(data, &w); err != nil {
		return fmt.Errorf("%w: account state: %w", ErrCorrupt, err)
	}
	if w.Version != accountStateVersion {
		return fmt.Errorf("%w: account state version %d", ErrCorrupt, w.Version)
	}
	out := AccountState{
		Alias:            w.Alias,
		CoinType:         w.CoinType,
		Index:            w.Index,
		NextReceiveIndex: w.NextReceiveIndex,
		NextChangeIndex:  w.NextChangeIndex,
		Outputs:          w.Outputs,
	}
	for _, a := range w.Addresses {
		if len(a.ID) != ledger.AddressIDLength {
			return fmt.Errorf("%w: address id of %d bytes", ErrCorrupt, len(a.ID))
		}
		var rec AddressRecord
		copy(rec.Address[:], a.ID)
		rec.Chain = a.Chain
		rec.Internal = a.Internal
		out.Addresses = append(out.Addresses, rec)
	}
	*s = out
	return nil
}

// PendingTransaction is a transaction between preparation and inclusion.
// It is keyed by its essence hash, which is fixed before signing.
type PendingTransaction struct {
	EssenceHash ledger.Digest
	Prepared    *tx.PreparedTransactionData
	Signed      *tx.SignedTransactionData
	// BlockID is set once a block carrying the payload was accepted by a node.
	BlockID *ledger.BlockID
}

type pendingWire struct {
	_           struct{} `cbor:",toarray"`
	EssenceHash []byte
	Prepared    *tx.PreparedTransactionData
	Signed      *tx.SignedTransactionData
	BlockID     []byte
}

func (p *PendingTransaction) MarshalCBOR() ([]byte, error) {
	w := pendingWire{EssenceHash: p.EssenceHash[:], Prepared: p.Prepared, Signed: p.Signed}
	if p.BlockID != nil {
		w.BlockID = p.BlockID[:]
	}
	return ledger.Encode(w)
}

func (p *PendingTransaction) UnmarshalCBOR(data []byte) error {
	var w pendingWire
	if err := ledger.Decode(data, &w); err != nil {
		return fmt.Errorf("%w: pending transaction: %w", ErrCorrupt, err)
	}
	if len(w.EssenceHash) != ledger.DigestLength {
		return fmt.Errorf("%w: essence hash of %d bytes", ErrCorrupt, len(w.EssenceHash))
	}
	out := PendingTransaction{Prepared: w.Prepared, Signed: w.Signed}
	copy(out.EssenceHash[:], w.EssenceHash)
	if w.BlockID != nil {
		if len(w.BlockID) != ledger.BlockIDLength {
			return fmt.Errorf("%w: block id of %d bytes", ErrCorrupt, len(w.BlockID))
		}
		var id ledger.BlockID
		copy(id[:], w.BlockID)
		out.BlockID = &id
	}
	*p = out
	return nil
}

// AccountStore persists account state and pending transactions in a KV.
type AccountStore struct {
	kv     KV
	logger zerolog.Logger
}

// NewAccountStore wraps kv. The store takes ownership of kv.
func NewAccountStore(kv KV, logger zerolog.Logger) *AccountStore {
	return &AccountStore{kv: kv, logger: logger}
}

func accountKey(alias string) []byte {
	return append(append([]byte{}, prefixAccount...), alias...)
}

func pendingKey(h ledger.Digest) []byte {
	return append(append([]byte{}, prefixPending...), h[:]...)
}

// LoadAccountState returns the state saved under alias, or ErrNotFound.
func (s *AccountStore) LoadAccountState(alias string) (*AccountState, error) {
	if alias == "" {
		return nil, ErrEmptyKey
	}
	data, err := s.kv.Get(accountKey(alias))
	if err != nil {
		return nil, err
	}
	var st AccountState
	if err := ledger.Decode(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SaveAccountState writes state under its alias.
func (s *AccountStore) SaveAccountState(state *AccountState) error {
	if state == nil || state.Alias == "" {
		return ErrEmptyKey
	}
	data, err := ledger.Encode(state)
	if err != nil {
		return fmt.Errorf("storage: encode account state: %w", err)
	}
	if err := s.kv.Put(accountKey(state.Alias), data); err != nil {
		return err
	}
	s.logger.Debug().Str("alias", state.Alias).Int("outputs", len(state.Outputs)).Msg("account state saved")
	return nil
}

// DeleteAccountState removes the state saved under alias.
func (s *AccountStore) DeleteAccountState(alias string) error {
	if alias == "" {
		return ErrEmptyKey
	}
	return s.kv.Delete(accountKey(alias))
}

// Accounts lists the saved account aliases in order.
func (s *AccountStore) Accounts() ([]string, error) {
	var aliases []string
	err := s.kv.ForEach(prefixAccount, func(key, _ []byte) error {
		aliases = append(aliases, string(key[len(prefixAccount):]))
		return nil
	})
	return aliases, err
}

// SavePending writes p, replacing any earlier record for the same essence.
func (s *AccountStore) SavePending(p *PendingTransaction) error {
	if p == nil || p.EssenceHash.IsZero() {
		return ErrEmptyKey
	}
	data, err := ledger.Encode(p)
	if err != nil {
		return fmt.Errorf("storage: encode pending transaction: %w", err)
	}
	if err := s.kv.Put(pendingKey(p.EssenceHash), data); err != nil {
		return err
	}
	s.logger.Debug().
		Str("essence", p.EssenceHash.Hex()).
		Bool("signed", p.Signed != nil).
		Bool("submitted", p.BlockID != nil).
		Msg("pending transaction saved")
	return nil
}

// LoadPending returns the pending record for the essence hash, or ErrNotFound.
func (s *AccountStore) LoadPending(h ledger.Digest) (*PendingTransaction, error) {
	data, err := s.kv.Get(pendingKey(h))
	if err != nil {
		return nil, err
	}
	var p PendingTransaction
	if err := ledger.Decode(data, &p); err != nil {
		return nil, err
	}
	if p.Prepared != nil {
		if err := p.Prepared.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
	}
	return &p, nil
}

// DeletePending removes the pending record for the essence hash.
func (s *AccountStore) DeletePending(h ledger.Digest) error {
	return s.kv.Delete(pendingKey(h))
}

// ListPending returns the essence hashes of all pending records in order.
func (s *AccountStore) ListPending() ([]ledger.Digest, error) {
	var out []ledger.Digest
	err := s.kv.ForEach(prefixPending, func(key, _ []byte) error {
		rest := key[len(prefixPending):]
		if len(rest) != ledger.DigestLength {
			return fmt.Errorf("%w: pending key of %d bytes", ErrCorrupt, len(rest))
		}
		var h ledger.Digest
		copy(h[:], rest)
		out = append(out, h)
		return nil
	})
	return out, err
}

// Close closes the underlying KV.
func (s *AccountStore) Close() error {
	if err := s.kv.Close(); err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	return nil
}
