package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libledger-go/keys"
	"github.com/bitfsorg/libledger-go/ledger"
	"github.com/bitfsorg/libledger-go/secret"
	"github.com/bitfsorg/libledger-go/tx"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

const testTime = 1_700_000_000

func fill(b byte) [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = b
	}
	return out
}

func chainAt(i uint32) keys.Chain {
	return keys.Bip44Chain(4218, 0, false, i)
}

type fixture struct {
	prepared *tx.PreparedTransactionData
	signed   *tx.SignedTransactionData
	hash     ledger.Digest
	owner    ledger.Ed25519Address
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	m, err := secret.NewMnemonicManager(testMnemonic)
	require.NoError(t, err)
	ctx := context.Background()
	owner, err := m.Ed25519Address(ctx, chainAt(0))
	require.NoError(t, err)

	out := ledger.BasicOutput{
		Amount:           1_000_000,
		UnlockConditions: ledger.UnlockConditions{ledger.AddressUnlockCondition{Address: owner}},
	}
	in := tx.InputSigningData{
		OutputID: ledger.NewOutputID(ledger.TransactionID(fill(0xaa)), 0),
		Output:   out,
		Chain:    chainAt(0),
	}
	params := ledger.DefaultProtocolParameters("testnet", "rms")
	p, err := tx.Prepare(params, []tx.InputSigningData{in}, ledger.Outputs{out}, nil, nil, testTime)
	require.NoError(t, err)
	s, err := tx.SignTransaction(ctx, m, p)
	require.NoError(t, err)
	h, err := p.EssenceHash()
	require.NoError(t, err)
	return fixture{prepared: p, signed: s, hash: h, owner: owner}
}

func preparedBytes(t *testing.T, p *tx.PreparedTransactionData) []byte {
	t.Helper()
	b, err := p.Bytes()
	require.NoError(t, err)
	return b
}

func signedBytes(t *testing.T, s *tx.SignedTransactionData) []byte {
	t.Helper()
	b, err := s.Bytes()
	require.NoError(t, err)
	return b
}

func openAll(t *testing.T) map[Backend]KV {
	t.Helper()
	dir := t.TempDir()
	stores := map[Backend]KV{}
	for _, b := range []Backend{BackendBolt, BackendBadger, BackendLevelDB, BackendMemory} {
		kv, err := Open(b, filepath.Join(dir, string(b), "db"), zerolog.Nop())
		require.NoError(t, err, b)
		t.Cleanup(func() { _ = kv.Close() })
		stores[b] = kv
	}
	return stores
}

// --- KV tests ---

func TestKV_PutGetDelete(t *testing.T) {
	for backend, kv := range openAll(t) {
		t.Run(string(backend), func(t *testing.T) {
			_, err := kv.Get([]byte("missing"))
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, kv.Put([]byte("a"), []byte("one")))
			got, err := kv.Get([]byte("a"))
			require.NoError(t, err)
			assert.Equal(t, []byte("one"), got)

			require.NoError(t, kv.Put([]byte("a"), []byte("two")))
			got, err = kv.Get([]byte("a"))
			require.NoError(t, err)
			assert.Equal(t, []byte("two"), got)

			got[0] = 'X'
			again, err := kv.Get([]byte("a"))
			require.NoError(t, err)
			assert.Equal(t, []byte("two"), again)

			require.NoError(t, kv.Delete([]byte("a")))
			_, err = kv.Get([]byte("a"))
			assert.ErrorIs(t, err, ErrNotFound)
			assert.NoError(t, kv.Delete([]byte("a")))
		})
	}
}

func TestKV_EmptyKey(t *testing.T) {
	for backend, kv := range openAll(t) {
		t.Run(string(backend), func(t *testing.T) {
			assert.ErrorIs(t, kv.Put(nil, []byte("v")), ErrEmptyKey)
			_, err := kv.Get([]byte{})
			assert.ErrorIs(t, err, ErrEmptyKey)
			assert.ErrorIs(t, kv.Delete(nil), ErrEmptyKey)
		})
	}
}

func TestKV_ForEachPrefixOrder(t *testing.T) {
	for backend, kv := range openAll(t) {
		t.Run(string(backend), func(t *testing.T) {
			for _, k := range []string{"p/c", "q/a", "p/a", "o/z", "p/b"} {
				require.NoError(t, kv.Put([]byte(k), []byte("v-"+k)))
			}
			var keys []string
			err := kv.ForEach([]byte("p/"), func(key, value []byte) error {
				keys = append(keys, string(key))
				assert.Equal(t, "v-"+string(key), string(value))
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"p/a", "p/b", "p/c"}, keys)
		})
	}
}

func TestKV_ForEachStopsOnError(t *testing.T) {
	stop := errors.New("stop")
	for backend, kv := range openAll(t) {
		t.Run(string(backend), func(t *testing.T) {
			for _, k := range []string{"k1", "k2", "k3"} {
				require.NoError(t, kv.Put([]byte(k), []byte("v")))
			}
			calls := 0
			err := kv.ForEach([]byte("k"), func(key, value []byte) error {
				calls++
				return stop
			})
			assert.ErrorIs(t, err, stop)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestKV_Reopen(t *testing.T) {
	for _, backend := range []Backend{BackendBolt, BackendBadger, BackendLevelDB} {
		t.Run(string(backend), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "db")
			kv, err := Open(backend, path, zerolog.Nop())
			require.NoError(t, err)
			require.NoError(t, kv.Put([]byte("k"), []byte("persisted")))
			require.NoError(t, kv.Close())

			kv, err = Open(backend, path, zerolog.Nop())
			require.NoError(t, err)
			defer kv.Close()
			got, err := kv.Get([]byte("k"))
			require.NoError(t, err)
			assert.Equal(t, []byte("persisted"), got)
		})
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	kv := NewMemoryStore()
	require.NoError(t, kv.Close())
	_, err := kv.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, kv.Put([]byte("k"), nil), ErrClosed)
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{"", BackendBolt, false},
		{"bolt", BackendBolt, false},
		{" Badger ", BackendBadger, false},
		{"leveldb", BackendLevelDB, false},
		{"memory", BackendMemory, false},
		{"sqlite", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBackend(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownBackend)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open("sqlite", filepath.Join(t.TempDir(), "db"), zerolog.Nop())
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = Open(BackendBolt, "", zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidBaseDir)
}

func TestPrefixed_IsolatesNamespaces(t *testing.T) {
	parent := NewMemoryStore()
	a := Prefixed(parent, "acct/a/")
	b := Prefixed(parent, "acct/b/")

	require.NoError(t, a.Put([]byte("k1"), []byte("a1")))
	require.NoError(t, a.Put([]byte("k2"), []byte("a2")))
	require.NoError(t, b.Put([]byte("k1"), []byte("b1")))

	v, err := b.Get([]byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("b1"), v)
	_, err = b.Get([]byte("k2"))
	assert.ErrorIs(t, err, ErrNotFound)

	var got []string
	require.NoError(t, a.ForEach([]byte("k"), func(k, _ []byte) error {
		got = append(got, string(k))
		return nil
	}))
	assert.Equal(t, []string{"k1", "k2"}, got)

	raw, err := parent.Get([]byte("acct/a/k2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("a2"), raw)

	require.NoError(t, a.Delete([]byte("k1")))
	_, err = a.Get([]byte("k1"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, a.Put(nil, []byte("x")), ErrEmptyKey)

	require.NoError(t, a.Close())
	_, err = parent.Get([]byte("acct/b/k1"))
	assert.NoError(t, err, "closing a view must leave the parent open")
}

func TestPrefixed_AccountStoresDoNotShareRecords(t *testing.T) {
	parent := NewMemoryStore()
	one := NewAccountStore(Prefixed(parent, "one/"), zerolog.Nop())
	two := NewAccountStore(Prefixed(parent, "two/"), zerolog.Nop())

	require.NoError(t, one.SaveAccountState(&AccountState{Alias: "main"}))
	_, err := two.LoadAccountState("main")
	assert.ErrorIs(t, err, ErrNotFound)

	h := ledger.Digest(fill(0x42))
	require.NoError(t, one.SavePending(&PendingTransaction{EssenceHash: h}))
	pending, err := two.ListPending()
	require.NoError(t, err)
	assert.Empty(t, pending)
	pending, err = one.ListPending()
	require.NoError(t, err)
	assert.Equal(t, []ledger.Digest{h}, pending)
}

// --- AccountStore tests ---

func TestAccountStore_StateRoundTrip(t *testing.T) {
	fx := newFixture(t)
	s := NewAccountStore(NewMemoryStore(), zerolog.Nop())
	defer s.Close()

	_, err := s.LoadAccountState("main")
	assert.ErrorIs(t, err, ErrNotFound)

	state := &AccountState{
		Alias:            "main",
		CoinType:         4218,
		Index:            0,
		NextReceiveIndex: 2,
		NextChangeIndex:  1,
		Addresses: []AddressRecord{
			{Address: fx.owner, Chain: chainAt(0)},
			{Address: ledger.Ed25519Address(fill(0x22)), Chain: keys.Bip44Chain(4218, 0, true, 0), Internal: true},
		},
		Outputs: fx.prepared.Inputs,
	}
	require.NoError(t, s.SaveAccountState(state))

	got, err := s.LoadAccountState("main")
	require.NoError(t, err)
	assert.Equal(t, state.Alias, got.Alias)
	assert.Equal(t, state.CoinType, got.CoinType)
	assert.Equal(t, state.NextReceiveIndex, got.NextReceiveIndex)
	assert.Equal(t, state.NextChangeIndex, got.NextChangeIndex)
	require.Len(t, got.Addresses, 2)
	assert.Equal(t, fx.owner, got.Addresses[0].Address)
	assert.True(t, got.Addresses[0].Chain.Equal(chainAt(0)))
	assert.True(t, got.Addresses[1].Internal)
	require.Len(t, got.Outputs, 1)
	assert.Equal(t, state.Outputs[0].OutputID, got.Outputs[0].OutputID)
	assert.Equal(t, state.Outputs[0].Output, got.Outputs[0].Output)
}

func TestAccountStore_Accounts(t *testing.T) {
	s := NewAccountStore(NewMemoryStore(), zerolog.Nop())
	for _, alias := range []string{"savings", "main"} {
		require.NoError(t, s.SaveAccountState(&AccountState{Alias: alias}))
	}
	aliases, err := s.Accounts()
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "savings"}, aliases)

	require.NoError(t, s.DeleteAccountState("main"))
	aliases, err = s.Accounts()
	require.NoError(t, err)
	assert.Equal(t, []string{"savings"}, aliases)
}

func TestAccountStore_EmptyAlias(t *testing.T) {
	s := NewAccountStore(NewMemoryStore(), zerolog.Nop())
	assert.ErrorIs(t, s.SaveAccountState(&AccountState{}), ErrEmptyKey)
	assert.ErrorIs(t, s.SaveAccountState(nil), ErrEmptyKey)
	_, err := s.LoadAccountState("")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestAccountStore_CorruptState(t *testing.T) {
	kv := NewMemoryStore()
	require.NoError(t, kv.Put(accountKey("main"), []byte{0x01, 0x02}))
	s := NewAccountStore(kv, zerolog.Nop())
	_, err := s.LoadAccountState("main")
	assert.Error(t, err)
}

func TestAccountStore_PendingLifecycle(t *testing.T) {
	fx := newFixture(t)
	for backend, kv := range openAll(t) {
		t.Run(string(backend), func(t *testing.T) {
			s := NewAccountStore(kv, zerolog.Nop())

			_, err := s.LoadPending(fx.hash)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.SavePending(&PendingTransaction{EssenceHash: fx.hash, Prepared: fx.prepared}))
			got, err := s.LoadPending(fx.hash)
			require.NoError(t, err)
			assert.Equal(t, preparedBytes(t, fx.prepared), preparedBytes(t, got.Prepared))
			assert.Nil(t, got.Signed)
			assert.Nil(t, got.BlockID)

			block := ledger.BlockID(fill(0xbb))
			require.NoError(t, s.SavePending(&PendingTransaction{
				EssenceHash: fx.hash,
				Prepared:    fx.prepared,
				Signed:      fx.signed,
				BlockID:     &block,
			}))
			got, err = s.LoadPending(fx.hash)
			require.NoError(t, err)
			require.NotNil(t, got.Signed)
			assert.Equal(t, signedBytes(t, fx.signed), signedBytes(t, got.Signed))
			require.NotNil(t, got.BlockID)
			assert.Equal(t, block, *got.BlockID)

			ids, err := s.ListPending()
			require.NoError(t, err)
			assert.Equal(t, []ledger.Digest{fx.hash}, ids)

			require.NoError(t, s.DeletePending(fx.hash))
			ids, err = s.ListPending()
			require.NoError(t, err)
			assert.Empty(t, ids)
		})
	}
}

func TestAccountStore_ListPendingOrder(t *testing.T) {
	fx := newFixture(t)
	s := NewAccountStore(NewMemoryStore(), zerolog.Nop())
	for _, b := range []byte{0x30, 0x10, 0x20} {
		require.NoError(t, s.SavePending(&PendingTransaction{EssenceHash: ledger.Digest(fill(b)), Signed: fx.signed}))
	}
	ids, err := s.ListPending()
	require.NoError(t, err)
	assert.Equal(t, []ledger.Digest{ledger.Digest(fill(0x10)), ledger.Digest(fill(0x20)), ledger.Digest(fill(0x30))}, ids)
}

func TestAccountStore_PendingErrors(t *testing.T) {
	kv := NewMemoryStore()
	s := NewAccountStore(kv, zerolog.Nop())
	assert.ErrorIs(t, s.SavePending(nil), ErrEmptyKey)
	assert.ErrorIs(t, s.SavePending(&PendingTransaction{}), ErrEmptyKey)

	h := ledger.Digest(fill(0x01))
	require.NoError(t, kv.Put(pendingKey(h), []byte{0xff}))
	_, err := s.LoadPending(h)
	assert.Error(t, err)
}

// --- FileExchange tests ---

func TestFileExchange_PreparedAndSigned(t *testing.T) {
	fx := newFixture(t)
	dir := t.TempDir()
	ex, err := NewFileExchange(dir)
	require.NoError(t, err)

	path, err := ex.WritePrepared(fx.prepared)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, fx.hash.Hex()+ExtPrepared), path)

	p, err := ex.ReadPrepared(fx.hash)
	require.NoError(t, err)
	assert.Equal(t, preparedBytes(t, fx.prepared), preparedBytes(t, p))

	_, err = ex.ReadSigned(fx.hash)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = ex.WriteSigned(fx.signed)
	require.NoError(t, err)
	s, err := ex.ReadSigned(fx.hash)
	require.NoError(t, err)
	assert.Equal(t, signedBytes(t, fx.signed), signedBytes(t, s))

	arts, err := ex.List()
	require.NoError(t, err)
	require.Len(t, arts, 2)
	assert.False(t, arts[0].Signed)
	assert.True(t, arts[1].Signed)
	assert.Equal(t, fx.hash, arts[0].EssenceHash)

	require.NoError(t, ex.Remove(fx.hash))
	arts, err = ex.List()
	require.NoError(t, err)
	assert.Empty(t, arts)
	assert.NoError(t, ex.Remove(fx.hash))
}

func TestFileExchange_NoTempFilesLeft(t *testing.T) {
	fx := newFixture(t)
	dir := t.TempDir()
	ex, err := NewFileExchange(dir)
	require.NoError(t, err)
	_, err = ex.WritePrepared(fx.prepared)
	require.NoError(t, err)
	_, err = ex.WritePrepared(fx.prepared)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, fx.hash.Hex()+ExtPrepared, entries[0].Name())
}

func TestFileExchange_SkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zz.prepared"), []byte("x"), 0600))
	ex, err := NewFileExchange(dir)
	require.NoError(t, err)
	arts, err := ex.List()
	require.NoError(t, err)
	assert.Empty(t, arts)
}

func TestFileExchange_Errors(t *testing.T) {
	_, err := NewFileExchange("")
	assert.ErrorIs(t, err, ErrInvalidBaseDir)

	dir := t.TempDir()
	ex, err := NewFileExchange(dir)
	require.NoError(t, err)
	_, err = ex.WritePrepared(nil)
	assert.ErrorIs(t, err, tx.ErrNilParam)

	h := ledger.Digest(fill(0x05))
	require.NoError(t, os.WriteFile(filepath.Join(dir, h.Hex()+ExtPrepared), []byte("\n"), 0600))
	_, err = ex.ReadPrepared(h)
	assert.ErrorIs(t, err, ErrEmptyContent)

	require.NoError(t, os.WriteFile(filepath.Join(dir, h.Hex()+ExtSigned), []byte("0xzz"), 0600))
	_, err = ex.ReadSigned(h)
	assert.ErrorIs(t, err, ledger.ErrMalformed)
}
