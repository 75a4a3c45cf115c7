package tx

import "github.com/bitfsorg/libledger-go/ledger"

// HashEssence returns the BLAKE2b-256 digest of the canonical essence bytes.
// It is the message every signature unlock signs.
func HashEssence(essence *ledger.TransactionEssence) (ledger.Digest, error) {
	if essence == nil {
		return ledger.Digest{}, ErrNilParam
	}
	data, err := essence.Bytes()
	if err != nil {
		return ledger.Digest{}, err
	}
	return ledger.Blake2b256(data), nil
}
