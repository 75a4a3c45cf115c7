package ledger

import "fmt"

// OwnerAddress resolves the address that must unlock output when it is
// consumed at unixTime. Past the expiration time the return address owns
// the output; accounts are unlocked by their state controller and foundries
// by their controlling account.
func OwnerAddress(o Output, unixTime uint64) (Address, error) {
	conds := o.Conditions()
	switch v := o.(type) {
	case BasicOutput, NFTOutput:
		if exp, ok := conds.Expiration(); ok && unixTime >= exp.UnixTime {
			return exp.ReturnAddress, nil
		}
		addr, ok := conds.Address()
		if !ok {
			return nil, fmt.Errorf("%w: %s output without address unlock condition", ErrInvalidOutput, o.Type())
		}
		return addr.Address, nil
	case AccountOutput:
		sc, ok := conds.StateController()
		if !ok {
			return nil, fmt.Errorf("%w: account output without state controller", ErrInvalidOutput)
		}
		return sc.Address, nil
	case FoundryOutput:
		acc, ok := conds.ImmutableAccount()
		if !ok {
			return nil, fmt.Errorf("%w: foundry output without immutable account", ErrInvalidOutput)
		}
		return acc.Address, nil
	default:
		return nil, fmt.Errorf("%w: output %T", ErrUnknownType, v)
	}
}

// ChainAddress returns the address of the chain an output belongs to, resolving
// a zero chain id from the id of the output that created it. Only account and
// NFT outputs define addressable chains.
func ChainAddress(o Output, id OutputID) (Address, bool) {
	switch v := o.(type) {
	case AccountOutput:
		accountID := v.AccountID
		if accountID.IsZero() {
			accountID = AccountIDFromOutputID(id)
		}
		return AccountAddress(accountID), true
	case NFTOutput:
		nftID := v.NFTID
		if nftID.IsZero() {
			nftID = NFTIDFromOutputID(id)
		}
		return NFTAddress(nftID), true
	default:
		return nil, false
	}
}

// TimelockedAt reports whether o cannot be consumed yet at unixTime.
func TimelockedAt(o Output, unixTime uint64) bool {
	tl, ok := o.Conditions().Timelock()
	return ok && unixTime < tl.UnixTime
}

// StorageDepositReturnAt returns the return obligation of o if it still applies at unixTime.
// Once an expiration has passed the new owner keeps the full amount.
func StorageDepositReturnAt(o Output, unixTime uint64) (StorageDepositReturnUnlockCondition, bool) {
	conds := o.Conditions()
	sdr, ok := conds.StorageDepositReturn()
	if !ok {
		return StorageDepositReturnUnlockCondition{}, false
	}
	if exp, ok := conds.Expiration(); ok && unixTime >= exp.UnixTime {
		return StorageDepositReturnUnlockCondition{}, false
	}
	return sdr, true
}
