package ledger

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// UnlockConditionType discriminates the UnlockCondition variants.
type UnlockConditionType uint8

const (
	UnlockConditionAddress UnlockConditionType = iota
	UnlockConditionStorageDepositReturn
	UnlockConditionTimelock
	UnlockConditionExpiration
	UnlockConditionStateController
	UnlockConditionGovernor
	UnlockConditionImmutableAccount
)

func (t UnlockConditionType) String() string {
	switch t {
	case UnlockConditionAddress:
		return "address"
	case UnlockConditionStorageDepositReturn:
		return "storage-deposit-return"
	case UnlockConditionTimelock:
		return "timelock"
	case UnlockConditionExpiration:
		return "expiration"
	case UnlockConditionStateController:
		return "state-controller"
	case UnlockConditionGovernor:
		return "governor"
	case UnlockConditionImmutableAccount:
		return "immutable-account"
	default:
		return fmt.Sprintf("unlock-condition(%d)", uint8(t))
	}
}

// UnlockCondition restricts who may consume an output, and when.
type UnlockCondition interface {
	Type() UnlockConditionType
	cbor.Marshaler
	unlockCondition()
}

// AddressUnlockCondition names the owner of a basic or NFT output.
type AddressUnlockCondition struct {
	Address Address
}

// StorageDepositReturnUnlockCondition obliges the consumer to send Amount back to ReturnAddress.
type StorageDepositReturnUnlockCondition struct {
	ReturnAddress Address
	Amount        uint64
}

// TimelockUnlockCondition forbids consumption before UnixTime.
type TimelockUnlockCondition struct {
	UnixTime uint64
}

// ExpirationUnlockCondition hands ownership to ReturnAddress from UnixTime on.
type ExpirationUnlockCondition struct {
	ReturnAddress Address
	UnixTime      uint64
}

// StateControllerAddressUnlockCondition names who may perform account state transitions.
type StateControllerAddressUnlockCondition struct {
	Address Address
}

// GovernorAddressUnlockCondition names who may perform account governance transitions.
type GovernorAddressUnlockCondition struct {
	Address Address
}

// ImmutableAccountUnlockCondition binds a foundry to the account that controls it.
type ImmutableAccountUnlockCondition struct {
	Address AccountAddress
}

func (AddressUnlockCondition) Type() UnlockConditionType { return UnlockConditionAddress }
func (StorageDepositReturnUnlockCondition) Type() UnlockConditionType {
	return UnlockConditionStorageDepositReturn
}
func (TimelockUnlockCondition) Type() UnlockConditionType   { return UnlockConditionTimelock }
func (ExpirationUnlockCondition) Type() UnlockConditionType { return UnlockConditionExpiration }
func (StateControllerAddressUnlockCondition) Type() UnlockConditionType {
	return UnlockConditionStateController
}
func (GovernorAddressUnlockCondition) Type() UnlockConditionType { return UnlockConditionGovernor }
func (ImmutableAccountUnlockCondition) Type() UnlockConditionType {
	return UnlockConditionImmutableAccount
}

func (u AddressUnlockCondition) MarshalCBOR() ([]byte, error) {
	return encodeList(uint8(u.Type()), u.Address)
}

func (u StorageDepositReturnUnlockCondition) MarshalCBOR() ([]byte, error) {
	return encodeList(uint8(u.Type()), u.ReturnAddress, u.Amount)
}

func (u TimelockUnlockCondition) MarshalCBOR() ([]byte, error) {
	return encodeList(uint8(u.Type()), u.UnixTime)
}

func (u ExpirationUnlockCondition) MarshalCBOR() ([]byte, error) {
	return encodeList(uint8(u.Type()), u.ReturnAddress, u.UnixTime)
}

func (u StateControllerAddressUnlockCondition) MarshalCBOR() ([]byte, error) {
	return encodeList(uint8(u.Type()), u.Address)
}

func (u GovernorAddressUnlockCondition) MarshalCBOR() ([]byte, error) {
	return encodeList(uint8(u.Type()), u.Address)
}

func (u ImmutableAccountUnlockCondition) MarshalCBOR() ([]byte, error) {
	return encodeList(uint8(u.Type()), u.Address)
}

func (AddressUnlockCondition) unlockCondition()                {}
func (StorageDepositReturnUnlockCondition) unlockCondition()   {}
func (TimelockUnlockCondition) unlockCondition()               {}
func (ExpirationUnlockCondition) unlockCondition()             {}
func (StateControllerAddressUnlockCondition) unlockCondition() {}
func (GovernorAddressUnlockCondition) unlockCondition()        {}
func (ImmutableAccountUnlockCondition) unlockCondition()       {}

func decodeUnlockCondition(raw RawMessage) (UnlockCondition, error) {
	tag, err := decodeTypeFromList(raw)
	if err != nil {
		return nil, fmt.Errorf("unlock condition: %w", err)
	}
	switch UnlockConditionType(tag) {
	case UnlockConditionAddress, UnlockConditionStateController, UnlockConditionGovernor:
		items, err := decodeList(raw, 2, "unlock condition")
		if err != nil {
			return nil, err
		}
		addr, err := decodeAddress(items[1])
		if err != nil {
			return nil, err
		}
		switch UnlockConditionType(tag) {
		case UnlockConditionAddress:
			return AddressUnlockCondition{Address: addr}, nil
		case UnlockConditionStateController:
			return StateControllerAddressUnlockCondition{Address: addr}, nil
		default:
			return GovernorAddressUnlockCondition{Address: addr}, nil
		}
	case UnlockConditionStorageDepositReturn:
		items, err := decodeList(raw, 3, "storage deposit return")
		if err != nil {
			return nil, err
		}
		addr, err := decodeAddress(items[1])
		if err != nil {
			return nil, err
		}
		u := StorageDepositReturnUnlockCondition{ReturnAddress: addr}
		if err := Decode(items[2], &u.Amount); err != nil {
			return nil, err
		}
		return u, nil
	case UnlockConditionTimelock:
		items, err := decodeList(raw, 2, "timelock")
		if err != nil {
			return nil, err
		}
		var u TimelockUnlockCondition
		if err := Decode(items[1], &u.UnixTime); err != nil {
			return nil, err
		}
		return u, nil
	case UnlockConditionExpiration:
		items, err := decodeList(raw, 3, "expiration")
		if err != nil {
			return nil, err
		}
		addr, err := decodeAddress(items[1])
		if err != nil {
			return nil, err
		}
		u := ExpirationUnlockCondition{ReturnAddress: addr}
		if err := Decode(items[2], &u.UnixTime); err != nil {
			return nil, err
		}
		return u, nil
	case UnlockConditionImmutableAccount:
		items, err := decodeList(raw, 2, "immutable account")
		if err != nil {
			return nil, err
		}
		addr, err := decodeAddress(items[1])
		if err != nil {
			return nil, err
		}
		acc, ok := addr.(AccountAddress)
		if !ok {
			return nil, fmt.Errorf("%w: immutable account unlock condition holds %s address", ErrInvalidOutput, addr.Type())
		}
		return ImmutableAccountUnlockCondition{Address: acc}, nil
	default:
		return nil, fmt.Errorf("%w: unlock condition %d", ErrUnknownType, tag)
	}
}

// UnlockConditions is the set of unlock conditions attached to an output.
type UnlockConditions []UnlockCondition

func decodeUnlockConditions(raw RawMessage) (UnlockConditions, error) {
	items, err := decodeRawList(raw, "unlock conditions")
	if err != nil {
		return nil, err
	}
	var out UnlockConditions
	for _, item := range items {
		u, err := decodeUnlockCondition(item)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// Address returns the address unlock condition, if present.
func (u UnlockConditions) Address() (AddressUnlockCondition, bool) {
	for _, c := range u {
		if v, ok := c.(AddressUnlockCondition); ok {
			return v, true
		}
	}
	return AddressUnlockCondition{}, false
}

// StorageDepositReturn returns the storage deposit return unlock condition, if present.
func (u UnlockConditions) StorageDepositReturn() (StorageDepositReturnUnlockCondition, bool) {
	for _, c := range u {
		if v, ok := c.(StorageDepositReturnUnlockCondition); ok {
			return v, true
		}
	}
	return StorageDepositReturnUnlockCondition{}, false
}

// Timelock returns the timelock unlock condition, if present.
func (u UnlockConditions) Timelock() (TimelockUnlockCondition, bool) {
	for _, c := range u {
		if v, ok := c.(TimelockUnlockCondition); ok {
			return v, true
		}
	}
	return TimelockUnlockCondition{}, false
}

// Expiration returns the expiration unlock condition, if present.
func (u UnlockConditions) Expiration() (ExpirationUnlockCondition, bool) {
	for _, c := range u {
		if v, ok := c.(ExpirationUnlockCondition); ok {
			return v, true
		}
	}
	return ExpirationUnlockCondition{}, false
}

// StateController returns the state controller unlock condition, if present.
func (u UnlockConditions) StateController() (StateControllerAddressUnlockCondition, bool) {
	for _, c := range u {
		if v, ok := c.(StateControllerAddressUnlockCondition); ok {
			return v, true
		}
	}
	return StateControllerAddressUnlockCondition{}, false
}

// Governor returns the governor unlock condition, if present.
func (u UnlockConditions) Governor() (GovernorAddressUnlockCondition, bool) {
	for _, c := range u {
		if v, ok := c.(GovernorAddressUnlockCondition); ok {
			return v, true
		}
	}
	return GovernorAddressUnlockCondition{}, false
}

// ImmutableAccount returns the immutable account unlock condition, if present.
func (u UnlockConditions) ImmutableAccount() (ImmutableAccountUnlockCondition, bool) {
	for _, c := range u {
		if v, ok := c.(ImmutableAccountUnlockCondition); ok {
			return v, true
		}
	}
	return ImmutableAccountUnlockCondition{}, false
}

// check verifies that every condition is of an allowed kind, that none repeats
// and that all required kinds are present.
func (u UnlockConditions) check(allowed []UnlockConditionType, required ...UnlockConditionType) error {
	permitted := make(map[UnlockConditionType]bool, len(allowed))
	for _, t := range allowed {
		permitted[t] = true
	}
	seen := make(map[UnlockConditionType]bool, len(u))
	for _, c := range u {
		if c == nil {
			return fmt.Errorf("%w: nil unlock condition", ErrInvalidOutput)
		}
		t := c.Type()
		if !permitted[t] {
			return fmt.Errorf("%w: %s unlock condition not allowed", ErrInvalidOutput, t)
		}
		if seen[t] {
			return fmt.Errorf("%w: duplicate %s unlock condition", ErrInvalidOutput, t)
		}
		seen[t] = true
		if err := checkConditionAddresses(c); err != nil {
			return err
		}
	}
	for _, t := range required {
		if !seen[t] {
			return fmt.Errorf("%w: missing %s unlock condition", ErrInvalidOutput, t)
		}
	}
	return nil
}

func checkConditionAddresses(c UnlockCondition) error {
	var addr Address
	switch v := c.(type) {
	case AddressUnlockCondition:
		addr = v.Address
	case StorageDepositReturnUnlockCondition:
		addr = v.ReturnAddress
	case ExpirationUnlockCondition:
		addr = v.ReturnAddress
	case StateControllerAddressUnlockCondition:
		addr = v.Address
	case GovernorAddressUnlockCondition:
		addr = v.Address
	case TimelockUnlockCondition, ImmutableAccountUnlockCondition:
		return nil
	default:
		return fmt.Errorf("%w: unlock condition %T", ErrUnknownType, c)
	}
	if addr == nil {
		return fmt.Errorf("%w: %s unlock condition without address", ErrInvalidOutput, c.Type())
	}
	return nil
}
