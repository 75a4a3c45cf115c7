package ledger

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// OutputType discriminates the Output variants.
type OutputType uint8

const (
	OutputBasic   OutputType = 3
	OutputAccount OutputType = 4
	OutputFoundry OutputType = 5
	OutputNFT     OutputType = 6
)

// MaxNativeTokensPerOutput bounds the native token list of a single output.
const MaxNativeTokensPerOutput = 64

func (t OutputType) String() string {
	switch t {
	case OutputBasic:
		return "basic"
	case OutputAccount:
		return "account"
	case OutputFoundry:
		return "foundry"
	case OutputNFT:
		return "nft"
	default:
		return fmt.Sprintf("output(%d)", uint8(t))
	}
}

// Output is the sum type of ledger outputs.
type Output interface {
	Type() OutputType
	// Deposit returns the base coin amount held by the output.
	Deposit() uint64
	Tokens() NativeTokens
	Conditions() UnlockConditions
	FeatureSet() Features
	// Validate checks the unlock condition and feature rules of the output kind.
	Validate() error
	cbor.Marshaler
	output()
}

// BasicOutput holds funds owned by a single address.
type BasicOutput struct {
	Amount           uint64
	NativeTokens     NativeTokens
	UnlockConditions UnlockConditions
	Features         Features
}

// AccountOutput is the state of an account chain.
type AccountOutput struct {
	Amount            uint64
	NativeTokens      NativeTokens
	AccountID         AccountID
	StateIndex        uint32
	StateMetadata     []byte
	FoundryCounter    uint32
	UnlockConditions  UnlockConditions
	Features          Features
	ImmutableFeatures Features
}

// SimpleTokenScheme tracks the supply of a foundry's native token.
type SimpleTokenScheme struct {
	MintedTokens  uint64
	MeltedTokens  uint64
	MaximumSupply uint64
}

func (s SimpleTokenScheme) MarshalCBOR() ([]byte, error) {
	return encodeList(TokenSchemeSimple, s.MintedTokens, s.MeltedTokens, s.MaximumSupply)
}

// CirculatingSupply returns minted minus melted tokens.
func (s SimpleTokenScheme) CirculatingSupply() uint64 {
	return s.MintedTokens - s.MeltedTokens
}

// FoundryOutput controls the supply of one native token.
type FoundryOutput struct {
	Amount            uint64
	NativeTokens      NativeTokens
	SerialNumber      uint32
	TokenScheme       SimpleTokenScheme
	UnlockConditions  UnlockConditions
	Features          Features
	ImmutableFeatures Features
}

// NFTOutput is the state of a non-fungible token chain.
type NFTOutput struct {
	Amount            uint64
	NativeTokens      NativeTokens
	NFTID             NFTID
	UnlockConditions  UnlockConditions
	Features          Features
	ImmutableFeatures Features
}

var (
	_ Output = BasicOutput{}
	_ Output = AccountOutput{}
	_ Output = FoundryOutput{}
	_ Output = NFTOutput{}
)

func (BasicOutput) Type() OutputType   { return OutputBasic }
func (AccountOutput) Type() OutputType { return OutputAccount }
func (FoundryOutput) Type() OutputType { return OutputFoundry }
func (NFTOutput) Type() OutputType     { return OutputNFT }

func (o BasicOutput) Deposit() uint64   { return o.Amount }
func (o AccountOutput) Deposit() uint64 { return o.Amount }
func (o FoundryOutput) Deposit() uint64 { return o.Amount }
func (o NFTOutput) Deposit() uint64     { return o.Amount }

func (o BasicOutput) Tokens() NativeTokens   { return o.NativeTokens }
func (o AccountOutput) Tokens() NativeTokens { return o.NativeTokens }
func (o FoundryOutput) Tokens() NativeTokens { return o.NativeTokens }
func (o NFTOutput) Tokens() NativeTokens     { return o.NativeTokens }

func (o BasicOutput) Conditions() UnlockConditions   { return o.UnlockConditions }
func (o AccountOutput) Conditions() UnlockConditions { return o.UnlockConditions }
func (o FoundryOutput) Conditions() UnlockConditions { return o.UnlockConditions }
func (o NFTOutput) Conditions() UnlockConditions     { return o.UnlockConditions }

func (o BasicOutput) FeatureSet() Features   { return o.Features }
func (o AccountOutput) FeatureSet() Features { return o.Features }
func (o FoundryOutput) FeatureSet() Features { return o.Features }
func (o NFTOutput) FeatureSet() Features     { return o.Features }

func (BasicOutput) output()   {}
func (AccountOutput) output() {}
func (FoundryOutput) output() {}
func (NFTOutput) output()     {}

func (o BasicOutput) MarshalCBOR() ([]byte, error) {
	return encodeList(
		uint8(o.Type()),
		o.Amount,
		nonNil(o.NativeTokens),
		nonNil(o.UnlockConditions),
		nonNil(o.Features),
	)
}

func (o AccountOutput) MarshalCBOR() ([]byte, error) {
	return encodeList(
		uint8(o.Type()),
		o.Amount,
		nonNil(o.NativeTokens),
		o.AccountID[:],
		o.StateIndex,
		nonNil(o.StateMetadata),
		o.FoundryCounter,
		nonNil(o.UnlockConditions),
		nonNil(o.Features),
		nonNil(o.ImmutableFeatures),
	)
}

func (o FoundryOutput) MarshalCBOR() ([]byte, error) {
	return encodeList(
		uint8(o.Type()),
		o.Amount,
		nonNil(o.NativeTokens),
		o.SerialNumber,
		o.TokenScheme,
		nonNil(o.UnlockConditions),
		nonNil(o.Features),
		nonNil(o.ImmutableFeatures),
	)
}

func (o NFTOutput) MarshalCBOR() ([]byte, error) {
	return encodeList(
		uint8(o.Type()),
		o.Amount,
		nonNil(o.NativeTokens),
		o.NFTID[:],
		nonNil(o.UnlockConditions),
		nonNil(o.Features),
		nonNil(o.ImmutableFeatures),
	)
}

func (o BasicOutput) Validate() error {
	if err := o.NativeTokens.Validate(MaxNativeTokensPerOutput); err != nil {
		return err
	}
	allowed := []UnlockConditionType{
		UnlockConditionAddress,
		UnlockConditionStorageDepositReturn,
		UnlockConditionTimelock,
		UnlockConditionExpiration,
	}
	if err := o.UnlockConditions.check(allowed, UnlockConditionAddress); err != nil {
		return err
	}
	return o.Features.check(FeatureSender, FeatureMetadata, FeatureTag)
}

func (o AccountOutput) Validate() error {
	if err := o.NativeTokens.Validate(MaxNativeTokensPerOutput); err != nil {
		return err
	}
	if len(o.StateMetadata) > MaxMetadataLength {
		return fmt.Errorf("%w: state metadata length %d", ErrInvalidOutput, len(o.StateMetadata))
	}
	allowed := []UnlockConditionType{UnlockConditionStateController, UnlockConditionGovernor}
	if err := o.UnlockConditions.check(allowed, allowed...); err != nil {
		return err
	}
	if o.AccountID.IsZero() && (o.StateIndex != 0 || o.FoundryCounter != 0) {
		return fmt.Errorf("%w: new account must start at state index 0 and foundry counter 0", ErrInvalidOutput)
	}
	if !o.AccountID.IsZero() {
		self := AccountAddress(o.AccountID)
		sc, _ := o.UnlockConditions.StateController()
		gov, _ := o.UnlockConditions.Governor()
		if EqualAddress(sc.Address, self) || EqualAddress(gov.Address, self) {
			return fmt.Errorf("%w: account cannot control itself", ErrInvalidOutput)
		}
	}
	if err := o.Features.check(FeatureSender, FeatureMetadata); err != nil {
		return err
	}
	return o.ImmutableFeatures.check(FeatureIssuer, FeatureMetadata)
}

func (o FoundryOutput) Validate() error {
	if err := o.NativeTokens.Validate(MaxNativeTokensPerOutput); err != nil {
		return err
	}
	ts := o.TokenScheme
	if ts.MaximumSupply == 0 || ts.MeltedTokens > ts.MintedTokens || ts.MintedTokens > ts.MaximumSupply {
		return fmt.Errorf("%w: inconsistent token scheme %d/%d/%d", ErrInvalidOutput,
			ts.MintedTokens, ts.MeltedTokens, ts.MaximumSupply)
	}
	allowed := []UnlockConditionType{UnlockConditionImmutableAccount}
	if err := o.UnlockConditions.check(allowed, allowed...); err != nil {
		return err
	}
	if err := o.Features.check(FeatureMetadata); err != nil {
		return err
	}
	return o.ImmutableFeatures.check(FeatureMetadata)
}

// FoundryID returns the id of the foundry, which is also the id of the token it controls.
func (o FoundryOutput) FoundryID() (TokenID, error) {
	acc, ok := o.UnlockConditions.ImmutableAccount()
	if !ok {
		return TokenID{}, fmt.Errorf("%w: foundry without immutable account", ErrInvalidOutput)
	}
	return FoundryID(acc.Address, o.SerialNumber, TokenSchemeSimple), nil
}

func (o NFTOutput) Validate() error {
	if err := o.NativeTokens.Validate(MaxNativeTokensPerOutput); err != nil {
		return err
	}
	allowed := []UnlockConditionType{
		UnlockConditionAddress,
		UnlockConditionStorageDepositReturn,
		UnlockConditionTimelock,
		UnlockConditionExpiration,
	}
	if err := o.UnlockConditions.check(allowed, UnlockConditionAddress); err != nil {
		return err
	}
	if !o.NFTID.IsZero() {
		owner, _ := o.UnlockConditions.Address()
		if EqualAddress(owner.Address, NFTAddress(o.NFTID)) {
			return fmt.Errorf("%w: nft cannot own itself", ErrInvalidOutput)
		}
	}
	if err := o.Features.check(FeatureSender, FeatureMetadata, FeatureTag); err != nil {
		return err
	}
	return o.ImmutableFeatures.check(FeatureIssuer, FeatureMetadata)
}

// EncodeOutput returns the canonical bytes of an output.
func EncodeOutput(o Output) ([]byte, error) {
	if o == nil {
		return nil, fmt.Errorf("%w: nil output", ErrInvalidOutput)
	}
	return Encode(o)
}

// DecodeOutput parses the canonical bytes of an output.
func DecodeOutput(data []byte) (Output, error) {
	return decodeOutput(data)
}

func decodeOutput(raw RawMessage) (Output, error) {
	tag, err := decodeTypeFromList(raw)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	switch OutputType(tag) {
	case OutputBasic:
		items, err := decodeList(raw, 5, "basic output")
		if err != nil {
			return nil, err
		}
		var o BasicOutput
		if err := Decode(items[1], &o.Amount); err != nil {
			return nil, err
		}
		if o.NativeTokens, err = decodeNativeTokens(items[2]); err != nil {
			return nil, err
		}
		if o.UnlockConditions, err = decodeUnlockConditions(items[3]); err != nil {
			return nil, err
		}
		if o.Features, err = decodeFeatures(items[4]); err != nil {
			return nil, err
		}
		return o, nil
	case OutputAccount:
		items, err := decodeList(raw, 10, "account output")
		if err != nil {
			return nil, err
		}
		var o AccountOutput
		if err := Decode(items[1], &o.Amount); err != nil {
			return nil, err
		}
		if o.NativeTokens, err = decodeNativeTokens(items[2]); err != nil {
			return nil, err
		}
		if err := decodeFixed(items[3], o.AccountID[:], "account id"); err != nil {
			return nil, err
		}
		if err := Decode(items[4], &o.StateIndex); err != nil {
			return nil, err
		}
		if err := Decode(items[5], &o.StateMetadata); err != nil {
			return nil, err
		}
		o.StateMetadata = emptyToNil(o.StateMetadata)
		if err := Decode(items[6], &o.FoundryCounter); err != nil {
			return nil, err
		}
		if o.UnlockConditions, err = decodeUnlockConditions(items[7]); err != nil {
			return nil, err
		}
		if o.Features, err = decodeFeatures(items[8]); err != nil {
			return nil, err
		}
		if o.ImmutableFeatures, err = decodeFeatures(items[9]); err != nil {
			return nil, err
		}
		return o, nil
	case OutputFoundry:
		items, err := decodeList(raw, 8, "foundry output")
		if err != nil {
			return nil, err
		}
		var o FoundryOutput
		if err := Decode(items[1], &o.Amount); err != nil {
			return nil, err
		}
		if o.NativeTokens, err = decodeNativeTokens(items[2]); err != nil {
			return nil, err
		}
		if err := Decode(items[3], &o.SerialNumber); err != nil {
			return nil, err
		}
		if o.TokenScheme, err = decodeTokenScheme(items[4]); err != nil {
			return nil, err
		}
		if o.UnlockConditions, err = decodeUnlockConditions(items[5]); err != nil {
			return nil, err
		}
		if o.Features, err = decodeFeatures(items[6]); err != nil {
			return nil, err
		}
		if o.ImmutableFeatures, err = decodeFeatures(items[7]); err != nil {
			return nil, err
		}
		return o, nil
	case OutputNFT:
		items, err := decodeList(raw, 7, "nft output")
		if err != nil {
			return nil, err
		}
		var o NFTOutput
		if err := Decode(items[1], &o.Amount); err != nil {
			return nil, err
		}
		if o.NativeTokens, err = decodeNativeTokens(items[2]); err != nil {
			return nil, err
		}
		if err := decodeFixed(items[3], o.NFTID[:], "nft id"); err != nil {
			return nil, err
		}
		if o.UnlockConditions, err = decodeUnlockConditions(items[4]); err != nil {
			return nil, err
		}
		if o.Features, err = decodeFeatures(items[5]); err != nil {
			return nil, err
		}
		if o.ImmutableFeatures, err = decodeFeatures(items[6]); err != nil {
			return nil, err
		}
		return o, nil
	default:
		return nil, fmt.Errorf("%w: output %d", ErrUnknownType, tag)
	}
}

func decodeTokenScheme(raw RawMessage) (SimpleTokenScheme, error) {
	items, err := decodeList(raw, 4, "token scheme")
	if err != nil {
		return SimpleTokenScheme{}, err
	}
	var scheme uint8
	if err := Decode(items[0], &scheme); err != nil {
		return SimpleTokenScheme{}, err
	}
	if scheme != TokenSchemeSimple {
		return SimpleTokenScheme{}, fmt.Errorf("%w: token scheme %d", ErrUnknownType, scheme)
	}
	var s SimpleTokenScheme
	if err := Decode(items[1], &s.MintedTokens); err != nil {
		return SimpleTokenScheme{}, err
	}
	if err := Decode(items[2], &s.MeltedTokens); err != nil {
		return SimpleTokenScheme{}, err
	}
	if err := Decode(items[3], &s.MaximumSupply); err != nil {
		return SimpleTokenScheme{}, err
	}
	return s, nil
}

// Outputs is an ordered list of outputs.
type Outputs []Output

func decodeOutputs(raw RawMessage) (Outputs, error) {
	items, err := decodeRawList(raw, "outputs")
	if err != nil {
		return nil, err
	}
	var out Outputs
	for _, item := range items {
		o, err := decodeOutput(item)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}
