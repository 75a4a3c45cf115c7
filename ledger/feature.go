package ledger

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// FeatureType discriminates the Feature variants.
type FeatureType uint8

const (
	FeatureSender FeatureType = iota
	FeatureIssuer
	FeatureMetadata
	FeatureTag
)

const (
	MaxMetadataLength = 8192
	MaxTagLength      = 64
)

func (t FeatureType) String() string {
	switch t {
	case FeatureSender:
		return "sender"
	case FeatureIssuer:
		return "issuer"
	case FeatureMetadata:
		return "metadata"
	case FeatureTag:
		return "tag"
	default:
		return fmt.Sprintf("feature(%d)", uint8(t))
	}
}

// Feature is an optional, non-restricting attribute of an output.
type Feature interface {
	Type() FeatureType
	cbor.Marshaler
	feature()
}

// SenderFeature names the address that created the output.
type SenderFeature struct {
	Address Address
}

// IssuerFeature names the address that minted an NFT or created an account.
type IssuerFeature struct {
	Address Address
}

// MetadataFeature carries arbitrary bytes.
type MetadataFeature struct {
	Data []byte
}

// TagFeature carries an indexation tag.
type TagFeature struct {
	Tag []byte
}

func (SenderFeature) Type() FeatureType   { return FeatureSender }
func (IssuerFeature) Type() FeatureType   { return FeatureIssuer }
func (MetadataFeature) Type() FeatureType { return FeatureMetadata }
func (TagFeature) Type() FeatureType      { return FeatureTag }

func (f SenderFeature) MarshalCBOR() ([]byte, error) {
	return encodeList(uint8(f.Type()), f.Address)
}

func (f IssuerFeature) MarshalCBOR() ([]byte, error) {
	return encodeList(uint8(f.Type()), f.Address)
}

func (f MetadataFeature) MarshalCBOR() ([]byte, error) {
	return encodeList(uint8(f.Type()), nonNil(f.Data))
}

func (f TagFeature) MarshalCBOR() ([]byte, error) {
	return encodeList(uint8(f.Type()), nonNil(f.Tag))
}

func (SenderFeature) feature()   {}
func (IssuerFeature) feature()   {}
func (MetadataFeature) feature() {}
func (TagFeature) feature()      {}

func decodeFeature(raw RawMessage) (Feature, error) {
	tag, err := decodeTypeFromList(raw)
	if err != nil {
		return nil, fmt.Errorf("feature: %w", err)
	}
	items, err := decodeList(raw, 2, "feature")
	if err != nil {
		return nil, err
	}
	switch FeatureType(tag) {
	case FeatureSender, FeatureIssuer:
		addr, err := decodeAddress(items[1])
		if err != nil {
			return nil, err
		}
		if FeatureType(tag) == FeatureSender {
			return SenderFeature{Address: addr}, nil
		}
		return IssuerFeature{Address: addr}, nil
	case FeatureMetadata:
		var data []byte
		if err := Decode(items[1], &data); err != nil {
			return nil, err
		}
		return MetadataFeature{Data: emptyToNil(data)}, nil
	case FeatureTag:
		var data []byte
		if err := Decode(items[1], &data); err != nil {
			return nil, err
		}
		return TagFeature{Tag: emptyToNil(data)}, nil
	default:
		return nil, fmt.Errorf("%w: feature %d", ErrUnknownType, tag)
	}
}

// Features is the set of features attached to an output.
type Features []Feature

func decodeFeatures(raw RawMessage) (Features, error) {
	items, err := decodeRawList(raw, "features")
	if err != nil {
		return nil, err
	}
	var out Features
	for _, item := range items {
		f, err := decodeFeature(item)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Sender returns the sender feature, if present.
func (f Features) Sender() (SenderFeature, bool) {
	for _, x := range f {
		if v, ok := x.(SenderFeature); ok {
			return v, true
		}
	}
	return SenderFeature{}, false
}

// Metadata returns the metadata feature, if present.
func (f Features) Metadata() (MetadataFeature, bool) {
	for _, x := range f {
		if v, ok := x.(MetadataFeature); ok {
			return v, true
		}
	}
	return MetadataFeature{}, false
}

// Tag returns the tag feature, if present.
func (f Features) Tag() (TagFeature, bool) {
	for _, x := range f {
		if v, ok := x.(TagFeature); ok {
			return v, true
		}
	}
	return TagFeature{}, false
}

func (f Features) check(allowed ...FeatureType) error {
	permitted := make(map[FeatureType]bool, len(allowed))
	for _, t := range allowed {
		permitted[t] = true
	}
	seen := make(map[FeatureType]bool, len(f))
	for _, x := range f {
		if x == nil {
			return fmt.Errorf("%w: nil feature", ErrInvalidOutput)
		}
		t := x.Type()
		if !permitted[t] {
			return fmt.Errorf("%w: %s feature not allowed", ErrInvalidOutput, t)
		}
		if seen[t] {
			return fmt.Errorf("%w: duplicate %s feature", ErrInvalidOutput, t)
		}
		seen[t] = true
		switch v := x.(type) {
		case SenderFeature:
			if v.Address == nil {
				return fmt.Errorf("%w: sender feature without address", ErrInvalidOutput)
			}
		case IssuerFeature:
			if v.Address == nil {
				return fmt.Errorf("%w: issuer feature without address", ErrInvalidOutput)
			}
		case MetadataFeature:
			if len(v.Data) == 0 || len(v.Data) > MaxMetadataLength {
				return fmt.Errorf("%w: metadata length %d", ErrInvalidOutput, len(v.Data))
			}
		case TagFeature:
			if len(v.Tag) == 0 || len(v.Tag) > MaxTagLength {
				return fmt.Errorf("%w: tag length %d", ErrInvalidOutput, len(v.Tag))
			}
		}
	}
	return nil
}
