package versioning

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// SnapshotFormat is the envelope format written by YAMLCodec.
// Decoding rejects envelopes from a newer format.
const SnapshotFormat = 1

// Codec turns a host attribute set into snapshot bytes and back.
type Codec interface {
	Encode(ownerType string, attrs Attributes) ([]byte, error)
	Decode(data []byte) (Attributes, error)
}

// Sealer encrypts snapshots at rest.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	// Open returns ErrLocked when no key is available for decryption.
	Open(sealed []byte) ([]byte, error)
}

type snapshotEnvelope struct {
	Format     int        `yaml:"format"`
	OwnerType  string     `yaml:"owner_type"`
	Attributes Attributes `yaml:"attributes"`
}

// YAMLCodec stores snapshots as a YAML envelope:
//
//	format: 1
//	owner_type: aardvark
//	attributes:
//	    age: 35
//	    name: Anthony
//
// A bare YAML mapping without an envelope is accepted on decode.
type YAMLCodec struct {
	sealer Sealer
}

var _ Codec = (*YAMLCodec)(nil)

// NewYAMLCodec creates a YAMLCodec. sealer may be nil for plaintext snapshots.
func NewYAMLCodec(sealer Sealer) *YAMLCodec {
	return &YAMLCodec{sealer: sealer}
}

func (c *YAMLCodec) Encode(ownerType string, attrs Attributes) ([]byte, error) {
	if attrs == nil {
		attrs = Attributes{}
	}
	data, err := yaml.Marshal(&snapshotEnvelope{
		Format:     SnapshotFormat,
		OwnerType:  ownerType,
		Attributes: attrs,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailure, err)
	}

	if c.sealer == nil {
		return data, nil
	}
	sealed, err := c.sealer.Seal(data)
	if err != nil {
		return nil, fmt.Errorf("sealing snapshot: %w", err)
	}
	return sealed, nil
}

func (c *YAMLCodec) Decode(data []byte) (Attributes, error) {
	if c.sealer != nil {
		opened, err := c.sealer.Open(data)
		if err != nil {
			if errors.Is(err, ErrLocked) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: opening sealed snapshot: %v", ErrSerializationFailure, err)
		}
		data = opened
	}

	var env snapshotEnvelope
	if err := yaml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailure, err)
	}

	switch {
	case env.Format > SnapshotFormat:
		return nil, fmt.Errorf("%w: snapshot format %d is newer than %d", ErrSerializationFailure, env.Format, SnapshotFormat)
	case env.Format == 0:
		// No envelope: the document is the attribute map itself.
		var attrs Attributes
		if err := yaml.Unmarshal(data, &attrs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSerializationFailure, err)
		}
		if attrs == nil {
			attrs = Attributes{}
		}
		return attrs, nil
	}

	if env.Attributes == nil {
		env.Attributes = Attributes{}
	}
	return env.Attributes, nil
}
