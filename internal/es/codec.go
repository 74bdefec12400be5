package es

import (
	"encoding/json"
	"fmt"

	"github.com/sesdev/conduit/internal/errs"
)

// UnmarshalFunc decodes one payload schema version into the current event
// struct. Decoders registered for older versions are the upgrade path: they
// read the old shape and return the current variant.
type UnmarshalFunc func(payload []byte) (DomainEvent, error)

// Codec is the explicit, versioned event payload encoding: JSON bodies keyed
// by (eventType, eventVersion). Every variant an aggregate can raise must be
// registered before its streams are read.
type Codec struct {
	decoders map[string]map[string]UnmarshalFunc
}

// NewCodec returns an empty codec.
func NewCodec() *Codec {
	return &Codec{decoders: make(map[string]map[string]UnmarshalFunc)}
}

// Register installs the decoder for one (eventType, eventVersion) pair.
// Registering the same pair twice is a wiring defect and panics.
func (c *Codec) Register(eventType, eventVersion string, fn UnmarshalFunc) {
	byVersion, ok := c.decoders[eventType]
	if !ok {
		byVersion = make(map[string]UnmarshalFunc)
		c.decoders[eventType] = byVersion
	}
	if _, dup := byVersion[eventVersion]; dup {
		panic(fmt.Sprintf("es: duplicate codec registration for %s@%s", eventType, eventVersion))
	}
	byVersion[eventVersion] = fn
}

// Encode serializes the event payload.
func (c *Codec) Encode(e DomainEvent) ([]byte, error) {
	out, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding %s: %w", errs.ErrSerialization, e.EventType(), err)
	}
	return out, nil
}

// Decode deserializes one payload using the decoder registered for its type
// and schema version.
func (c *Codec) Decode(eventType, eventVersion string, payload []byte) (DomainEvent, error) {
	byVersion, ok := c.decoders[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event type %q", errs.ErrSerialization, eventType)
	}
	fn, ok := byVersion[eventVersion]
	if !ok {
		return nil, fmt.Errorf("%w: unknown version %q for event type %q", errs.ErrSerialization, eventVersion, eventType)
	}
	e, err := fn(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s@%s: %w", errs.ErrSerialization, eventType, eventVersion, err)
	}
	return e, nil
}

// RegisterJSON is the common case: decode version eventVersion of eventType
// straight into T.
func RegisterJSON[T DomainEvent](c *Codec, eventType, eventVersion string) {
	c.Register(eventType, eventVersion, func(payload []byte) (DomainEvent, error) {
		var e T
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	})
}
