// Package wire defines the JSON envelope exchanged on the client-facing
// stream and on each worker's outbound stream (see spec.md §6).
package wire

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Envelope is the single wire shape for every frame in either direction:
// exactly one object with a "type" string and an optional "payload" object.
//
// Readers SHOULD write the nested {type, payload:{...}} form, but the
// gateway also accepts the legacy flat {type, k:v} form (spec.md §6).
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// legacyEnvelope captures the flat form: every field besides "type" is
// folded into a synthetic payload object.
type legacyEnvelope map[string]json.RawMessage

// Decode parses a single JSON frame, accepting both the nested and the
// legacy flat form. Unknown fields are ignored either way.
func Decode(raw []byte) (Envelope, error) {
	var probe struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Envelope{}, errors.Wrap(err, "decode envelope")
	}
	if probe.Type == "" {
		return Envelope{}, errors.New("envelope missing required field \"type\"")
	}
	if probe.Payload != nil {
		return Envelope{Type: probe.Type, Payload: probe.Payload}, nil
	}

	// Legacy flat form: everything except "type" becomes the payload.
	var flat legacyEnvelope
	if err := json.Unmarshal(raw, &flat); err != nil {
		return Envelope{Type: probe.Type}, nil
	}
	delete(flat, "type")
	if len(flat) == 0 {
		return Envelope{Type: probe.Type}, nil
	}
	payload, err := json.Marshal(flat)
	if err != nil {
		return Envelope{Type: probe.Type}, nil
	}
	return Envelope{Type: probe.Type, Payload: payload}, nil
}

// DecodePayload unmarshals the envelope's payload into v. A nil payload
// decodes into the zero value of v without error.
func (e Envelope) DecodePayload(v interface{}) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return errors.Wrapf(err, "decode payload for %q", e.Type)
	}
	return nil
}

// New builds an outbound envelope by marshaling payload.
func New(typ string, payload interface{}) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: typ}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, errors.Wrapf(err, "marshal payload for %q", typ)
	}
	return Envelope{Type: typ, Payload: raw}, nil
}

// MustNew is New but panics on marshal failure; only safe for payloads
// whose shape is controlled entirely by the caller (no user input).
func MustNew(typ string, payload interface{}) Envelope {
	e, err := New(typ, payload)
	if err != nil {
		panic(err)
	}
	return e
}

// Bytes re-serializes the envelope to its wire JSON form.
func (e Envelope) Bytes() ([]byte, error) {
	out, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "marshal envelope")
	}
	return out, nil
}
