package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Envelope is the self-describing wrapper around every application
// message: {op, data}. Data is kept as a raw msgpack map so Decode can
// dispatch on Op before committing to a payload type.
type Envelope struct {
	Op   OpCode          `msgpack:"op"`
	Data msgpack.RawMessage `msgpack:"data"`
}

// Encode serializes a typed payload into an Envelope's binary wire
// form, suitable for a single WebSocket binary frame.
func Encode(op OpCode, payload any) ([]byte, error) {
	data, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal payload for %s: %w", op, err)
	}
	return msgpack.Marshal(&Envelope{Op: op, Data: data})
}

// Decode parses a binary frame into its envelope. Callers then call the
// matching DecodeXxx to extract the typed payload once the op is known.
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("wire: decode envelope: %w", err)
	}
	return &env, nil
}

// DecodeIdentify extracts an IdentifyPayload from an envelope known to
// carry OpIdentify.
func (e *Envelope) DecodeIdentify() (IdentifyPayload, error) {
	var p IdentifyPayload
	err := msgpack.Unmarshal(e.Data, &p)
	return p, err
}

// DecodeTestRequest extracts a TestRequestPayload.
func (e *Envelope) DecodeTestRequest() (TestRequestPayload, error) {
	var p TestRequestPayload
	err := msgpack.Unmarshal(e.Data, &p)
	return p, err
}

// DecodeTestingResult extracts a TestingResultPayload.
func (e *Envelope) DecodeTestingResult() (TestingResultPayload, error) {
	var p TestingResultPayload
	err := msgpack.Unmarshal(e.Data, &p)
	return p, err
}

// DecodeInvalidSession extracts an InvalidSessionPayload.
func (e *Envelope) DecodeInvalidSession() (InvalidSessionPayload, error) {
	var p InvalidSessionPayload
	err := msgpack.Unmarshal(e.Data, &p)
	return p, err
}
