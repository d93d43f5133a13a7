package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned when a frame cannot be decoded into any
// known client message. Per spec §4.5, a decode failure yields exactly
// one ERROR reply and the session continues.
var ErrMalformed = errors.New("protocol: invalid message format")

// Decode parses exactly one message per frame, dispatching on the
// "type" field, and returns one of *JoinDocument, *ApplyOp, or
// *CursorUpdateIn.
func Decode(frame []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}

	if err := json.Unmarshal(frame, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch envelope.Type {
	case TypeJoinDocument:
		var msg JoinDocument
		if err := json.Unmarshal(frame, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		return &msg, nil
	case TypeApplyOp:
		var msg ApplyOp
		if err := json.Unmarshal(frame, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		return &msg, nil
	case TypeCursorUpdate:
		var msg CursorUpdateIn
		if err := json.Unmarshal(frame, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		return &msg, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, envelope.Type)
	}
}

// Encode marshals a server-to-client message struct to a wire frame.
func Encode(msg any) ([]byte, error) {
	return json.Marshal(msg)
}
