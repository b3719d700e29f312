// Package ocpp implements the per-charger WebSocket session (C2) and the
// charging-profile driver (C3): decoding inbound OCPP 1.6J calls, routing
// them onto the entity store, and issuing outbound calls with reply
// correlation and a per-charger serialization guarantee.
package ocpp

import (
	"encoding/json"
	"fmt"

	"github.com/evbalanz/balanzd/internal/modelerr"
)

// Message type discriminants, per OCPP 1.6J §4.
const (
	messageTypeCall       = 2
	messageTypeCallResult = 3
	messageTypeCallError  = 4
)

// envelope is the raw 4/3-element JSON array frame, decoded lazily so the
// action can be dispatched before the payload is unmarshalled into a typed
// struct.
type envelope struct {
	messageType int
	uniqueID    string
	action      string
	payload     json.RawMessage
	errorCode   string
	errorDesc   string
}

func decodeEnvelope(raw []byte) (*envelope, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, modelerr.Wrap(modelerr.ProtocolError, err, "malformed OCPP frame")
	}
	if len(parts) < 3 {
		return nil, modelerr.New(modelerr.ProtocolError, "OCPP frame has %d elements", len(parts))
	}

	var msgType int
	if err := json.Unmarshal(parts[0], &msgType); err != nil {
		return nil, modelerr.Wrap(modelerr.ProtocolError, err, "malformed message type")
	}
	var uniqueID string
	if err := json.Unmarshal(parts[1], &uniqueID); err != nil {
		return nil, modelerr.Wrap(modelerr.ProtocolError, err, "malformed unique id")
	}

	env := &envelope{messageType: msgType, uniqueID: uniqueID}
	switch msgType {
	case messageTypeCall:
		if len(parts) != 4 {
			return nil, modelerr.New(modelerr.ProtocolError, "CALL frame has %d elements", len(parts))
		}
		if err := json.Unmarshal(parts[2], &env.action); err != nil {
			return nil, modelerr.Wrap(modelerr.ProtocolError, err, "malformed action")
		}
		env.payload = parts[3]
	case messageTypeCallResult:
		if len(parts) != 3 {
			return nil, modelerr.New(modelerr.ProtocolError, "CALLRESULT frame has %d elements", len(parts))
		}
		env.payload = parts[2]
	case messageTypeCallError:
		if len(parts) < 4 {
			return nil, modelerr.New(modelerr.ProtocolError, "CALLERROR frame has %d elements", len(parts))
		}
		_ = json.Unmarshal(parts[2], &env.errorCode)
		_ = json.Unmarshal(parts[3], &env.errorDesc)
	default:
		return nil, modelerr.New(modelerr.ProtocolError, "unknown message type %d", msgType)
	}
	return env, nil
}

func encodeCall(uniqueID, action string, payload any) ([]byte, error) {
	return json.Marshal([]any{messageTypeCall, uniqueID, action, payload})
}

func encodeCallResult(uniqueID string, payload any) ([]byte, error) {
	return json.Marshal([]any{messageTypeCallResult, uniqueID, payload})
}

func encodeCallError(uniqueID string, code, description string) ([]byte, error) {
	return json.Marshal([]any{messageTypeCallError, uniqueID, code, description, map[string]any{}})
}

// errorCodeFor maps a modelerr.Kind onto an OCPP CallError code.
func errorCodeFor(kind modelerr.Kind) string {
	switch kind {
	case modelerr.ProtocolError:
		return "ProtocolError"
	case modelerr.NotFound:
		return "GenericError"
	case modelerr.IllegalArgument:
		return "PropertyConstraintViolation"
	default:
		return "InternalError"
	}
}

func fmtErrorDesc(err error) string {
	return fmt.Sprintf("%v", err)
}
