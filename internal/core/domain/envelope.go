package domain

import (
	"fmt"
	"maps"
	"math"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	apperrors "github.com/lorrc/region-sync/internal/core/errors"
)

// Envelope methods understood by the decoders in this process.
const (
	MethodAgentStatusChange = "AgentStatusChange"
	MethodEstateUpdated     = "EstateUpdated"
)

// Message keys for AgentStatusChange.
const (
	KeySubject        = "Subject"
	KeyFriendToInform = "FriendToInform"
	KeyNewStatus      = "NewStatus"
)

// Message keys for EstateUpdated.
const (
	KeyEstateID = "EstateID"
	KeyRegionID = "RegionID"
)

// Envelope is the self-describing unit exchanged between region processes.
// The method is fixed at construction; the message is copied in and out so
// an envelope can be shared between goroutines without locking.
type Envelope struct {
	method  string
	message map[string]any
}

// wireEnvelope is the two-level JSON shape peers exchange.
type wireEnvelope struct {
	Method  string         `json:"Method"`
	Message map[string]any `json:"Message"`
}

// NewEnvelope creates an envelope for the given method.
func NewEnvelope(method string, message map[string]any) (Envelope, error) {
	method = strings.TrimSpace(method)
	if method == "" {
		return Envelope{}, apperrors.ErrMethodRequired
	}
	msg := make(map[string]any, len(message))
	maps.Copy(msg, message)
	return Envelope{method: method, message: msg}, nil
}

// NewAgentStatusChange builds the envelope telling informed that subject's
// online flag is now online.
func NewAgentStatusChange(subject, informed uuid.UUID, online bool) Envelope {
	return Envelope{
		method: MethodAgentStatusChange,
		message: map[string]any{
			KeySubject:        subject.String(),
			KeyFriendToInform: informed.String(),
			KeyNewStatus:      online,
		},
	}
}

// NewEstateUpdated builds the envelope asking regionID to reload the settings
// of estateID. The settings themselves are never carried.
func NewEstateUpdated(estateID uint32, regionID uuid.UUID) Envelope {
	return Envelope{
		method: MethodEstateUpdated,
		message: map[string]any{
			KeyEstateID: estateID,
			KeyRegionID: regionID.String(),
		},
	}
}

// Method returns the envelope's method tag.
func (e Envelope) Method() string {
	return e.method
}

// Is reports whether the envelope carries the given method.
func (e Envelope) Is(method string) bool {
	return e.method == method
}

// Message returns a copy of the payload.
func (e Envelope) Message() map[string]any {
	msg := make(map[string]any, len(e.message))
	maps.Copy(msg, e.message)
	return msg
}

// Value returns the raw payload value for key.
func (e Envelope) Value(key string) (any, bool) {
	v, ok := e.message[key]
	return v, ok
}

// StringField reads a string field.
func (e Envelope) StringField(key string) (string, bool) {
	v, ok := e.message[key].(string)
	return v, ok
}

// Bool reads a boolean field.
func (e Envelope) Bool(key string) (bool, bool) {
	v, ok := e.message[key].(bool)
	return v, ok
}

// UUID reads a field holding a UUID, either as a string or a uuid.UUID.
func (e Envelope) UUID(key string) (uuid.UUID, bool) {
	switch v := e.message[key].(type) {
	case uuid.UUID:
		return v, true
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return uuid.Nil, false
		}
		return id, true
	default:
		return uuid.Nil, false
	}
}

// Uint32 reads an unsigned integer field. Decoded JSON numbers arrive as
// float64 and are accepted when they are whole and in range.
func (e Envelope) Uint32(key string) (uint32, bool) {
	switch v := e.message[key].(type) {
	case uint32:
		return v, true
	case int:
		if v < 0 || int64(v) > math.MaxUint32 {
			return 0, false
		}
		return uint32(v), true
	case int64:
		if v < 0 || v > math.MaxUint32 {
			return 0, false
		}
		return uint32(v), true
	case float64:
		if v < 0 || v > math.MaxUint32 || v != math.Trunc(v) {
			return 0, false
		}
		return uint32(v), true
	default:
		return 0, false
	}
}

// MarshalJSON encodes the envelope in its wire shape.
func (e Envelope) MarshalJSON() ([]byte, error) {
	msg := e.message
	if msg == nil {
		msg = map[string]any{}
	}
	return sonic.ConfigStd.Marshal(wireEnvelope{Method: e.method, Message: msg})
}

// UnmarshalJSON decodes the wire shape, rejecting documents without a method
// or whose message is not an object.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w struct {
		Method  string          `json:"Method"`
		Message *map[string]any `json:"Message"`
	}
	if err := sonic.ConfigStd.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrMalformedEnvelope, err)
	}
	if strings.TrimSpace(w.Method) == "" {
		return fmt.Errorf("%w: %v", apperrors.ErrMalformedEnvelope, apperrors.ErrMethodRequired)
	}
	msg := map[string]any{}
	if w.Message != nil && *w.Message != nil {
		msg = *w.Message
	}
	e.method = w.Method
	e.message = msg
	return nil
}

// EncodeEnvelope serializes an envelope for the transport.
func EncodeEnvelope(e Envelope) ([]byte, error) {
	return e.MarshalJSON()
}

// DecodeEnvelope parses a wire document.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := e.UnmarshalJSON(data); err != nil {
		return Envelope{}, err
	}
	return e, nil
}
