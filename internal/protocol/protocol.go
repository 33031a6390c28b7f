// Package protocol defines the JSON frames exchanged with relay clients.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/Tyrowin/gochat-relay/internal/identity"
)

// ConnectedMessage is the text of the confirmation sent right after accept.
const ConnectedMessage = "Connected to WebSocket"

// ErrNotObject is returned when an inbound frame is not a JSON object.
var ErrNotObject = errors.New("frame is not a JSON object")

// Envelope is the inbound message format:
//
//	{"message": "hi", "recipient": "42"}
//
// A missing message decodes to the empty string and a missing recipient
// means the message goes to the public group.
type Envelope struct {
	Message   string    `json:"message"`
	Recipient Recipient `json:"recipient"`
}

// Recipient is a user identifier given as a JSON string or number. The
// empty value means the public group.
type Recipient string

// UnmarshalJSON accepts "42", 42 and null. Like the empty string, false and
// a zero number address nobody and leave the recipient empty; true is
// rejected.
func (r *Recipient) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")), bytes.Equal(data, []byte("false")):
		*r = ""
		return nil
	case bytes.Equal(data, []byte("true")):
		return errors.New("recipient must be a string or a number")
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = Recipient(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("recipient must be a string or a number: %w", err)
	}
	if f, err := n.Float64(); err == nil && f == 0 {
		*r = ""
		return nil
	}
	if i, err := n.Int64(); err == nil {
		*r = Recipient(strconv.FormatInt(i, 10))
		return nil
	}
	*r = Recipient(n.String())
	return nil
}

// DecodeEnvelope parses an inbound frame.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, ErrNotObject
	}

	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Kind distinguishes public broadcasts from private deliveries.
type Kind string

const (
	KindGroup   Kind = "group"
	KindPrivate Kind = "private"
)

// Event is what the group registry fans out to member sessions.
type Event struct {
	Kind    Kind
	Message string
	From    identity.Identity
}

type wireEvent struct {
	Type     Kind              `json:"type"`
	Message  string            `json:"message"`
	FromUser identity.Identity `json:"from_user"`
}

// MarshalJSON encodes the outbound delivery frame:
//
//	{"type": "group", "message": "hi", "from_user": null}
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{Type: e.Kind, Message: e.Message, FromUser: e.From})
}

// Confirmation is sent once, immediately after the connection is accepted.
type Confirmation struct {
	Message string            `json:"message"`
	UserID  identity.Identity `json:"user_id"`
}

// NewConfirmation builds the confirmation for id.
func NewConfirmation(id identity.Identity) Confirmation {
	return Confirmation{Message: ConnectedMessage, UserID: id}
}
