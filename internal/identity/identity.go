// Package identity defines who is on the other end of a connection: either an
// anonymous participant or an authenticated user with a stable identifier.
package identity

import "encoding/json"

// Kind tags which variant an Identity holds.
type Kind uint8

const (
	// KindAnonymous is a participant without a resolved user record.
	KindAnonymous Kind = iota
	// KindAuthenticated is a participant whose token resolved to a known user.
	KindAuthenticated
)

func (k Kind) String() string {
	switch k {
	case KindAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Identity is resolved once when a connection opens and never changes.
// The zero value is anonymous.
type Identity struct {
	kind   Kind
	userID string
}

// Anonymous returns the anonymous identity.
func Anonymous() Identity {
	return Identity{kind: KindAnonymous}
}

// Authenticated returns the identity of userID. An empty userID yields the
// anonymous identity since it cannot name a personal group.
func Authenticated(userID string) Identity {
	if userID == "" {
		return Anonymous()
	}
	return Identity{kind: KindAuthenticated, userID: userID}
}

// Kind reports the variant.
func (i Identity) Kind() Kind {
	return i.kind
}

// UserID returns the user identifier and true for authenticated identities.
func (i Identity) UserID() (string, bool) {
	if i.kind != KindAuthenticated {
		return "", false
	}
	return i.userID, true
}

// IsAuthenticated reports whether the identity carries a user identifier.
func (i Identity) IsAuthenticated() bool {
	return i.kind == KindAuthenticated
}

// String is used in log lines.
func (i Identity) String() string {
	if id, ok := i.UserID(); ok {
		return id
	}
	return "anonymous"
}

// MarshalJSON encodes the user identifier, or null when anonymous.
func (i Identity) MarshalJSON() ([]byte, error) {
	if id, ok := i.UserID(); ok {
		return json.Marshal(id)
	}
	return []byte("null"), nil
}
