package identity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnonymous(t *testing.T) {
	req := require.New(t)

	id := Anonymous()
	userID, ok := id.UserID()

	req.False(ok)
	req.Empty(userID)
	req.False(id.IsAuthenticated())
	req.Equal(KindAnonymous, id.Kind())
	req.Equal("anonymous", id.String())
	req.Equal(Identity{}, id, "zero value must be anonymous")
}

func TestAuthenticated(t *testing.T) {
	req := require.New(t)

	id := Authenticated("42")
	userID, ok := id.UserID()

	req.True(ok)
	req.Equal("42", userID)
	req.True(id.IsAuthenticated())
	req.Equal("authenticated", id.Kind().String())
	req.Equal("42", id.String())
}

func TestAuthenticatedWithEmptyIDIsAnonymous(t *testing.T) {
	require.Equal(t, Anonymous(), Authenticated(""))
}

func TestMarshalJSON(t *testing.T) {
	req := require.New(t)

	payload, err := json.Marshal(struct {
		User Identity `json:"user_id"`
	}{User: Authenticated("42")})
	req.NoError(err)
	req.JSONEq(`{"user_id":"42"}`, string(payload))

	payload, err = json.Marshal(struct {
		User Identity `json:"user_id"`
	}{User: Anonymous()})
	req.NoError(err)
	req.JSONEq(`{"user_id":null}`, string(payload))
}
