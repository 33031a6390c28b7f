//go:generate go run go.uber.org/mock/mockgen -source=authenticator.go -destination=../mocks/mock_auth.go -package=mocks
package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Tyrowin/gochat-relay/internal/identity"
	"github.com/Tyrowin/gochat-relay/internal/metrics"
	"github.com/Tyrowin/gochat-relay/internal/userstore"
)

// Verifier decodes a bearer token into the user identifier it was issued for.
type Verifier interface {
	Verify(token string) (string, error)
}

// UserLookup resolves a user identifier to a user record.
type UserLookup interface {
	Lookup(ctx context.Context, userID string) (userstore.User, error)
}

// Authenticator turns the token presented at connection time into an
// Identity. It never fails: every problem downgrades to anonymous.
type Authenticator struct {
	verifier Verifier
	users    UserLookup
	log      *slog.Logger
	metrics  *metrics.Metrics
}

func NewAuthenticator(verifier Verifier, users UserLookup, log *slog.Logger, m *metrics.Metrics) *Authenticator {
	return &Authenticator{verifier: verifier, users: users, log: log, metrics: m}
}

// Authenticate resolves token. An empty token, a token that fails
// verification, a user missing from the store and a store failure all yield
// identity.Anonymous().
func (a *Authenticator) Authenticate(ctx context.Context, token string) identity.Identity {
	if token == "" {
		a.metrics.AuthOutcome(metrics.AuthAnonymous)
		return identity.Anonymous()
	}

	userID, err := a.verifier.Verify(token)
	if err != nil {
		a.log.Debug("Token rejected, continuing anonymously", "error", err)
		a.metrics.AuthOutcome(metrics.AuthInvalidToken)
		return identity.Anonymous()
	}

	user, err := a.users.Lookup(ctx, userID)
	switch {
	case errors.Is(err, userstore.ErrNotFound):
		a.log.Debug("Token user not found, continuing anonymously", "user", userID)
		a.metrics.AuthOutcome(metrics.AuthUnknownUser)
		return identity.Anonymous()
	case err != nil:
		a.log.Warn("User lookup failed, continuing anonymously", "user", userID, "error", err)
		a.metrics.AuthOutcome(metrics.AuthStoreError)
		return identity.Anonymous()
	}

	a.metrics.AuthOutcome(metrics.AuthAuthenticated)
	return identity.Authenticated(user.ID)
}
