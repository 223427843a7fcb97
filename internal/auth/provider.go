// Package auth identifies the site administrator and tracks the signed-in
// session that enables the editor.
package auth

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/atelier/internal/config"
	"github.com/debemdeboas/atelier/internal/model"
)

var ErrNoUser = errors.New("no user in request")

var authLogger zerolog.Logger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	authLogger = l
}

type AuthProvider interface {
	WithHeaderAuthorization() func(http.Handler) http.Handler

	GetUserIDFromSession(r *http.Request) (model.UserID, error)

	EnforceUserAndGetID(w http.ResponseWriter, r *http.Request) (model.UserID, error)

	HandleWebhookUser(w http.ResponseWriter, r *http.Request)
}

// DisabledAuthProvider is used when authentication is turned off. It
// authenticates nobody, which leaves the site read-only.
type DisabledAuthProvider struct{}

func (DisabledAuthProvider) WithHeaderAuthorization() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return next }
}

func (DisabledAuthProvider) GetUserIDFromSession(r *http.Request) (model.UserID, error) {
	return "", ErrNoUser
}

func (DisabledAuthProvider) EnforceUserAndGetID(w http.ResponseWriter, r *http.Request) (model.UserID, error) {
	http.Error(w, config.ErrUnauthorized, http.StatusUnauthorized)
	return "", ErrNoUser
}

func (DisabledAuthProvider) HandleWebhookUser(w http.ResponseWriter, r *http.Request) {
	http.NotFound(w, r)
}
