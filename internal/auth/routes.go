package auth

import (
	"net/http"

	"github.com/debemdeboas/atelier/internal/routes"
)

// RegisterEd25519AuthRoutes registers the challenge, verify and logout
// routes.
func RegisterEd25519AuthRoutes(mux *http.ServeMux, provider *Ed25519AuthProvider) {
	mux.HandleFunc(routes.AuthChallenge, Ed25519ChallengeHandler(provider))
	mux.HandleFunc(routes.AuthVerify, Ed25519VerifyHandler(provider))
	mux.HandleFunc(routes.AuthLogout, Ed25519LogoutHandler(provider))
}
