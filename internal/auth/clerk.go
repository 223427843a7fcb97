package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/clerk/clerk-sdk-go/v2"
	clerkhttp "github.com/clerk/clerk-sdk-go/v2/http"
	clerkuser "github.com/clerk/clerk-sdk-go/v2/user"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/atelier/internal/config"
	"github.com/debemdeboas/atelier/internal/db"
	"github.com/debemdeboas/atelier/internal/model"
)

// ClerkAuthProvider authenticates through Clerk session tokens and mirrors
// Clerk users into the users table through the user webhook.
type ClerkAuthProvider struct {
	db db.DB

	cookieExtractor clerkhttp.AuthorizationOption
}

func NewClerkAuthProvider(clerkKey string, database db.DB) *ClerkAuthProvider {
	clerk.SetKey(clerkKey)

	return &ClerkAuthProvider{
		db: database,
		cookieExtractor: clerkhttp.AuthorizationJWTExtractor(func(r *http.Request) string {
			cookie, err := r.Cookie("__session")
			if err != nil || cookie == nil {
				return ""
			}
			return cookie.Value
		}),
	}
}

func (c *ClerkAuthProvider) WithHeaderAuthorization() func(http.Handler) http.Handler {
	return clerkhttp.WithHeaderAuthorization(c.cookieExtractor)
}

func (c *ClerkAuthProvider) GetUserIDFromSession(r *http.Request) (model.UserID, error) {
	claims, ok := clerk.SessionClaimsFromContext(r.Context())
	if !ok {
		return "", ErrNoUser
	}

	usr, err := clerkuser.Get(r.Context(), claims.Subject)
	if err != nil {
		return "", fmt.Errorf("error fetching clerk user: %w", err)
	}

	return model.UserID(usr.ID), nil
}

func (c *ClerkAuthProvider) EnforceUserAndGetID(w http.ResponseWriter, r *http.Request) (model.UserID, error) {
	userID, err := c.GetUserIDFromSession(r)
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Unauthorized access attempt")
		http.Error(w, config.ErrUnauthorized, http.StatusUnauthorized)
		return "", err
	}
	return userID, nil
}

type clerkEvent struct {
	Data struct {
		clerk.User
	} `json:"data"`

	Type string `json:"type"`
}

func (c *ClerkAuthProvider) HandleWebhookUser(w http.ResponseWriter, r *http.Request) {
	l := zerolog.Ctx(r.Context())

	var payload clerkEvent
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		l.Warn().Err(err).Msg("Error decoding clerk event payload")
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	usr := payload.Data.User
	l.Info().Str("type", payload.Type).Str("user_id", usr.ID).Msg("Clerk user webhook received")

	switch payload.Type {
	case "user.created":
		// Only accounts linked through X are accepted.
		if len(usr.ExternalAccounts) == 0 {
			http.Error(w, "No external accounts found", http.StatusBadRequest)
			return
		}
		account := usr.ExternalAccounts[0]
		if !strings.EqualFold(account.Provider, "oauth_x") {
			http.Error(w, "Invalid provider", http.StatusBadRequest)
			return
		}

		_, err := c.db.ExecContext(r.Context(),
			"INSERT INTO users (id, username) VALUES (?, ?)",
			usr.ID, account.Username)
		if err != nil {
			l.Error().Err(err).Str("user_id", usr.ID).Msg("Error inserting user")
			http.Error(w, "Error saving user", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)

	case "user.updated":
		w.WriteHeader(http.StatusNoContent)

	case "user.deleted":
		if _, err := c.db.ExecContext(r.Context(), "DELETE FROM users WHERE id = ?", usr.ID); err != nil {
			l.Error().Err(err).Str("user_id", usr.ID).Msg("Error deleting user")
			http.Error(w, "Error deleting user", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Invalid event type", http.StatusBadRequest)
	}
}
