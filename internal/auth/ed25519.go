package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/debemdeboas/atelier/internal/config"
	"github.com/debemdeboas/atelier/internal/model"
)

// Ed25519AuthProvider authenticates the single administrator by a signature
// over a server-issued challenge.
type Ed25519AuthProvider struct {
	publicKey  ed25519.PublicKey
	headerName string
	cookieName string
	userID     model.UserID

	mu        sync.RWMutex
	challenge []byte

	// limiter bounds signature verification attempts.
	limiter *rate.Limiter

	sessions *Sessions
}

func NewEd25519AuthProvider(publicKeyPEM string, headerName string, userID model.UserID) (*Ed25519AuthProvider, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, errors.New("failed to parse PEM block containing the public key")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	publicKey, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("key is not an Ed25519 public key")
	}

	challenge, err := newChallenge()
	if err != nil {
		return nil, err
	}

	return &Ed25519AuthProvider{
		publicKey:  publicKey,
		headerName: headerName,
		cookieName: config.CookieAuthToken,
		userID:     userID,
		challenge:  challenge,
		limiter:    rate.NewLimiter(rate.Limit(1), 5),
	}, nil
}

func newChallenge() ([]byte, error) {
	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return nil, fmt.Errorf("failed to generate challenge: %w", err)
	}
	return challenge, nil
}

// BindSessions ties the provider to a session tracker. Requests are only
// authenticated while a session is live, and the challenge is rotated when
// a session ends so old signatures stop working.
func (p *Ed25519AuthProvider) BindSessions(s *Sessions) {
	p.mu.Lock()
	p.sessions = s
	p.mu.Unlock()

	s.OnChange(func(sess *Session) {
		if sess == nil {
			if err := p.RefreshChallenge(); err != nil {
				authLogger.Error().Err(err).Msg("Failed to rotate challenge after sign-out")
			}
		}
	})
}

func (p *Ed25519AuthProvider) Sessions() *Sessions {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sessions
}

// SetRateLimit replaces the verification limiter.
func (p *Ed25519AuthProvider) SetRateLimit(every rate.Limit, burst int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limiter = rate.NewLimiter(every, burst)
}

func (p *Ed25519AuthProvider) allowAttempt() bool {
	p.mu.RLock()
	l := p.limiter
	p.mu.RUnlock()
	return l.Allow()
}

// Verify reports whether signature signs the current challenge.
func (p *Ed25519AuthProvider) Verify(signature []byte) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(signature) == ed25519.SignatureSize && ed25519.Verify(p.publicKey, p.challenge, signature)
}

// requestSignature reads the signature from the auth header, falling back
// to the auth cookie.
func (p *Ed25519AuthProvider) requestSignature(r *http.Request, l *zerolog.Logger) []byte {
	if h := r.Header.Get(p.headerName); h != "" {
		sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(h))
		if err == nil {
			return sig
		}
		l.Debug().Err(err).Msg("Failed to decode signature from header")
	}

	if cookie, err := r.Cookie(p.cookieName); err == nil && cookie.Value != "" {
		sig, err := base64.StdEncoding.DecodeString(cookie.Value)
		if err == nil {
			return sig
		}
		l.Debug().Err(err).Msg("Failed to decode signature from cookie")
	}
	return nil
}

// WithHeaderAuthorization returns middleware that puts the administrator id
// in the request context when the request carries a valid signature.
func (p *Ed25519AuthProvider) WithHeaderAuthorization() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := zerolog.Ctx(r.Context())

			sig := p.requestSignature(r, l)
			if len(sig) == 0 || !p.Verify(sig) {
				next.ServeHTTP(w, r)
				return
			}

			if s := p.Sessions(); s != nil {
				if cur := s.Current(); cur == nil || cur.UserID != p.userID {
					next.ServeHTTP(w, r)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), p.userID)))
		})
	}
}

func (p *Ed25519AuthProvider) GetUserIDFromSession(r *http.Request) (model.UserID, error) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		return "", ErrNoUser
	}
	return userID, nil
}

// HandleWebhookUser is a no-op for this provider.
func (p *Ed25519AuthProvider) HandleWebhookUser(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (p *Ed25519AuthProvider) GetChallenge() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]byte(nil), p.challenge...)
}

func (p *Ed25519AuthProvider) RefreshChallenge() error {
	challenge, err := newChallenge()
	if err != nil {
		authLogger.Error().Err(err).Msg("Failed to generate challenge")
		return err
	}

	p.mu.Lock()
	p.challenge = challenge
	p.mu.Unlock()
	return nil
}

// EnforceUserAndGetID writes a 401 when the request is not authenticated.
func (p *Ed25519AuthProvider) EnforceUserAndGetID(w http.ResponseWriter, r *http.Request) (model.UserID, error) {
	userID, err := p.GetUserIDFromSession(r)
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Str("path", r.URL.Path).Msg("Unauthorized access attempt")
		http.Error(w, config.ErrUnauthorized, http.StatusUnauthorized)
		return "", err
	}
	return userID, nil
}
