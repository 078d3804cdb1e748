package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"outreach/internal/model"
)

// CookieName holds the session token.
const CookieName = "outreach_session"

// ErrInvalidSession covers missing, malformed, forged and expired sessions.
var ErrInvalidSession = errors.New("invalid session")

const issuer = "outreach"

type claims struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Sessions issues and verifies HS256 session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewSessions returns a signer using secret. secure marks cookies Secure and
// should be set when the public URL is https.
func NewSessions(secret string, ttl time.Duration, secure bool) (*Sessions, error) {
	if len(secret) < 32 {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, secure: secure, now: time.Now}, nil
}

// TTL is how long an issued session stays valid.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Issue signs a token for id.
func (s *Sessions) Issue(id model.Identity) (string, error) {
	if id.Email == "" {
		return "", errors.New("issue session: identity has no email")
	}
	now := s.now()
	c := claims{
		Email:   id.Email,
		Name:    id.Name,
		Picture: id.Picture,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return token, nil
}

// Verify checks signature, algorithm, issuer and expiry.
func (s *Sessions) Verify(token string) (model.Identity, error) {
	if token == "" {
		return model.Identity{}, ErrInvalidSession
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if c.Email == "" {
		return model.Identity{}, ErrInvalidSession
	}
	return model.Identity{Email: c.Email, Name: c.Name, Picture: c.Picture}, nil
}

// SetCookie issues a token for id and stores it on w.
func (s *Sessions) SetCookie(w http.ResponseWriter, id model.Identity) error {
	token, err := s.Issue(id)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.ttl / time.Second),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearCookie expires the session cookie.
func (s *Sessions) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest returns the identity carried by r's session cookie.
func (s *Sessions) FromRequest(r *http.Request) (model.Identity, error) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return model.Identity{}, ErrInvalidSession
	}
	return s.Verify(c.Value)
}
