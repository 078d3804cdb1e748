package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"time"
)

const stateCookie = "outreach_oauth_state"

// ErrStateMismatch means the OAuth callback did not come from our redirect.
var ErrStateMismatch = errors.New("oauth state mismatch")

// NewState returns a random URL-safe value.
func NewState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SetState stores a fresh state in a short-lived cookie and returns it.
func SetState(w http.ResponseWriter, secure bool) (string, error) {
	state, err := NewState()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/",
		MaxAge:   int((10 * time.Minute) / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return state, nil
}

// CheckState compares the callback's state parameter with the cookie and
// clears the cookie either way.
func CheckState(w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/auth/", MaxAge: -1, HttpOnly: true})

	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" {
		return ErrStateMismatch
	}
	got := r.URL.Query().Get("state")
	if subtle.ConstantTimeCompare([]byte(got), []byte(c.Value)) != 1 {
		return ErrStateMismatch
	}
	return nil
}
