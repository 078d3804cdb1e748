package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"outreach/internal/config"
	"outreach/internal/model"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestSessions_IssueVerify(t *testing.T) {
	s, err := NewSessions(testSecret, time.Hour, false)
	require.NoError(t, err)

	tok, err := s.Issue(model.Identity{Email: "a@b.com", Name: "Alice"})
	require.NoError(t, err)

	id, err := s.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, model.Identity{Email: "a@b.com", Name: "Alice"}, id)

	_, err = s.Issue(model.Identity{})
	assert.Error(t, err)
}

func TestSessions_Rejects(t *testing.T) {
	s, err := NewSessions(testSecret, time.Hour, false)
	require.NoError(t, err)
	tok, err := s.Issue(model.Identity{Email: "a@b.com"})
	require.NoError(t, err)

	other, _ := NewSessions(strings.Repeat("x", 32), time.Hour, false)
	_, err = other.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidSession, "wrong secret")

	_, err = s.Verify(tok[:len(tok)-2] + "xx")
	assert.ErrorIs(t, err, ErrInvalidSession, "tampered signature")

	_, err = s.Verify("")
	assert.ErrorIs(t, err, ErrInvalidSession)

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidSession, "expired")

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"email": "a@b.com", "iss": issuer, "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	s.now = time.Now
	_, err = s.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidSession, "alg none")
}

func TestNewSessions_Validates(t *testing.T) {
	_, err := NewSessions("short", time.Hour, false)
	assert.Error(t, err)
	_, err = NewSessions(testSecret, 0, false)
	assert.Error(t, err)
}

func TestSessionCookie(t *testing.T) {
	s, err := NewSessions(testSecret, time.Hour, true)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, s.SetCookie(rec, model.Identity{Email: "a@b.com"}))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, CookieName, c.Name)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(c)
	id, err := s.FromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", id.Email)

	_, err = s.FromRequest(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestState(t *testing.T) {
	rec := httptest.NewRecorder()
	state, err := SetState(rec, false)
	require.NoError(t, err)
	cookie := rec.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?state="+state, nil)
	req.AddCookie(cookie)
	assert.NoError(t, CheckState(httptest.NewRecorder(), req))

	req = httptest.NewRequest(http.MethodGet, "/auth/google/callback?state=forged", nil)
	req.AddCookie(cookie)
	assert.ErrorIs(t, CheckState(httptest.NewRecorder(), req), ErrStateMismatch)

	req = httptest.NewRequest(http.MethodGet, "/auth/google/callback?state="+state, nil)
	assert.ErrorIs(t, CheckState(httptest.NewRecorder(), req), ErrStateMismatch)
}

func TestParsePastedCode(t *testing.T) {
	code, err := ParsePastedCode("  4/abc  ", "s1")
	require.NoError(t, err)
	assert.Equal(t, "4/abc", code)

	code, err = ParsePastedCode("http://127.0.0.1:5555/?state=s1&code=4%2Fxyz", "s1")
	require.NoError(t, err)
	assert.Equal(t, "4/xyz", code)

	_, err = ParsePastedCode("http://127.0.0.1:5555/?state=other&code=x", "s1")
	assert.ErrorIs(t, err, ErrStateMismatch)

	_, err = ParsePastedCode("http://127.0.0.1:5555/?state=s1", "s1")
	assert.Error(t, err)

	_, err = ParsePastedCode("", "s1")
	assert.Error(t, err)
}

// fakeGoogle serves a token endpoint and the userinfo API.
func fakeGoogle(t *testing.T, verified bool) (*httptest.Server, *int) {
	t.Helper()
	exchanges := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		exchanges++
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("GET /oauth2/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if verified {
			io.WriteString(w, `{"email":"Alice@Example.com","name":"Alice","verified_email":true}`)
		} else {
			io.WriteString(w, `{"email":"alice@example.com","verified_email":false}`)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &exchanges
}

func newTestOAuth(t *testing.T, srv *httptest.Server) *GoogleOAuth {
	t.Helper()
	g, err := NewGoogleOAuth(config.GoogleConfig{ClientID: "cid", ClientSecret: "secret"},
		"http://localhost:3000/auth/google/callback",
		WithEndpoint(oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}),
		WithUserinfoEndpoint(srv.URL+"/"),
		WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return g
}

func TestGoogleOAuth_Exchange(t *testing.T) {
	srv, _ := fakeGoogle(t, true)
	g := newTestOAuth(t, srv)

	u, err := url.Parse(g.AuthURL("st"))
	require.NoError(t, err)
	assert.Equal(t, "st", u.Query().Get("state"))
	assert.Equal(t, "http://localhost:3000/auth/google/callback", u.Query().Get("redirect_uri"))
	assert.Contains(t, u.Query().Get("scope"), "openid")

	id, tok, err := g.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok.AccessToken)
	assert.Equal(t, model.Identity{Email: "alice@example.com", Name: "Alice"}, id)

	_, _, err = g.Exchange(context.Background(), "bad-code")
	assert.Error(t, err)
}

func TestGoogleOAuth_UnverifiedEmail(t *testing.T) {
	srv, _ := fakeGoogle(t, false)
	g := newTestOAuth(t, srv)
	_, _, err := g.Exchange(context.Background(), "good-code")
	assert.ErrorContains(t, err, "not verified")
}

func TestNewGoogleOAuth_CredentialsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client_secret.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"web":{"client_id":"cid","client_secret":"cs","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost:3000/auth/google/callback"]}}`), 0o600))

	g, err := NewGoogleOAuth(config.GoogleConfig{CredentialsFile: path}, "http://example.com/cb")
	require.NoError(t, err)
	assert.Equal(t, "cid", g.Config().ClientID)
	assert.Equal(t, "http://example.com/cb", g.Config().RedirectURL)

	_, err = NewGoogleOAuth(config.GoogleConfig{}, "")
	assert.Error(t, err)
}

func TestLoginCLI_LoopbackThenCache(t *testing.T) {
	srv, exchanges := fakeGoogle(t, true)
	g := newTestOAuth(t, srv)
	tokenPath := filepath.Join(t.TempDir(), "token.json")

	// The "browser" follows the consent screen straight to the redirect.
	browser := func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		q := u.Query()
		cb := q.Get("redirect_uri") + "?code=good-code&state=" + url.QueryEscape(q.Get("state"))
		resp, err := http.Get(cb)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}

	id, err := LoginCLI(context.Background(), g, LoginOptions{
		TokenPath:   tokenPath,
		Out:         io.Discard,
		OpenBrowser: browser,
		Timeout:     5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", id.Email)
	assert.FileExists(t, tokenPath)
	assert.Equal(t, 1, *exchanges)

	id, err = LoginCLI(context.Background(), g, LoginOptions{
		TokenPath:   tokenPath,
		Out:         io.Discard,
		OpenBrowser: func(string) error { return errors.New("must not be called") },
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", id.Email)
	assert.Equal(t, 1, *exchanges, "cached token reused")
}

func TestLoginCLI_ManualPaste(t *testing.T) {
	srv, _ := fakeGoogle(t, true)
	g := newTestOAuth(t, srv)

	id, err := LoginCLI(context.Background(), g, LoginOptions{
		In:          strings.NewReader("good-code\n"),
		Out:         io.Discard,
		OpenBrowser: func(string) error { return nil },
		Timeout:     10 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", id.Email)
}
