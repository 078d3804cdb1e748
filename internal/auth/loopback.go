package auth

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"outreach/internal/model"
	"outreach/internal/util"
)

// LoginOptions controls the terminal sign-in flow.
type LoginOptions struct {
	// TokenPath caches the OAuth token between runs. Empty disables caching.
	TokenPath string
	// In and Out are used for the manual paste fallback. Defaults: stdin, stderr.
	In  io.Reader
	Out io.Writer
	// OpenBrowser is called with the authorization URL. Defaults to
	// util.OpenBrowser.
	OpenBrowser func(string) error
	// Timeout is how long to wait for the loopback redirect before asking
	// for a pasted code. Defaults to two minutes.
	Timeout time.Duration
}

// LoginCLI signs the user in from a terminal. A cached token is reused when
// it still resolves to an identity. Otherwise a loopback server on a random
// 127.0.0.1 port captures the redirect, falling back to a pasted code or URL.
func LoginCLI(ctx context.Context, g *GoogleOAuth, opts LoginOptions) (model.Identity, error) {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stderr
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = util.OpenBrowser
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}

	if opts.TokenPath != "" {
		if tok, err := readToken(opts.TokenPath); err == nil {
			if id, err := g.Identity(ctx, tok); err == nil {
				return id, nil
			}
			// Invalid or expired: drop it and sign in again.
			os.Remove(opts.TokenPath)
		}
	}

	id, tok, err := loginFromWeb(ctx, g, opts)
	if err != nil {
		return model.Identity{}, err
	}
	if opts.TokenPath != "" {
		if err := saveToken(opts.TokenPath, tok); err != nil {
			return model.Identity{}, fmt.Errorf("save token: %w", err)
		}
	}
	return id, nil
}

func loginFromWeb(ctx context.Context, g *GoogleOAuth, opts LoginOptions) (model.Identity, *oauth2.Token, error) {
	state, err := NewState()
	if err != nil {
		return model.Identity{}, nil, err
	}
	// Work on a copy so the web flow's redirect URL is never touched.
	cfg := g.Config()

	type result struct {
		code string
		err  error
	}
	resCh := make(chan result, 1)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err == nil {
		port := ln.Addr().(*net.TCPAddr).Port
		cfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d/", port)

		mux := http.NewServeMux()
		srv := &http.Server{
			ReadHeaderTimeout: 5 * time.Second,
			Handler:           mux,
		}
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if e := q.Get("error"); e != "" {
				http.Error(w, "Sign-in was cancelled.", http.StatusBadRequest)
				select {
				case resCh <- result{err: fmt.Errorf("authorization denied: %s", e)}:
				default:
				}
				return
			}
			code := q.Get("code")
			if code == "" {
				http.Error(w, "Missing 'code' parameter", http.StatusBadRequest)
				return
			}
			if q.Get("state") != state {
				http.Error(w, "State mismatch", http.StatusBadRequest)
				return
			}
			fmt.Fprintln(w, "Signed in to Outreach. You can close this window.")
			select {
			case resCh <- result{code: code}:
			default:
			}
		})
		go func() { _ = srv.Serve(ln) }()
		defer srv.Close()

		authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
		fmt.Fprintln(opts.Out, "A browser window will open. If it does not, copy this URL:")
		fmt.Fprintln(opts.Out, authURL)
		fmt.Fprintf(opts.Out, "Waiting for redirect on %s …\n", cfg.RedirectURL)
		if err := opts.OpenBrowser(authURL); err != nil {
			fmt.Fprintf(opts.Out, "Could not open a browser: %v\n", err)
		}

		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()

		// Wait for code or timeout, while honoring ctx.
		select {
		case <-ctx.Done():
			return model.Identity{}, nil, ctx.Err()
		case r := <-resCh:
			if r.err != nil {
				return model.Identity{}, nil, r.err
			}
			fmt.Fprintln(opts.Out, "Exchanging code for token…")
			return g.exchange(ctx, &cfg, r.code)
		case <-timer.C:
			fmt.Fprintln(opts.Out, "Timeout waiting for redirect; falling back to manual paste.")
		}
	}

	// Manual paste fallback.
	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Fprintln(opts.Out, "Open this URL in your browser to sign in to Outreach:")
	fmt.Fprintln(opts.Out, authURL)
	fmt.Fprintln(opts.Out, "")
	fmt.Fprintln(opts.Out, "Paste the AUTH CODE itself or the FULL redirect URL here, then press Enter.")
	fmt.Fprint(opts.Out, "> ")

	sc := bufio.NewScanner(opts.In)
	sc.Buffer(make([]byte, 0, 1024), 1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return model.Identity{}, nil, fmt.Errorf("read auth code: %w", err)
		}
		return model.Identity{}, nil, errors.New("empty authorization code")
	}
	code, err := ParsePastedCode(sc.Text(), state)
	if err != nil {
		return model.Identity{}, nil, err
	}
	fmt.Fprintln(opts.Out, "Exchanging code for token…")
	return g.exchange(ctx, &cfg, code)
}

// ParsePastedCode accepts either a bare authorization code or the full
// redirect URL. A URL carrying a state must match wantState.
func ParsePastedCode(input, wantState string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty authorization code")
	}
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect URL: %w", err)
	}
	q := u.Query()
	code := q.Get("code")
	if code == "" {
		return "", errors.New("no 'code' parameter found in pasted URL")
	}
	if s := q.Get("state"); s != "" && s != wantState {
		return "", ErrStateMismatch
	}
	return code, nil
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
