package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/youtube/v3"

	"github.com/lvcoi/ytup/internal/apperr"
	"github.com/lvcoi/ytup/internal/fsx"
)

// Scopes requested from the account owner: publishing plus the read access
// the category listing needs.
var Scopes = []string{youtube.YoutubeUploadScope, youtube.YoutubeReadonlyScope}

// AuthOptions configures how an authorized client is obtained.
type AuthOptions struct {
	SecretsFile string
	TokenFile   string
	// HTTPClient carries token exchanges and, wrapped, every authorized call.
	HTTPClient *http.Client
	// Prompt receives the consent URL when interactive authorization is needed.
	Prompt io.Writer
	// OpenBrowser, if set, is called with the consent URL.
	OpenBrowser func(url string) error
	Log         zerolog.Logger
}

// Authorize returns an HTTP client that attaches a valid access token to each
// request. A cached token is reused and refreshed when possible; otherwise the
// installed-app consent flow runs on a loopback listener. Refreshed tokens are
// written back to the token file.
func Authorize(ctx context.Context, opts AuthOptions) (*http.Client, error) {
	secrets, err := os.ReadFile(opts.SecretsFile)
	if err != nil {
		return nil, apperr.Wrap(apperr.CategoryAuth, fmt.Errorf("read client secrets: %w", err))
	}
	cfg, err := google.ConfigFromJSON(secrets, Scopes...)
	if err != nil {
		return nil, apperr.Wrap(apperr.CategoryAuth, fmt.Errorf("parse client secrets %s: %w", opts.SecretsFile, err))
	}
	base := opts.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	store := &TokenStore{Path: opts.TokenFile}
	tok, err := store.Load()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		opts.Log.Info().Str("token_file", store.Path).Msg("no cached token, starting authorization")
		tok = nil
	case err != nil:
		opts.Log.Warn().Err(err).Str("token_file", store.Path).Msg("ignoring unreadable token")
		tok = nil
	case !tok.Valid() && tok.RefreshToken == "":
		opts.Log.Info().Msg("cached token expired without refresh token, reauthorizing")
		tok = nil
	}

	if tok == nil {
		tok, err = loopbackToken(ctx, cfg, opts)
		if err != nil {
			return nil, err
		}
		if err := store.Save(tok); err != nil {
			return nil, apperr.Wrap(apperr.CategoryFilesystem, fmt.Errorf("save token: %w", err))
		}
	}

	src := oauth2.ReuseTokenSource(tok, &persistingSource{
		src:   cfg.TokenSource(ctx, tok),
		store: store,
		last:  tok.AccessToken,
		log:   opts.Log,
	})
	// Refresh now so a revoked grant fails before any file is touched.
	if _, err := src.Token(); err != nil {
		return nil, apperr.Wrap(apperr.CategoryAuth, fmt.Errorf("refresh token: %w", err))
	}
	return oauth2.NewClient(ctx, src), nil
}

// TokenStore keeps an OAuth token as JSON on disk, readable only by its owner.
type TokenStore struct {
	Path string
}

func (s *TokenStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Path, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("decode %s: token is empty", s.Path)
	}
	return &tok, nil
}

func (s *TokenStore) Save(tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(s.Path, data, 0o600)
}

type persistingSource struct {
	src   oauth2.TokenSource
	store *TokenStore
	log   zerolog.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		if err := p.store.Save(tok); err != nil {
			p.log.Warn().Err(err).Str("token_file", p.store.Path).Msg("could not persist refreshed token")
		} else {
			p.log.Debug().Time("expiry", tok.Expiry).Msg("token refreshed")
		}
	}
	return tok, nil
}

func loopbackToken(ctx context.Context, base *oauth2.Config, opts AuthOptions) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, apperr.Wrap(apperr.CategoryAuth, fmt.Errorf("start callback listener: %w", err))
	}
	cfg := *base
	cfg.RedirectURL = "http://" + ln.Addr().String() + "/"

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))

	type callback struct {
		code string
		err  error
	}
	results := make(chan callback, 1)
	deliver := func(c callback) {
		select {
		case results <- c:
		default:
		}
	}
	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/" {
				http.NotFound(w, r)
				return
			}
			q := r.URL.Query()
			switch {
			case q.Get("error") != "":
				http.Error(w, "Authorization was not granted. You can close this window.", http.StatusForbidden)
				deliver(callback{err: fmt.Errorf("authorization denied: %s", q.Get("error"))})
			case q.Get("state") != state:
				http.Error(w, "State mismatch.", http.StatusBadRequest)
				deliver(callback{err: errors.New("authorization callback state mismatch")})
			case q.Get("code") == "":
				http.Error(w, "Missing authorization code.", http.StatusBadRequest)
				deliver(callback{err: errors.New("authorization callback without code")})
			default:
				io.WriteString(w, "Authorization complete. You can close this window.\n")
				deliver(callback{code: q.Get("code")})
			}
		}),
	}
	go srv.Serve(ln)
	defer srv.Close()

	prompt := opts.Prompt
	if prompt == nil {
		prompt = os.Stderr
	}
	fmt.Fprintf(prompt, "Authorize ytup by opening this URL in a browser:\n\n  %s\n\n", authURL)
	if opts.OpenBrowser != nil {
		if err := opts.OpenBrowser(authURL); err != nil {
			opts.Log.Debug().Err(err).Msg("could not open browser")
		}
	}

	var cb callback
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case cb = <-results:
	}
	if cb.err != nil {
		return nil, apperr.Wrap(apperr.CategoryAuth, cb.err)
	}
	tok, err := cfg.Exchange(ctx, cb.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, apperr.Wrap(apperr.CategoryAuth, fmt.Errorf("exchange authorization code: %w", err))
	}
	return tok, nil
}
