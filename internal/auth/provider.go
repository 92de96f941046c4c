package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mschirtzinger/khata/internal/cache"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"
	oauth2api "google.golang.org/api/oauth2/v2"
)

// DriveFileScope grants access to files the app created.
const DriveFileScope = "https://www.googleapis.com/auth/drive.file"

// DefaultScopes are requested at sign-in.
var DefaultScopes = []string{DriveFileScope, oauth2api.UserinfoEmailScope}

// GoogleConfig builds the OAuth client configuration for Google sign-in.
func GoogleConfig(clientID, clientSecret, redirectURL string, scopes []string) *oauth2.Config {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint:     google.Endpoint,
	}
}

// Config configures a Provider.
type Config struct {
	OAuth     *oauth2.Config
	Cache     cache.Store
	Validator Validator

	// Timeout bounds each credential resolution (default DefaultTimeout).
	Timeout time.Duration

	Logger *log.Logger
	Clock  func() time.Time
}

// Provider hands out validated credentials. Safe for concurrent use;
// concurrent callers share one in-flight resolution.
type Provider struct {
	oauth     *oauth2.Config
	cache     cache.Store
	validator Validator
	timeout   time.Duration
	logger    *log.Logger
	now       func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	loaded  bool
	token   *oauth2.Token
	account string
}

// NewProvider creates a Provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.OAuth == nil {
		return nil, fmt.Errorf("oauth config cannot be nil")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache cannot be nil")
	}
	if cfg.Validator == nil {
		cfg.Validator = &UserInfoValidator{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[auth] ", log.LstdFlags)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Provider{
		oauth:     cfg.OAuth,
		cache:     cfg.Cache,
		validator: cfg.Validator,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
		now:       cfg.Clock,
	}, nil
}

// AuthCodeURL returns the consent page URL. The offline access type makes
// the server issue a refresh token for silent renewal.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token, validates it and
// stores it in the cache.
func (p *Provider) Exchange(ctx context.Context, code string) (Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return Credential{}, fmt.Errorf("%w: code exchange rejected: %s", ErrAuthRequired, rerr.ErrorCode)
		}
		return Credential{}, fmt.Errorf("%w: code exchange: %v", ErrUnreachable, err)
	}
	p.defaultExpiry(tok)

	account, err := p.validator.Validate(ctx, tok)
	if err != nil {
		return Credential{}, p.validationFailure(err)
	}

	if err := p.store(ctx, tok, account); err != nil {
		return Credential{}, err
	}
	p.logger.Printf("Signed in as %s", account)
	return credentialFrom(tok, account), nil
}

// Credential returns a credential that is locally fresh and was accepted
// by the server just now, renewing it silently if needed.
//
// Concurrent callers share one resolution. It runs detached from any one
// caller's context so a caller that gives up does not fail the others;
// each caller still stops waiting when its own ctx ends.
func (p *Provider) Credential(ctx context.Context) (Credential, error) {
	return p.shared(ctx, "credential", p.resolve)
}

// Authenticate forces a silent renewal with the stored refresh token.
// Concurrent calls share one token exchange.
func (p *Provider) Authenticate(ctx context.Context) (Credential, error) {
	return p.shared(ctx, "authenticate", func(ctx context.Context) (Credential, error) {
		tok, _, err := p.current(ctx)
		if err != nil {
			return Credential{}, err
		}
		if tok == nil {
			return Credential{}, fmt.Errorf("%w: no stored credential", ErrAuthRequired)
		}
		return p.renew(ctx, tok)
	})
}

// shared runs fn once per key for all concurrent callers, bounded by the
// provider timeout.
func (p *Provider) shared(ctx context.Context, key string, fn func(context.Context) (Credential, error)) (Credential, error) {
	ch := p.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		return fn(ctx)
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return Credential{}, r.Err
		}
		return r.Val.(Credential), nil
	case <-ctx.Done():
		return Credential{}, fmt.Errorf("%w: %w", ErrUnreachable, ctx.Err())
	}
}

// Cached returns the stored credential without contacting any server.
func (p *Provider) Cached(ctx context.Context) (Credential, bool) {
	tok, account, err := p.current(ctx)
	if err != nil || tok == nil {
		return Credential{}, false
	}
	return credentialFrom(tok, account), true
}

// Logout forgets the stored credential.
func (p *Provider) Logout(ctx context.Context) error {
	p.mu.Lock()
	p.token = nil
	p.account = ""
	p.loaded = true
	p.mu.Unlock()

	if err := p.cache.Delete(ctx, cache.KeyCredential); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	if err := p.cache.Delete(ctx, cache.KeyAccount); err != nil {
		return fmt.Errorf("failed to clear account: %w", err)
	}
	return nil
}

func (p *Provider) resolve(ctx context.Context) (Credential, error) {
	tok, account, err := p.current(ctx)
	if err != nil {
		return Credential{}, err
	}
	if tok == nil {
		return Credential{}, fmt.Errorf("%w: no stored credential", ErrAuthRequired)
	}

	if fresh(tok.AccessToken, tok.Expiry, p.now()) {
		live, err := p.validator.Validate(ctx, tok)
		switch {
		case err == nil:
			if live != account {
				if err := p.store(ctx, tok, live); err != nil {
					p.logger.Printf("WARNING: %v", err)
				}
			}
			return credentialFrom(tok, live), nil
		case errors.Is(err, ErrInvalidToken):
			p.logger.Printf("Stored token rejected, renewing: %v", err)
		default:
			return Credential{}, p.validationFailure(err)
		}
	}

	return p.renew(ctx, tok)
}

func (p *Provider) renew(ctx context.Context, old *oauth2.Token) (Credential, error) {
	if old.RefreshToken == "" {
		return Credential{}, fmt.Errorf("%w: token expired and no refresh token", ErrAuthRequired)
	}

	src := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: old.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			p.logger.Printf("Refresh token rejected (%s), sign-in required", rerr.ErrorCode)
			if err := p.Logout(ctx); err != nil {
				p.logger.Printf("WARNING: %v", err)
			}
			return Credential{}, fmt.Errorf("%w: refresh rejected", ErrAuthRequired)
		}
		return Credential{}, fmt.Errorf("%w: refresh: %v", ErrUnreachable, err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = old.RefreshToken
	}
	p.defaultExpiry(tok)

	account, err := p.validator.Validate(ctx, tok)
	if err != nil {
		return Credential{}, p.validationFailure(err)
	}
	if err := p.store(ctx, tok, account); err != nil {
		p.logger.Printf("WARNING: %v", err)
	}
	p.logger.Printf("Credential renewed for %s", account)
	return credentialFrom(tok, account), nil
}

func (p *Provider) validationFailure(err error) error {
	if errors.Is(err, ErrInvalidToken) {
		return fmt.Errorf("%w: %v", ErrAuthRequired, err)
	}
	if errors.Is(err, ErrUnreachable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

func (p *Provider) defaultExpiry(tok *oauth2.Token) {
	if tok.Expiry.IsZero() {
		tok.Expiry = p.now().Add(DefaultTokenLifetime)
	}
}

// current returns the in-memory token, loading it from the cache once.
func (p *Provider) current(ctx context.Context) (*oauth2.Token, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loaded {
		return p.token, p.account, nil
	}

	raw, err := p.cache.Get(ctx, cache.KeyCredential)
	switch {
	case errors.Is(err, cache.ErrNotFound):
		p.loaded = true
		return nil, "", nil
	case err != nil:
		return nil, "", fmt.Errorf("failed to read stored credential: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		p.logger.Printf("WARNING: discarding unreadable stored credential: %v", err)
		p.loaded = true
		return nil, "", nil
	}
	account, _ := cache.GetString(ctx, p.cache, cache.KeyAccount)

	p.token = &tok
	p.account = account
	p.loaded = true
	return p.token, p.account, nil
}

func (p *Provider) store(ctx context.Context, tok *oauth2.Token, account string) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	p.mu.Lock()
	p.token = tok
	p.account = account
	p.loaded = true
	p.mu.Unlock()

	if err := p.cache.Put(ctx, cache.KeyCredential, raw); err != nil {
		return fmt.Errorf("failed to persist credential: %w", err)
	}
	if err := p.cache.Put(ctx, cache.KeyAccount, []byte(account)); err != nil {
		return fmt.Errorf("failed to persist account: %w", err)
	}
	return nil
}
