package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// TokenProvider yields a currently valid access token, refreshing
// transparently when the cached one has expired.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenProviderFunc adapts a function to TokenProvider.
type TokenProviderFunc func(ctx context.Context) (string, error)

// AccessToken calls f(ctx).
func (f TokenProviderFunc) AccessToken(ctx context.Context) (string, error) { return f(ctx) }

// FileTokenProvider serves tokens for one account from its token file and
// writes refreshed tokens back.
type FileTokenProvider struct {
	cfg *OAuth2Config

	mu     sync.Mutex
	source oauth2.TokenSource
	last   string
}

// NewFileTokenProvider returns a provider for cfg. Nothing is read until the
// first token is requested.
func NewFileTokenProvider(cfg *OAuth2Config) *FileTokenProvider {
	return &FileTokenProvider{cfg: cfg}
}

// AccessToken returns the current access token. Failures wrap ErrAuthorization.
func (p *FileTokenProvider) AccessToken(ctx context.Context) (string, error) {
	tok, err := p.token(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func (p *FileTokenProvider) token(ctx context.Context) (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.source == nil {
		tok, err := p.cfg.GetToken(ctx)
		if err != nil {
			return nil, err
		}
		config, err := p.cfg.LoadCredentials()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAuthorization, err)
		}
		// Refreshes outlive the call that triggered them.
		p.source = config.TokenSource(context.Background(), tok)
		p.last = tok.AccessToken
	}

	tok, err := p.source.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthorization, err)
	}
	if tok.AccessToken != p.last {
		if err := p.cfg.SaveToken(tok); err != nil {
			return nil, err
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}

// Reset drops the in-memory token source so the next call reloads the file.
func (p *FileTokenProvider) Reset() {
	p.mu.Lock()
	p.source = nil
	p.last = ""
	p.mu.Unlock()
}

type providerSource struct {
	p *FileTokenProvider
}

func (s providerSource) Token() (*oauth2.Token, error) {
	return s.p.token(context.Background())
}

// HTTPClient returns a client that authorizes every request through p.
func (p *FileTokenProvider) HTTPClient(ctx context.Context, timeout time.Duration) *http.Client {
	client := oauth2.NewClient(ctx, providerSource{p: p})
	client.Timeout = timeout
	return client
}

// NewGmailService creates a Gmail service authorized by provider. The
// provider's first token is requested eagerly so credential problems surface
// before the first API call.
func NewGmailService(ctx context.Context, provider *FileTokenProvider, timeout time.Duration, opts ...option.ClientOption) (*gmail.Service, error) {
	if _, err := provider.AccessToken(ctx); err != nil {
		return nil, err
	}

	opts = append([]option.ClientOption{option.WithHTTPClient(provider.HTTPClient(ctx, timeout))}, opts...)
	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not create Gmail service: %w", err)
	}
	return service, nil
}
