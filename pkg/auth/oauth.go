package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrAuthorization wraps every failure to obtain a usable access token.
var ErrAuthorization = errors.New("authorization failed")

// DefaultRedirectAddr is where the browser flow sends the authorization code.
const DefaultRedirectAddr = "localhost:8080"

// OAuth2Config holds OAuth2 configuration for one account
type OAuth2Config struct {
	CredentialsPath string
	TokenPath       string
	Scopes          []string

	// Interactive allows falling back to the browser flow when no token is
	// cached or the refresh token was revoked.
	Interactive  bool
	RedirectAddr string
}

// NewOAuth2Config creates a new OAuth2 configuration
func NewOAuth2Config(credentialsPath string, tokenPath string, scopes ...string) *OAuth2Config {
	return &OAuth2Config{
		CredentialsPath: credentialsPath,
		TokenPath:       tokenPath,
		Scopes:          scopes,
		RedirectAddr:    DefaultRedirectAddr,
	}
}

// LoadCredentials loads the OAuth2 client from the credentials file
func (c *OAuth2Config) LoadCredentials() (*oauth2.Config, error) {
	data, err := os.ReadFile(c.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("could not read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(data, c.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("could not parse credentials file: %w", err)
	}

	return config, nil
}

// LoadToken loads the cached token from file
func (c *OAuth2Config) LoadToken() (*oauth2.Token, error) {
	f, err := os.Open(c.TokenPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("could not decode token file: %w", err)
	}
	return token, nil
}

// SaveToken saves token to file, readable only by the owner
func (c *OAuth2Config) SaveToken(token *oauth2.Token) error {
	if token == nil {
		return fmt.Errorf("could not save OAuth token: token is nil")
	}
	if c.TokenPath == "" {
		return fmt.Errorf("could not save OAuth token: token path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(c.TokenPath), 0o700); err != nil {
		return err
	}

	f, err := os.OpenFile(c.TokenPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("could not save OAuth token: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(token)
}

// RemoveToken deletes the cached token so the next start re-authorizes.
func (c *OAuth2Config) RemoveToken() error {
	if err := os.Remove(c.TokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not remove OAuth token: %w", err)
	}
	return nil
}

// GetToken returns a valid token, refreshing or re-authorizing when needed.
// The result is persisted to TokenPath.
func (c *OAuth2Config) GetToken(ctx context.Context) (*oauth2.Token, error) {
	config, err := c.LoadCredentials()
	if err != nil {
		return nil, err
	}

	token, err := c.LoadToken()
	if err != nil {
		if !c.Interactive {
			return nil, fmt.Errorf("%w: no cached token: %v", ErrAuthorization, err)
		}
		token, err = c.authenticate(ctx, config)
		if err != nil {
			return nil, err
		}
	}

	if !token.Valid() {
		token, err = config.TokenSource(ctx, token).Token()
		if err != nil {
			if !isRevoked(err) || !c.Interactive {
				return nil, fmt.Errorf("%w: token refresh failed: %v", ErrAuthorization, err)
			}
			fmt.Println("\nYour Gmail access token has expired or been revoked.")
			token, err = c.authenticate(ctx, config)
			if err != nil {
				return nil, fmt.Errorf("re-authentication failed: %w", err)
			}
		}
	}

	if err := c.SaveToken(token); err != nil {
		return nil, err
	}
	return token, nil
}

func isRevoked(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid_grant") ||
		strings.Contains(msg, "Token has been expired or revoked")
}

// authenticate runs the browser flow and captures the code on a local server.
func (c *OAuth2Config) authenticate(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	addr := c.RedirectAddr
	if addr == "" {
		addr = DefaultRedirectAddr
	}
	state := uuid.NewString()

	codeChan := make(chan string, 1)
	errorChan := make(chan error, 1)

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("state") != state || q.Get("code") == "" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`<html><body><h2>Authorization error</h2><p>Authorization code not received.</p></body></html>`))
				select {
				case errorChan <- fmt.Errorf("authorization code not received"):
				default:
				}
				return
			}
			_, _ = w.Write([]byte(`<html><body><h2>Authorization successful</h2><p>You can close this window and return to the inbox.</p></body></html>`))
			select {
			case codeChan <- q.Get("code"):
			default:
			}
		}),
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("local server error: %w", err)
	}
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			select {
			case errorChan <- err:
			default:
			}
		}
	}()
	defer func() { _ = server.Shutdown(context.Background()) }()

	localConfig := *config
	localConfig.RedirectURL = "http://" + addr

	authURL := localConfig.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Printf("\nAuthorization required\n")
	fmt.Printf("1. Open this link: %s\n", authURL)
	fmt.Printf("2. Grant access to the application\n")
	fmt.Printf("3. You will be redirected automatically\n")
	fmt.Printf("\nWaiting for authorization...\n")

	var authCode string
	select {
	case authCode = <-codeChan:
	case err := <-errorChan:
		return nil, fmt.Errorf("%w: %v", ErrAuthorization, err)
	case <-time.After(5 * time.Minute):
		return nil, fmt.Errorf("%w: authorization timeout exceeded", ErrAuthorization)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	token, err := localConfig.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("%w: could not exchange authorization code: %v", ErrAuthorization, err)
	}

	fmt.Printf("Authorization successful!\n")
	return token, nil
}
