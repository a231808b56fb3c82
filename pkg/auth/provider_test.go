package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// writeCredentials writes an installed-app credentials file whose token
// endpoint is tokenURL.
func writeCredentials(t *testing.T, tokenURL string) string {
	t.Helper()
	creds := map[string]interface{}{
		"installed": map[string]interface{}{
			"client_id":     "client-id",
			"client_secret": "client-secret",
			"auth_uri":      "https://accounts.example.com/auth",
			"token_uri":     tokenURL,
			"redirect_uris": []string{"http://localhost"},
		},
	}
	data, err := json.Marshal(creds)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func newTokenServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestFileTokenProvider_RefreshesAndPersists(t *testing.T) {
	var refreshes int32
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&refreshes, 1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"access_token":"fresh-%d","token_type":"Bearer","expires_in":3600}`, n)
	})

	cfg := &OAuth2Config{
		CredentialsPath: writeCredentials(t, srv.URL+"/token"),
		TokenPath:       filepath.Join(t.TempDir(), "token.json"),
	}
	require.NoError(t, cfg.SaveToken(&oauth2.Token{
		AccessToken:  "stale",
		TokenType:    "Bearer",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(-time.Hour),
	}))

	provider := NewFileTokenProvider(cfg)
	tok, err := provider.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-1", tok)

	// A valid token is served from memory.
	tok, err = provider.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-1", tok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshes))

	saved, err := cfg.LoadToken()
	require.NoError(t, err)
	assert.Equal(t, "fresh-1", saved.AccessToken)
	assert.Equal(t, "refresh", saved.RefreshToken)
}

func TestFileTokenProvider_RevokedRefreshToken(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
	})

	cfg := &OAuth2Config{
		CredentialsPath: writeCredentials(t, srv.URL+"/token"),
		TokenPath:       filepath.Join(t.TempDir(), "token.json"),
	}
	require.NoError(t, cfg.SaveToken(&oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "revoked",
		Expiry:       time.Now().Add(-time.Hour),
	}))

	tok, err := NewFileTokenProvider(cfg).AccessToken(context.Background())
	assert.Empty(t, tok)
	assert.True(t, errors.Is(err, ErrAuthorization), "got %v", err)
}

func TestFileTokenProvider_HTTPClientAuthorizes(t *testing.T) {
	api := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer cached", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})

	cfg := &OAuth2Config{
		CredentialsPath: writeCredentials(t, "http://127.0.0.1:1/token"),
		TokenPath:       filepath.Join(t.TempDir(), "token.json"),
	}
	require.NoError(t, cfg.SaveToken(&oauth2.Token{
		AccessToken: "cached",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}))

	client := NewFileTokenProvider(cfg).HTTPClient(context.Background(), 5*time.Second)
	resp, err := client.Get(api.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestNewGmailService_Errors(t *testing.T) {
	provider := NewFileTokenProvider(&OAuth2Config{CredentialsPath: "/nonexistent/cred.json", TokenPath: "/tmp/token.json"})

	service, err := NewGmailService(context.Background(), provider, time.Second)
	assert.Error(t, err)
	assert.Nil(t, service)
}

func TestTokenProviderFunc(t *testing.T) {
	var p TokenProvider = TokenProviderFunc(func(context.Context) (string, error) { return "t", nil })
	tok, err := p.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t", tok)
}
