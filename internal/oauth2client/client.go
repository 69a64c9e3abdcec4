/*
	Photoledger
	Copyright (c) 2024 The Photoledger Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package oauth2client makes HTTP clients that are authorized with an
// OAuth2 token persisted on disk. It does not obtain the initial token;
// it only refreshes and re-persists it.
package oauth2client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const refreshTimeout = 10 * time.Second

// GooglePhotosScopes are the scopes needed to read albums, download, and upload.
var GooglePhotosScopes = []string{
	"https://www.googleapis.com/auth/photoslibrary.readonly",
	"https://www.googleapis.com/auth/photoslibrary.appendonly",
	"https://www.googleapis.com/auth/photoslibrary.sharing",
}

// GoogleConfig returns the OAuth2 configuration of a Google app.
func GoogleConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://accounts.google.com/o/oauth2/auth",
			TokenURL:  "https://oauth2.googleapis.com/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: GooglePhotosScopes,
	}
}

// LoadToken reads a JSON-encoded token from the file at path.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	tkn := new(oauth2.Token)
	if err := json.Unmarshal(data, tkn); err != nil {
		return nil, fmt.Errorf("decoding token file %s: %w", path, err)
	}
	if tkn.AccessToken == "" && tkn.RefreshToken == "" {
		return nil, fmt.Errorf("token file %s has neither an access token nor a refresh token", path)
	}
	return tkn, nil
}

// SaveToken writes tkn to the file at path, replacing it atomically.
func SaveToken(path string, tkn *oauth2.Token) error {
	data, err := json.MarshalIndent(tkn, "", "\t")
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating token folder: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing token: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}

// NewHTTPClient returns an HTTP client that authorizes requests with the
// token in tokenFile, refreshing it with cfg as needed. Refreshed tokens
// are written back to tokenFile. Requests go through base, or the default
// transport if base is nil.
func NewHTTPClient(cfg *oauth2.Config, tokenFile string, base http.RoundTripper) (*http.Client, error) {
	if cfg == nil {
		return nil, errors.New("missing OAuth2 config")
	}
	tkn, err := LoadToken(tokenFile)
	if err != nil {
		return nil, err
	}
	if base == nil {
		base = http.DefaultTransport
	}

	// refreshes must not go through the rate limit of the API itself
	refreshCtx := oauthContext(&http.Client{Transport: http.DefaultTransport, Timeout: refreshTimeout})
	src := &persistedTokenSource{
		ts:    oauth2.ReuseTokenSource(tkn, cfg.TokenSource(refreshCtx, tkn)),
		path:  tokenFile,
		token: tkn,
	}

	return &http.Client{
		Transport: &oauth2.Transport{Source: src, Base: base},
	}, nil
}

// persistedTokenSource wraps a TokenSource and persists any
// changes to the token to its file.
type persistedTokenSource struct {
	mu    sync.Mutex
	ts    oauth2.TokenSource
	path  string
	token *oauth2.Token
}

func (ps *persistedTokenSource) Token() (*oauth2.Token, error) {
	tkn, err := ps.ts.Token()
	if err != nil {
		return tkn, err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if tkn.AccessToken != ps.token.AccessToken {
		ps.token = tkn
		if err := SaveToken(ps.path, tkn); err != nil {
			return nil, fmt.Errorf("storing refreshed OAuth2 token: %w", err)
		}
	}

	return tkn, nil
}

// oauthContext returns a context that makes the oauth2 package use hc for
// token requests.
func oauthContext(hc *http.Client) context.Context {
	return context.WithValue(context.Background(), oauth2.HTTPClient, hc)
}
