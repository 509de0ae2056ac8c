// Copyright (c) 2026 maketsi
// cyberark-cached-mfa-ssh - CyberArk cached MFA SSH key fetcher
// This source code is licensed under the MIT license found in the LICENSE file.

// Package pam talks to the CyberArk PAM (Password Vault) REST API. It
// covers exactly two calls: the RADIUS logon and the cached SSH keys
// download. There is no retry and no token refresh anywhere in here; a
// session is good for one fetch and is thrown away with the process.
package pam

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	logonPath      = "/PasswordVault/API/auth/RADIUS/Logon/"
	cachedKeysPath = "/PasswordVault/API/Users/Secret/SSHKeys/Cache/"
)

// Client is an HTTP client for one CyberArk PAM vault.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// New returns a Client for the vault at baseURL, e.g. https://pam.example.com.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpc:   &http.Client{},
	}
}

// Session is an authenticated vault session. It is created by Authenticate,
// handed around by value holders only, and never persisted.
type Session struct {
	token string
}

// Token returns the opaque session token. Callers must not log more than a
// short prefix of it.
func (s *Session) Token() string {
	return s.token
}

// KeyRecord is one private key as returned by the cached SSH keys endpoint.
type KeyRecord struct {
	Format     string `json:"format"`
	KeyAlg     string `json:"keyAlg"`
	PrivateKey string `json:"privateKey"`
}

// KeyBundle is the decoded response of one cached SSH keys fetch. Keys may
// be empty; that is a valid (if useless) response, not an error.
type KeyBundle struct {
	ExpirationTime time.Time
	PublicKey      string
	Keys           []KeyRecord
}

// AuthError is returned when the vault answers the logon request with a
// non-200 status. The original status and body are preserved for the user.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: status=%d, response: %s", e.StatusCode, e.Body)
}

// FetchError is returned when the vault answers the cached SSH keys request
// with a non-200 status.
type FetchError struct {
	StatusCode int
	Body       string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to get SSH key: status=%d, response: %s", e.StatusCode, e.Body)
}

// logonRequest is the RADIUS logon body. secureMode selects the challenge
// flow on the vault side and is always "true" for this tool.
type logonRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Type       string `json:"type"`
	SecureMode string `json:"secureMode"`
}

// keyBundleWire mirrors the cached SSH keys response. expirationTime is
// epoch seconds; publicKey is optional and informational only.
type keyBundleWire struct {
	ExpirationTime int64       `json:"expirationTime"`
	PublicKey      string      `json:"publicKey"`
	Value          []KeyRecord `json:"value"`
}

// Authenticate performs a single RADIUS logon and returns the session. A
// non-200 answer yields *AuthError; the caller must not fetch afterwards.
// There is deliberately no retry: the credentials are one-shot.
func (c *Client) Authenticate(ctx context.Context, username, password string) (*Session, error) {
	body, err := json.Marshal(logonRequest{
		Username:   username,
		Password:   password,
		Type:       "radius",
		SecureMode: "true",
	})
	if err != nil {
		return nil, fmt.Errorf("encoding logon request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+logonPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building logon request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("logon request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading logon response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &AuthError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	// The vault returns the token as a quoted JSON string.
	return &Session{token: strings.Trim(string(raw), `"`)}, nil
}

// FetchKeys downloads the cached SSH key bundle for the session. A non-200
// answer yields *FetchError. An empty key list decodes to a bundle with
// zero records, which callers must tolerate.
func (c *Client) FetchKeys(ctx context.Context, sess *Session) (*KeyBundle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+cachedKeysPath, strings.NewReader("{}"))
	if err != nil {
		return nil, fmt.Errorf("building key fetch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", sess.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("key fetch request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading key fetch response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var wire keyBundleWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decoding key bundle: %w", err)
	}

	return &KeyBundle{
		ExpirationTime: time.Unix(wire.ExpirationTime, 0),
		PublicKey:      wire.PublicKey,
		Keys:           wire.Value,
	}, nil
}
