// Copyright (c) 2026 maketsi
// cyberark-cached-mfa-ssh - CyberArk cached MFA SSH key fetcher
// This source code is licensed under the MIT license found in the LICENSE file.

package pam_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/maketsi/cyberark-cached-mfa-ssh/internal/pam"
)

const (
	logonPath = "/PasswordVault/API/auth/RADIUS/Logon/"
	cachePath = "/PasswordVault/API/Users/Secret/SSHKeys/Cache/"
)

// vaultServer starts a fake vault that answers the logon endpoint with a
// quoted token and delegates the cached-keys endpoint to keysHandler.
func vaultServer(t *testing.T, keysHandler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(logonPath, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"tok-abc-123"`))
	})
	mux.HandleFunc(cachePath, keysHandler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func mustAuthenticate(t *testing.T, c *pam.Client) *pam.Session {
	t.Helper()
	sess, err := c.Authenticate(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	return sess
}

func TestAuthenticate_TokenIsUnquotedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != logonPath {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected Content-Type: %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]string
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("logon body is not JSON: %v", err)
		}
		if req["username"] != "alice" || req["password"] != "hunter2" {
			t.Errorf("credentials not forwarded: %v", req)
		}
		if req["type"] != "radius" || req["secureMode"] != "true" {
			t.Errorf("challenge-factor markers missing: %v", req)
		}
		w.Write([]byte(`"tok-abc-123"`))
	}))
	defer srv.Close()

	sess, err := pam.New(srv.URL).Authenticate(context.Background(), "alice", "hunter2")
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if got := sess.Token(); got != "tok-abc-123" {
		t.Errorf("token = %q, want tok-abc-123", got)
	}
}

func TestAuthenticate_NonOKPreservesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("ITATS004E Authentication failure"))
	}))
	defer srv.Close()

	_, err := pam.New(srv.URL).Authenticate(context.Background(), "alice", "wrong")
	if err == nil {
		t.Fatal("expected an error for status 401")
	}
	var authErr *pam.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *pam.AuthError, got %T: %v", err, err)
	}
	if authErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", authErr.StatusCode)
	}
	if authErr.Body != "ITATS004E Authentication failure" {
		t.Errorf("Body = %q, original body not preserved", authErr.Body)
	}
}

func TestFetchKeys_DecodesBundleInOrder(t *testing.T) {
	srv := vaultServer(t, func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "tok-abc-123" {
			t.Errorf("Authorization = %q, want raw session token", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "{}" {
			t.Errorf("request body = %q, want {}", string(body))
		}
		w.Write([]byte(`{
			"expirationTime": 1700000000,
			"publicKey": "ssh-rsa AAAAB3NzaC1yc2EAAAADAQABAAABgQ",
			"value": [
				{"format": "RAW", "keyAlg": "RSA", "privateKey": "key-one"},
				{"format": "RAW", "keyAlg": "ED25519", "privateKey": "key-two"}
			]
		}`))
	})

	c := pam.New(srv.URL)
	bundle, err := c.FetchKeys(context.Background(), mustAuthenticate(t, c))
	if err != nil {
		t.Fatalf("FetchKeys returned error: %v", err)
	}
	if !bundle.ExpirationTime.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("ExpirationTime = %v, want %v", bundle.ExpirationTime, time.Unix(1700000000, 0))
	}
	if len(bundle.Keys) != 2 {
		t.Fatalf("len(Keys) = %d, want 2", len(bundle.Keys))
	}
	if bundle.Keys[0].KeyAlg != "RSA" || bundle.Keys[1].KeyAlg != "ED25519" {
		t.Errorf("keys out of order: %+v", bundle.Keys)
	}
	if bundle.Keys[0].PrivateKey != "key-one" {
		t.Errorf("PrivateKey = %q, want key-one", bundle.Keys[0].PrivateKey)
	}
}

func TestFetchKeys_EmptyValueIsNotAnError(t *testing.T) {
	srv := vaultServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"expirationTime": 1700000000, "value": []}`))
	})

	c := pam.New(srv.URL)
	bundle, err := c.FetchKeys(context.Background(), mustAuthenticate(t, c))
	if err != nil {
		t.Fatalf("FetchKeys returned error for empty value array: %v", err)
	}
	if len(bundle.Keys) != 0 {
		t.Errorf("len(Keys) = %d, want 0", len(bundle.Keys))
	}
	if bundle.PublicKey != "" {
		t.Errorf("PublicKey = %q, want empty", bundle.PublicKey)
	}
}

func TestFetchKeys_NonOKPreservesStatusAndBody(t *testing.T) {
	srv := vaultServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("session expired"))
	})

	c := pam.New(srv.URL)
	_, err := c.FetchKeys(context.Background(), mustAuthenticate(t, c))
	var fetchErr *pam.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *pam.FetchError, got %T: %v", err, err)
	}
	if fetchErr.StatusCode != http.StatusForbidden || fetchErr.Body != "session expired" {
		t.Errorf("error lost status/body: %+v", fetchErr)
	}
}
