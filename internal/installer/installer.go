// Copyright (c) 2026 maketsi
// cyberark-cached-mfa-ssh - CyberArk cached MFA SSH key fetcher
// This source code is licensed under the MIT license found in the LICENSE file.

// Package installer turns fetched key records into agent-resident
// identities, falling back to owner-only files under ~/.ssh when no agent
// is reachable. It also owns the stale-file cleanup between sessions.
package installer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/maketsi/cyberark-cached-mfa-ssh/internal/logging"
	"github.com/maketsi/cyberark-cached-mfa-ssh/internal/pam"
)

// sessionKeyName is the fixed filename prefix for session key files. All
// files written by this tool match <home>/.ssh/id_cyberark_session_*.
const sessionKeyName = "id_cyberark_session"

// ErrNoHome is returned when the user's home directory cannot be resolved
// from the HOME/USERPROFILE environment variables.
var ErrNoHome = errors.New("could not determine current user's home directory; check your HOME/USERPROFILE environment variables")

// Installer installs session keys for the current user. The zero value is
// not useful; construct one with New.
type Installer struct {
	agent agent.Agent // nil when no agent is reachable
}

// New returns an Installer that registers keys with a. Passing nil means
// "no agent": every key is left on disk with a warning. Use SystemAgent to
// discover the running agent.
func New(a agent.Agent) *Installer {
	return &Installer{agent: a}
}

// Result describes the outcome of installing one key record.
type Result struct {
	// ViaAgent is true when the key lives in the agent and the on-disk
	// copy was removed.
	ViaAgent bool
	// Path is the key file location. It is set whenever a file was left
	// on disk, i.e. always when ViaAgent is false.
	Path string
	// AgentErr is the reason agent registration failed when ViaAgent is
	// false. Invocation-level failures and clean rejections are treated
	// the same: the file stays, the caller warns.
	AgentErr error
}

// ResolveKeyPathPrefix returns the deterministic path prefix for session
// key files: <home>/.ssh/id_cyberark_session.
func (i *Installer) ResolveKeyPathPrefix() (string, error) {
	home := os.Getenv("HOME")
	if home == "" {
		home = os.Getenv("USERPROFILE")
	}
	if home == "" {
		return "", ErrNoHome
	}
	return filepath.Join(home, ".ssh", sessionKeyName), nil
}

// PurgeStaleKeys deletes every key file left over from a previous session,
// i.e. everything matching <prefix>_*. Zero matches is success. This must
// run before any new key is written so there is never ambiguity about
// which file belongs to the current session.
func (i *Installer) PurgeStaleKeys(prefix string) error {
	if prefix == "" {
		return errors.New("key path prefix must be set")
	}
	matches, err := filepath.Glob(prefix + "_*")
	if err != nil {
		return fmt.Errorf("listing old key files: %w", err)
	}
	for _, f := range matches {
		logging.Debugf("deleting old key file: %s", f)
		if err := os.Remove(f); err != nil {
			return fmt.Errorf("deleting old key file %s: %w", f, err)
		}
	}
	return nil
}

// InstallKey writes rec to its deterministic path under prefix and tries
// to register it with the SSH agent. On success the file is removed and
// the key lives only in the agent's memory. On any agent failure the file
// is kept: it may be the only copy of the key, so it is never deleted on
// an indeterminate outcome. The file is created with mode 0600 and is
// never world-readable at any instant.
func (i *Installer) InstallKey(prefix string, rec pam.KeyRecord, expiresAt time.Time) (Result, error) {
	path := fmt.Sprintf("%s_%s_%s", prefix, strings.ToLower(rec.Format), strings.ToLower(rec.KeyAlg))

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Result{}, fmt.Errorf("creating key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(rec.PrivateKey), 0o600); err != nil {
		return Result{}, fmt.Errorf("writing key file %s: %w", path, err)
	}
	logging.Debugf("wrote key file: %s", path)

	if err := i.registerWithAgent(rec, expiresAt); err != nil {
		return Result{Path: path, AgentErr: err}, nil
	}

	if err := os.Remove(path); err != nil {
		// Key is in the agent but the file lingers; report both.
		return Result{ViaAgent: true, Path: path}, fmt.Errorf("removing key file after agent add: %w", err)
	}
	logging.Debugf("key file %s deleted after agent add", path)
	return Result{ViaAgent: true}, nil
}

// registerWithAgent adds the key to the agent with a lifetime capped at
// the vault-side expiry, so the agent forgets it when the vault would.
func (i *Installer) registerWithAgent(rec pam.KeyRecord, expiresAt time.Time) error {
	if i.agent == nil {
		return errors.New("no SSH agent available")
	}

	key, err := ssh.ParseRawPrivateKey([]byte(rec.PrivateKey))
	if err != nil {
		return fmt.Errorf("parsing private key: %w", err)
	}

	added := agent.AddedKey{
		PrivateKey: key,
		Comment:    fmt.Sprintf("cyberark session key (%s, expires %s)", strings.ToLower(rec.KeyAlg), expiresAt.Format(time.RFC3339)),
	}
	if remaining := time.Until(expiresAt); remaining > 0 {
		added.LifetimeSecs = uint32(remaining / time.Second)
	}
	return i.agent.Add(added)
}
