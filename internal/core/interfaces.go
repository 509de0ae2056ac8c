// Copyright (c) 2026 maketsi
// cyberark-cached-mfa-ssh - CyberArk cached MFA SSH key fetcher
// This source code is licensed under the MIT license found in the LICENSE file.

// Package core contains the fetch-and-install flow behind small,
// deterministic interface definitions. Keep these interfaces minimal —
// they describe side-effect boundaries that the UI layer and tests
// implement.
package core

import (
	"context"
	"time"

	"github.com/maketsi/cyberark-cached-mfa-ssh/internal/installer"
	"github.com/maketsi/cyberark-cached-mfa-ssh/internal/pam"
)

// KeyService is the minimal vault surface the fetch flow needs.
// *pam.Client is the production implementation.
type KeyService interface {
	Authenticate(ctx context.Context, username, password string) (*pam.Session, error)
	FetchKeys(ctx context.Context, sess *pam.Session) (*pam.KeyBundle, error)
}

// KeyInstaller turns fetched key records into agent identities or
// protected files. *installer.Installer is the production implementation.
type KeyInstaller interface {
	ResolveKeyPathPrefix() (string, error)
	PurgeStaleKeys(prefix string) error
	InstallKey(prefix string, rec pam.KeyRecord, expiresAt time.Time) (installer.Result, error)
}
