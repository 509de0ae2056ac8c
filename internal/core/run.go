// Copyright (c) 2026 maketsi
// cyberark-cached-mfa-ssh - CyberArk cached MFA SSH key fetcher
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"time"

	"github.com/maketsi/cyberark-cached-mfa-ssh/internal/logging"
)

// RunFetchCmd executes one authenticate → fetch → install flow. Everything
// up to and including the fetch is all-or-nothing: the first error aborts
// the run and nothing has been written yet. From the purge onward each key
// record is handled independently and a per-key agent failure only warns.
func RunFetchCmd(ctx context.Context, svc KeyService, inst KeyInstaller, username, password string) error {
	sess, err := svc.Authenticate(ctx, username, password)
	if err != nil {
		return err
	}
	logging.Debugf("authentication successful, session token: %.10s..", sess.Token())

	bundle, err := svc.FetchKeys(ctx, sess)
	if err != nil {
		return err
	}

	prefix, err := inst.ResolveKeyPathPrefix()
	if err != nil {
		return err
	}

	// Stale keys from previous sessions go away even when this fetch
	// returned nothing.
	if err := inst.PurgeStaleKeys(prefix); err != nil {
		return err
	}

	hint := publicKeyHint(bundle.PublicKey)
	expires := bundle.ExpirationTime.Format(time.RFC3339)
	for _, rec := range bundle.Keys {
		res, err := inst.InstallKey(prefix, rec, bundle.ExpirationTime)
		if err != nil {
			logging.Errorf("installing %s key: %v", rec.KeyAlg, err)
		}
		if res.ViaAgent {
			logging.Infof("added %s key to SSH agent, expires=%s publickey=%q",
				rec.KeyAlg, expires, hint)
		}
		if res.Path == "" {
			continue
		}
		// A file survived the install, whether or not the agent took the
		// key. It holds sensitive material; say where it is and warn.
		if res.AgentErr != nil {
			logging.Errorf("failed to add key to SSH agent: %v", res.AgentErr)
		}
		logging.Infof("wrote %s key to %s, expires=%s publickey=%q",
			rec.KeyAlg, res.Path, expires, hint)
		logging.Warnf("key file %s was left for manual usage, consider protecting or removing it", res.Path)
	}
	return nil
}

// publicKeyHint truncates the informational public key to a short prefix
// for log output.
func publicKeyHint(publicKey string) string {
	if publicKey == "" {
		return "n/a"
	}
	if len(publicKey) > 30 {
		publicKey = publicKey[:30]
	}
	return publicKey + ".."
}
