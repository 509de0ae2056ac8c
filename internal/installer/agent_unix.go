//go:build !windows
// +build !windows

// Copyright (c) 2026 maketsi
// cyberark-cached-mfa-ssh - CyberArk cached MFA SSH key fetcher
// This source code is licensed under the MIT license found in the LICENSE file.

// This file contains the Unix-specific implementation for locating the
// SSH agent.
package installer

import (
	"net"
	"os"

	"golang.org/x/crypto/ssh/agent"
)

// SystemAgent attempts to connect to a running SSH agent on Unix-like
// systems. It checks the SSH_AUTH_SOCK environment variable for the socket
// path and returns an agent.Agent client if a connection is successful,
// nil otherwise.
func SystemAgent() agent.Agent {
	if sshAgentSocket := os.Getenv("SSH_AUTH_SOCK"); sshAgentSocket != "" {
		if conn, err := net.Dial("unix", sshAgentSocket); err == nil {
			return agent.NewClient(conn)
		}
	}
	return nil
}
