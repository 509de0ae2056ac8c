// Copyright (c) 2026 maketsi
// cyberark-cached-mfa-ssh - CyberArk cached MFA SSH key fetcher
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for cyberark-cached-mfa-ssh.
//
// Usage:
//
//	go run . [flags]
//	./cyberark-cached-mfa-ssh [flags]
//
// This fetches the operator's cached SSH key(s) from a CyberArk PAM vault
// and loads them into the running SSH agent for the current session.
// See --help for options.
package main

import (
	"os"

	"github.com/maketsi/cyberark-cached-mfa-ssh/ui/cli"
)

// version is set at build time using -ldflags, e.g.:
// go build -ldflags "-X main.version=1.2.3"
var version = "dev"

// main is the entrypoint for the CLI. Errors are reported by the command
// layer itself; main only maps them to the exit status.
func main() {
	cli.SetVersion(version)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
