// Copyright (c) 2026 maketsi
// cyberark-cached-mfa-ssh - CyberArk cached MFA SSH key fetcher
// This source code is licensed under the MIT license found in the LICENSE file.
//
// Package cli implements the command-line interface for the fetcher using
// Cobra. It wires configuration, the interactive prompts, and the production
// vault client and key installer, then delegates the whole flow to the
// deterministic `core` facade. CLI code should remain thin.
package cli
