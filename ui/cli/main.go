// Copyright (c) 2026 maketsi
// cyberark-cached-mfa-ssh - CyberArk cached MFA SSH key fetcher
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the command-line interface using the Cobra library: the
// root command, its flags, the interactive username/password prompts, and
// the wiring of config → vault client → key installer → core flow.

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"os/user"
	"strings"

	log "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/maketsi/cyberark-cached-mfa-ssh/internal/config"
	"github.com/maketsi/cyberark-cached-mfa-ssh/internal/core"
	"github.com/maketsi/cyberark-cached-mfa-ssh/internal/installer"
	"github.com/maketsi/cyberark-cached-mfa-ssh/internal/logging"
	"github.com/maketsi/cyberark-cached-mfa-ssh/internal/pam"
)

var cfgFile string
var server string
var appConfig config.Config

// SetVersion is called by main with the build-time version string.
func SetVersion(v string) {
	if v != "" {
		rootCmd.Version = v
	}
}

// rootCmd is the one and only command: authenticate, fetch, install.
var rootCmd = &cobra.Command{
	Use:   "cyberark-ssh-fetch",
	Short: "Fetch cached SSH keys from a CyberArk PAM vault",
	Long: `Fetches the operator's short-lived cached SSH key(s) from a CyberArk PAM
vault (RADIUS/MFA logon) and stores them in the running SSH agent for the
current session. If no SSH agent is reachable, the keys are written to
~/.ssh/id_cyberark_session_* files with owner-only permissions instead.
Old id_cyberark_session_* files are deleted before new ones are written.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          runFetch,
}

// Execute runs the root command. It reports errors itself so main only has
// to map a non-nil result to exit status 1.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		log.Errorf("%v", err)
	}
	return err
}

func init() {
	rootCmd.Flags().StringVarP(&server, "server", "s", "", "Base URL for CyberArk PAM in format https://server.domain")
	rootCmd.Flags().StringP("username", "u", "", "CyberArk username. Defaults to the current user.")
	rootCmd.Flags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to an explicit config file")
}

// setupConfig loads the layered configuration and writes a default config
// file on first run.
func setupConfig(cmd *cobra.Command) error {
	var optionalConfigPath *string
	if cfgFile != "" {
		optionalConfigPath = &cfgFile
	}

	defaults := map[string]any{
		"baseurl":  "",
		"username": "",
		"debug":    false,
	}

	var err error
	appConfig, err = config.LoadConfig[config.Config](cmd, defaults, optionalConfigPath)
	if errors.As(err, &viper.ConfigFileNotFoundError{}) {
		// First run, or the config file was deleted. Persist defaults so
		// there is a file to edit; failure to write is not fatal.
		if writeErr := config.WriteConfigFile(&appConfig, false); writeErr != nil {
			log.Warnf("could not write default config file: %v", writeErr)
		}
	} else if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	logging.SetDebug(appConfig.Debug)

	// The flag is named --server but the config key is baseurl, so
	// BindPFlags cannot map it; apply it by hand.
	if server != "" {
		appConfig.BaseURL = server
	}
	return nil
}

// runFetch is the whole flow for one invocation: resolve credentials,
// authenticate, fetch, install each key.
func runFetch(cmd *cobra.Command, args []string) error {
	if err := setupConfig(cmd); err != nil {
		return err
	}

	if appConfig.BaseURL == "" {
		return errors.New("base URL for CyberArk required; set it via --server or the CYBERARK_BASEURL environment variable")
	}

	// SIGINT during a prompt or an in-flight network call surfaces as a
	// clean "Interrupted." with exit status 1. File state stays in
	// whatever well-defined intermediate step completed before.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted.")
		os.Exit(1)
	}()

	ctx := cmd.Context()

	fmt.Printf("Authenticating to %s\n", appConfig.BaseURL)

	username, password, err := resolveCredentials(os.Stdin, appConfig.Username)
	if err != nil {
		return err
	}

	client := pam.New(appConfig.BaseURL)
	inst := installer.New(installer.SystemAgent())
	return core.RunFetchCmd(ctx, client, inst, username, password)
}

// resolveCredentials produces the username and password for the run,
// prompting for whatever the config did not provide. An empty password is
// fatal here, before any network call is made. Both prompts share one
// buffered reader so the second prompt sees input the first one buffered.
func resolveCredentials(in io.Reader, cfgUsername string) (string, string, error) {
	reader := bufio.NewReader(in)

	username := cfgUsername
	if username == "" {
		var err error
		username, err = promptUsername(reader)
		if err != nil {
			return "", "", err
		}
	}

	password, err := promptPassword(reader, username)
	if err != nil {
		return "", "", err
	}
	if password == "" {
		return "", "", errors.New("no password set")
	}
	return username, password, nil
}

// promptUsername asks for the CyberArk username, defaulting to the current
// OS user when the operator just presses enter.
func promptUsername(in *bufio.Reader) (string, error) {
	defaultUsername := ""
	if u, err := user.Current(); err == nil {
		defaultUsername = u.Username
	}

	fmt.Printf("Enter your CyberArk username [%s]: ", defaultUsername)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading username: %w", err)
	}

	username := strings.TrimSpace(line)
	if username == "" {
		username = defaultUsername
	}
	if username == "" {
		return "", errors.New("no username given")
	}
	return username, nil
}

// promptPassword reads the password without echo when stdin is a terminal,
// and as a plain line from in otherwise (pipes, tests).
func promptPassword(in *bufio.Reader, username string) (string, error) {
	fmt.Printf("Enter CyberArk password for %s: ", username)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		bytePassword, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(bytePassword), nil
	}

	line, err := in.ReadString('\n')
	fmt.Println()
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
