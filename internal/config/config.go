// Package config loads the layered tool configuration: defaults, then a
// YAML config file, then CYBERARK_* environment variables, then any bound
// CLI flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const configName = "cyberark-ssh"

// Config holds everything the tool needs besides the password, which is
// always prompted and never read from a file.
type Config struct {
	// BaseURL is the vault base URL, e.g. https://pam.example.com.
	BaseURL string `mapstructure:"baseurl" yaml:"baseurl"`
	// Username is the CyberArk username. Empty means "prompt".
	Username string `mapstructure:"username" yaml:"username"`
	// Debug enables debug-level logging.
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// GetConfigPath returns the full path for the configuration file.
func GetConfigPath(system bool) (string, error) {
	var configDir string
	var err error

	if system {
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "CyberarkSSH")
		default: // Linux, macOS, etc.
			configDir = "/etc/" + configName
		}
	} else {
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, configName)
	}

	return filepath.Join(configDir, configName+".yaml"), nil
}

// LoadConfig builds the layered configuration. Precedence, lowest first:
// defaults, config file (explicit path wins over the search path), env
// vars with the CYBERARK_ prefix, CLI flags bound from cmd. A missing
// config file is not an error; it is reported as
// viper.ConfigFileNotFoundError so callers can decide to write a default.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, additionalConfigFilePath *string) (T, error) {
	var c T
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName(configName)
	v.SetConfigType("yaml")

	// An explicit --config path has the highest precedence for
	// file-based configuration.
	if additionalConfigFilePath != nil {
		v.SetConfigFile(*additionalConfigFilePath)
	}

	if userConfigPath, err := GetConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := GetConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".")

	// A missing config file is not fatal: remember the marker error and
	// still hand back a config built from the remaining layers.
	var notFound error
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, err
		}
		notFound = err
	}

	// CYBERARK_BASEURL, CYBERARK_USERNAME, CYBERARK_DEBUG
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)
	v.SetEnvPrefix("cyberark")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return c, err
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}

	return c, notFound
}

// WriteConfigFile persists c as the user's (or system's) config file,
// creating the directory if needed. Mode 0600: the file may carry the
// vault URL and username.
func WriteConfigFile[T any](c *T, system bool) error {
	path, err := GetConfigPath(system)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}

	return os.WriteFile(path, data, 0600)
}
