package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// extractCLIFlags extracts command line flags from a cobra command into a map.
// It processes only flags that have been explicitly changed by the user.
func extractCLIFlags(cmd *cobra.Command, flags map[string]any) {
	addFlag := func(flagName, key string, getter func(string) (any, error)) {
		if cmd.Flags().Changed(flagName) {
			if value, err := getter(flagName); err == nil {
				flags[key] = value
			}
		}
	}

	getString := func(name string) (any, error) { return cmd.Flags().GetString(name) }
	getBool := func(name string) (any, error) { return cmd.Flags().GetBool(name) }
	getPath := func(name string) (any, error) {
		v, err := cmd.Flags().GetString(name)
		if err != nil || v == "" {
			return v, err
		}
		return filepath.Abs(v)
	}
	getNotBool := func(name string) (any, error) {
		v, err := cmd.Flags().GetBool(name)
		return !v, err
	}

	flagDefs := []struct {
		flagName string
		key      string
		getter   func(string) (any, error)
	}{
		// Drop flags
		{"collect-text", "collect-text", getBool},
		{"download", "download", getBool},
		{"no-download", "download", getNotBool},
		{"google-images", "google-images", getBool},
		{"size-display", "size-display", getString},

		// Storage flags
		{"cache-dir", "cache-dir", getPath},

		// Logging flags
		{"log-level", "log-level", getString},
		{"log-json", "log-json", getBool},
		{"log-source", "log-source", getBool},
	}

	for _, def := range flagDefs {
		if cmd.Flags().Lookup(def.flagName) == nil {
			continue
		}
		addFlag(def.flagName, def.key, def.getter)
	}
}

// loadEnvFile loads environment variables from the --env-file path. A
// missing file is not an error.
func loadEnvFile(cmd *cobra.Command) (string, error) {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return "", fmt.Errorf("failed to get env-file flag: %w", err)
	}
	if envFile == "" {
		return "", nil
	}
	absPath, err := filepath.Abs(filepath.Clean(envFile))
	if err != nil {
		return "", fmt.Errorf("failed to resolve env file path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return absPath, nil
		}
		return "", fmt.Errorf("failed to stat env file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("env file path '%s' is not a regular file", envFile)
	}
	if err := godotenv.Load(absPath); err != nil {
		return "", fmt.Errorf("failed to load env file %s: %w", absPath, err)
	}
	return absPath, nil
}
