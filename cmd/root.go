package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/hjtapia74/agiloft-api-example/config"
	"github.com/hjtapia74/agiloft-api-example/session"
)

// Exit codes for CLI commands. These follow common conventions so scripts
// can distinguish configuration mistakes from rejected credentials.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeConfig indicates missing or invalid configuration.
	ExitCodeConfig = 2
	// ExitCodeAuth indicates the identity provider rejected the credentials.
	ExitCodeAuth = 3
)

// rootCmd represents the base command for the agiloft CLI.
var rootCmd = &cobra.Command{
	Use:   "agiloft",
	Short: "Work with the Agiloft REST API",
	Long: `agiloft is a small client for the Agiloft REST API.

It authenticates with OAuth2 client credentials or the legacy
username/password login and exports contract records to CSV.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from main to
// inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application. It runs the root
// command and exits with a semantic exit code.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "agiloft version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps typed errors to exit codes for scripting and automation.
func getExitCode(err error) int {
	var cfgErr *config.ValidationError
	if errors.As(err, &cfgErr) {
		return ExitCodeConfig
	}

	var authErr *session.AuthError
	if errors.As(err, &authErr) {
		return ExitCodeAuth
	}

	return ExitCodeError
}
