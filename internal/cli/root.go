// Package cli defines the Cobra commands for the companion voice
// client: login, logout, whoami, history, and the interactive chat
// session.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mirovoy/companion/internal/auth"
	"github.com/mirovoy/companion/internal/config"
)

var version = "dev" // set via ldflags at build time

var rootCmd = &cobra.Command{
	Use:   "companion",
	Short: "Voice chat client for the companion backend",
	Long: `Companion is a hands-free voice chat client. It captures your
microphone, detects speech, sends each utterance to the companion
backend, and plays the spoken reply while keeping a running
transcript in the terminal.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

// loadEnvironment reads the process configuration and builds the auth
// manager every command needs.
func loadEnvironment() (*config.Config, *auth.Manager, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, auth.NewManager(cfg.Auth), nil
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(chatCmd)
}
