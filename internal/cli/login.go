// login.go implements "companion login", the browser-based Auth0 flow.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in through the browser",
	Long: `Open the identity provider's login page in your browser and wait
for the redirect back to a local callback. Tokens are stored in your
user configuration directory for later sessions.`,
	RunE: runLogin,
}

func runLogin(cmd *cobra.Command, args []string) error {
	_, manager, err := loadEnvironment()
	if err != nil {
		return err
	}

	if _, err := manager.Login(cmd.Context()); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Println("Logged in.")
	if profile, err := manager.Profile(); err == nil && profile.Name != "" {
		fmt.Printf("Welcome back, %s.\n", profile.Name)
	}
	return nil
}
