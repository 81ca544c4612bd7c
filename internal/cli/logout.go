// logout.go implements "companion logout", discarding stored tokens.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard stored login tokens",
	RunE:  runLogout,
}

func runLogout(cmd *cobra.Command, args []string) error {
	_, manager, err := loadEnvironment()
	if err != nil {
		return err
	}

	if err := manager.Logout(); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	fmt.Println("Logged out.")
	return nil
}
