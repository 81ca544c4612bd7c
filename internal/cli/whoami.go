// whoami.go implements "companion whoami", showing the logged-in user.
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mirovoy/companion/internal/backend"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	Long: `Print the profile of the logged-in user. The backend record is
preferred; when the backend is unreachable the identity claims from
the stored login token are shown instead.`,
	RunE: runWhoami,
}

func runWhoami(cmd *cobra.Command, args []string) error {
	cfg, manager, err := loadEnvironment()
	if err != nil {
		return err
	}

	client := backend.NewClient(cfg.Backend, manager)
	user, err := client.Profile(cmd.Context())
	if err == nil {
		printField("Name", user.Name)
		printField("Email", user.Email)
		printField("Account", user.Auth0ID)
		return nil
	}
	if errors.Is(err, backend.ErrNotConfigured) {
		err = nil
	}

	profile, profileErr := manager.Profile()
	if profileErr != nil {
		if err != nil {
			return fmt.Errorf("fetch profile: %w", err)
		}
		return profileErr
	}
	if err != nil {
		fmt.Println(DimStyle.Render("backend unreachable, showing stored token claims"))
	}
	printField("Name", profile.Name)
	printField("Email", profile.Email)
	printField("Account", profile.Subject)
	return nil
}

func printField(label, value string) {
	if value == "" {
		return
	}
	fmt.Printf("%s %s\n", DimStyle.Render(label+":"), value)
}
