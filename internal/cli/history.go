// history.go implements "companion history", printing the stored
// conversation transcript.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mirovoy/companion/internal/backend"
	"github.com/mirovoy/companion/internal/model/chat"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the stored conversation transcript",
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, manager, err := loadEnvironment()
	if err != nil {
		return err
	}

	client := backend.NewClient(cfg.Backend, manager)
	messages, err := client.History(cmd.Context())
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}
	if len(messages) == 0 {
		fmt.Println(DimStyle.Render("no conversation yet"))
		return nil
	}

	if historyLimit > 0 && len(messages) > historyLimit {
		messages = messages[len(messages)-historyLimit:]
	}
	for _, message := range messages {
		fmt.Println(renderTranscriptLine(message, true))
	}
	return nil
}

// renderTranscriptLine formats one message for terminal output.
func renderTranscriptLine(message chat.Message, withTime bool) string {
	label := UserStyle.Render("you")
	if message.Role == chat.RoleAssistant {
		label = AssistantStyle.Render("companion")
	}

	line := ""
	if withTime && !message.CreatedAt.IsZero() {
		line = DimStyle.Render(message.CreatedAt.Local().Format("Jan _2 15:04")) + " "
	}
	line += fmt.Sprintf("%s %s", label, message.Text)
	if message.Emotion != "" {
		line += " " + DimStyle.Render("["+message.Emotion+"]")
	}
	return line
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Show only the last N messages")
}
