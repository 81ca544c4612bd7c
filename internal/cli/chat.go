// chat.go implements "companion chat", the interactive voice session.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mirovoy/companion/internal/audio"
	"github.com/mirovoy/companion/internal/backend"
	"github.com/mirovoy/companion/internal/model/chat"
	"github.com/mirovoy/companion/internal/session"
)

var chatNoHistory bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive voice session",
	Long: `Open the microphone and talk. Each detected utterance is sent to
the backend; the transcript and the spoken reply come back as you go.

While the session runs:
  /stop   pause listening and release the microphone
  /start  resume listening
  /quit   end the session`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, manager, err := loadEnvironment()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	// Fail fast on missing login instead of erroring mid-conversation.
	if _, err := manager.Token(ctx); err != nil {
		return err
	}

	client := backend.NewClient(cfg.Backend, manager)

	var player session.Player
	if p, err := audio.NewPlayer(); err == nil {
		player = p
	} else {
		fmt.Println(DimStyle.Render("reply audio disabled: " + err.Error()))
	}

	openMic := func() (session.Microphone, error) {
		mic, err := audio.OpenMicrophone(cfg.Audio)
		if err != nil {
			return nil, err
		}
		return mic, nil
	}

	controller := session.NewController(cfg.Audio, cfg.VAD, openMic, client, player)
	controller.OnMessage = func(message chat.Message) {
		fmt.Println(renderTranscriptLine(message, false))
	}
	controller.OnStateChange = func(state session.State) {
		fmt.Println(StateStyle.Render("[" + state.String() + "]"))
	}

	if !chatNoHistory {
		if err := preloadHistory(ctx, client, controller); err != nil {
			fmt.Println(DimStyle.Render("could not load history: " + err.Error()))
		}
	}

	if err := controller.Start(ctx); err != nil {
		return err
	}
	defer controller.Stop()

	fmt.Println(DimStyle.Render("listening, speak when ready (/stop, /start, /quit)"))

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "":
		case "/stop":
			controller.Stop()
		case "/start":
			if err := controller.Start(ctx); err != nil {
				fmt.Println(ErrorStyle.Render(err.Error()))
			}
		case "/quit", "/exit":
			return nil
		default:
			fmt.Println(DimStyle.Render("commands: /stop /start /quit"))
		}
	}
	return scanner.Err()
}

// preloadHistory seeds the session transcript from the stored
// conversation and prints it. A fetch failure leaves the transcript
// empty and is reported to the caller.
func preloadHistory(ctx context.Context, client *backend.Client, controller *session.Controller) error {
	history, err := client.History(ctx)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return nil
	}

	controller.Transcript().Seed(history)
	for _, message := range history {
		fmt.Println(renderTranscriptLine(message, true))
	}
	return nil
}

func init() {
	chatCmd.Flags().BoolVar(&chatNoHistory, "no-history", false, "Start with an empty transcript instead of loading stored history")
}
