package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/babelmeet/babelmeet/internal/call"
	"github.com/babelmeet/babelmeet/internal/config"
	"github.com/babelmeet/babelmeet/internal/ui"
)

var (
	flagCallServer   string
	flagCallName     string
	flagCallLang     string
	flagCallSTUN     string
	flagCallTURN     string
	flagCallTURNUser string
	flagCallTURNPass string
)

var callCmd = &cobra.Command{
	Use:     "call [peer-id]",
	Aliases: []string{"c"},
	Short:   "Call a peer, or wait for an incoming call",
	Long: `Place a direct call to another BabelMeet user, or wait for someone to
call you.

With a peer ID the call is placed immediately. Without one the client
registers, prints its own ID and waits for an incoming call; unanswered
calls are declined automatically after 30 seconds.

Examples:
  babelmeet call 7d7822a1-9f2e-4d0f-bb1c-8e1a1a2f9c01
  babelmeet call`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		peerID := ""
		if len(args) == 1 {
			peerID = args[0]
		}
		return runCall(peerID)
	},
}

func runCall(peerID string) error {
	c, _, err := connectClient(config.Options{
		Server:      flagCallServer,
		DisplayName: flagCallName,
		Language:    flagCallLang,
		STUNServer:  flagCallSTUN,
		TURNServer:  flagCallTURN,
		TURNUser:    flagCallTURNUser,
		TURNPass:    flagCallTURNPass,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	events, cancel := c.CallEvents()
	defer cancel()

	state := call.StateCalling
	if peerID != "" {
		if err := c.StartCall(peerID); err != nil {
			return err
		}
	} else {
		ui.PrintInfof("Your ID: %s", ui.BoldStyle.Render(c.Identity()))
		state = call.StateRinging

		spin := ui.NewWaitingSpinner("Waiting for a call...")
		spin.Start()
		peerID, err = awaitIncoming(events)
		spin.Stop()
		if err != nil {
			return err
		}
	}

	view := ui.NewCallView(c, events, peerID, state)
	if _, err := tea.NewProgram(view).Run(); err != nil {
		return fmt.Errorf("call view: %w", err)
	}

	fmt.Println(ui.CallSummaryView(view.Summary()))
	return nil
}

// awaitIncoming blocks until the first incoming call arrives.
func awaitIncoming(events <-chan call.Event) (string, error) {
	for ev := range events {
		if incoming, ok := ev.(call.IncomingCall); ok {
			return incoming.Peer, nil
		}
	}
	return "", fmt.Errorf("connection to server lost")
}

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().StringVar(&flagCallServer, "server", "", "Custom coordination server")
	callCmd.Flags().StringVarP(&flagCallName, "name", "n", "", "Display name announced to peers")
	callCmd.Flags().StringVarP(&flagCallLang, "lang", "l", "", "Your language tag (e.g. en, es)")
	callCmd.Flags().StringVarP(&flagCallSTUN, "stun", "s", "", "Custom STUN server")
	callCmd.Flags().StringVarP(&flagCallTURN, "turn", "t", "", "Custom TURN server")
	callCmd.Flags().StringVar(&flagCallTURNUser, "turn-user", "", "TURN username")
	callCmd.Flags().StringVar(&flagCallTURNPass, "turn-pass", "", "TURN password")
}
