package cmd

import (
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/babelmeet/babelmeet/internal/client"
	"github.com/babelmeet/babelmeet/internal/config"
	"github.com/babelmeet/babelmeet/internal/room"
	"github.com/babelmeet/babelmeet/internal/signaling"
	"github.com/babelmeet/babelmeet/internal/ui"
)

var (
	flagRoomServer   string
	flagRoomName     string
	flagRoomLang     string
	flagRoomTitle    string
	flagRoomSource   string
	flagRoomTarget   string
	flagRoomSTUN     string
	flagRoomTURN     string
	flagRoomTURNUser string
	flagRoomTURNPass string
)

var roomCmd = &cobra.Command{
	Use:     "room",
	Aliases: []string{"rm"},
	Short:   "Create or join a translated call room",
}

var roomCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a room and host it",
	Long: `Create a room for a small group call with a language pair. The room
link can be opened in a browser or joined with "babelmeet room join".

Examples:
  babelmeet room create --title standup --from en --to es
  babelmeet room create --name Alice`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRoomCreate()
	},
}

var roomJoinCmd = &cobra.Command{
	Use:   "join <room-id|url>",
	Short: "Join an existing room",
	Long: `Join a room by ID or by its shareable link.

Examples:
  babelmeet room join 4f3c9a7e-1b2d-4c5e-9f0a-6d7e8f9a0b1c
  babelmeet room join https://meet.babelmeet.app/room/4f3c9a7e-1b2d-4c5e-9f0a-6d7e8f9a0b1c`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		return runRoomJoin(roomID)
	},
}

func roomOptions() config.Options {
	return config.Options{
		Server:      flagRoomServer,
		DisplayName: flagRoomName,
		Language:    flagRoomLang,
		STUNServer:  flagRoomSTUN,
		TURNServer:  flagRoomTURN,
		TURNUser:    flagRoomTURNUser,
		TURNPass:    flagRoomTURNPass,
	}
}

func runRoomCreate() error {
	c, cfg, err := connectClient(roomOptions())
	if err != nil {
		return err
	}
	defer c.Close()

	created, err := c.CreateRoom(signaling.RoomSettings{
		Name:       flagRoomTitle,
		SourceLang: flagRoomSource,
		TargetLang: flagRoomTarget,
	})
	if err != nil {
		return err
	}

	fmt.Println(ui.RoomInfoView(created.ID, created.ShareLink(cfg.Origin)))
	fmt.Println(ui.ParticipantTableView(created))
	return watchRoom(c)
}

func runRoomJoin(roomID string) error {
	c, _, err := connectClient(roomOptions())
	if err != nil {
		return err
	}
	defer c.Close()

	joined, err := c.JoinRoom(roomID)
	if err != nil {
		return err
	}

	ui.PrintSuccessf("Joined %s", ui.BoldStyle.Render(joined.Name))
	fmt.Println(ui.ParticipantTableView(joined))
	return watchRoom(c)
}

// watchRoom follows membership changes until the room closes or the user
// interrupts.
func watchRoom(c *client.Client) error {
	events, cancel := c.RoomEvents()
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)

	ui.PrintInfo("Watching room. Ctrl+C to leave.")
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("connection to server lost")
			}
			switch ev := ev.(type) {
			case room.ParticipantJoined:
				ui.PrintInfof("%s %s joined", ui.IconPeer, ev.Participant.Name)
				fmt.Println(ui.ParticipantTableView(c.CurrentRoom()))
			case room.ParticipantLeft:
				ui.PrintInfof("%s participant left", ui.IconPeer)
				fmt.Println(ui.ParticipantTableView(c.CurrentRoom()))
			case room.Closed:
				ui.PrintWarning("Room closed: " + ev.Reason)
				return nil
			case room.ErrorEvent:
				ui.PrintWarning(ev.Err.Error())
			}

		case <-sig:
			if err := c.LeaveRoom(); err != nil {
				return err
			}
			ui.PrintSuccess("Left the room")
			return nil
		}
	}
}

func parseRoomInput(input string) (string, error) {
	if input == "" {
		return "", fmt.Errorf("room ID cannot be empty")
	}

	if strings.Contains(input, "://") || strings.Contains(input, ".") {
		roomID, err := extractRoomIDFromURL(input)
		if err != nil {
			return "", err
		}
		ui.PrintSuccessf("Extracted room ID: %s", roomID)
		return roomID, nil
	}

	return input, nil
}

func extractRoomIDFromURL(urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}

	path := strings.TrimSuffix(parsedURL.Path, "/")
	parts := strings.Split(path, "/")

	for i, part := range parts {
		if part == "room" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}

	return "", fmt.Errorf("could not extract room ID from URL: %s", urlStr)
}

func init() {
	rootCmd.AddCommand(roomCmd)
	roomCmd.AddCommand(roomCreateCmd)
	roomCmd.AddCommand(roomJoinCmd)

	roomCmd.PersistentFlags().StringVar(&flagRoomServer, "server", "", "Custom coordination server")
	roomCmd.PersistentFlags().StringVarP(&flagRoomName, "name", "n", "", "Display name announced to the room")
	roomCmd.PersistentFlags().StringVarP(&flagRoomLang, "lang", "l", "", "Your language tag (e.g. en, es)")
	roomCmd.PersistentFlags().StringVarP(&flagRoomSTUN, "stun", "s", "", "Custom STUN server")
	roomCmd.PersistentFlags().StringVarP(&flagRoomTURN, "turn", "t", "", "Custom TURN server")
	roomCmd.PersistentFlags().StringVar(&flagRoomTURNUser, "turn-user", "", "TURN username")
	roomCmd.PersistentFlags().StringVar(&flagRoomTURNPass, "turn-pass", "", "TURN password")

	roomCreateCmd.Flags().StringVar(&flagRoomTitle, "title", "", "Room title")
	roomCreateCmd.Flags().StringVar(&flagRoomSource, "from", "", "Source language tag")
	roomCreateCmd.Flags().StringVar(&flagRoomTarget, "to", "", "Target language tag")
}
