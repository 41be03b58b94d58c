package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/babelmeet/babelmeet/internal/client"
	"github.com/babelmeet/babelmeet/internal/config"
	"github.com/babelmeet/babelmeet/internal/ui"
	"github.com/babelmeet/babelmeet/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "babelmeet",
	Short:   "Peer-to-peer video calls with live translated audio and captions",
	Long:    `BabelMeet is a command-line client for real-time calls between speakers of different languages. Calls connect directly over WebRTC; each participant hears the other in their own language and can follow along with live captions. Rooms make the same thing work for small groups, with a shareable link for browser participants.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

// connectClient loads config from the shared flags and brings up a
// connected, registered client.
func connectClient(opts config.Options) (*client.Client, *config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, nil, err
	}

	spin := ui.NewConnectionSpinner("Connecting to server...")
	spin.Start()
	c := client.New(cfg, client.Options{})
	if err := c.Connect(); err != nil {
		spin.Stop()
		return nil, nil, err
	}
	spin.Stop()
	return c, cfg, nil
}
