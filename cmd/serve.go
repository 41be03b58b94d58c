package cmd

import (
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/babelmeet/babelmeet/internal/server"
)

var flagServeAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordination server",
	Long: `Run the BabelMeet coordination server: identity registration, call
signaling relay and room management over a single websocket endpoint.

Examples:
  babelmeet serve
  babelmeet serve --addr :9000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		hub := server.NewHub()
		go hub.Run()

		slog.Info("starting coordination server", "addr", flagServeAddr)
		return http.ListenAndServe(flagServeAddr, server.Handler(hub))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&flagServeAddr, "addr", "a", ":8080", "Listen address")
}
