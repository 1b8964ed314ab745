package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sprite-ai/revu/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP server hosting review sessions over the configured
analysis service.

Endpoints:
  GET    /health                       — Health check
  POST   /api/sessions                 — Create a review session
  GET    /api/sessions/{id}            — Session state
  DELETE /api/sessions/{id}            — Discard a session
  POST   /api/sessions/{id}/source     — Load code (files, inline, or repo URL)
  POST   /api/sessions/{id}/analyze    — Run analysis
  POST   /api/sessions/{id}/select     — Toggle an issue selection
  POST   /api/sessions/{id}/fix        — Fix selected (or all) issues
  GET    /api/sessions/{id}/delta      — Score improvement
  GET    /api/sessions/{id}/ws         — WebSocket phase event stream`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "127.0.0.1", "address to listen on")
	serveCmd.Flags().IntP("port", "p", 6143, "port to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	port, _ := cmd.Flags().GetInt("port")

	client := newClient()
	if err := client.Health(cmd.Context()); err != nil {
		logger.Warn("analysis service unreachable at startup",
			"url", viper.GetString("service.url"), "err", err)
	}

	listen := fmt.Sprintf("%s:%d", addr, port)
	srv := api.New(listen, client, logger)
	return srv.ListenAndServe()
}
