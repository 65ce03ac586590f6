package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ginjaninja78/comandos-pagamento-xml/internal/web"
	"github.com/spf13/cobra"
)

var serveAddr string

// serveCmd runs the HTTP front end until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP front end",
	Long: `Serves the JSON API on --addr (default server_addr from the configuration):

  GET    /v1/health
  GET    /v1/responsibles            POST /v1/responsibles
  GET    /v1/responsibles/{id}       PUT  /v1/responsibles/{id}
  DELETE /v1/responsibles/{id}
  POST   /v1/preview   (multipart: file)
  POST   /v1/convert   (multipart: file, responsible_id, folha)
  GET    /v1/template`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}

		addr := appConfig.ServerAddr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return web.New(appConfig, reg, Version).Run(ctx, addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
}
