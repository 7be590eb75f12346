package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/tuplizer/internal/orm/hooks"
	"github.com/conduit-lang/tuplizer/internal/server"
)

func newServeCommand(e *env) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the read-only HTTP inspector",
		Long: `Serve entity metadata and stored instances over HTTP:

  GET /healthz
  GET /entities
  GET /entities/{entity}[?mode=...]
  GET /entities/{entity}/instances
  GET /entities/{entity}/instances/{id}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ws, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer ws.close()

			if addr == "" {
				addr = e.cfg.Server.Addr
			}
			srv := server.New(ws.catalog, ws.store,
				server.WithMode(e.cfg.RepresentationMode()),
				server.WithLogger(e.logger),
				server.WithDispatcher(hooks.NewDispatcher(hooks.NewTable(), hooks.WithLogger(e.logger))),
			)
			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr)")
	return cmd
}
