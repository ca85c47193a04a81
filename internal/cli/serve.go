package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/fsmtools/fsm/internal/api"
)

func newServeCmd(configPath *string) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only HTTP API",
		Long: `Serve indexes the configured repositories once and answers graph queries
and resolve requests over HTTP. The server never applies plans; applying
stays with the CLI.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			env, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer env.Close()

			srv := api.New(api.Snapshot{
				Graph:        env.graph,
				Degraded:     env.degraded,
				RepoPriority: env.priority,
			}, env.store, logger)

			httpSrv := &http.Server{
				Addr:              listen,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = httpSrv.Shutdown(shutdownCtx)
			}()

			logger.Info("Serving API", "addr", listen, "packages", env.graph.Len())
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":8866", "address to listen on")
	return cmd
}
