package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Brownie44l1/asl-api/internal/dictionary"
	"github.com/Brownie44l1/asl-api/internal/handlers"
	"github.com/cyclopcam/logs"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the prediction API",
		Long: `Starts the HTTP API. The model is loaded on the first prediction, so the
server starts even if the model has not been exported yet.`,
		Example: `  # Start on the configured port (default 8080)
  asl-api serve

  # Upload test
  curl -X POST -F "image=@hand.jpg" http://localhost:8080/api/predict/image`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}

			loader := a.loader()
			defer loader.Close()
			store := a.historyStore()
			store.Init()
			dict := dictionary.New(a.cfg.Dictionary, a.log)
			handler := handlers.NewHandler(logs.NewPrefixLogger(a.log, "http:"), loader, store, dict, a.cfg)

			// Requests retry the load, so a missing model is only a warning here
			if _, err := loader.Get(); err != nil {
				a.log.Warnf("%v", err)
			}

			addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
			server := &http.Server{
				Addr:    addr,
				Handler: handler.Router(),
			}

			serverErr := make(chan error, 1)
			go func() {
				a.log.Infof("Server starting on %v (model %v, history %v)", addr, a.cfg.Model.Path, store.File())
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-cmd.Context().Done():
				a.log.Infof("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					a.log.Errorf("Server shutdown failed: %v", err)
					return err
				}
				a.log.Infof("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on (overrides config and PORT)")

	return cmd
}
