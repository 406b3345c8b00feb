package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/exonedge/internal/abundance"
	"github.com/inodb/exonedge/internal/duckdb"
	"github.com/inodb/exonedge/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var (
		fetch  fetchFlags
		tracks []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve edge inference and abundance over HTTP",
		Long: `Start an HTTP server with the routes:

  GET /healthz
  GET /edges/:locus?threshold=&end_mode=&filter=
  GET /abundance/:locus?track=`,
		Example: `  exonedge serve --addr :8080
  curl 'localhost:8080/edges/chr18:79930227-79930311_+?end_mode=max'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := edgeOptions()
			if err != nil {
				return err
			}

			store := a.maybeOpenStore(fetch.noCache)
			if store != nil {
				defer store.Close()
			}

			var resolver server.TrackResolver
			if store != nil {
				resolver = storeResolver(store)
			}

			if !a.verbose {
				gin.SetMode(gin.ReleaseMode)
			}

			srv := server.New(a.junctionSource(store, fetch.skipMalformed, fetch.refresh), opts, resolver)
			srv.SetLogger(a.logger)
			srv.SetDefaultTracks(tracks)

			addr := viper.GetString("serve.addr")
			httpServer := &http.Server{
				Addr:    addr,
				Handler: srv.Router(),
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- httpServer.ListenAndServe()
			}()
			a.logger.Info("listening", zap.String("addr", addr))

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("serve: %w", err)
			case <-cmd.Context().Done():
			}

			a.logger.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(ctx)
		},
	}

	fetch.register(cmd)
	cmd.Flags().StringArrayVar(&tracks, "track", nil, "Tracks measured when a request names none (repeatable)")
	cmd.Flags().String("addr", ":8080", "Listen address")
	if err := viper.BindPFlag("serve.addr", cmd.Flags().Lookup("addr")); err != nil {
		panic(err)
	}

	return cmd
}

// storeResolver looks tracks up in store, reporting unloaded names as unknown.
func storeResolver(store *duckdb.Store) server.TrackResolver {
	return func(name string) (abundance.TrackSource, error) {
		t, err := store.Track(name)
		if errors.Is(err, duckdb.ErrTrackNotFound) {
			return nil, fmt.Errorf("%w: %s", server.ErrTrackUnknown, name)
		}
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}
