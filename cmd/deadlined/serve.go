package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/deadline-tracker/internal/api"
	"github.com/nhle/deadline-tracker/internal/credential"
	"github.com/nhle/deadline-tracker/internal/sync"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the notification scheduler and the optional mail poller",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
}

func serve(ctx context.Context, opts *rootOptions) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	token := a.creds.Resolve(a.cfg.API.Token, credential.KeyAPIToken)
	if token == "" {
		return errors.New("no API token: set api.token or run `deadlined creds set api-token`")
	}

	a.engine.Start(ctx)
	defer a.engine.Stop()

	if interval := a.cfg.Email.PollIntervalMin; interval > 0 {
		fetcher, err := a.configuredFetcher()
		if err != nil {
			return fmt.Errorf("mail poller: %w", err)
		}
		poller := sync.NewPoller(a.syncer, fetcher, a.cfg.Email.Days, time.Duration(interval)*time.Minute, a.logger)
		poller.Start(ctx)
		defer poller.Stop()
	}

	srv := &http.Server{
		Addr: a.cfg.API.Addr,
		Handler: api.NewRouter(api.RouterConfig{
			Deadlines:     a.deadlines,
			Syncer:        a.syncer,
			NewFetcher:    a.mailFetcher,
			Notifications: a.history,
			Token:         token,
			Gatherer:      a.registry,
			Logger:        a.logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("api listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
