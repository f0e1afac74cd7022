package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/item-scheduler/internal/alerts"
	httptransport "github.com/example/item-scheduler/internal/http"
	"github.com/example/item-scheduler/internal/ical"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the alert dispatcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, *configPath)
		},
	}
}

func runServe(cmd *cobra.Command, configPath string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx, configPath, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Items:  httptransport.NewItemHandler(a.service, logger),
		Agenda: httptransport.NewAgendaHandler(a.service, ical.NewExporter(a.location, ical.WithLogger(logger)), logger),
		Health: httptransport.NewHealthHandler(a.storage, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.Recoverer(logger),
		},
	})

	if a.cfg.Alerts.Enabled {
		dispatcher, err := alerts.NewDispatcher(a.service, alerts.LogNotifier{Logger: logger}, alerts.DispatcherConfig{
			Schedule: a.cfg.Alerts.Schedule,
			Location: a.location,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		dispatcher.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := dispatcher.Stop(stopCtx); err != nil {
				logger.Error("failed to stop alert dispatcher", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("scheduler API listening", "addr", server.Addr, "timezone", a.location.String())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server encountered error: %w", err)
	}
	return nil
}
