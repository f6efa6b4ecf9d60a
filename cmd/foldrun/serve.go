package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fold-orchestrator/api/rest/routes"
	"fold-orchestrator/core/repository"
	"fold-orchestrator/logger"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve job status over HTTP",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	log := logger.L()

	var db *repository.DB
	if cfg.DatabaseURL != "" {
		db, err = repository.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Warn("run ledger unavailable, events endpoint disabled", zap.Error(err))
			db = nil
		} else {
			defer db.Close()
			log.Info("Database connected successfully")
		}
	}

	r := mux.NewRouter()
	routes.SetupRoutes(r, cfg.OutputPath, db)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", zap.String("port", cfg.ServerPort), zap.String("output_path", cfg.OutputPath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-quit:
	}

	log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	log.Info("Server exited")
	return nil
}
