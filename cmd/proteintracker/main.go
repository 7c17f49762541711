package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ferretttde/ProteinTracker/internal/archive"
	"github.com/Ferretttde/ProteinTracker/internal/config"
	"github.com/Ferretttde/ProteinTracker/internal/database"
	"github.com/Ferretttde/ProteinTracker/internal/live"
	"github.com/Ferretttde/ProteinTracker/internal/logging"
	"github.com/Ferretttde/ProteinTracker/internal/meals"
	"github.com/Ferretttde/ProteinTracker/internal/nutrition"
	"github.com/Ferretttde/ProteinTracker/internal/server"
	"github.com/Ferretttde/ProteinTracker/internal/settings"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "proteintracker",
		Short: "Local protein tracking service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("barcode-base-url", defaults.GetString("barcode.base_url"), "Product database base URL")
	cmd.PersistentFlags().String("analysis-base-url", defaults.GetString("analysis.base_url"), "Analysis API base URL")
	cmd.PersistentFlags().String("analysis-model", defaults.GetString("analysis.model"), "Analysis model override")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "barcode.base_url", "barcode-base-url")
	bindFlag(cmd, "analysis.base_url", "analysis-base-url")
	bindFlag(cmd, "analysis.model", "analysis-model")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	// A local .env is optional; real environment variables win.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	dispatcher := live.NewDispatcher()

	settingsService, err := settings.NewService(settings.ServiceConfig{
		Database:   db,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	mealService, err := meals.NewService(meals.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		Dispatcher: dispatcher,
		Goals:      settingsService,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	archiveService, err := archive.NewService(archive.ServiceConfig{
		Database:   db,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	barcodeClient := nutrition.NewBarcodeClient(nutrition.BarcodeClientConfig{
		BaseURL: appConfig.BarcodeBaseURL,
		Logger:  logger,
	})

	analysisClient, err := nutrition.NewAnalysisClient(nutrition.AnalysisClientConfig{
		BaseURL: appConfig.AnalysisBaseURL,
		Model:   appConfig.AnalysisModel,
		Keys:    settingsService,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Meals:      mealService,
		Settings:   settingsService,
		Archive:    archiveService,
		Barcode:    barcodeClient,
		Analysis:   analysisClient,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
