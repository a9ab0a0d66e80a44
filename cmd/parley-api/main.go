package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/parleylabs/parley/internal/applications"
	"github.com/parleylabs/parley/internal/config"
	"github.com/parleylabs/parley/internal/conversations"
	"github.com/parleylabs/parley/internal/database"
	"github.com/parleylabs/parley/internal/flood"
	"github.com/parleylabs/parley/internal/logging"
	"github.com/parleylabs/parley/internal/moderation"
	"github.com/parleylabs/parley/internal/record"
	"github.com/parleylabs/parley/internal/server"
	"github.com/parleylabs/parley/internal/session"
	"github.com/parleylabs/parley/internal/spam"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "parley-api",
		Short: "Parley forum backend service",
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
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().Bool("spam-enabled", defaults.GetBool("spam.enabled"), "Enable spam checking")
	cmd.PersistentFlags().Int64("delete-comment-threshold", defaults.GetInt64("spam.delete_comment_threshold"), "Discussion size at which flagged discussions are logged but not purged")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
	bindFlag(cmd, "spam.enabled", "spam-enabled")
	bindFlag(cmd, "spam.delete_comment_threshold", "delete-comment-threshold")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
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

	store, err := record.NewStore(record.StoreConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}

	tokenManager, err := session.NewTokenManager(session.TokenManagerConfig{
		SigningSecret: []byte(appConfig.SessionSigningKey),
		Issuer:        appConfig.SessionIssuer,
	})
	if err != nil {
		return err
	}

	limiter, err := flood.NewLimiter(flood.LimiterConfig{
		Enabled:  appConfig.FloodEnabled,
		MaxCount: appConfig.FloodMaxCount,
		Window:   appConfig.FloodWindow,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	queueWriter, err := moderation.NewWriter(moderation.WriterConfig{
		Store:                  store,
		DeleteCommentThreshold: appConfig.DeleteCommentThreshold,
		Logger:                 logger,
	})
	if err != nil {
		return err
	}

	dispatcher, err := spam.NewDispatcher(spam.DispatcherConfig{
		Enabled:    appConfig.SpamEnabled,
		Users:      store,
		Moderation: queueWriter,
		Checkers: []spam.Checker{
			spam.NewKeywordChecker(appConfig.SpamKeywords),
			&spam.FloodChecker{Limiter: limiter},
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	applicationsService, err := applications.NewService(applications.ServiceConfig{
		Store:  store,
		Spam:   dispatcher,
		Flood:  limiter,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	conversationsService, err := conversations.NewService(conversations.ServiceConfig{
		Store:  store,
		Spam:   dispatcher,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:  tokenManager,
		Applications:  applicationsService,
		Conversations: conversationsService,
		Logger:        logger,
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
