package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atelierworks/opencall-backend/internal/auth"
	"github.com/atelierworks/opencall-backend/internal/config"
	"github.com/atelierworks/opencall-backend/internal/curation"
	"github.com/atelierworks/opencall-backend/internal/database"
	"github.com/atelierworks/opencall-backend/internal/logging"
	"github.com/atelierworks/opencall-backend/internal/reviews"
	"github.com/atelierworks/opencall-backend/internal/server"
	"github.com/atelierworks/opencall-backend/internal/submissions"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "opencall-api",
		Short: "Open call submission and curation backend service",
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
	cmd.PersistentFlags().String("identity-issuer", defaults.GetString("identity.issuer"), "Identity provider token issuer")
	cmd.PersistentFlags().String("identity-signing-secret", "", "Identity provider signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "identity.issuer", "identity-issuer")
	bindFlag(cmd, "identity.signing_secret", "identity-signing-secret")
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

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		SigningSecret: []byte(appConfig.IdentitySigningKey),
		Issuer:        appConfig.IdentityTokenIssuer,
	})
	if err != nil {
		return err
	}

	submissionsService, err := submissions.NewService(submissions.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: submissions.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	reviewsService, err := reviews.NewService(reviews.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	auditRecorder, err := curation.NewRecorder(curation.RecorderConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: submissions.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	curationService, err := curation.NewService(curation.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Audit:    auditRecorder,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Verifier:    verifier,
		Submissions: submissionsService,
		Reviews:     reviewsService,
		Curation:    curationService,
		Logger:      logger,
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
