package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/promptweave-ai/promptweave/backend/internal/auth"
	"github.com/promptweave-ai/promptweave/backend/internal/chats"
	"github.com/promptweave-ai/promptweave/backend/internal/collab"
	"github.com/promptweave-ai/promptweave/backend/internal/config"
	"github.com/promptweave-ai/promptweave/backend/internal/database"
	"github.com/promptweave-ai/promptweave/backend/internal/llm"
	"github.com/promptweave-ai/promptweave/backend/internal/logging"
	"github.com/promptweave-ai/promptweave/backend/internal/mail"
	"github.com/promptweave-ai/promptweave/backend/internal/messages"
	"github.com/promptweave-ai/promptweave/backend/internal/promptgen"
	"github.com/promptweave-ai/promptweave/backend/internal/realtime"
	"github.com/promptweave-ai/promptweave/backend/internal/server"
	"github.com/promptweave-ai/promptweave/backend/internal/templates"
	"github.com/promptweave-ai/promptweave/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "promptweave-api",
		Short: "PromptWeave collaboration backend service",
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
	cmd.PersistentFlags().String("router-api-key", "", "OpenRouter API key (overrides env)")
	cmd.PersistentFlags().String("router-base-url", defaults.GetString("router.base_url"), "OpenRouter-compatible API base URL")
	cmd.PersistentFlags().String("app-base-url", defaults.GetString("app.base_url"), "Frontend base URL for share links")
	cmd.PersistentFlags().String("cors-origin", defaults.GetString("cors.origin"), "Allowed CORS origin")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "router.api_key", "router-api-key")
	bindFlag(cmd, "router.base_url", "router-base-url")
	bindFlag(cmd, "app.base_url", "app-base-url")
	bindFlag(cmd, "cors.origin", "cors-origin")
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

	sessionManager, err := auth.NewSessionManager(auth.SessionManagerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "promptweave-auth",
		Audience:      "promptweave-api",
		SessionTTL:    appConfig.SessionTTL,
	})
	if err != nil {
		return err
	}

	usersService, err := users.NewService(users.ServiceConfig{Database: db, Clock: time.Now})
	if err != nil {
		return err
	}

	completer := llm.NewClient(llm.ClientConfig{
		BaseURL: appConfig.RouterBaseURL,
		APIKey:  appConfig.RouterAPIKey,
		Logger:  logger,
	})

	chatsService, err := chats.NewService(chats.ServiceConfig{
		Database:  db,
		Completer: completer,
		Clock:     time.Now,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	messagesService, err := messages.NewService(messages.ServiceConfig{Database: db, Clock: time.Now})
	if err != nil {
		return err
	}

	templatesService, err := templates.NewService(templates.ServiceConfig{Database: db, Clock: time.Now})
	if err != nil {
		return err
	}

	promptGenService, err := promptgen.NewService(promptgen.ServiceConfig{
		Database:  db,
		Completer: completer,
		Templates: templatesService,
		Clock:     time.Now,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	collabService, err := collab.NewService(collab.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	registry := realtime.NewRegistry()
	dispatcher := realtime.NewDispatcher(registry, logger)
	gateway, err := realtime.NewGateway(realtime.GatewayConfig{
		Registry:   registry,
		Dispatcher: dispatcher,
		Presence:   collabService,
		Logger:     logger,
		Clock:      time.Now,
	})
	if err != nil {
		return err
	}

	mailer := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     appConfig.SMTPHost,
		Port:     appConfig.SMTPPort,
		Username: appConfig.SMTPUsername,
		Password: appConfig.SMTPPassword,
		From:     appConfig.MailFrom,
		Logger:   logger,
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:   sessionManager,
		Users:      usersService,
		Chats:      chatsService,
		Messages:   messagesService,
		Templates:  templatesService,
		Collab:     collabService,
		PromptGen:  promptGenService,
		Gateway:    gateway,
		Mailer:     mailer,
		Logger:     logger,
		CookieName: appConfig.CookieName,
		CookieTTL:  appConfig.SessionTTL,
		AppBaseURL: appConfig.AppBaseURL,
		CORSOrigin: appConfig.CORSOrigin,
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
