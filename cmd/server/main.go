package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RichardoC/sentichat/internal/api"
	"github.com/RichardoC/sentichat/internal/chat"
	"github.com/RichardoC/sentichat/internal/config"
	"github.com/RichardoC/sentichat/internal/db"
	"github.com/RichardoC/sentichat/internal/llm"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type app struct {
	cfg    config.Config
	logger *zap.Logger
	store  *db.Database
	llm    *llm.Service
	chat   *chat.Service
}

func newApp(cfg config.Config) (*app, error) {
	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	database, err := db.New(cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to initialize database",
			zap.Error(err),
			zap.String("dbPath", cfg.DBPath))
		return nil, err
	}

	llmService, err := llm.New(llm.Options{
		BaseURL:          cfg.BaseURL,
		Token:            cfg.APIKey,
		Model:            cfg.Model,
		SentimentModel:   cfg.SentimentModel,
		Timeout:          cfg.ProviderTimeout,
		MaxHistoryTokens: cfg.MaxHistoryTokens,
	}, logger)
	if err != nil {
		_ = database.Close()
		logger.Error("failed to initialize LLM service", zap.Error(err))
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  database,
		llm:    llmService,
		chat:   chat.NewService(database, llmService, logger),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func loadApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("db") {
		cfg.DBPath, _ = cmd.Flags().GetString("db")
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetString("port")
	}
	return newApp(cfg)
}

func main() {
	root := &cobra.Command{
		Use:           "sentichat",
		Short:         "Chat with a hosted model and track the sentiment of what you say",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().String("db", "", "SQLite database path (overrides DB_PATH)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE:  runServe,
	}
	serve.Flags().String("port", "", "listen port (overrides PORT)")
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve, &cobra.Command{
		Use:   "analyze <conversation-id>",
		Short: "Run conversation-level sentiment analysis and print the result",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}, &cobra.Command{
		Use:   "ping",
		Short: "Classify a sample sentence to check provider credentials",
		Args:  cobra.NoArgs,
		RunE:  runPing,
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(a.chat, a.logger)
	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           api.NewRouter(handler, a.cfg.AllowedOrigins, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.String("model", a.cfg.Model),
			zap.String("dbPath", a.cfg.DBPath))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ProviderTimeout+5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.chat.AnalyzeConversation(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(api.AnalysisResponse{
		ConversationID:   res.ConversationID,
		OverallSentiment: res.Sentiment,
		OverallScore:     res.Score,
		Summary:          res.Summary,
		MessageCount:     res.MessageCount,
	})
}

func runPing(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.llm.ClassifyMessage(cmd.Context(), "Thanks, this was really helpful!")
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%.2f): %s\n", a.cfg.SentimentModel, res.Sentiment, res.Score, res.Explanation)
	return nil
}
