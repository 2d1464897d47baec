package main

import (
	"net/http"

	"github.com/forkchat/forkchat/internal/api"
	"github.com/forkchat/forkchat/internal/chat"
	"github.com/forkchat/forkchat/internal/config"
	"github.com/forkchat/forkchat/internal/db"
	"github.com/forkchat/forkchat/internal/llm"
	"github.com/forkchat/forkchat/internal/tokenizer"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()

	counter, err := tokenizer.New(cfg.TokenizerEncoding)
	if err != nil {
		logger.Fatal("failed to initialize tokenizer",
			zap.Error(err),
			zap.String("encoding", cfg.TokenizerEncoding))
	}

	var opts []db.Option
	if cfg.AllowUncountedTokens {
		opts = append(opts, db.WithUncountedFallback())
	}
	database, err := db.New(cfg.DBPath, counter, opts...)
	if err != nil {
		logger.Fatal("failed to initialize database",
			zap.Error(err),
			zap.String("dbPath", cfg.DBPath))
	}
	defer database.Close()

	llmService, err := llm.New(cfg.LLMBaseURL, cfg.LLMToken, cfg.LLMModel)
	if err != nil {
		logger.Fatal("failed to initialize LLM service", zap.Error(err))
	}

	svc := chat.New(database, llmService, counter, logger, cfg.ContextBudget, cfg.MessageOverhead)
	handler := api.NewHandler(svc, logger)

	// Set up routes
	http.HandleFunc("/api/chat", handler.HandleChat)
	http.HandleFunc("/api/messages/edit", handler.HandleEdit)
	http.HandleFunc("/api/messages/versions", handler.MessageVersions)
	http.HandleFunc("/api/conversations", handler.Conversations)
	http.HandleFunc("/api/conversations/update", handler.UpdateConversation)
	http.HandleFunc("/api/conversations/delete", handler.DeleteConversation)
	http.HandleFunc("/api/conversations/latest-version", handler.LatestVersion)
	http.HandleFunc("/api/versions/messages", handler.VersionMessages)

	// Serve static files
	fs := http.FileServer(http.Dir(cfg.StaticDir))
	http.Handle("/", fs)

	logger.Info("Starting server", zap.String("addr", cfg.HTTPAddr))
	if err := http.ListenAndServe(cfg.HTTPAddr, nil); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
