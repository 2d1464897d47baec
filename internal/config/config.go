package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath            string
	HTTPAddr          string
	StaticDir         string
	LLMBaseURL        string
	LLMModel          string
	LLMToken          string
	TokenizerEncoding string

	// ContextBudget is the token budget handed to the context assembler:
	// the model's truncation length minus headroom reserved for the reply
	// and the user-facts fragment.
	ContextBudget int

	// MessageOverhead is the fixed per-message framing cost added by the
	// prompt formatter, attributed to each message for budgeting.
	MessageOverhead int

	// AllowUncountedTokens opts in to treating text as zero-cost when the
	// tokenizer is unavailable instead of failing the write.
	AllowUncountedTokens bool
}

func Load() Config {
	_ = godotenv.Load() // .env is optional, environment wins

	return Config{
		DBPath:               getEnv("DB_PATH", "forkchat.db"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8100"),
		StaticDir:            getEnv("STATIC_DIR", "web"),
		LLMBaseURL:           getEnv("LLM_BASE_URL", "http://localhost:11434/v1/"),
		LLMModel:             getEnv("LLM_MODEL", "llama3.1:8b"),
		LLMToken:             getEnv("OPENAI_API_KEY", "unused"),
		TokenizerEncoding:    getEnv("TOKENIZER_ENCODING", "cl100k_base"),
		ContextBudget:        getEnvAsInt("CONTEXT_BUDGET", 7192),
		MessageOverhead:      getEnvAsInt("MESSAGE_OVERHEAD", 8),
		AllowUncountedTokens: getEnv("ALLOW_UNCOUNTED_TOKENS", "") == "true",
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
