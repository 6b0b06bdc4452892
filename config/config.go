package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	// Chat platform credentials and identity
	Chat ChatConfig

	// LLM and embedding provider settings
	LLM LLMConfig

	// Retrieval settings
	RAG RAGConfig

	// Per-user message rate limits
	Limits LimitsConfig

	// Admin panel settings
	Admin AdminConfig

	// Business identity used in prompts and templates
	Business BusinessConfig

	// Referral engagement thresholds
	Referral ReferralConfig

	// Optional conversation archive (MongoDB)
	Archive ArchiveConfig

	// Data directory layout
	DataDir   string
	DBPath    string
	IndexPath string
}

// ChatConfig holds chat platform settings
type ChatConfig struct {
	Token       string
	OwnerChatID string
	BotUsername string
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	MaxTokens      int
	ContextWindow  int
	// FollowUpEnabled controls whether answers may carry follow-up suggestions
	FollowUpEnabled bool
}

// RAGConfig holds retrieval configuration
type RAGConfig struct {
	TopK          int
	MinRelevance  float64
	ChunkMaxTokens int
	// PricingPrefix is prepended to the query for pricing-intent retrievals
	PricingPrefix string
}

// LimitsConfig holds the three sliding-window caps
type LimitsConfig struct {
	PerMinute int
	PerHour   int
	PerDay    int
	// SummaryThreshold is the unsummarized-message count that triggers summarization
	SummaryThreshold int
}

// AdminConfig holds admin panel configuration
type AdminConfig struct {
	Username     string
	Password     string
	PasswordHash string
	SecretKey    string
	Host         string
	Port         int
}

// BusinessConfig holds business identity fields
type BusinessConfig struct {
	Name    string
	Phone   string
	Address string
	Website string
}

// ReferralConfig holds engagement-trigger thresholds
type ReferralConfig struct {
	Engaged30m int
	Engaged24h int
}

// ArchiveConfig holds the optional MongoDB conversation archive settings
type ArchiveConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	dataDir := getEnvString("DATA_DIR", "data")

	cfg := &Config{
		Chat: ChatConfig{
			Token:       getEnvString("TELEGRAM_BOT_TOKEN", ""),
			OwnerChatID: getEnvString("TELEGRAM_OWNER_CHAT_ID", ""),
			BotUsername: getEnvString("TELEGRAM_BOT_USERNAME", ""),
		},
		LLM: LLMConfig{
			APIKey:          getEnvString("OPENAI_API_KEY", ""),
			BaseURL:         getEnvString("OPENAI_BASE_URL", ""),
			Model:           getEnvString("OPENAI_MODEL", "gpt-4.1-mini"),
			EmbeddingModel:  getEnvString("EMBEDDING_MODEL", "text-embedding-3-small"),
			MaxTokens:       getEnvInt("LLM_MAX_TOKENS", 1024),
			ContextWindow:   getEnvInt("CONTEXT_WINDOW_SIZE", 10),
			FollowUpEnabled: getEnvBool("FOLLOW_UP_ENABLED", true),
		},
		RAG: RAGConfig{
			TopK:           getEnvInt("RAG_TOP_K", 10),
			MinRelevance:   getEnvFloat("RAG_MIN_RELEVANCE", 0.3),
			ChunkMaxTokens: getEnvInt("CHUNK_MAX_TOKENS", 300),
			PricingPrefix:  getEnvString("PRICING_QUERY_PREFIX", "מחירון: "),
		},
		Limits: LimitsConfig{
			PerMinute:        getEnvInt("RATE_LIMIT_PER_MINUTE", 10),
			PerHour:          getEnvInt("RATE_LIMIT_PER_HOUR", 50),
			PerDay:           getEnvInt("RATE_LIMIT_PER_DAY", 100),
			SummaryThreshold: getEnvInt("SUMMARY_THRESHOLD", 10),
		},
		Admin: AdminConfig{
			Username:     getEnvString("ADMIN_USERNAME", "admin"),
			Password:     getEnvString("ADMIN_PASSWORD", ""),
			PasswordHash: getEnvString("ADMIN_PASSWORD_HASH", ""),
			SecretKey:    getEnvString("ADMIN_SECRET_KEY", ""),
			Host:         getEnvString("ADMIN_HOST", "0.0.0.0"),
			Port:         loadAdminPort(),
		},
		Business: BusinessConfig{
			Name:    getEnvString("BUSINESS_NAME", "Dana's Beauty Salon"),
			Phone:   getEnvString("BUSINESS_PHONE", ""),
			Address: getEnvString("BUSINESS_ADDRESS", ""),
			Website: getEnvString("BUSINESS_WEBSITE", ""),
		},
		Referral: ReferralConfig{
			Engaged30m: getEnvInt("REFERRAL_ENGAGED_30M", 10),
			Engaged24h: getEnvInt("REFERRAL_ENGAGED_24H", 20),
		},
		Archive: ArchiveConfig{
			URI:        getEnvString("MONGO_URI", ""),
			Database:   getEnvString("MONGO_DATABASE", "bizbot"),
			Collection: getEnvString("MONGO_COLLECTION", "conversation_archive"),
			Timeout:    time.Duration(getEnvInt("MONGO_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		DataDir:   dataDir,
		DBPath:    getEnvString("DB_PATH", filepath.Join(dataDir, "chatbot.db")),
		IndexPath: getEnvString("FAISS_INDEX_PATH", filepath.Join(dataDir, "faiss_index")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate rejects configurations that cannot run safely
func (c *Config) validate() error {
	if c.Admin.SecretKey == "" {
		return fmt.Errorf("ADMIN_SECRET_KEY must be set (required for admin session signing)")
	}
	if c.Admin.Username == "" {
		return fmt.Errorf("ADMIN_USERNAME must be set")
	}
	if c.Admin.Password == "" && c.Admin.PasswordHash == "" {
		return fmt.Errorf("either ADMIN_PASSWORD_HASH (preferred) or ADMIN_PASSWORD must be set")
	}
	if c.Admin.Port <= 0 || c.Admin.Port > 65535 {
		return fmt.Errorf("invalid admin port %d", c.Admin.Port)
	}
	return nil
}

// AdminAddress returns the admin HTTP listen address
func (c *Config) AdminAddress() string {
	return fmt.Sprintf("%s:%d", c.Admin.Host, c.Admin.Port)
}

// DeepLink builds the chat deep link for a referral code, or returns the bare
// code when the bot username is not configured
func (c *Config) DeepLink(code string) string {
	if c.Chat.BotUsername == "" {
		return code
	}
	return fmt.Sprintf("https://t.me/%s?start=%s", c.Chat.BotUsername, code)
}

// loadAdminPort prefers ADMIN_PORT, then the platform-provided PORT
func loadAdminPort() int {
	if v := os.Getenv("ADMIN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			return port
		}
	}
	return getEnvInt("PORT", 5000)
}

// Helper functions for environment variables
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
