package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	anthropicprovider "github.com/zhouzirui/finpilot/backend/internal/service/ai/provider/anthropic"
	openaiprovider "github.com/zhouzirui/finpilot/backend/internal/service/ai/provider/openai"
)

// Model providers.
const (
	ProviderArk       = "ark"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// maxFetchAttempts is the upper bound of TX_FETCH_MAX_ATTEMPTS.
const maxFetchAttempts = 3

// Checkpoint backends.
const (
	CheckpointSQL    = "sql"
	CheckpointRedis  = "redis"
	CheckpointMemory = "memory"
)

// Config aggregates every setting of the service.
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	AI         AIConfig
	Store      StoreConfig
	Checkpoint CheckpointConfig
	Spending   SpendingConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	checkpoint, err := loadCheckpointConfig()
	if err != nil {
		return nil, err
	}

	spending, err := loadSpendingConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:     server,
		Log:        logCfg,
		AI:         ai,
		Store:      store,
		Checkpoint: checkpoint,
		Spending:   spending,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.AI.Provider {
	case ProviderArk, ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("invalid AI_PROVIDER value %q", c.AI.Provider)
	}
	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("invalid DB_DRIVER value %q", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("DB_DSN must not be empty")
	}
	switch c.Checkpoint.Backend {
	case CheckpointSQL, CheckpointMemory:
	case CheckpointRedis:
		if c.Checkpoint.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when CHECKPOINT_BACKEND=redis")
		}
	default:
		return fmt.Errorf("invalid CHECKPOINT_BACKEND value %q", c.Checkpoint.Backend)
	}
	if c.Spending.FetchMaxAttempts < 1 || c.Spending.FetchMaxAttempts > maxFetchAttempts {
		return fmt.Errorf("TX_FETCH_MAX_ATTEMPTS must be between 1 and %d", maxFetchAttempts)
	}
	if c.Spending.CategorizeWorkers < 1 {
		return fmt.Errorf("TX_CATEGORIZE_WORKERS must be at least 1")
	}
	return nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr        string
	CORSOrigins []string
}

func loadServerConfig() (ServerConfig, error) {
	origins := splitList(getEnvOrDefault("CORS_ORIGINS", "*"))

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// ":8080" and "127.0.0.1:8080" are accepted as-is.
		return ServerConfig{Addr: port, CORSOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, CORSOrigins: origins}, nil
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level  string
	Pretty bool
}

func loadLogConfig() (LogConfig, error) {
	pretty, err := parseBoolEnv("LOG_PRETTY", false)
	if err != nil {
		return LogConfig{}, err
	}
	return LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Pretty: pretty,
	}, nil
}

// AIConfig describes the language model provider.
type AIConfig struct {
	Provider          string
	Model             string
	APIKey            string
	AccessKey         string
	SecretKey         string
	BaseURL           string
	Region            string
	Temperature       *float64
	TopP              *float64
	MaxTokens         *int
	IntentLLMEnabled  bool
	HistoryLimit      int
	CategorizeEnabled bool
}

// Enabled reports whether the credentials required by the provider are set.
func (c AIConfig) Enabled() bool {
	if c.Model == "" {
		return false
	}
	switch c.Provider {
	case ProviderArk:
		return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
	default:
		return c.APIKey != ""
	}
}

// NewChatModel builds the eino chat model for the configured provider.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%s credentials or model missing", c.Provider)
	}

	switch c.Provider {
	case ProviderOpenAI:
		return openaiprovider.New(openaiprovider.Config{
			APIKey:      c.APIKey,
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			Temperature: c.Temperature,
			MaxTokens:   c.MaxTokens,
		}), nil
	case ProviderAnthropic:
		return anthropicprovider.New(anthropicprovider.Config{
			APIKey:      c.APIKey,
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			Temperature: c.Temperature,
			MaxTokens:   c.MaxTokens,
		}), nil
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	})
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderArk))

	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	intentEnabled, err := parseBoolEnv("AI_INTENT_LLM_ENABLED", true)
	if err != nil {
		return AIConfig{}, err
	}

	categorize, err := parseBoolEnv("AI_CATEGORIZE_ENABLED", true)
	if err != nil {
		return AIConfig{}, err
	}

	history := 10
	if override, err := parseOptionalIntEnv("AI_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		history = max(*override, 1)
	}

	cfg := AIConfig{
		Provider:          provider,
		Model:             strings.TrimSpace(os.Getenv("Model")),
		Temperature:       temperature,
		TopP:              topP,
		MaxTokens:         maxTokens,
		IntentLLMEnabled:  intentEnabled,
		HistoryLimit:      history,
		CategorizeEnabled: categorize,
	}

	switch provider {
	case ProviderOpenAI:
		cfg.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		cfg.BaseURL = getEnvOrDefault("OPENAI_BASE_URL", "")
	case ProviderAnthropic:
		cfg.APIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
		cfg.BaseURL = getEnvOrDefault("ANTHROPIC_BASE_URL", "")
	default:
		cfg.APIKey = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
		cfg.AccessKey = strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY"))
		cfg.SecretKey = strings.TrimSpace(os.Getenv("ARK_SECRET_KEY"))
		cfg.BaseURL = getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")
		cfg.Region = getEnvOrDefault("ARK_REGION", "cn-beijing")
	}
	return cfg, nil
}

// StoreConfig selects the relational database.
type StoreConfig struct {
	Driver   string
	DSN      string
	MaxConns int
	Debug    bool
}

func loadStoreConfig() (StoreConfig, error) {
	maxConns, err := parseOptionalIntEnv("DB_MAX_CONNS")
	if err != nil {
		return StoreConfig{}, err
	}
	debug, err := parseBoolEnv("DB_DEBUG", false)
	if err != nil {
		return StoreConfig{}, err
	}

	cfg := StoreConfig{
		Driver: strings.ToLower(getEnvOrDefault("DB_DRIVER", DriverSQLite)),
		DSN:    getEnvOrDefault("DB_DSN", "finpilot.db"),
		Debug:  debug,
	}
	if maxConns != nil {
		cfg.MaxConns = *maxConns
	}
	return cfg, nil
}

// CheckpointConfig selects where conversation state is persisted.
type CheckpointConfig struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
	TTL           time.Duration
}

func loadCheckpointConfig() (CheckpointConfig, error) {
	redisDB, err := parseOptionalIntEnv("REDIS_DB")
	if err != nil {
		return CheckpointConfig{}, err
	}
	ttl, err := parseDurationEnv("CHECKPOINT_TTL", 0)
	if err != nil {
		return CheckpointConfig{}, err
	}

	cfg := CheckpointConfig{
		Backend:       strings.ToLower(getEnvOrDefault("CHECKPOINT_BACKEND", CheckpointSQL)),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", ""),
		RedisPassword: strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		KeyPrefix:     getEnvOrDefault("CHECKPOINT_KEY_PREFIX", "finpilot:session:"),
		TTL:           ttl,
	}
	if redisDB != nil {
		cfg.RedisDB = *redisDB
	}
	return cfg, nil
}

// SpendingConfig tunes the spending workflow's transaction fetch.
type SpendingConfig struct {
	SourceURL         string
	SourceToken       string
	FetchTimeout      time.Duration
	FetchMaxAttempts  int
	CategorizeWorkers int
}

func loadSpendingConfig() (SpendingConfig, error) {
	timeout, err := parseDurationEnv("TX_FETCH_TIMEOUT", 30*time.Second)
	if err != nil {
		return SpendingConfig{}, err
	}

	cfg := SpendingConfig{
		SourceURL:         getEnvOrDefault("TX_SOURCE_URL", ""),
		SourceToken:       strings.TrimSpace(os.Getenv("TX_SOURCE_TOKEN")),
		FetchTimeout:      timeout,
		FetchMaxAttempts:  3,
		CategorizeWorkers: 8,
	}

	if attempts, err := parseOptionalIntEnv("TX_FETCH_MAX_ATTEMPTS"); err != nil {
		return SpendingConfig{}, err
	} else if attempts != nil {
		cfg.FetchMaxAttempts = *attempts
	}

	if workers, err := parseOptionalIntEnv("TX_CATEGORIZE_WORKERS"); err != nil {
		return SpendingConfig{}, err
	} else if workers != nil {
		cfg.CategorizeWorkers = *workers
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
