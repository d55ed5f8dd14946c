package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/lumehealth/lume/backend/internal/service/auth"
	"github.com/lumehealth/lume/backend/internal/service/storage"
)

// Config aggregates every setting the service reads at startup.
type Config struct {
	Server   ServerConfig
	Identity auth.IdentityConfig
	AI       AIConfig
	Speech   SpeechConfig
	Storage  storage.Config
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Identity: loadIdentityConfig(),
		AI:       ai,
		Speech:   speech,
		Storage:  loadStorageConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" and "127.0.0.1:8080" as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

func loadIdentityConfig() auth.IdentityConfig {
	return auth.IdentityConfig{
		Username:    strings.TrimSpace(os.Getenv("IDENTITY_USERNAME")),
		Password:    os.Getenv("IDENTITY_PASSWORD"),
		DomainName:  strings.TrimSpace(os.Getenv("IDENTITY_DOMAIN_NAME")),
		ProjectName: strings.TrimSpace(os.Getenv("IDENTITY_PROJECT_NAME")),
		Region:      getEnvOrDefault("IDENTITY_REGION", "eu-west-0"),
		Endpoint:    strings.TrimSpace(os.Getenv("IDENTITY_ENDPOINT")),
	}
}

// IdentityEnabled reports whether the identity-gated backends can be used.
func (c *Config) IdentityEnabled() bool {
	return c.Identity.Username != "" && c.Identity.Password != "" && c.Identity.Endpoint != ""
}

// AIConfig describes the conversational-response backend. Provider
// "gateway" is the identity-gated completions endpoint; "ark" keeps the
// hosted ark model for deployments without identity credentials.
type AIConfig struct {
	Provider       string
	BaseURL        string
	Model          string
	APIKey         string
	AccessKey      string
	SecretKey      string
	Region         string
	Temperature    *float64
	TopP           *float64
	MaxTokens      int
	Timeout        int // seconds, per upstream call
	StreamResponse bool
	HistoryLimit   int // exchanges kept per request
}

// DefaultMaxTokens must cover the serialized history plus the reply: the
// completions backend enforces a single combined input+output budget.
const DefaultMaxTokens = 2048

// Enabled reports whether a response provider is configured.
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case "ark":
		return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	default:
		return c.BaseURL != ""
	}
}

// NewArkChatModel builds the ark-backed chat model from this configuration.
func (c AIConfig) NewArkChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide AI_API_KEY + AI_MODEL or an AK/SK pair")
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

	maxTokens := c.MaxTokens

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   &maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("AI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens := DefaultMaxTokens
	if override, err := parseOptionalIntEnv("AI_MAX_TOKENS"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override > 0 {
		maxTokens = *override
	}

	stream, err := parseBoolEnv("AI_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	timeout := 30
	if override, err := parseOptionalIntEnv("AI_TIMEOUT"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override > 0 {
		timeout = *override
	}

	historyLimit := 8
	if override, err := parseOptionalIntEnv("AI_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override >= 1 {
		historyLimit = *override
	}

	return AIConfig{
		Provider:       getEnvOrDefault("AI_PROVIDER", "gateway"),
		BaseURL:        strings.TrimSpace(os.Getenv("AI_BASE_URL")),
		Model:          strings.TrimSpace(os.Getenv("AI_MODEL")),
		APIKey:         strings.TrimSpace(os.Getenv("AI_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("AI_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("AI_SECRET_KEY")),
		Region:         getEnvOrDefault("AI_REGION", "eu-west-0"),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		Timeout:        timeout,
		StreamResponse: stream,
		HistoryLimit:   historyLimit,
	}, nil
}

// SpeechConfig describes the identity-gated speech backend.
type SpeechConfig struct {
	BaseURL          string
	Language         string
	SampleRate       int
	TTSVoice         string
	TTSSpeed         float32
	TTSVolume        float32
	Timeout          int
	TransientRetries int
	Enabled          bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout := 30
	if override, err := parseOptionalIntEnv("SPEECH_TIMEOUT"); err != nil {
		return SpeechConfig{}, err
	} else if override != nil {
		timeout = *override
	}

	sampleRate := 16000
	if override, err := parseOptionalIntEnv("SPEECH_SAMPLE_RATE"); err != nil {
		return SpeechConfig{}, err
	} else if override != nil {
		sampleRate = *override
	}

	retries := 0
	if override, err := parseOptionalIntEnv("SPEECH_TRANSIENT_RETRIES"); err != nil {
		return SpeechConfig{}, err
	} else if override != nil && *override > 0 {
		retries = *override
	}

	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsVolume := float32(1.0)
	if volume != nil {
		ttsVolume = *volume
	}

	baseURL := strings.TrimSpace(os.Getenv("SPEECH_BASE_URL"))

	return SpeechConfig{
		BaseURL:          baseURL,
		Language:         getEnvOrDefault("SPEECH_LANGUAGE", "en-US"),
		SampleRate:       sampleRate,
		TTSVoice:         getEnvOrDefault("SPEECH_TTS_VOICE", ""),
		TTSSpeed:         ttsSpeed,
		TTSVolume:        ttsVolume,
		Timeout:          timeout,
		TransientRetries: retries,
		Enabled:          baseURL != "",
	}, nil
}

func loadStorageConfig() storage.Config {
	return storage.Config{
		Bucket:       strings.TrimSpace(os.Getenv("STORAGE_BUCKET")),
		Region:       getEnvOrDefault("STORAGE_REGION", "eu-west-0"),
		Endpoint:     strings.TrimSpace(os.Getenv("STORAGE_ENDPOINT")),
		AccessKey:    strings.TrimSpace(os.Getenv("STORAGE_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("STORAGE_SECRET_KEY")),
		UsePathStyle: os.Getenv("STORAGE_PATH_STYLE") == "true",
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
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

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
