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
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Train   TrainConfig
	Session SessionConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	train, err := loadTrainConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Train: train, Session: session}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr          string
	AllowedOrigin string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	addr := port
	if !strings.Contains(port, ":") {
		if strings.Contains(port, " ") {
			return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
		}
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		addr = ":" + port
	}

	return ServerConfig{
		Addr:          addr,
		AllowedOrigin: getEnvOrDefault("CORS_ALLOWED_ORIGIN", "http://localhost:5173"),
	}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	MaxSteps    int
}

// TrainConfig 描述车次查询接口配置。
type TrainConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SessionConfig 描述会话生命周期配置。
type SessionConfig struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
	StreamTimeout time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ToolCallingChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
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

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	maxSteps := 12
	if stepsOverride, err := parseOptionalIntEnv("AI_MAX_STEPS"); err != nil {
		return AIConfig{}, err
	} else if stepsOverride != nil && *stepsOverride > 0 {
		maxSteps = *stepsOverride
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		MaxSteps:    maxSteps,
	}, nil
}

func loadTrainConfig() (TrainConfig, error) {
	timeout, err := parseOptionalDurationEnv("TRAIN_API_TIMEOUT")
	if err != nil {
		return TrainConfig{}, err
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return TrainConfig{
		BaseURL: getEnvOrDefault("TRAIN_API_BASE_URL", "http://127.0.0.1:5000"),
		Timeout: timeout,
	}, nil
}

func loadSessionConfig() (SessionConfig, error) {
	idleTTL, err := parseOptionalDurationEnv("SESSION_IDLE_TTL")
	if err != nil {
		return SessionConfig{}, err
	}
	if idleTTL == 0 {
		idleTTL = 30 * time.Minute
	}

	sweepInterval, err := parseOptionalDurationEnv("SESSION_SWEEP_INTERVAL")
	if err != nil {
		return SessionConfig{}, err
	}
	if sweepInterval == 0 {
		sweepInterval = time.Minute
	}

	streamTimeout, err := parseOptionalDurationEnv("STREAM_TIMEOUT")
	if err != nil {
		return SessionConfig{}, err
	}
	if streamTimeout == 0 {
		streamTimeout = 30 * time.Minute
	}

	return SessionConfig{
		IdleTTL:       idleTTL,
		SweepInterval: sweepInterval,
		StreamTimeout: streamTimeout,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
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

func parseOptionalDurationEnv(key string) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return 0, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, nil
	}

	val, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, value)
	}
	return val, nil
}
