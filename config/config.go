// Package config loads worker settings from the environment. Every
// setting has a default so a worker starts with zero configuration
// against local Redis, Ollama, and sibling model servers.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Environment names.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Settings holds the configuration shared by all workers. Individual
// workers read only the fields they care about.
type Settings struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`

	RedisURL string `mapstructure:"redis_url"`

	GatewayHost string `mapstructure:"gateway_host"`
	GatewayPort int    `mapstructure:"gateway_port"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	DefaultDeviceID string `mapstructure:"default_device_id"`

	VADModelURL string `mapstructure:"vad_model_url"`

	WhisperModel string `mapstructure:"whisper_model"`
	WhisperURL   string `mapstructure:"whisper_url"`

	LLMBackend string `mapstructure:"llm_backend"`
	LLMModel   string `mapstructure:"llm_model"`
	OllamaURL  string `mapstructure:"ollama_url"`

	AWSRegion      string `mapstructure:"aws_region"`
	BedrockModel   string `mapstructure:"bedrock_model"`
	BedrockRoleARN string `mapstructure:"bedrock_role_arn"`

	AzureOpenAIEndpoint   string `mapstructure:"azure_openai_endpoint"`
	AzureOpenAIDeployment string `mapstructure:"azure_openai_deployment"`
	AzureOpenAIAPIKey     string `mapstructure:"azure_openai_api_key"`

	PiperVoice string `mapstructure:"piper_voice"`
	PiperURL   string `mapstructure:"piper_url"`

	DatabasePath    string `mapstructure:"database_path"`
	RulesConfigPath string `mapstructure:"rules_config_path"`

	EnableProactiveRules bool `mapstructure:"enable_proactive_rules"`
	ProactiveRatePerHour int  `mapstructure:"proactive_rate_per_hour"`

	TracingEndpoint string `mapstructure:"tracing_endpoint"`
}

// defaults maps every settings key to its default value.
var defaults = map[string]any{
	"environment": EnvDevelopment,
	"log_level":   "INFO",

	"redis_url": "redis://localhost:6379/0",

	"gateway_host": "0.0.0.0",
	"gateway_port": 8080,
	"metrics_addr": ":9090",

	"default_device_id": "companion-001",

	"vad_model_url": "",

	"whisper_model": "tiny.en",
	"whisper_url":   "http://localhost:8000",

	"llm_backend": "ollama",
	"llm_model":   "qwen2:0.5b",
	"ollama_url":  "http://localhost:11434",

	"aws_region":       "us-west-2",
	"bedrock_model":    "claude-3-5-haiku-20241022",
	"bedrock_role_arn": "",

	"azure_openai_endpoint":   "",
	"azure_openai_deployment": "",
	"azure_openai_api_key":    "",

	"piper_voice": "en_US-lessac-medium",
	"piper_url":   "http://localhost:5000",

	"database_path":     "data/hearth.db",
	"rules_config_path": "config/rules.yaml",

	"enable_proactive_rules":  true,
	"proactive_rate_per_hour": 6,

	"tracing_endpoint": "",
}

// Load reads settings from the environment. Environment variables are
// the upper-cased key names (gateway_port is set via GATEWAY_PORT).
func Load() (*Settings, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// AutomaticEnv only resolves keys viper already knows about when
	// unmarshalling, so bind each one explicitly.
	for key := range defaults {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) validate() error {
	if s.GatewayPort <= 0 || s.GatewayPort > 65535 {
		return fmt.Errorf("invalid gateway_port %d", s.GatewayPort)
	}
	switch s.LLMBackend {
	case "ollama", "bedrock", "azure":
	default:
		return fmt.Errorf("unknown llm_backend %q", s.LLMBackend)
	}
	return nil
}

// IsDevelopment reports whether the worker runs in development mode.
// Development workers log human-readable text instead of JSON.
func (s *Settings) IsDevelopment() bool {
	return s.Environment != EnvProduction
}

// GatewayAddr returns the host:port the gateway listens on.
func (s *Settings) GatewayAddr() string {
	return fmt.Sprintf("%s:%d", s.GatewayHost, s.GatewayPort)
}
