// Package config loads PodCleaner's configuration from a YAML file, with
// environment-variable overrides and .env support, mirroring the shape of
// the original's config.py load_config and the teacher's env-first
// config.Load.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"podcleaner/internal/logger"
)

// LLMConfig configures the Classifier's language-model calls.
type LLMConfig struct {
	ModelName   string  `yaml:"model_name"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	ChunkSize   int     `yaml:"chunk_size"`
	MaxAttempts int     `yaml:"max_attempts"`
	Temperature float32 `yaml:"temperature"`

	// TransitionPhrases/PromotionalIndicators override the Classifier's
	// heuristic coalescing cues. Left empty, the Classifier falls back to
	// its built-in German reference set.
	TransitionPhrases     []string `yaml:"transition_phrases"`
	PromotionalIndicators []string `yaml:"promotional_indicators"`
}

// AudioConfig configures the AudioEditor's interval-merge thresholds and
// the Downloader's working directory.
type AudioConfig struct {
	MinDuration  float64 `yaml:"min_duration"`
	MaxGap       float64 `yaml:"max_gap"`
	DownloadDir  string  `yaml:"download_dir"`
}

// RecognizerConfig configures the opaque speech-to-text service the
// Transcriber calls out to. Not part of the original's documented
// configuration surface (the Recognizer is explicitly out of scope), but
// the HTTP-backed implementation needs a base URL from somewhere.
type RecognizerConfig struct {
	BaseURL string `yaml:"base_url"`
}

// MQTTConfig configures the MQTT MessageBus backend.
type MQTTConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"`
}

// MessageBrokerConfig selects and configures the MessageBus backend.
type MessageBrokerConfig struct {
	Type string     `yaml:"type"` // "in_memory" or "mqtt"
	MQTT MQTTConfig `yaml:"mqtt"`
}

// WebServerConfig configures the HTTP front-end.
type WebServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	UseHTTPS    bool     `yaml:"use_https"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// ObjectStorageConfig configures the BlobStore backend.
type ObjectStorageConfig struct {
	Provider         string `yaml:"provider"` // "local", "s3", "minio"
	BucketName       string `yaml:"bucket_name"`
	Region           string `yaml:"region"`
	EndpointURL      string `yaml:"endpoint_url"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	LocalStoragePath string `yaml:"local_storage_path"`
	ConnectTimeout   int    `yaml:"connect_timeout"`
	ReadTimeout      int    `yaml:"read_timeout"`
	MaxRetries       int    `yaml:"max_retries"`
}

// Config is the top-level application configuration.
type Config struct {
	LLM            LLMConfig            `yaml:"llm"`
	Audio          AudioConfig          `yaml:"audio"`
	Recognizer     RecognizerConfig     `yaml:"recognizer"`
	LogLevel       string               `yaml:"log_level"`
	MessageBroker  MessageBrokerConfig  `yaml:"message_broker"`
	WebServer      WebServerConfig      `yaml:"web_server"`
	ObjectStorage  ObjectStorageConfig  `yaml:"object_storage"`
	DebugOutputDir string               `yaml:"debug_output_dir"`
}

func defaults() Config {
	return Config{
		LLM: LLMConfig{
			ModelName:   "gpt-3.5-turbo",
			ChunkSize:   600,
			MaxAttempts: 3,
			Temperature: 0.1,
		},
		Audio: AudioConfig{
			MinDuration: 5.0,
			MaxGap:      20.0,
			DownloadDir: "podcasts",
		},
		Recognizer: RecognizerConfig{
			BaseURL: "http://localhost:9000",
		},
		LogLevel: "INFO",
		MessageBroker: MessageBrokerConfig{
			Type: "in_memory",
			MQTT: MQTTConfig{Host: "localhost", Port: 1883},
		},
		WebServer: WebServerConfig{
			Host:        "localhost",
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		ObjectStorage: ObjectStorageConfig{
			Provider:         "local",
			BucketName:       "podcleaner",
			LocalStoragePath: "podcasts",
			ConnectTimeout:   5,
			ReadTimeout:      30,
			MaxRetries:       3,
		},
		// Empty by default: debug artifact dumps are opt-in, enabled by
		// --debug (which fills this in) or an explicit YAML
		// debug_output_dir, never on by default.
		DebugOutputDir: "",
	}
}

// Load reads the YAML config file at path (falling back to built-in
// defaults for anything it omits), loads a .env file if present, and lets
// OPENAI_API_KEY / OPENAI_API_BASE environment variables fill in the LLM
// credentials when the file leaves them blank.
func Load(path string) (*Config, error) {
	cfg := defaults()

	_ = godotenv.Load()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				logger.Warn("config_file_missing", "path", path)
			} else {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = os.Getenv("OPENAI_API_BASE")
	}
	if v := os.Getenv("S3_BUCKET_NAME"); v != "" {
		cfg.ObjectStorage.BucketName = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.ObjectStorage.AccessKey = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.ObjectStorage.SecretKey = v
	}
	if v := os.Getenv("AWS_DEFAULT_REGION"); v != "" {
		cfg.ObjectStorage.Region = v
	}
	if v := os.Getenv("RECOGNIZER_BASE_URL"); v != "" {
		cfg.Recognizer.BaseURL = v
	}

	logger.Info("configuration_loaded", "log_level", cfg.LogLevel, "broker", cfg.MessageBroker.Type, "storage", cfg.ObjectStorage.Provider)
	return &cfg, nil
}
