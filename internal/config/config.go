// File: internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store and blob drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"

	BlobMemory = "memory"
	BlobS3     = "s3"
)

// ServerConfig configures cmd/server.
type ServerConfig struct {
	ServerPort   string `mapstructure:"SERVER_PORT"`
	Environment  string `mapstructure:"ENV"`
	LogLevel     string `mapstructure:"LOG_LEVEL"`
	JWTSecretKey string `mapstructure:"JWT_SECRET_KEY"`

	StoreDriver   string `mapstructure:"STORE_DRIVER"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	MongoURI      string `mapstructure:"MONGODB_URI"`
	MongoDatabase string `mapstructure:"MONGODB_DATABASE"`

	BlobDriver      string `mapstructure:"BLOB_DRIVER"`
	BlobS3Bucket    string `mapstructure:"BLOB_S3_BUCKET"`
	BlobS3Region    string `mapstructure:"BLOB_S3_REGION"`
	BlobS3Endpoint  string `mapstructure:"BLOB_S3_ENDPOINT"`
	BlobS3PathStyle bool   `mapstructure:"BLOB_S3_PATH_STYLE"`

	KafkaBrokers        string `mapstructure:"KAFKA_BROKERS"`
	KafkaAnalyticsTopic string `mapstructure:"KAFKA_ANALYTICS_TOPIC"`

	MaxJSONBytes  int64 `mapstructure:"MAX_JSON_BYTES"`
	MaxImageBytes int64 `mapstructure:"MAX_IMAGE_BYTES"`
}

// ClientConfig configures cmd/client.
type ClientConfig struct {
	Environment   string        `mapstructure:"ENV"`
	LogLevel      string        `mapstructure:"LOG_LEVEL"`
	APIURL        string        `mapstructure:"TELEMED_API_URL"`
	LocalDB       string        `mapstructure:"TELEMED_LOCAL_DB"`
	RemoteTimeout time.Duration `mapstructure:"TELEMED_REMOTE_TIMEOUT"`
	ProbeInterval time.Duration `mapstructure:"TELEMED_PROBE_INTERVAL"`
	AutoSync      bool          `mapstructure:"TELEMED_AUTO_SYNC"`

	OpenAIAPIKey  string `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL string `mapstructure:"OPENAI_BASE_URL"`
	OpenAIModel   string `mapstructure:"OPENAI_MODEL"`
}

var serverDefaults = map[string]any{
	"SERVER_PORT":           "3000",
	"ENV":                   "development",
	"LOG_LEVEL":             "info",
	"JWT_SECRET_KEY":        "",
	"STORE_DRIVER":          StoreMemory,
	"DATABASE_URL":          "telemed.db",
	"MONGODB_URI":           "",
	"MONGODB_DATABASE":      "telemed",
	"BLOB_DRIVER":           BlobMemory,
	"BLOB_S3_BUCKET":        "",
	"BLOB_S3_REGION":        "",
	"BLOB_S3_ENDPOINT":      "",
	"BLOB_S3_PATH_STYLE":    false,
	"KAFKA_BROKERS":         "",
	"KAFKA_ANALYTICS_TOPIC": "telemed.analytics",
	"MAX_JSON_BYTES":        int64(50 << 20),
	"MAX_IMAGE_BYTES":       int64(20 << 20),
}

var clientDefaults = map[string]any{
	"ENV":                    "development",
	"LOG_LEVEL":              "warn",
	"TELEMED_API_URL":        "http://localhost:3000/api",
	"TELEMED_LOCAL_DB":       "telemed-local.db",
	"TELEMED_REMOTE_TIMEOUT": 10 * time.Second,
	"TELEMED_PROBE_INTERVAL": 30 * time.Second,
	"TELEMED_AUTO_SYNC":      true,
	"OPENAI_API_KEY":         "",
	"OPENAI_BASE_URL":        "",
	"OPENAI_MODEL":           "gpt-4o-mini",
}

// loadDotEnv reads .env outside production. A missing file is fine.
func loadDotEnv() {
	if strings.EqualFold(os.Getenv("ENV"), "production") {
		return
	}
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not read .env: %v", err)
	}
}

// newViper sets defaults and binds every key to its environment variable.
func newViper(v *viper.Viper, defaults map[string]any) *viper.Viper {
	if v == nil {
		v = viper.New()
	}
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
		_ = v.BindEnv(key)
	}
	return v
}

// LoadServer reads the server configuration from the environment.
func LoadServer() (*ServerConfig, error) {
	loadDotEnv()
	v := newViper(nil, serverDefaults)
	cfg := &ServerConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal server config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClient reads the client configuration. v may carry bound CLI flags;
// nil uses a fresh instance.
func LoadClient(v *viper.Viper) (*ClientConfig, error) {
	loadDotEnv()
	v = newViper(v, clientDefaults)
	cfg := &ClientConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal client config: %w", err)
	}
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("TELEMED_API_URL is required")
	}
	if cfg.RemoteTimeout <= 0 {
		return nil, fmt.Errorf("TELEMED_REMOTE_TIMEOUT must be positive, got %s", cfg.RemoteTimeout)
	}
	return cfg, nil
}

func (c *ServerConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate checks driver names and, in production, the required secrets.
func (c *ServerConfig) Validate() error {
	var missing []string
	if c.IsProduction() && c.JWTSecretKey == "" {
		missing = append(missing, "JWT_SECRET_KEY")
	}

	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite, StorePostgres:
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case StoreMongo:
		if c.MongoURI == "" {
			missing = append(missing, "MONGODB_URI")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of memory, sqlite, postgres, mongo; got %q", c.StoreDriver)
	}

	switch c.BlobDriver {
	case BlobMemory:
	case BlobS3:
		if c.BlobS3Bucket == "" {
			missing = append(missing, "BLOB_S3_BUCKET")
		}
	default:
		return fmt.Errorf("BLOB_DRIVER must be memory or s3; got %q", c.BlobDriver)
	}

	if c.MaxJSONBytes <= 0 || c.MaxImageBytes <= 0 {
		return fmt.Errorf("MAX_JSON_BYTES and MAX_IMAGE_BYTES must be positive")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}
