package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Inference InferenceConfig `mapstructure:"inference"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Sources   SourcesConfig   `mapstructure:"sources"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port" validate:"min=1,max=65535"`
	Mode string     `mapstructure:"mode" validate:"oneof=debug release test"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level"`

	// InsertConcurrency bounds the concurrent detected-food inserts inside
	// one meal transaction. 1 inserts sequentially.
	InsertConcurrency int `mapstructure:"insert_concurrency" validate:"min=1"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, sslMode)
	}
	return c.Path + "?_foreign_keys=on&_busy_timeout=5000"
}

type StorageConfig struct {
	// Type is s3, r2, s3compatible, or local. Empty auto-detects from the endpoint.
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
	Prefix    string `mapstructure:"prefix"`
	LocalDir  string `mapstructure:"local_dir"`
}

type InferenceConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model" validate:"required"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url" validate:"required,url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
}

type IngestConfig struct {
	UploadDir     string `mapstructure:"upload_dir"`
	MaxImageBytes int64  `mapstructure:"max_image_bytes" validate:"gt=0"`
	Timezone      string `mapstructure:"timezone"`
	Workers       int    `mapstructure:"workers" validate:"min=1"`
	BatchSize     int    `mapstructure:"batch_size"`
}

// Location resolves Timezone, falling back to UTC when unset or unknown.
func (c *IngestConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type AuthConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	JWTSecret     string `mapstructure:"jwt_secret" validate:"required_if=Enabled true"`
	Issuer        string `mapstructure:"issuer"`
	DefaultUserID string `mapstructure:"default_user_id"`
	// AdminRole and AdminToken gate the admin routes. Both empty disables them.
	AdminRole  string `mapstructure:"admin_role"`
	AdminToken string `mapstructure:"admin_token"`
}

type SourcesConfig struct {
	Staging StagingConfig `mapstructure:"staging"`
}

type StagingConfig struct {
	BasePath string `mapstructure:"base_path"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Sensitive values come from the environment
	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("database.host", "DATABASE_HOST")
	_ = v.BindEnv("database.port", "DATABASE_PORT")
	_ = v.BindEnv("database.user", "DATABASE_USER")
	_ = v.BindEnv("database.password", "DATABASE_PASSWORD")
	_ = v.BindEnv("database.dbname", "DATABASE_NAME")
	_ = v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	_ = v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	_ = v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	_ = v.BindEnv("storage.bucket", "S3_BUCKET")
	_ = v.BindEnv("storage.public_url", "S3_PUBLIC_URL")
	_ = v.BindEnv("inference.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("inference.base_url", "OPENAI_BASE_URL")
	_ = v.BindEnv("inference.model", "INFERENCE_MODEL")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("auth.admin_token", "ADMIN_TOKEN")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/nutrilens.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.insert_concurrency", 4)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_dir", "./data/images")
	v.SetDefault("storage.public_url", "/images")
	v.SetDefault("storage.bucket", "nutrilens")
	v.SetDefault("storage.prefix", "meals")

	v.SetDefault("inference.provider", "openai")
	v.SetDefault("inference.model", "gpt-4o-mini")
	v.SetDefault("inference.base_url", "https://api.openai.com/v1")
	v.SetDefault("inference.timeout", 60*time.Second)
	v.SetDefault("inference.max_tokens", 1200)
	v.SetDefault("inference.temperature", 0.2)

	v.SetDefault("ingest.upload_dir", "")
	v.SetDefault("ingest.max_image_bytes", 10<<20)
	v.SetDefault("ingest.timezone", "UTC")
	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.batch_size", 50)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.issuer", "nutrilens")
	v.SetDefault("auth.default_user_id", "local-user")

	v.SetDefault("sources.staging.base_path", "./data/staging")
}

// Validate checks field constraints declared in validate tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
