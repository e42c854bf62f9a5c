package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverS3     = "s3"
	DriverMinio  = "minio"
	DriverMemory = "memory"
)

type Config struct {
	Server ServerConfig
	S3     S3Config
	App    AppConfig
}

type ServerConfig struct {
	Host string
	Port string
}

// S3Config selects the object store and its credentials. With UseIAMRole the
// SDK default chain is used and the static keys are ignored.
type S3Config struct {
	Driver          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseIAMRole      bool
	UseSSL          bool
	UsePathStyle    bool
	BucketName      string
	Region          string
}

type AppConfig struct {
	Env           string
	LogLevel      string
	Version       string
	MaxUploadSize int64
	ThumbnailSize int
	CORSOrigins   []string
}

func (c S3Config) StaticCredentials() bool {
	return !c.UseIAMRole && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "8000")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_VERSION", "1.0.0")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORAGE_DRIVER", DriverS3)
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_BUCKET_NAME", "")
	v.SetDefault("S3_USE_SSL", true)
	v.SetDefault("S3_USE_PATH_STYLE", false)
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("AWS_ACCESS_KEY_ID", "")
	v.SetDefault("AWS_SECRET_ACCESS_KEY", "")
	v.SetDefault("USE_IAM_ROLE", false)
	v.SetDefault("APP_MAX_UPLOAD_SIZE", 10*1024*1024) // 10MB
	v.SetDefault("APP_THUMBNAIL_SIZE", 300)
	v.SetDefault("APP_CORS_ORIGINS", "*")

	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetString("SERVER_PORT"),
		},
		S3: S3Config{
			Driver:          strings.ToLower(v.GetString("STORAGE_DRIVER")),
			Endpoint:        v.GetString("S3_ENDPOINT"),
			AccessKeyID:     v.GetString("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("AWS_SECRET_ACCESS_KEY"),
			UseIAMRole:      v.GetBool("USE_IAM_ROLE"),
			UseSSL:          v.GetBool("S3_USE_SSL"),
			UsePathStyle:    v.GetBool("S3_USE_PATH_STYLE"),
			BucketName:      v.GetString("S3_BUCKET_NAME"),
			Region:          v.GetString("AWS_REGION"),
		},
		App: AppConfig{
			Env:           v.GetString("APP_ENV"),
			LogLevel:      v.GetString("LOG_LEVEL"),
			Version:       v.GetString("APP_VERSION"),
			MaxUploadSize: v.GetInt64("APP_MAX_UPLOAD_SIZE"),
			ThumbnailSize: v.GetInt("APP_THUMBNAIL_SIZE"),
			CORSOrigins:   splitList(v.GetString("APP_CORS_ORIGINS")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.S3.Driver {
	case DriverS3, DriverMinio:
		if c.S3.BucketName == "" {
			errs = append(errs, errors.New("S3_BUCKET_NAME is required"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.S3.Driver))
	}
	if c.S3.Driver == DriverMinio && c.S3.Endpoint == "" {
		errs = append(errs, errors.New("S3_ENDPOINT is required for the minio driver"))
	}
	if c.App.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("APP_MAX_UPLOAD_SIZE must be positive"))
	}
	if c.App.ThumbnailSize <= 0 {
		errs = append(errs, errors.New("APP_THUMBNAIL_SIZE must be positive"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
