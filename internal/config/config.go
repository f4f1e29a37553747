package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	validator "github.com/asaskevich/govalidator"
	"github.com/spf13/viper"

	"adte.com/adte/creative-agent/internal/format"
	"adte.com/adte/creative-agent/internal/generate"
	"adte.com/adte/creative-agent/internal/storage"
)

const (
	StorageSQLite = "sqlite"
	StorageS3     = "s3"
)

type Config struct {
	HttpAddress   string
	JwtSecretKey  string
	ApiKey        string
	AgentURL      string
	PublicBaseURL string
	Log           *LogConfig
	MCP           *MCPConfig
	Storage       *StorageConfig
	Generation    *generate.Config
	Validation    *ValidationConfig
	RateLimit     *RateLimitConfig
}

type LogConfig struct {
	Level string
}

type MCPConfig struct {
	Transport string
	Enabled   bool
}

type StorageConfig struct {
	Backend   string
	SQLiteDSN string
	S3        storage.S3Config
}

type ValidationConfig struct {
	CheckRemoteMIME bool
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDRESS", ":8080")
	v.SetDefault("AGENT_URL", format.DefaultAgentURL)
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("STORAGE_BACKEND", StorageSQLite)
	v.SetDefault("SQLITE_DSN", "file:previews.db?_busy_timeout=5000")
	v.SetDefault("AWS_REGION", "auto")
	v.SetDefault("GENERATION_BASE_URL", generate.DefaultBaseURL)
	v.SetDefault("GENERATION_MODEL", generate.DefaultModel)
	v.SetDefault("GENERATION_IMAGE_MODEL", generate.DefaultImageModel)
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
}

// imageModel maps "none" to an empty model, which turns image generation off.
func imageModel(name string) string {
	if strings.EqualFold(strings.TrimSpace(name), "none") {
		return ""
	}
	return name
}

// NewConfig reads the configuration from the environment.
func NewConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return Load(v)
}

// Load builds a Config from v. Secrets may be supplied through a file named by
// the variable with a _FILE suffix.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HttpAddress:   v.GetString("HTTP_ADDRESS"),
		JwtSecretKey:  getFileValue(v, "JWT_SECRET_KEY"),
		ApiKey:        getFileValue(v, "ADCP_API_KEY"),
		AgentURL:      strings.TrimRight(v.GetString("AGENT_URL"), "/"),
		PublicBaseURL: strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		Log: &LogConfig{
			Level: strings.ToUpper(v.GetString("LOG_LEVEL")),
		},
		MCP: &MCPConfig{
			Transport: v.GetString("MCP_TRANSPORT"),
			Enabled:   v.GetString("MCP_TRANSPORT") != "",
		},
		Storage: &StorageConfig{
			Backend:   strings.ToLower(v.GetString("STORAGE_BACKEND")),
			SQLiteDSN: v.GetString("SQLITE_DSN"),
			S3: storage.S3Config{
				Endpoint:        v.GetString("AWS_ENDPOINT_URL_S3"),
				Region:          v.GetString("AWS_REGION"),
				AccessKeyID:     v.GetString("AWS_ACCESS_KEY_ID"),
				SecretAccessKey: getFileValue(v, "AWS_SECRET_ACCESS_KEY"),
				Bucket:          v.GetString("BUCKET_NAME"),
				PublicBaseURL:   v.GetString("S3_PUBLIC_BASE_URL"),
				PathStyle:       v.GetBool("S3_PATH_STYLE"),
			},
		},
		Generation: &generate.Config{
			APIKey:     getFileValue(v, "GENERATION_API_KEY"),
			BaseURL:    v.GetString("GENERATION_BASE_URL"),
			Model:      v.GetString("GENERATION_MODEL"),
			ImageModel: imageModel(v.GetString("GENERATION_IMAGE_MODEL")),
		},
		Validation: &ValidationConfig{
			CheckRemoteMIME: v.GetBool("VALIDATION_CHECK_REMOTE_MIME"),
		},
		RateLimit: &RateLimitConfig{
			RPS:   v.GetFloat64("RATE_LIMIT_RPS"),
			Burst: v.GetInt("RATE_LIMIT_BURST"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HttpAddress == "" {
		return fmt.Errorf("missing environment variable: HTTP_ADDRESS")
	}
	for _, u := range []struct{ name, value string }{
		{"AGENT_URL", c.AgentURL},
		{"PUBLIC_BASE_URL", c.PublicBaseURL},
	} {
		if !isHTTPURL(u.value) {
			return fmt.Errorf("invalid %s %q: must be an absolute http(s) URL", u.name, u.value)
		}
	}
	if c.Generation.BaseURL != "" && !isHTTPURL(c.Generation.BaseURL) {
		return fmt.Errorf("invalid GENERATION_BASE_URL %q: must be an absolute http(s) URL", c.Generation.BaseURL)
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	switch c.Storage.Backend {
	case StorageSQLite:
		if c.Storage.SQLiteDSN == "" {
			return fmt.Errorf("missing environment variable: SQLITE_DSN")
		}
	case StorageS3:
		return c.Storage.validateS3()
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q: use %s or %s", c.Storage.Backend, StorageSQLite, StorageS3)
	}
	return nil
}

func (s *StorageConfig) validateS3() error {
	var missing []string
	for _, v := range []struct{ name, value string }{
		{"AWS_ACCESS_KEY_ID", s.S3.AccessKeyID},
		{"AWS_SECRET_ACCESS_KEY", s.S3.SecretAccessKey},
		{"AWS_ENDPOINT_URL_S3", s.S3.Endpoint},
		{"BUCKET_NAME", s.S3.Bucket},
	} {
		if v.value == "" {
			missing = append(missing, v.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing environment variables for s3 storage: %s", strings.Join(missing, ", "))
	}
	if !isHTTPURL(s.S3.Endpoint) {
		return fmt.Errorf("invalid AWS_ENDPOINT_URL_S3 %q: must be an absolute http(s) URL", s.S3.Endpoint)
	}
	if s.S3.PublicBaseURL != "" && !isHTTPURL(s.S3.PublicBaseURL) {
		return fmt.Errorf("invalid S3_PUBLIC_BASE_URL %q: must be an absolute http(s) URL", s.S3.PublicBaseURL)
	}
	return nil
}

func isHTTPURL(s string) bool {
	if !validator.IsRequestURL(s) {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// getFileValue returns the value of key, or the trimmed contents of the file
// named by key_FILE when key itself is unset.
func getFileValue(v *viper.Viper, key string) string {
	if value := v.GetString(key); value != "" {
		return value
	}
	path := v.GetString(key + "_FILE")
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
