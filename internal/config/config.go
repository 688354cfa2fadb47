package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	AWS        AWSConfig        `yaml:"aws"`
	APNs       APNsConfig       `yaml:"apns"`
	JWT        JWTConfig        `yaml:"jwt"`
	Log        LogConfig        `yaml:"log"`
	Questions  QuestionsConfig  `yaml:"questions"`
	Pairing    PairingConfig    `yaml:"pairing"`
	DevPartner DevPartnerConfig `yaml:"dev_partner"`
	Presence   PresenceConfig   `yaml:"presence"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig holds the optional Redis connection used for room fan-out.
// An empty Addr keeps broadcasting in-process.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AWSConfig holds S3 configuration for chat media uploads
type AWSConfig struct {
	Region    string `yaml:"region"`
	S3Bucket  string `yaml:"s3_bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`
}

// APNsConfig holds push notification credentials (token based auth)
type APNsConfig struct {
	KeyPath    string `yaml:"key_path"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// QuestionsConfig controls the daily question pool
type QuestionsConfig struct {
	Timezone        string        `yaml:"timezone"`
	Retention       time.Duration `yaml:"retention"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	DailyBatch      int           `yaml:"daily_batch"`
	AIEndpoint      string        `yaml:"ai_endpoint"`
	AIModel         string        `yaml:"ai_model"`
	AIAPIKey        string        `yaml:"ai_api_key"`
}

// PairingConfig controls pairing keys
type PairingConfig struct {
	KeyTTL time.Duration `yaml:"key_ttl"`
}

// DevPartnerConfig controls the scripted partner used in development
type DevPartnerConfig struct {
	Enabled    bool          `yaml:"enabled"`
	ReplyDelay time.Duration `yaml:"reply_delay"`
	Reply      string        `yaml:"reply"`
}

// PresenceConfig controls online/offline derivation
type PresenceConfig struct {
	Window time.Duration `yaml:"window"`
}

// Load reads configuration from a YAML file. A .env file next to the
// working directory is loaded first so CLOSEUS_* variables can override
// values from the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, applies environment overrides and defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"CLOSEUS_JWT_SECRET":   &c.JWT.Secret,
		"CLOSEUS_DATABASE_URL": &c.Database.URL,
		"CLOSEUS_REDIS_ADDR":   &c.Redis.Addr,
		"CLOSEUS_AI_API_KEY":   &c.Questions.AIAPIKey,
		"CLOSEUS_LOG_LEVEL":    &c.Log.Level,
		"CLOSEUS_S3_BUCKET":    &c.AWS.S3Bucket,
	}
	for key, dst := range overrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.JWT.AccessTTL == 0 {
		c.JWT.AccessTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTTL == 0 {
		c.JWT.RefreshTTL = 7 * 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Questions.Timezone == "" {
		c.Questions.Timezone = "Local"
	}
	if c.Questions.Retention == 0 {
		c.Questions.Retention = 48 * time.Hour
	}
	if c.Questions.RefreshInterval == 0 {
		c.Questions.RefreshInterval = 24 * time.Hour
	}
	if c.Questions.DailyBatch == 0 {
		c.Questions.DailyBatch = 10
	}
	if c.Pairing.KeyTTL == 0 {
		c.Pairing.KeyTTL = 24 * time.Hour
	}
	if c.DevPartner.ReplyDelay == 0 {
		c.DevPartner.ReplyDelay = 2 * time.Second
	}
	if c.DevPartner.Reply == "" {
		c.DevPartner.Reply = "Aww, I miss you too! ❤️"
	}
	if c.Presence.Window == 0 {
		c.Presence.Window = 5 * time.Minute
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
}

// Validate checks settings the server cannot start without
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if _, err := c.Questions.Location(); err != nil {
		return fmt.Errorf("invalid questions.timezone: %w", err)
	}
	return nil
}

// Location resolves the calendar used to decide what "today" is
func (q QuestionsConfig) Location() (*time.Location, error) {
	return time.LoadLocation(q.Timezone)
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dsnValue(c.Host), c.Port, dsnValue(c.User), dsnValue(c.Password), dsnValue(c.DBName), dsnValue(c.SSLMode))
}

// dsnValue quotes a keyword/value connection string value
func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// URLString returns the connection string in URL form, as required by the
// migration driver.
func (c *DatabaseConfig) URLString() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}
