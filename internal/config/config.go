package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MaxHistoryLimit is the most entries one history request may return
const MaxHistoryLimit = 200

// Config is the full runtime configuration of the service
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Detection DetectionConfig `mapstructure:"detection"`
	Alert     AlertConfig     `mapstructure:"alert"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Mode      ModeConfig      `mapstructure:"mode"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Camera    CameraConfig    `mapstructure:"camera"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Email     EmailConfig     `mapstructure:"email"`
	WhatsApp  WhatsAppConfig  `mapstructure:"whatsapp"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// Mode selects the log encoding: "debug" or "release"
	Mode  string `mapstructure:"mode"`
	Debug bool   `mapstructure:"debug"`
}

type DetectionConfig struct {
	// Backend is one of "http", "grpc" or "none"
	Backend             string        `mapstructure:"backend"`
	Endpoint            string        `mapstructure:"endpoint"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

type AlertConfig struct {
	CooldownSeconds int           `mapstructure:"cooldown_seconds"`
	Workers         int           `mapstructure:"workers"`
	QueueSize       int           `mapstructure:"queue_size"`
	SendTimeout     time.Duration `mapstructure:"send_timeout"`
}

// Cooldown returns the minimum spacing between two accepted alerts
func (a AlertConfig) Cooldown() time.Duration {
	return time.Duration(a.CooldownSeconds) * time.Second
}

type LedgerConfig struct {
	Recent int `mapstructure:"recent"`
	Retain int `mapstructure:"retain"`
}

type ModeConfig struct {
	// Backend is one of "file", "sqlite" or "redis"
	Backend  string `mapstructure:"backend"`
	File     string `mapstructure:"file"`
	RedisKey string `mapstructure:"redis_key"`
}

type StorageConfig struct {
	UploadDir string `mapstructure:"upload_dir"`
	// DatabasePath enables alert history persistence when non-empty
	DatabasePath string `mapstructure:"database_path"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CameraConfig struct {
	Device string `mapstructure:"device"`
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
	FPS    int    `mapstructure:"fps"`
}

type UploadConfig struct {
	MaxSize    int64    `mapstructure:"max_size"`
	Extensions []string `mapstructure:"extensions"`
}

type EmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	To       string `mapstructure:"to"`
}

type WhatsAppConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
	To         string `mapstructure:"to"`
	BaseURL    string `mapstructure:"base_url"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	BaseURL  string `mapstructure:"base_url"`
}

type AuthConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTExpiry time.Duration `mapstructure:"jwt_expiry"`
}

// legacyEnv maps config keys to the environment variable names the
// deployment scripts already export.
var legacyEnv = map[string]string{
	"server.port":                    "PORT",
	"detection.confidence_threshold": "CONFIDENCE_THRESHOLD",
	"alert.cooldown_seconds":         "ALERT_COOLDOWN",
	"email.user":                     "EMAIL_USER",
	"email.password":                 "EMAIL_PASS",
	"email.to":                       "ALERT_TO",
	"whatsapp.account_sid":           "TWILIO_ACCOUNT_SID",
	"whatsapp.auth_token":            "TWILIO_AUTH_TOKEN",
	"whatsapp.from":                  "TWILIO_PHONE",
	"whatsapp.to":                    "ALERT_PHONE",
	"telegram.bot_token":             "TELEGRAM_BOT_TOKEN",
	"telegram.chat_id":               "TELEGRAM_CHAT_ID",
	"auth.enabled":                   "AUTH_ENABLED",
	"auth.username":                  "AUTH_USERNAME",
	"auth.password":                  "AUTH_PASSWORD",
	"auth.jwt_secret":                "JWT_SECRET",
	"auth.jwt_expiry":                "JWT_EXPIRY",
}

// Load reads configuration from an optional YAML file, then applies
// environment overrides. An empty path skips the file.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

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
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 9000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.debug", false)

	v.SetDefault("detection.backend", "http")
	v.SetDefault("detection.endpoint", "http://localhost:8081")
	v.SetDefault("detection.confidence_threshold", 0.2)
	v.SetDefault("detection.timeout", 15*time.Second)

	v.SetDefault("alert.cooldown_seconds", 120)
	v.SetDefault("alert.workers", 2)
	v.SetDefault("alert.queue_size", 16)
	v.SetDefault("alert.send_timeout", 30*time.Second)

	v.SetDefault("ledger.recent", 20)
	v.SetDefault("ledger.retain", 1000)

	v.SetDefault("mode.backend", "file")
	v.SetDefault("mode.file", "shop_mode.json")
	v.SetDefault("mode.redis_key", "shopwatch:shop_mode")

	v.SetDefault("storage.upload_dir", "uploads")
	v.SetDefault("storage.database_path", "shopwatch.db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("camera.device", "/dev/video0")
	v.SetDefault("camera.width", 640)
	v.SetDefault("camera.height", 480)
	v.SetDefault("camera.fps", 30)

	v.SetDefault("upload.max_size", 10*1024*1024)
	v.SetDefault("upload.extensions", []string{"jpg", "jpeg", "png"})

	v.SetDefault("email.host", "smtp.gmail.com")
	v.SetDefault("email.port", 587)
	v.SetDefault("email.user", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.to", "")

	v.SetDefault("whatsapp.account_sid", "")
	v.SetDefault("whatsapp.auth_token", "")
	v.SetDefault("whatsapp.from", "")
	v.SetDefault("whatsapp.to", "")
	v.SetDefault("whatsapp.base_url", "https://api.twilio.com")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.base_url", "https://api.telegram.org")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.username", "admin")
	v.SetDefault("auth.password", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_expiry", 24*time.Hour)
}

// Validate checks values that would otherwise fail deep inside the pipeline
func (c *Config) Validate() error {
	if c.Detection.ConfidenceThreshold < 0 || c.Detection.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be within [0,1], got %v", c.Detection.ConfidenceThreshold)
	}
	if c.Alert.CooldownSeconds < 0 {
		return fmt.Errorf("alert cooldown cannot be negative")
	}
	if c.Alert.Workers <= 0 {
		return fmt.Errorf("alert workers must be positive")
	}
	if c.Ledger.Recent <= 0 {
		return fmt.Errorf("ledger recent window must be positive")
	}
	if c.Ledger.Retain < 0 {
		return fmt.Errorf("ledger retention cannot be negative")
	}
	// 0 keeps everything in memory
	if c.Ledger.Retain > 0 && c.Ledger.Retain < MaxHistoryLimit {
		return fmt.Errorf("ledger retention must be 0 or at least %d, got %d", MaxHistoryLimit, c.Ledger.Retain)
	}
	switch c.Detection.Backend {
	case "http", "grpc", "none":
	default:
		return fmt.Errorf("unknown detection backend %q", c.Detection.Backend)
	}
	switch c.Mode.Backend {
	case "file", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown mode backend %q", c.Mode.Backend)
	}
	if c.Mode.Backend == "sqlite" && c.Storage.DatabasePath == "" {
		return fmt.Errorf("mode backend sqlite requires storage.database_path")
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("camera resolution must be positive")
	}
	return nil
}

// Addr returns the listen address for the HTTP server
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
