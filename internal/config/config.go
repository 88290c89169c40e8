package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DatabaseURL string         `mapstructure:"database_url"`
	ServerPort  string         `mapstructure:"server_port"`
	JWTSecret   string         `mapstructure:"jwt_secret"`
	LogLevel    string         `mapstructure:"log_level"`
	// LogFile, when set, receives a rotated JSON copy of the log.
	LogFile     string         `mapstructure:"log_file"`
	Email       EmailConfig    `mapstructure:"email"`
	Invite      InviteConfig   `mapstructure:"invite"`
	Realtime    RealtimeConfig `mapstructure:"realtime"`
}

type EmailConfig struct {
	From     string `mapstructure:"from"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type InviteConfig struct {
	TokenSecret string        `mapstructure:"token_secret"`
	TTL         time.Duration `mapstructure:"ttl"`
	BatchSize   int           `mapstructure:"batch_size"`
	BatchDelay  time.Duration `mapstructure:"batch_delay"`
	// ClaimURLTemplate receives the raw token and the claimed status.
	ClaimURLTemplate string `mapstructure:"claim_url_template"`
	// ClaimRate is the sustained claim requests per second; ClaimBurst the bucket size.
	ClaimRate  float64 `mapstructure:"claim_rate"`
	ClaimBurst int     `mapstructure:"claim_burst"`
}

type RealtimeConfig struct {
	Channel string `mapstructure:"channel"`
}

// Load reads config.yaml from the current directory or ./config.
func Load() (*Config, error) {
	v := viper.New()
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	return read(v)
}

// LoadFrom reads the configuration from an explicit file path.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return read(v)
}

func read(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("ALUMNI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{
		"database_url", "server_port", "jwt_secret", "log_level", "log_file",
		"email.from", "email.smtp_host", "email.smtp_port", "email.username", "email.password",
		"invite.token_secret", "invite.ttl", "invite.batch_size", "invite.batch_delay", "invite.claim_url_template", "invite.claim_rate", "invite.claim_burst",
		"realtime.channel",
	} {
		// Unmarshal only sees env values for keys viper already knows about.
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ServerPort == "" {
		c.ServerPort = "8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.Invite.TTL == 0 {
		c.Invite.TTL = 72 * time.Hour
	}
	if c.Invite.BatchSize <= 0 {
		c.Invite.BatchSize = 2
	}
	if c.Invite.BatchDelay == 0 {
		c.Invite.BatchDelay = time.Second
	}
	if c.Invite.ClaimURLTemplate == "" {
		c.Invite.ClaimURLTemplate = "https://alumni.example.org/rsvp?token=%s&status=%s"
	}
	if c.Invite.ClaimRate <= 0 {
		c.Invite.ClaimRate = 10
	}
	if c.Invite.ClaimBurst <= 0 {
		c.Invite.ClaimBurst = 20
	}
	if c.Realtime.Channel == "" {
		c.Realtime.Channel = "attendance_changes"
	}
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("jwt_secret must be set")
	}
	if c.Invite.TokenSecret == "" {
		return errors.New("invite.token_secret must be set")
	}
	return nil
}
