package authd_config

import (
	"time"

	"github.com/soslanov/authd/internal/mail"
	"github.com/soslanov/authd/internal/obs"
	pg "github.com/soslanov/authd/internal/repository/postgres"
	rd "github.com/soslanov/authd/internal/repository/redis"
	"github.com/soslanov/authd/internal/services/authd/auth"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	CookieSecure    bool          `mapstructure:"cookie_secure"`
}

type Token struct {
	AccessSecret  string        `mapstructure:"access_secret"`
	RefreshSecret string        `mapstructure:"refresh_secret"`
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	Issuer        string        `mapstructure:"issuer"`
}

type Outbox struct {
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	WaitTime      time.Duration `mapstructure:"wait_time"`
	InProgressTTL time.Duration `mapstructure:"in_progress_ttl"`

	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBase     time.Duration `mapstructure:"retry_base"`
	RetryMax      time.Duration `mapstructure:"retry_max"`
}

type KafkaOut struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Config struct {
	App      App         `mapstructure:"app"`
	Server   Server      `mapstructure:"server"`
	DB       pg.Config   `mapstructure:"db"`
	Redis    rd.Config   `mapstructure:"redis"`
	Token    Token       `mapstructure:"token"`
	Auth     auth.Config `mapstructure:"auth"`
	Outbox   Outbox      `mapstructure:"outbox"`
	KafkaOut KafkaOut    `mapstructure:"kafka_out"`
	SMTP     mail.Config `mapstructure:"smtp"`
	Log      Log         `mapstructure:"log"`
}

func (c *Config) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    c.App.Name,
		Env:    c.App.Env,
		Ver:    c.App.Version,
	}
}
