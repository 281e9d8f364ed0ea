package email_notifier_config

import (
	"github.com/soslanov/authd/internal/mail"
	"github.com/soslanov/authd/internal/obs"
	pg "github.com/soslanov/authd/internal/repository/postgres"
)

type KafkaIn struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	GroupID       string   `mapstructure:"group_id"`
	FromBeginning bool     `mapstructure:"from_beginning"`
}

type Server struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Config struct {
	App    App         `mapstructure:"app"`
	DB     pg.Config   `mapstructure:"db"`
	In     KafkaIn     `mapstructure:"kafka_in"`
	SMTP   mail.Config `mapstructure:"smtp"`
	Server Server      `mapstructure:"server"`
	Log    Log         `mapstructure:"log"`
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
