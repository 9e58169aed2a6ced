package config

import (
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/durkcogs/linkbot/internal/config/hook"
)

type Config struct {
	Discord struct {
		Auth string
	}

	Linker struct {
		Interval time.Duration
	}

	Guilds struct {
		Path string
	}

	Logging struct {
		Level zapcore.Level
	}
}

func Read() (*Config, error) {
	v := viper.New()
	configureEnv(v)
	configureLocation(v)
	configureDefaults(v)
	return readUnmarshalConfig(v)
}

func configureEnv(v *viper.Viper) {
	v.AutomaticEnv()
	v.SetEnvPrefix("conf")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
}

func configureLocation(v *viper.Viper) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
}

func configureDefaults(v *viper.Viper) {
	v.SetDefault("linker.interval", 5*time.Minute)
	v.SetDefault("guilds.path", "guilds.yaml")
	v.SetDefault("logging.level", "info")
}

func readUnmarshalConfig(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	c := &Config{}
	if err := v.Unmarshal(c, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		hook.Level(), mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, err
	}
	return c, nil
}
