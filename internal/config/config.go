package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "HUDDLE"

type Config struct {
	Mode       string            `mapstructure:"mode"`
	Port       int               `mapstructure:"port"`
	LogLevel   string            `mapstructure:"log_level"`
	SpecsDir   string            `mapstructure:"specs_dir"`
	RPC        RPCConfig         `mapstructure:"rpc"`
	Signal     SignalConfig      `mapstructure:"signal"`
	IceServers []IceServerConfig `mapstructure:"ice_servers"`
	Callback   CallbackConfig    `mapstructure:"callback"`
}

// RPCConfig holds the heartbeat defaults members may override in their spec.
type RPCConfig struct {
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	ReconnectTimeout time.Duration `mapstructure:"reconnect_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
}

type SignalConfig struct {
	SendBuffer   int           `mapstructure:"send_buffer"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	AuthLimit    int           `mapstructure:"auth_limit"`
	AuthInterval time.Duration `mapstructure:"auth_interval"`
}

type IceServerConfig struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type CallbackConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MQTTClientID string        `mapstructure:"mqtt_client_id"`
}

func setServerDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("specs_dir", "./specs")
	v.SetDefault("rpc.idle_timeout", "10s")
	v.SetDefault("rpc.reconnect_timeout", "10s")
	v.SetDefault("rpc.ping_interval", "3s")
	v.SetDefault("signal.send_buffer", 64)
	v.SetDefault("signal.read_limit", 1<<20)
	v.SetDefault("signal.write_timeout", "5s")
	v.SetDefault("signal.auth_limit", 5)
	v.SetDefault("signal.auth_interval", "10s")
	v.SetDefault("callback.timeout", "5s")
	v.SetDefault("callback.mqtt_client_id", "huddle-server")
}

// Load reads .env, then config/config.<CONFIG_ENV>.yaml, then HUDDLE_*
// variables.
func Load() (*Config, error) {
	v, err := newViper("config")
	if err != nil {
		return nil, err
	}
	setServerDefaults(v)
	readFile(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("specs", cfg.SpecsDir).Msg("config loaded")
	return &cfg, nil
}

func newViper(name string) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	v.SetConfigName(fmt.Sprintf("%s.%s", name, env))
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(keyReplacer)
	v.AutomaticEnv()
	return v, nil
}

func readFile(v *viper.Viper) {
	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Err(err).Msg("config file not found, using defaults")
		return
	}
	log.Info().Str("module", "config").Str("file", v.ConfigFileUsed()).Msg("loaded config file")
}

// Level parses the configured level, falling back to info.
func Level(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
