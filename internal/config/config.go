// Package config loads service configuration from an optional config.yaml
// plus environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Influx  InfluxConfig  `mapstructure:"influx"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Devices DevicesConfig `mapstructure:"devices"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// MQTTConfig holds the broker connection settings. An empty Host disables
// the subscriber.
type MQTTConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Topic    string `mapstructure:"topic"`
	TLS      bool   `mapstructure:"tls"`
	ClientID string `mapstructure:"client_id"`
}

// InfluxConfig holds the time-series store settings. Persistence is
// optional: when any required field is empty the sink runs disabled.
type InfluxConfig struct {
	URL         string `mapstructure:"url"`
	Token       string `mapstructure:"token"`
	Org         string `mapstructure:"org"`
	Bucket      string `mapstructure:"bucket"`
	Measurement string `mapstructure:"measurement"`
}

// Enabled reports whether the sink has everything it needs to write.
func (c InfluxConfig) Enabled() bool {
	return c.URL != "" && c.Token != "" && c.Org != "" && c.Bucket != ""
}

// AuthConfig holds JWT settings and the allowed users.
type AuthConfig struct {
	JWTSecret    string       `mapstructure:"jwt_secret"`
	JWTExpireMin int          `mapstructure:"jwt_expire_min"`
	Users        []UserConfig `mapstructure:"users"`
}

// UserConfig is one allowed login.
type UserConfig struct {
	ID           int    `mapstructure:"id"`
	Email        string `mapstructure:"email"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

// DevicesConfig holds cache behavior settings.
type DevicesConfig struct {
	OnlineWindow time.Duration `mapstructure:"online_window"`
}

// Load reads config.yaml from path (a missing file is fine) and applies
// environment overrides (e.g. MQTT_HOST, INFLUX_URL, AUTH_JWT_SECRET).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every known key so AutomaticEnv can bind it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")

	v.SetDefault("mqtt.host", "")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", "th/#")
	v.SetDefault("mqtt.tls", false)
	v.SetDefault("mqtt.client_id", "")

	v.SetDefault("influx.url", "")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "")
	v.SetDefault("influx.bucket", "")
	v.SetDefault("influx.measurement", "power")

	v.SetDefault("auth.jwt_secret", "CHANGE_THIS_TO_LONG_RANDOM_STRING")
	v.SetDefault("auth.jwt_expire_min", 1440)

	v.SetDefault("devices.online_window", "60s")
}
