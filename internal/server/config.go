package server

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/elskow/scribe/internal/config"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

const defaultConfigPath = "./config/server"

func LoadConfig() (*config.AppConfig, error) {
	return LoadConfigFrom(defaultConfigPath)
}

// LoadConfigFrom reads config.toml from dir, applies SCRIBE_* environment
// overrides and the per-environment grpc section.
func LoadConfigFrom(dir string) (*config.AppConfig, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = EnvDevelopment
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix("SCRIBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config config.AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Load environment-specific configurations
	if envSettings := v.GetStringMap(fmt.Sprintf("grpc.%s", env)); len(envSettings) > 0 {
		if err := v.UnmarshalKey(fmt.Sprintf("grpc.%s", env), &config.GRPC); err != nil {
			return nil, fmt.Errorf("error unmarshaling env config: %w", err)
		}
	}

	if config.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret must be set")
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "9090")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("grpc.max_receive_message_size", 4<<20)
	v.SetDefault("grpc.max_send_message_size", 4<<20)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.settings_ttl", time.Minute)

	v.SetDefault("auth.issuer", "scribe")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.session_ttl", 24*time.Hour)
	v.SetDefault("auth.remember_me_ttl", 30*24*time.Hour)
	v.SetDefault("auth.challenge_ttl", 5*time.Minute)
	v.SetDefault("auth.store_timeout", 3*time.Second)

	v.SetDefault("lockout.window", 15*time.Minute)
	v.SetDefault("lockout.identifier_threshold", 5)
	v.SetDefault("lockout.origin_threshold", 20)
	v.SetDefault("lockout.attempt_retention", 7*24*time.Hour)

	v.SetDefault("otp.length", 6)
	v.SetDefault("otp.ttl", 10*time.Minute)
	v.SetDefault("otp.resend_interval", time.Minute)
	v.SetDefault("otp.max_attempts", 5)

	v.SetDefault("recovery.batch_size", 10)
	v.SetDefault("recovery.code_length", 10)

	v.SetDefault("trusted_device.ttl", 30*24*time.Hour)
	v.SetDefault("trusted_device.cookie_name", "scribe_device")

	v.SetDefault("password.memory", 64*1024)
	v.SetDefault("password.time", 3)
	v.SetDefault("password.parallelism", 2)
	v.SetDefault("password.salt_length", 16)
	v.SetDefault("password.key_length", 32)

	v.SetDefault("email.port", 587)
	v.SetDefault("email.timeout", 5*time.Second)

	v.SetDefault("kafka.events_topic", "scribe.auth.events")
	v.SetDefault("kafka.settings_topic", "scribe.settings.updated")
	v.SetDefault("kafka.group_id", "scribe-auth")
	v.SetDefault("kafka.buffer_size", 256)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("cleanup.interval", 10*time.Minute)
}
