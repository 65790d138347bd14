package config

import "time"

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

type HTTPConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TrustProxy      bool          `mapstructure:"trust_proxy"`
	SecureCookies   bool          `mapstructure:"secure_cookies"`
}

type GRPCConfig struct {
	EnableReflection      bool `mapstructure:"enable_reflection"`
	MaxReceiveMessageSize int  `mapstructure:"max_receive_message_size"`
	MaxSendMessageSize    int  `mapstructure:"max_send_message_size"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	SettingsTTL time.Duration `mapstructure:"settings_ttl"`
}

type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	RememberMeTTL  time.Duration `mapstructure:"remember_me_ttl"`
	ChallengeTTL   time.Duration `mapstructure:"challenge_ttl"`
	StoreTimeout   time.Duration `mapstructure:"store_timeout"`
	LocalUserID    string        `mapstructure:"local_user_id"`
}

type LockoutConfig struct {
	Window              time.Duration `mapstructure:"window"`
	IdentifierThreshold int           `mapstructure:"identifier_threshold"`
	OriginThreshold     int           `mapstructure:"origin_threshold"`
	AttemptRetention    time.Duration `mapstructure:"attempt_retention"`
}

type OTPConfig struct {
	Length         int           `mapstructure:"length"`
	TTL            time.Duration `mapstructure:"ttl"`
	ResendInterval time.Duration `mapstructure:"resend_interval"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
}

type RecoveryConfig struct {
	BatchSize  int `mapstructure:"batch_size"`
	CodeLength int `mapstructure:"code_length"`
}

type TrustedDeviceConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	CookieName string        `mapstructure:"cookie_name"`
}

type PasswordConfig struct {
	Memory      uint32 `mapstructure:"memory"`
	Time        uint32 `mapstructure:"time"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
	Workers     int    `mapstructure:"workers"`
}

type EmailConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	EventsTopic   string   `mapstructure:"events_topic"`
	SettingsTopic string   `mapstructure:"settings_topic"`
	GroupID       string   `mapstructure:"group_id"`
	BufferSize    int      `mapstructure:"buffer_size"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type CleanupConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type AppConfig struct {
	Server        ServerConfig        `mapstructure:"server"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	GRPC          GRPCConfig          `mapstructure:"grpc"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Lockout       LockoutConfig       `mapstructure:"lockout"`
	OTP           OTPConfig           `mapstructure:"otp"`
	Recovery      RecoveryConfig      `mapstructure:"recovery"`
	TrustedDevice TrustedDeviceConfig `mapstructure:"trusted_device"`
	Password      PasswordConfig      `mapstructure:"password"`
	Email         EmailConfig         `mapstructure:"email"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Cleanup       CleanupConfig       `mapstructure:"cleanup"`
}
