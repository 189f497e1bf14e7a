package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Secret     string        `mapstructure:"secret"`

	Log          LogConfig          `mapstructure:"log"`
	Room         RoomConfig         `mapstructure:"room"`
	Chat         ChatConfig         `mapstructure:"chat"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Backpressure BackpressureConfig `mapstructure:"backpressure"`
	Auth         AuthConfig         `mapstructure:"auth"`
	CORS         CORSConfig         `mapstructure:"cors"`
	ICEServers   []ICEServer        `mapstructure:"ice_servers"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type RoomConfig struct {
	Capacity      int    `mapstructure:"capacity"`
	DefaultAvatar string `mapstructure:"default_avatar"`
}

type ChatConfig struct {
	MaxLength int `mapstructure:"max_length"`
}

type RateLimitConfig struct {
	Messages int           `mapstructure:"messages"`
	Interval time.Duration `mapstructure:"interval"`
}

// BackpressureConfig: Strikes == 1 kicks a slow connection on its first
// overflow.
type BackpressureConfig struct {
	Strikes int `mapstructure:"strikes"`
}

type AuthConfig struct {
	Provider string        `mapstructure:"provider"`
	Secret   string        `mapstructure:"secret"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default). Every key can
// be overridden from the environment as HUDDLE_<KEY>, dots replaced by
// underscores.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("HUDDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("room.capacity", 50)
	v.SetDefault("room.default_avatar", "/static/images/default-profile.png")
	v.SetDefault("chat.max_length", 2000)
	v.SetDefault("rate_limit.messages", 50)
	v.SetDefault("rate_limit.interval", "1s")
	v.SetDefault("backpressure.strikes", 1)
	v.SetDefault("auth.provider", "jwt")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.endpoint", "")
	v.SetDefault("auth.timeout", "5s")
	v.SetDefault("cors.allowed_origins", []string{"*"})

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("auth", cfg.Auth.Provider).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Mode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("mode %q: want debug, release or test", c.Mode))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.PingPeriod <= 0 || c.PongWait <= c.PingPeriod {
		errs = append(errs, errors.New("ping_period must be positive and shorter than pong_wait"))
	}
	if c.Room.Capacity <= 0 {
		errs = append(errs, errors.New("room.capacity must be positive"))
	}
	if c.Secret == "" {
		errs = append(errs, errors.New("secret is required for the session cookie store"))
	}
	switch c.Auth.Provider {
	case "jwt":
		if c.Auth.Secret == "" {
			errs = append(errs, errors.New("auth.secret is required for the jwt provider"))
		}
	case "http":
		if c.Auth.Endpoint == "" || c.Auth.Secret == "" {
			errs = append(errs, errors.New("auth.endpoint and auth.secret are required for the http provider"))
		}
	case "insecure":
		if c.Mode == "release" {
			errs = append(errs, errors.New("auth.provider insecure is not allowed in release mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.provider %q unknown", c.Auth.Provider))
	}
	for i, s := range c.ICEServers {
		if len(s.URLs) == 0 {
			errs = append(errs, fmt.Errorf("ice_servers[%d] has no urls", i))
		}
	}
	return errors.Join(errs...)
}

// WebRTCICEServers converts the configured servers for RTCPeerConnection
// clients.
func (c *Config) WebRTCICEServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		srv := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			srv.Username = s.Username
			srv.Credential = s.Credential
		}
		out = append(out, srv)
	}
	return out
}
