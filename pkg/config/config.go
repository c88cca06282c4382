package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"screencast/pkg/validation"

	"gopkg.in/yaml.v2"
)

// Profile is one encoding candidate, in preference order.
type Profile struct {
	MimeType           string `yaml:"mime_type"`
	VideoBitsPerSecond int    `yaml:"video_bits_per_second"`
	AudioBitsPerSecond int    `yaml:"audio_bits_per_second"`
}

type Range struct {
	Ideal int `yaml:"ideal"`
	Max   int `yaml:"max"`
}

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	// Events configures the WebSocket notification feed.
	Events struct {
		PingInterval time.Duration `yaml:"ping_interval"`
		PongTimeout  time.Duration `yaml:"pong_timeout"`
		SendBuffer   int           `yaml:"send_buffer"`
	} `yaml:"events"`

	Session struct {
		Timeslice      time.Duration `yaml:"timeslice"`
		GraceDelay     time.Duration `yaml:"grace_delay"`
		IdleThreshold  time.Duration `yaml:"idle_threshold"`
		PollInterval   time.Duration `yaml:"poll_interval"`
		PublishTimeout time.Duration `yaml:"publish_timeout"`
		Profiles       []Profile     `yaml:"profiles"`

		Constraints struct {
			Width      Range `yaml:"width"`
			Height     Range `yaml:"height"`
			FrameRate  Range `yaml:"frame_rate"`
			Audio      bool  `yaml:"audio"`
			SampleRate int   `yaml:"sample_rate"`
			Microphone bool  `yaml:"microphone"`
		} `yaml:"constraints"`
	} `yaml:"session"`

	Capture struct {
		// Platform is one of ffmpeg, webrtc or fake.
		Platform string `yaml:"platform"`

		FFmpeg struct {
			Path        string `yaml:"path"`
			InputFormat string `yaml:"input_format"`
			Display     string `yaml:"display"`
			AudioInput  string `yaml:"audio_input"`
		} `yaml:"ffmpeg"`

		WebRTC struct {
			ICEServers []struct {
				URLs       []string `yaml:"urls"`
				Username   string   `yaml:"username,omitempty"`
				Credential string   `yaml:"credential,omitempty"`
			} `yaml:"ice_servers"`
			PortRange struct {
				Min uint16 `yaml:"min"`
				Max uint16 `yaml:"max"`
			} `yaml:"port_range"`
			AnswerTimeout time.Duration `yaml:"answer_timeout"`
		} `yaml:"webrtc"`
	} `yaml:"capture"`

	Export struct {
		Enabled   bool   `yaml:"enabled"`
		Directory string `yaml:"directory"`
	} `yaml:"export"`

	Publisher struct {
		// Mode is local (in-process store) or http (remote store).
		Mode    string        `yaml:"mode"`
		URL     string        `yaml:"url"`
		Token   string        `yaml:"token"`
		Timeout time.Duration `yaml:"timeout"`

		Retry struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			InitialDelay time.Duration `yaml:"initial_delay"`
			MaxDelay     time.Duration `yaml:"max_delay"`
		} `yaml:"retry"`

		CircuitBreaker struct {
			MaxFailures  int           `yaml:"max_failures"`
			ResetTimeout time.Duration `yaml:"reset_timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"publisher"`

	Storage struct {
		// Driver is memory, redis or sqlite.
		Driver     string        `yaml:"driver"`
		SQLitePath string        `yaml:"sqlite_path"`
		CacheTTL   time.Duration `yaml:"cache_ttl"`
	} `yaml:"storage"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Auth struct {
		Enabled        bool          `yaml:"enabled"`
		JWTSecret      string        `yaml:"jwt_secret"`
		Issuer         string        `yaml:"issuer"`
		AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"`
		} `yaml:"http"`

		WebSocket struct {
			ConnectionsPerMinute int `yaml:"connections_per_minute"`
			MaxConcurrent        int `yaml:"max_concurrent_connections"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
}

var (
	capturePlatforms = []string{"ffmpeg", "webrtc", "fake"}
	publisherModes   = []string{"local", "http"}
	storageDrivers   = []string{"memory", "redis", "sqlite"}
)

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Events
	if c.Events.PingInterval <= 0 {
		return fmt.Errorf("events.ping_interval must be > 0")
	}
	if c.Events.PongTimeout <= c.Events.PingInterval {
		return fmt.Errorf("events.pong_timeout must be > events.ping_interval")
	}
	if c.Events.SendBuffer <= 0 {
		return fmt.Errorf("events.send_buffer must be > 0")
	}

	// Session
	if c.Session.Timeslice <= 0 {
		return fmt.Errorf("session.timeslice must be > 0")
	}
	if c.Session.GraceDelay < 0 {
		return fmt.Errorf("session.grace_delay must be >= 0")
	}
	if c.Session.IdleThreshold <= 0 {
		return fmt.Errorf("session.idle_threshold must be > 0")
	}
	if c.Session.PollInterval <= 0 {
		return fmt.Errorf("session.poll_interval must be > 0")
	}
	if c.Session.PublishTimeout <= 0 {
		return fmt.Errorf("session.publish_timeout must be > 0")
	}
	if len(c.Session.Profiles) == 0 {
		return fmt.Errorf("session.profiles must not be empty")
	}
	for i, p := range c.Session.Profiles {
		if p.MimeType == "" {
			return fmt.Errorf("session.profiles[%d].mime_type must not be empty", i)
		}
		if p.VideoBitsPerSecond < 0 || p.AudioBitsPerSecond < 0 {
			return fmt.Errorf("session.profiles[%d] bitrates must be >= 0", i)
		}
	}

	// Capture
	if !oneOf(c.Capture.Platform, capturePlatforms) {
		return fmt.Errorf("capture.platform must be one of %s", strings.Join(capturePlatforms, ", "))
	}
	if c.Capture.Platform == "ffmpeg" && c.Capture.FFmpeg.Path == "" {
		return fmt.Errorf("capture.ffmpeg.path must not be empty when capture.platform=ffmpeg")
	}
	if c.Capture.WebRTC.PortRange.Min > 0 || c.Capture.WebRTC.PortRange.Max > 0 {
		if c.Capture.WebRTC.PortRange.Min == 0 || c.Capture.WebRTC.PortRange.Max == 0 {
			return fmt.Errorf("capture.webrtc.port_range.min and max must both be set when one is set")
		}
		if c.Capture.WebRTC.PortRange.Min >= c.Capture.WebRTC.PortRange.Max {
			return fmt.Errorf("capture.webrtc.port_range.min must be < max")
		}
	}

	// Export
	if c.Export.Enabled && c.Export.Directory == "" {
		return fmt.Errorf("export.directory must not be empty when export.enabled=true")
	}

	// Publisher
	if !oneOf(c.Publisher.Mode, publisherModes) {
		return fmt.Errorf("publisher.mode must be one of %s", strings.Join(publisherModes, ", "))
	}
	if c.Publisher.Mode == "http" {
		if err := validation.ValidateURL(c.Publisher.URL); err != nil {
			return fmt.Errorf("publisher.url: %w", err)
		}
		if c.Publisher.Timeout <= 0 {
			return fmt.Errorf("publisher.timeout must be > 0")
		}
		if c.Publisher.Retry.MaxAttempts <= 0 {
			return fmt.Errorf("publisher.retry.max_attempts must be > 0")
		}
		if c.Publisher.CircuitBreaker.MaxFailures <= 0 {
			return fmt.Errorf("publisher.circuit_breaker.max_failures must be > 0")
		}
	}

	// Storage
	if !oneOf(c.Storage.Driver, storageDrivers) {
		return fmt.Errorf("storage.driver must be one of %s", strings.Join(storageDrivers, ", "))
	}
	if c.Storage.Driver == "sqlite" && c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path must not be empty when storage.driver=sqlite")
	}
	if c.Storage.CacheTTL < 0 {
		return fmt.Errorf("storage.cache_ttl must be >= 0")
	}

	// Redis
	if c.Redis.Enabled || c.Storage.Driver == "redis" {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis is used")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis is used")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Auth
	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret must not be empty when auth.enabled=true")
		}
		if c.Auth.AccessTokenTTL <= 0 {
			return fmt.Errorf("auth.access_token_ttl must be > 0")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.ConnectionsPerMinute <= 0 {
			return fmt.Errorf("rate_limiting.websocket.connections_per_minute must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_concurrent_connections must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file %s: %w", configPath, err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 60 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Events.PingInterval = 30 * time.Second
	cfg.Events.PongTimeout = 60 * time.Second
	cfg.Events.SendBuffer = 64

	cfg.Session.Timeslice = 5 * time.Second
	cfg.Session.GraceDelay = 2 * time.Second
	cfg.Session.IdleThreshold = 10 * time.Second
	cfg.Session.PollInterval = 5 * time.Second
	cfg.Session.PublishTimeout = 30 * time.Second
	for _, mime := range []string{
		"video/mp4;codecs=h264,aac",
		"video/mp4",
		"video/webm;codecs=vp9,opus",
		"video/webm;codecs=vp8,opus",
		"video/webm;codecs=h264,opus",
		"video/webm",
	} {
		cfg.Session.Profiles = append(cfg.Session.Profiles, Profile{
			MimeType:           mime,
			VideoBitsPerSecond: 1_500_000,
			AudioBitsPerSecond: 96_000,
		})
	}
	cfg.Session.Constraints.Width = Range{Ideal: 1280, Max: 1920}
	cfg.Session.Constraints.Height = Range{Ideal: 720, Max: 1080}
	cfg.Session.Constraints.FrameRate = Range{Ideal: 24, Max: 30}
	cfg.Session.Constraints.Audio = true
	cfg.Session.Constraints.SampleRate = 44100

	cfg.Capture.Platform = "ffmpeg"
	cfg.Capture.FFmpeg.Path = "ffmpeg"
	cfg.Capture.WebRTC.AnswerTimeout = 10 * time.Second

	cfg.Export.Enabled = true
	cfg.Export.Directory = "recordings"

	cfg.Publisher.Mode = "local"
	cfg.Publisher.Timeout = 10 * time.Second
	cfg.Publisher.Retry.MaxAttempts = 3
	cfg.Publisher.Retry.InitialDelay = 200 * time.Millisecond
	cfg.Publisher.Retry.MaxDelay = 2 * time.Second
	cfg.Publisher.CircuitBreaker.MaxFailures = 5
	cfg.Publisher.CircuitBreaker.ResetTimeout = 30 * time.Second

	cfg.Storage.Driver = "memory"
	cfg.Storage.SQLitePath = "data/recordings.db"
	cfg.Storage.CacheTTL = 30 * time.Second

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Auth.Enabled = false
	cfg.Auth.Issuer = "screencast"
	cfg.Auth.AccessTokenTTL = 15 * time.Minute
	cfg.Auth.AllowedOrigins = []string{"*"}

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 60
	cfg.RateLimiting.WebSocket.MaxConcurrent = 0

	return cfg
}

func (c *Config) applyEnvOverrides() error {
	if addr := os.Getenv("SCREENCAST_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("SCREENCAST_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if platform := os.Getenv("SCREENCAST_CAPTURE_PLATFORM"); platform != "" {
		c.Capture.Platform = platform
	}
	if display := os.Getenv("SCREENCAST_FFMPEG_DISPLAY"); display != "" {
		c.Capture.FFmpeg.Display = display
	}
	if dir := os.Getenv("SCREENCAST_EXPORT_DIRECTORY"); dir != "" {
		c.Export.Directory = dir
	}
	if driver := os.Getenv("SCREENCAST_STORAGE_DRIVER"); driver != "" {
		c.Storage.Driver = driver
	}
	if path := os.Getenv("SCREENCAST_SQLITE_PATH"); path != "" {
		c.Storage.SQLitePath = path
	}
	if addr := os.Getenv("SCREENCAST_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
	if url := os.Getenv("SCREENCAST_PUBLISHER_URL"); url != "" {
		c.Publisher.URL = url
		c.Publisher.Mode = "http"
	}
	if secret := os.Getenv("SCREENCAST_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
		c.Auth.Enabled = true
	}
	if threshold := os.Getenv("SCREENCAST_IDLE_THRESHOLD"); threshold != "" {
		d, err := time.ParseDuration(threshold)
		if err != nil {
			return fmt.Errorf("SCREENCAST_IDLE_THRESHOLD: %w", err)
		}
		c.Session.IdleThreshold = d
	}
	if enabled := os.Getenv("SCREENCAST_TRACING_ENABLED"); enabled != "" {
		v, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("SCREENCAST_TRACING_ENABLED: %w", err)
		}
		c.Tracing.Enabled = v
	}
	return nil
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
