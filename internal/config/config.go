package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/route-weather-service/internal/validation"
)

// Geocoding backends.
const (
	GeocoderPositionstack = "positionstack"
	GeocoderGoogle        = "google"
)

// Config holds service configuration loaded from YAML, secrets, .env and the environment.
type Config struct {
	TestingMode bool
	LogLevel    string

	ServerPort      string `validate:"required,numeric"`
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration `validate:"gt=0"`

	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	GeocodingProvider     string `validate:"oneof=positionstack google"`
	GeocodingURL          string
	GeocodingTimeout      time.Duration `validate:"gt=0"`
	PositionstackAPIKey   string
	GoogleGeocodingAPIKey string

	WeatherAPIKey     string `validate:"required"`
	WeatherAPIURL     string `validate:"required,url"`
	WeatherAPITimeout time.Duration `validate:"gt=0"`
	WeatherLanguage   string
	WeatherMetric     bool
	WeatherDetails    bool

	CacheTTL              time.Duration `validate:"gt=0"`
	CacheBackend          string        `validate:"oneof=in_memory memcached"`
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RateLimitRPS   int `validate:"gt=0"`
	RateLimitBurst int `validate:"gt=0"`

	CircuitBreakerEnabled   bool
	CircuitFailureThreshold int `validate:"gt=0"`
	CircuitSuccessThreshold int `validate:"gt=0"`
	CircuitTimeout          time.Duration

	BotToken       string
	BotUpdateDelay time.Duration `validate:"gte=0"`
	BotSessionTTL  time.Duration `validate:"gt=0"`
	BotLanguage    string        `validate:"oneof=ru en"`
	BotPollTimeout int           `validate:"gte=0"`

	WarmingEnabled  bool
	WarmingInterval time.Duration
	WarmingDays     int `validate:"min=1,max=5"`
	WarmingCities   []string

	TrafficWindow time.Duration `validate:"gt=0"`
	TrackedCities []string

	OverloadThresholdPct int `validate:"min=1,max=100"`
	DegradedErrorPct     int `validate:"min=1,max=100"`
	DegradedMinSamples   int `validate:"gte=0"`
}

type fileConfig struct {
	TestingMode *bool  `yaml:"testing_mode"`
	LogLevel    string `yaml:"log_level"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Geocoding struct {
		Provider string `yaml:"provider"`
		URL      string `yaml:"url"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"geocoding"`

	WeatherAPI struct {
		URL      string `yaml:"url"`
		Timeout  string `yaml:"timeout"`
		Language string `yaml:"language"`
		Metric   *bool  `yaml:"metric"`
		Details  *bool  `yaml:"details"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
		CircuitBreaker struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Bot struct {
		UpdateDelay string `yaml:"update_delay"`
		SessionTTL  string `yaml:"session_ttl"`
		Language    string `yaml:"language"`
		PollTimeout int    `yaml:"poll_timeout"`
	} `yaml:"bot"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Health struct {
		OverloadThresholdPct int `yaml:"overload_threshold_pct"`
		DegradedErrorPct     int `yaml:"degraded_error_pct"`
		DegradedMinSamples   int `yaml:"degraded_min_samples"`
	} `yaml:"health"`

	Warming struct {
		Enabled  bool     `yaml:"enabled"`
		Interval string   `yaml:"interval"`
		Days     int      `yaml:"days"`
		Cities   []string `yaml:"cities"`
	} `yaml:"warming"`

	Metrics struct {
		TrafficWindow string   `yaml:"traffic_window"`
		TrackedCities []string `yaml:"tracked_cities"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	AccuWeatherAPIKey     string `yaml:"accuweather_api_key"`
	PositionstackAPIKey   string `yaml:"positionstack_api_key"`
	GoogleGeocodingAPIKey string `yaml:"google_geocoding_api_key"`
	BotToken              string `yaml:"bot_token"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev), then
// secrets from the environment (a .env file is loaded first when present) or
// config/secrets.yaml. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env file: %w", err)
	}

	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := loadSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if fc.TestingMode != nil {
		cfg.TestingMode = *fc.TestingMode
	}
	cfg.LogLevel = fc.LogLevel
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")

	cfg.GeocodingProvider = strings.ToLower(firstNonEmpty(os.Getenv("GEOCODING_PROVIDER"), strings.TrimSpace(fc.Geocoding.Provider), GeocoderPositionstack))
	cfg.GeocodingURL = strings.TrimSpace(fc.Geocoding.URL)
	cfg.GeocodingTimeout = parseDuration(fc.Geocoding.Timeout, 5*time.Second)
	cfg.PositionstackAPIKey = firstNonEmpty(os.Getenv("POSITIONSTACK_API_KEY"), sec.PositionstackAPIKey)
	cfg.GoogleGeocodingAPIKey = firstNonEmpty(os.Getenv("GOOGLE_GEOCODING_API_KEY"), sec.GoogleGeocodingAPIKey)

	cfg.WeatherAPIKey = firstNonEmpty(os.Getenv("ACCUWEATHER_API_KEY"), sec.AccuWeatherAPIKey)
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("ACCUWEATHER_API_KEY required (set env or config/secrets.yaml accuweather_api_key)")
	}
	cfg.WeatherAPIURL = firstNonEmpty(strings.TrimSpace(fc.WeatherAPI.URL), "http://dataservice.accuweather.com")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)
	cfg.WeatherLanguage = firstNonEmpty(fc.WeatherAPI.Language, "ru")
	cfg.WeatherMetric = true
	if fc.WeatherAPI.Metric != nil {
		cfg.WeatherMetric = *fc.WeatherAPI.Metric
	}
	cfg.WeatherDetails = true
	if fc.WeatherAPI.Details != nil {
		cfg.WeatherDetails = *fc.WeatherAPI.Details
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 30*time.Second)
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 24*time.Hour)
	cfg.CacheBackend = strings.ToLower(firstNonEmpty(
		strings.TrimSpace(os.Getenv("CACHE_BACKEND")),
		strings.TrimSpace(fc.Cache.Backend),
		"in_memory",
	))
	cfg.MemcachedAddrs = firstNonEmpty(
		strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")),
		strings.TrimSpace(fc.Cache.Memcached.Addrs),
		"localhost:11211",
	)
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}
	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = cb.Enabled
	cfg.CircuitFailureThreshold = cb.FailureThreshold
	if cfg.CircuitFailureThreshold <= 0 {
		cfg.CircuitFailureThreshold = 5
	}
	cfg.CircuitSuccessThreshold = cb.SuccessThreshold
	if cfg.CircuitSuccessThreshold <= 0 {
		cfg.CircuitSuccessThreshold = 1
	}
	cfg.CircuitTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.BotToken = firstNonEmpty(os.Getenv("BOT_TOKEN"), sec.BotToken)
	cfg.BotUpdateDelay = parseDurationOrZero(fc.Bot.UpdateDelay, 300*time.Millisecond)
	cfg.BotSessionTTL = parseDuration(fc.Bot.SessionTTL, 30*time.Minute)
	cfg.BotLanguage = firstNonEmpty(fc.Bot.Language, "ru")
	cfg.BotPollTimeout = fc.Bot.PollTimeout
	if cfg.BotPollTimeout <= 0 {
		cfg.BotPollTimeout = 60
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.WarmingEnabled = fc.Warming.Enabled
	cfg.WarmingInterval = parseDuration(fc.Warming.Interval, time.Hour)
	cfg.WarmingDays = fc.Warming.Days
	if cfg.WarmingDays == 0 {
		cfg.WarmingDays = 5
	}
	cfg.WarmingCities = fc.Warming.Cities

	cfg.TrafficWindow = parseDuration(fc.Metrics.TrafficWindow, 60*time.Second)
	cfg.TrackedCities = fc.Metrics.TrackedCities

	cfg.OverloadThresholdPct = positiveOr(fc.Health.OverloadThresholdPct, 80)
	cfg.DegradedErrorPct = positiveOr(fc.Health.DegradedErrorPct, 5)
	cfg.DegradedMinSamples = positiveOr(fc.Health.DegradedMinSamples, 10)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate runs struct tag checks, then cross-field rules. RequestTimeout is
// raised above the slowest provider timeout when needed.
func validate(cfg *Config) error {
	if err := validation.Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slowest := cfg.WeatherAPITimeout
	if cfg.GeocodingTimeout > slowest {
		slowest = cfg.GeocodingTimeout
	}
	if cfg.RequestTimeout <= slowest {
		cfg.RequestTimeout = slowest + time.Second
	}
	switch cfg.GeocodingProvider {
	case GeocoderPositionstack:
		if cfg.PositionstackAPIKey == "" {
			return fmt.Errorf("POSITIONSTACK_API_KEY required for geocoding.provider %s", GeocoderPositionstack)
		}
	case GeocoderGoogle:
		if cfg.GoogleGeocodingAPIKey == "" {
			return fmt.Errorf("GOOGLE_GEOCODING_API_KEY required for geocoding.provider %s", GeocoderGoogle)
		}
	}
	if cfg.WarmingEnabled && len(cfg.WarmingCities) == 0 {
		return fmt.Errorf("warming.cities must not be empty when warming is enabled")
	}
	return nil
}

// ValidateBot checks settings the chat front end needs beyond the shared ones.
func (c *Config) ValidateBot() error {
	if c.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN required (set env or config/secrets.yaml bot_token)")
	}
	return nil
}
