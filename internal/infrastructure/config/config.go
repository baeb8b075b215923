package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// App kinds served by the binary
const (
	AppStripe       = "stripe"
	AppAvatax       = "avatax"
	AppSMTP         = "smtp"
	AppKlaviyo      = "klaviyo"
	AppSearch       = "search"
	AppProductsFeed = "products-feed"
)

// AppKinds lists every app the binary can serve
var AppKinds = []string{AppStripe, AppAvatax, AppSMTP, AppKlaviyo, AppSearch, AppProductsFeed}

// DefaultSecretKey is used outside production when SECRET_KEY is not set
const DefaultSecretKey = "CHANGE_ME"

// Config holds all application configuration
type Config struct {
	App       AppConfig
	APL       APLConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
	Swagger   SwaggerConfig
	Stripe    StripeConfig
	Feed      FeedConfig
}

// SwaggerConfig holds Swagger documentation endpoint configuration
type SwaggerConfig struct {
	Enabled    bool     // on by default outside production
	AllowedIPs []string // addresses or CIDR ranges, empty allows everyone
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Kind    string
	Name    string
	Env     string
	Port    string
	Version string

	SecretKey             string
	APIBaseURL            string // public URL the app is reachable at, used in the manifest
	IframeBaseURL         string // dashboard iframe URL, defaults to APIBaseURL
	AllowedDomainPattern  string // regexp a registering Saleor domain must match
	RequiredSaleorVersion string // semver constraint checked at registration
}

// APLConfig selects and configures the auth persistence layer
type APLConfig struct {
	Type         string // file, redis, saleor-cloud, upstash
	FilePath     string
	RedisURL     string
	RestEndpoint string
	RestToken    string
	UpstashURL   string
	UpstashToken string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSAllowOrigins  []string
	CORSAllowMethods  []string
	CORSAllowHeaders  []string
	TrustedProxies    []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	Exporter          string  // otlp or stdout
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	LogsEnabled       bool

	ProfilingEnabled  bool
	PyroscopeAddress  string
	PyroscopeUser     string
	PyroscopePassword string
}

// StripeConfig holds settings of the Stripe app
type StripeConfig struct {
	WebhookIdempotencyTTL time.Duration
}

// FeedConfig holds settings of the products feed app
type FeedConfig struct {
	CacheTTL        time.Duration
	PresignTTL      time.Duration
	VariantsPerPage int
	S3Endpoint      string // empty for AWS, set for MinIO and other S3 compatible stores
	S3UsePathStyle  bool
}

// Load loads configuration from .env, config.toml and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with SALEOR_APPS_ prefix (e.g., SALEOR_APPS_APP_PORT)
// 2. Well-known Saleor app variables (APL, SECRET_KEY, PORT, ...)
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	return LoadApp("")
}

// LoadApp loads the configuration for one app kind. An empty kind falls back to
// app.kind from the environment or config file.
func LoadApp(kind string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("SALEOR_APPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := bindWellKnownEnv(v); err != nil {
		return nil, err
	}

	if kind != "" {
		v.Set("app.kind", kind)
	}
	v.SetDefault("swagger.enabled", v.GetString("app.env") != "production")

	cfg := &Config{
		App: AppConfig{
			Kind:                  v.GetString("app.kind"),
			Name:                  v.GetString("app.name"),
			Env:                   v.GetString("app.env"),
			Port:                  v.GetString("app.port"),
			Version:               v.GetString("app.version"),
			SecretKey:             v.GetString("app.secret_key"),
			APIBaseURL:            v.GetString("app.api_base_url"),
			IframeBaseURL:         v.GetString("app.iframe_base_url"),
			AllowedDomainPattern:  v.GetString("app.allowed_domain_pattern"),
			RequiredSaleorVersion: v.GetString("app.required_saleor_version"),
		},
		APL: APLConfig{
			Type:         aplType(v),
			FilePath:     v.GetString("apl.file_path"),
			RedisURL:     v.GetString("apl.redis_url"),
			RestEndpoint: v.GetString("apl.rest_endpoint"),
			RestToken:    v.GetString("apl.rest_token"),
			UpstashURL:   v.GetString("apl.upstash_url"),
			UpstashToken: v.GetString("apl.upstash_token"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			ShutdownTimeout:   v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			Exporter:          v.GetString("telemetry.exporter"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			PyroscopeAddress:  v.GetString("telemetry.pyroscope_address"),
			PyroscopeUser:     v.GetString("telemetry.pyroscope_user"),
			PyroscopePassword: v.GetString("telemetry.pyroscope_password"),
		},
		Swagger: SwaggerConfig{
			Enabled:    v.GetBool("swagger.enabled"),
			AllowedIPs: v.GetStringSlice("swagger.allowed_ips"),
		},
		Stripe: StripeConfig{
			WebhookIdempotencyTTL: v.GetDuration("stripe.webhook_idempotency_ttl"),
		},
		Feed: FeedConfig{
			CacheTTL:        v.GetDuration("feed.cache_ttl"),
			PresignTTL:      v.GetDuration("feed.presign_ttl"),
			VariantsPerPage: v.GetInt("feed.variants_per_page"),
			S3Endpoint:      v.GetString("feed.s3_endpoint"),
			S3UsePathStyle:  v.GetBool("feed.s3_use_path_style"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// bindWellKnownEnv maps the variable names shared by all Saleor apps onto config keys.
// The prefixed name is listed first so it wins when both are set.
func bindWellKnownEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"apl.type":                     "APL",
		"apl.redis_url":                "REDIS_URL",
		"apl.rest_endpoint":            "REST_APL_ENDPOINT",
		"apl.rest_token":               "REST_APL_TOKEN",
		"apl.upstash_url":              "UPSTASH_URL",
		"apl.upstash_token":            "UPSTASH_TOKEN",
		"apl.file_path":                "FILE_APL_PATH",
		"app.secret_key":               "SECRET_KEY",
		"app.api_base_url":             "APP_API_BASE_URL",
		"app.iframe_base_url":          "APP_IFRAME_BASE_URL",
		"app.allowed_domain_pattern":   "ALLOWED_DOMAIN_PATTERN",
		"app.required_saleor_version":  "REQUIRED_SALEOR_VERSION",
		"app.port":                     "PORT",
		"app.env":                      "APP_ENV",
		"telemetry.collector_endpoint": "OTEL_EXPORTER_OTLP_ENDPOINT",
		"telemetry.service_name":       "OTEL_SERVICE_NAME",
	}
	for key, env := range bindings {
		prefixed := "SALEOR_APPS_" + strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	return nil
}

// aplType returns apl.type. The file backend is the default only when no
// source sets the key; an explicitly empty value is kept for the APL factory to reject.
func aplType(v *viper.Viper) string {
	if v.IsSet("apl.type") {
		return v.GetString("apl.type")
	}
	for _, env := range []string{"SALEOR_APPS_APL_TYPE", "APL"} {
		if _, ok := os.LookupEnv(env); ok {
			return ""
		}
	}
	return "file"
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "saleor-app"
		if cfg.App.Kind != "" {
			cfg.App.Name = "saleor-app-" + cfg.App.Kind
		}
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "3000"
	}
	if cfg.App.Version == "" {
		cfg.App.Version = "dev"
	}
	if cfg.App.SecretKey == "" && !cfg.IsProduction() {
		cfg.App.SecretKey = DefaultSecretKey
	}
	if cfg.App.APIBaseURL == "" {
		cfg.App.APIBaseURL = "http://localhost:" + cfg.App.Port
	}
	if cfg.App.IframeBaseURL == "" {
		cfg.App.IframeBaseURL = cfg.App.APIBaseURL
	}
	if cfg.App.RequiredSaleorVersion == "" {
		cfg.App.RequiredSaleorVersion = ">=3.11.7 <4"
	}
	if cfg.APL.FilePath == "" {
		cfg.APL.FilePath = ".auth-data.json"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 5 << 20 // 5MB, large order payloads
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 300
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "Saleor-Api-Url", "Authorization-Bearer"}
	}
	if cfg.Telemetry.Exporter == "" {
		cfg.Telemetry.Exporter = "otlp"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	cfg.Telemetry.CollectorEndpoint = strings.TrimPrefix(strings.TrimPrefix(cfg.Telemetry.CollectorEndpoint, "http://"), "https://")
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Stripe.WebhookIdempotencyTTL == 0 {
		cfg.Stripe.WebhookIdempotencyTTL = 24 * time.Hour
	}
	if cfg.Feed.CacheTTL == 0 {
		cfg.Feed.CacheTTL = 5 * time.Minute
	}
	if cfg.Feed.PresignTTL == 0 {
		cfg.Feed.PresignTTL = 15 * time.Minute
	}
	if cfg.Feed.VariantsPerPage == 0 {
		cfg.Feed.VariantsPerPage = 100
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.App.Kind != "" && !slices.Contains(AppKinds, c.App.Kind) {
		return fmt.Errorf("app.kind must be one of %s, got %q", strings.Join(AppKinds, ", "), c.App.Kind)
	}

	if c.IsProduction() {
		if c.App.SecretKey == "" {
			return fmt.Errorf("SECRET_KEY is required in production")
		}
		if c.App.SecretKey == DefaultSecretKey {
			return fmt.Errorf("SECRET_KEY must be changed in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	if c.App.AllowedDomainPattern != "" {
		if _, err := regexp.Compile(c.App.AllowedDomainPattern); err != nil {
			return fmt.Errorf("ALLOWED_DOMAIN_PATTERN is not a valid regular expression: %w", err)
		}
	}
	if _, err := semver.NewConstraint(c.App.RequiredSaleorVersion); err != nil {
		return fmt.Errorf("REQUIRED_SALEOR_VERSION is not a valid constraint: %w", err)
	}

	switch c.Telemetry.Exporter {
	case "otlp", "stdout":
	default:
		return fmt.Errorf("telemetry.exporter must be otlp or stdout, got %q", c.Telemetry.Exporter)
	}
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Feed.VariantsPerPage < 1 || c.Feed.VariantsPerPage > 100 {
		return fmt.Errorf("feed.variants_per_page must be between 1 and 100, got %d", c.Feed.VariantsPerPage)
	}

	return nil
}

// IsProduction reports whether the app runs with APP_ENV=production
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// SaleorVersionConstraint returns the parsed REQUIRED_SALEOR_VERSION
func (c *Config) SaleorVersionConstraint() *semver.Constraints {
	constraint, err := semver.NewConstraint(c.App.RequiredSaleorVersion)
	if err != nil {
		return nil
	}
	return constraint
}

// AllowedDomain returns the compiled ALLOWED_DOMAIN_PATTERN, nil when unset
func (c *Config) AllowedDomain() *regexp.Regexp {
	if c.App.AllowedDomainPattern == "" {
		return nil
	}
	return regexp.MustCompile(c.App.AllowedDomainPattern)
}
