package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the engine process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Provider ProviderConfig
	Engine   EngineConfig
}

type AppConfig struct {
	Env  string
	Port int

	// CORSOrigins is the browser origin allowlist. Empty allows all outside production.
	CORSOrigins []string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// OperatorKey is exchanged for a token pair at /v1/auth/token.
	OperatorKey string
}

type ProviderConfig struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerSec    float64
	WebhookSecret string
}

type EngineConfig struct {
	TickPeriod     time.Duration
	TickBudget     time.Duration
	MaxConcurrency int

	// Local wall-clock bounds of the calling window, "HH:MM". End is exclusive.
	CallWindowStart string
	CallWindowEnd   string

	DefaultTimezone string
	Cooldown        time.Duration
	PolicyFile      string
	Autostart       bool
	DispatchJitter  time.Duration

	// InflightCap > 0 enables the shared in-flight dispatch counter in redis.
	InflightCap int
}

const MaxDispatchJitter = 300 * time.Second

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	for _, o := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			c.App.CORSOrigins = append(c.App.CORSOrigins, o)
		}
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")
	c.Auth.OperatorKey = os.Getenv("OPERATOR_KEY")

	c.Provider.BaseURL = strings.TrimSpace(os.Getenv("PROVIDER_BASE_URL"))
	c.Provider.Timeout = mustDuration("PROVIDER_TIMEOUT")
	{
		f, err := optionalFloat("PROVIDER_RATE_PER_SEC")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Provider.RatePerSec = f
	}
	c.Provider.WebhookSecret = os.Getenv("PROVIDER_WEBHOOK_SECRET")

	c.Engine.TickPeriod = mustDuration("ENGINE_TICK_PERIOD")
	c.Engine.TickBudget = mustDuration("ENGINE_TICK_BUDGET")
	{
		n, err := optionalInt("ENGINE_MAX_CONCURRENCY")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Engine.MaxConcurrency = n
	}
	c.Engine.CallWindowStart = strings.TrimSpace(os.Getenv("ENGINE_CALL_WINDOW_START"))
	c.Engine.CallWindowEnd = strings.TrimSpace(os.Getenv("ENGINE_CALL_WINDOW_END"))
	c.Engine.DefaultTimezone = strings.TrimSpace(os.Getenv("ENGINE_DEFAULT_TIMEZONE"))
	c.Engine.Cooldown = mustDuration("ENGINE_COOLDOWN")
	c.Engine.PolicyFile = strings.TrimSpace(os.Getenv("ENGINE_POLICY_FILE"))
	{
		b, err := optionalBool("ENGINE_AUTOSTART")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Engine.Autostart = b
	}
	c.Engine.DispatchJitter = mustDuration("ENGINE_DISPATCH_JITTER")
	{
		n, err := optionalInt("ENGINE_INFLIGHT_CAP")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Engine.InflightCap = n
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
		if c.Auth.OperatorKey == "" {
			errs = append(errs, errors.New("OPERATOR_KEY is required in production"))
		}
		if c.Provider.WebhookSecret == "" {
			errs = append(errs, errors.New("PROVIDER_WEBHOOK_SECRET is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://api.bland.ai/v1"
	}
	if c.Provider.Timeout <= 0 {
		c.Provider.Timeout = 15 * time.Second
	}
	if c.Provider.RatePerSec <= 0 {
		c.Provider.RatePerSec = 5
	}

	if c.Engine.TickPeriod <= 0 {
		c.Engine.TickPeriod = 60 * time.Second
	}
	if c.Engine.TickBudget <= 0 || c.Engine.TickBudget > c.Engine.TickPeriod {
		// A tick must stop launching before the next one is due.
		c.Engine.TickBudget = c.Engine.TickPeriod * 9 / 10
	}
	if c.Engine.MaxConcurrency <= 0 {
		c.Engine.MaxConcurrency = 5
	}
	if c.Engine.CallWindowStart == "" {
		c.Engine.CallWindowStart = "08:00"
	}
	if c.Engine.CallWindowEnd == "" {
		c.Engine.CallWindowEnd = "21:00"
	}
	start, err := ParseClock(c.Engine.CallWindowStart)
	if err != nil {
		errs = append(errs, fmt.Errorf("ENGINE_CALL_WINDOW_START: %w", err))
	}
	end, err2 := ParseClock(c.Engine.CallWindowEnd)
	if err2 != nil {
		errs = append(errs, fmt.Errorf("ENGINE_CALL_WINDOW_END: %w", err2))
	}
	if err == nil && err2 == nil && end <= start {
		errs = append(errs, errors.New("ENGINE_CALL_WINDOW_END must be after ENGINE_CALL_WINDOW_START"))
	}
	if c.Engine.DefaultTimezone == "" {
		c.Engine.DefaultTimezone = "America/New_York"
	}
	if _, err := time.LoadLocation(c.Engine.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("ENGINE_DEFAULT_TIMEZONE is not a known zone: %q", c.Engine.DefaultTimezone))
	}
	if c.Engine.Cooldown <= 0 {
		c.Engine.Cooldown = 7 * 24 * time.Hour
	}
	if c.Engine.DispatchJitter < 0 {
		c.Engine.DispatchJitter = 0
	}
	if c.Engine.DispatchJitter > MaxDispatchJitter {
		c.Engine.DispatchJitter = MaxDispatchJitter
	}
	if c.Engine.InflightCap < 0 {
		errs = append(errs, fmt.Errorf("ENGINE_INFLIGHT_CAP must be >= 0, got %d", c.Engine.InflightCap))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) IsLocal() bool {
	return c.App.Env == "local" || c.App.Env == "dev"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// ParseClock parses "HH:MM" into an offset from local midnight.
func ParseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", v)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalFloat(key string) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	return f, nil
}

func optionalBool(key string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
