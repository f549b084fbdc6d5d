package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// Components receive the sub-config they need from main; nothing else reads the environment.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Tenant  TenantConfig
	LLM     LLMConfig
	Voice   VoiceConfig
	Billing BillingConfig
	Calls   CallsConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicBaseURL is the externally reachable origin used in provider callback URLs.
	PublicBaseURL string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

type TenantConfig struct {
	// AllowHeaderOverride enables X-Tenant-ID resolution. Never allowed in production.
	AllowHeaderOverride bool

	// BaseDomain enables subdomain resolution (acme.<BaseDomain>) when set.
	BaseDomain string
}

type LLMConfig struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string

	AnthropicAPIKey  string
	AnthropicBaseURL string

	DefaultModel       string
	DefaultClaudeModel string
	MaxTokens          int
	Temperature        float64
	Timeout            time.Duration

	// SystemPrompt is prepended to chat conversations that carry no system message.
	SystemPrompt string
}

type VoiceConfig struct {
	ElevenLabsAPIKey string
	ConvAIURL        string
	AudioContentType string
}

// BillingConfig holds per-minute rates in micro-dollars (1 USD = 1_000_000).
type BillingConfig struct {
	ConvAIRatePerMinuteMicros    int64
	TelephonyRatePerMinuteMicros int64
}

type CallsConfig struct {
	// MaxConcurrentPerTenant caps live calls per tenant; 0 disables the cap.
	MaxConcurrentPerTenant int
	ConnectingTTL          time.Duration
	SweepInterval          time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")

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
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")

	{
		b, err := optionalBool("TENANT_HEADER_OVERRIDE")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Tenant.AllowHeaderOverride = b
	}
	c.Tenant.BaseDomain = strings.ToLower(strings.TrimSpace(os.Getenv("TENANT_BASE_DOMAIN")))

	c.LLM.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	c.LLM.OpenAIBaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	c.LLM.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	c.LLM.AnthropicBaseURL = strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL"))
	c.LLM.DefaultModel = strings.TrimSpace(os.Getenv("DEFAULT_MODEL"))
	c.LLM.DefaultClaudeModel = strings.TrimSpace(os.Getenv("CLAUDE_DEFAULT_MODEL"))
	{
		n, err := optionalInt("MAX_TOKENS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.LLM.MaxTokens = n
	}
	{
		f, err := optionalFloat("TEMPERATURE", -1)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.LLM.Temperature = f
	}
	c.LLM.Timeout = mustDuration("LLM_TIMEOUT")
	c.LLM.SystemPrompt = os.Getenv("CHAT_SYSTEM_PROMPT")

	c.Voice.ElevenLabsAPIKey = os.Getenv("ELEVENLABS_API_KEY")
	c.Voice.ConvAIURL = strings.TrimSpace(os.Getenv("ELEVENLABS_CONVAI_URL"))
	c.Voice.AudioContentType = strings.TrimSpace(os.Getenv("VOICE_AUDIO_CONTENT_TYPE"))

	{
		m, err := optionalMicros("CONVAI_RATE_PER_MINUTE")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Billing.ConvAIRatePerMinuteMicros = m
	}
	{
		m, err := optionalMicros("TELEPHONY_RATE_PER_MINUTE")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Billing.TelephonyRatePerMinuteMicros = m
	}

	{
		n, err := optionalInt("MAX_CONCURRENT_CALLS_PER_TENANT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Calls.MaxConcurrentPerTenant = n
	}
	c.Calls.ConnectingTTL = mustDuration("CALLS_CONNECTING_TTL")
	c.Calls.SweepInterval = mustDuration("CALLS_SWEEP_INTERVAL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills environment-aware defaults in place.
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
	if c.App.PublicBaseURL == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("PUBLIC_BASE_URL is required in production"))
		} else {
			c.App.PublicBaseURL = fmt.Sprintf("http://localhost:%d", c.App.Port)
		}
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
			// Local-friendly default; production must be explicit.
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
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}

	if c.IsProduction() && c.Tenant.AllowHeaderOverride {
		errs = append(errs, errors.New("TENANT_HEADER_OVERRIDE must be disabled in production"))
	}

	if c.IsProduction() && c.LLM.OpenAIAPIKey == "" && c.LLM.AnthropicAPIKey == "" {
		errs = append(errs, errors.New("at least one of OPENAI_API_KEY or ANTHROPIC_API_KEY is required in production"))
	}
	if c.LLM.DefaultModel == "" {
		c.LLM.DefaultModel = "gpt-4"
	}
	if c.LLM.DefaultClaudeModel == "" {
		c.LLM.DefaultClaudeModel = "claude-3-5-sonnet-20241022"
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 1000
	}
	if c.LLM.Temperature < 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("TEMPERATURE must be between 0 and 2, got %v", c.LLM.Temperature))
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 2 * time.Minute
	}

	if c.Voice.ConvAIURL == "" {
		c.Voice.ConvAIURL = "wss://api.elevenlabs.io/v1/convai/conversation"
	}
	if c.Voice.AudioContentType == "" {
		c.Voice.AudioContentType = "audio/l16;rate=16000"
	}
	if c.IsProduction() && c.Voice.ElevenLabsAPIKey == "" {
		errs = append(errs, errors.New("ELEVENLABS_API_KEY is required in production"))
	}

	if c.Billing.ConvAIRatePerMinuteMicros < 0 || c.Billing.TelephonyRatePerMinuteMicros < 0 {
		errs = append(errs, errors.New("per-minute rates must not be negative"))
	}
	if c.Billing.ConvAIRatePerMinuteMicros == 0 {
		c.Billing.ConvAIRatePerMinuteMicros = 20_000 // 0.02 USD
	}
	if c.Billing.TelephonyRatePerMinuteMicros == 0 {
		c.Billing.TelephonyRatePerMinuteMicros = 12_000 // 0.012 USD
	}

	if c.Calls.MaxConcurrentPerTenant < 0 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_CALLS_PER_TENANT must be >= 0, got %d", c.Calls.MaxConcurrentPerTenant))
	}
	if c.Calls.ConnectingTTL <= 0 {
		c.Calls.ConnectingTTL = 10 * time.Minute
	}
	if c.Calls.SweepInterval <= 0 {
		c.Calls.SweepInterval = time.Minute
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
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

// ParseMicros converts a decimal USD amount ("0.012") into micro-dollars.
func ParseMicros(v string) (int64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid amount %q", v)
	}
	return int64(math.Round(f * 1_000_000)), nil
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

func optionalFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("%s must be a number, got %q", key, v)
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

func optionalMicros(key string) (int64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	m, err := ParseMicros(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a non-negative decimal amount, got %q", key, v)
	}
	return m, nil
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
