package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything resolved from the environment at startup. Optional
// integrations report Enabled() false when their credentials are absent.
type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	Site          SiteConfig
	Turnstile     TurnstileConfig
	Supabase      SupabaseConfig
	SES           SESConfig
	Stripe        StripeConfig
	RateLimit     RateLimitConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
}

type ServerConfig struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	AllowedOrigins []string

	// RequireHTTPS rejects plain-HTTP requests that were not forwarded
	// from a TLS-terminating proxy.
	RequireHTTPS bool

	// TrustedProxies are the peers whose X-Forwarded-For and X-Real-IP
	// headers are believed. Everyone else is keyed by the socket address.
	TrustedProxies []netip.Prefix

	EnableTLS   bool
	TLSPort     int
	AutoCert    bool
	Domain      string
	CertFile    string
	KeyFile     string
	AutoCertDir string
	Email       string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type SiteConfig struct {
	SiteURL                string
	AppURL                 string
	SupportEmail           string
	SupportContactEndpoint string
}

// MailtoFallback is the manual-contact link surfaced when automated delivery fails.
func (s SiteConfig) MailtoFallback() string {
	return "mailto:" + s.SupportEmail + "?subject=Support%20Request"
}

type TurnstileConfig struct {
	SecretKey string
	VerifyURL string
	Timeout   time.Duration
}

type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	Timeout        time.Duration
}

func (c SupabaseConfig) Enabled() bool {
	return c.URL != "" && c.ServiceRoleKey != ""
}

type SESConfig struct {
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	FromEmail        string
	FromName         string
	ConfigurationSet string
	MaxSendRate      float64
}

func (c SESConfig) Enabled() bool {
	return c.Region != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" &&
		c.FromEmail != "" && c.FromName != ""
}

type StripeConfig struct {
	SecretKey string
	PriceID   string
	TrialDays int64
	Timeout   time.Duration
}

func (c StripeConfig) Enabled() bool {
	return c.SecretKey != "" && c.PriceID != ""
}

// Rule is a fixed-window admission rule: at most Max admissions per Window.
type Rule struct {
	Max    int
	Window time.Duration
}

type RateLimitConfig struct {
	// Store selects the counter backend: "memory" or "redis".
	Store         string
	JanitorPeriod time.Duration

	ContactGlobal       Rule
	ContactIP           Rule
	ContactPendingIP    Rule
	RequestAccessGlobal Rule
	RequestAccessIP     Rule
	RequestAccessPendIP Rule
	SignupGlobal        Rule
	SignupIP            Rule
	SignupEmail         Rule
	ResendGlobal        Rule
	ResendIP            Rule
	ResendEmail         Rule
	CheckoutIP          Rule
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0 && c.Topic != ""
}

type ElasticsearchConfig struct {
	URL      string
	Username string
	Password string
	Index    string
}

func (c ElasticsearchConfig) Enabled() bool {
	return c.URL != "" && c.Index != ""
}

type ClickhouseConfig struct {
	URL      string
	Username string
	Password string
	Database string
	Table    string
}

func (c ClickhouseConfig) Enabled() bool {
	return c.URL != "" && c.Table != ""
}

var (
	current *Config
	mu      sync.RWMutex
)

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Site: SiteConfig{
			SiteURL:                strings.TrimRight(getEnv("SITE_URL", "https://listhit.io"), "/"),
			AppURL:                 getEnv("APP_URL", "https://app.listhit.io"),
			SupportEmail:           getEnv("SUPPORT_EMAIL", "support@listhit.io"),
			SupportContactEndpoint: os.Getenv("SUPPORT_CONTACT_ENDPOINT"),
		},
		Supabase: SupabaseConfig{
			URL:            strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
			ServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		},
		SES: SESConfig{
			Region:           os.Getenv("AWS_SES_REGION"),
			AccessKeyID:      os.Getenv("AWS_SES_ACCESS_KEY_ID"),
			SecretAccessKey:  os.Getenv("AWS_SES_SECRET_ACCESS_KEY"),
			FromEmail:        os.Getenv("AWS_SES_FROM_EMAIL"),
			FromName:         os.Getenv("AWS_SES_FROM_NAME"),
			ConfigurationSet: os.Getenv("AWS_SES_CONFIGURATION_SET"),
		},
		Redis: RedisConfig{
			URL:      os.Getenv("REDIS_URL"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_TOPIC", "form-events"),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:      os.Getenv("ELASTICSEARCH_URL"),
			Username: os.Getenv("ELASTICSEARCH_USERNAME"),
			Password: os.Getenv("ELASTICSEARCH_PASSWORD"),
			Index:    getEnv("ELASTICSEARCH_INDEX", "form-events"),
		},
		Clickhouse: ClickhouseConfig{
			URL:      os.Getenv("CLICKHOUSE_URL"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: os.Getenv("CLICKHOUSE_PASSWORD"),
			Database: getEnv("CLICKHOUSE_DATABASE", "marketing"),
			Table:    getEnv("CLICKHOUSE_TABLE", "form_events"),
		},
	}

	var err error
	if cfg.Server, err = buildServerConfig(); err != nil {
		return nil, err
	}
	if cfg.Turnstile, err = buildTurnstileConfig(); err != nil {
		return nil, err
	}
	if cfg.Supabase.Timeout, err = getDuration("SUPABASE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.SES.MaxSendRate, err = getFloat("AWS_SES_MAX_SEND_RATE", 14); err != nil {
		return nil, err
	}
	if cfg.Stripe, err = buildStripeConfig(); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = buildRateLimitConfig(); err != nil {
		return nil, err
	}
	if cfg.Redis.DB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Redis.PoolSize, err = getInt("REDIS_POOL_SIZE", 20); err != nil {
		return nil, err
	}

	if cfg.RateLimit.Store == "redis" && !cfg.Redis.Enabled() {
		return nil, fmt.Errorf("RATE_LIMIT_STORE=redis requires REDIS_URL")
	}

	mu.Lock()
	current = cfg
	mu.Unlock()

	return cfg, nil
}

// Get returns the last loaded configuration, or nil before LoadConfig.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func buildServerConfig() (ServerConfig, error) {
	var (
		s   ServerConfig
		err error
	)
	if s.Port, err = getInt("SERVER_PORT", 8080); err != nil {
		return s, err
	}
	if s.ReadTimeout, err = getDuration("SERVER_READ_TIMEOUT", 10*time.Second); err != nil {
		return s, err
	}
	if s.WriteTimeout, err = getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second); err != nil {
		return s, err
	}
	if s.IdleTimeout, err = getDuration("SERVER_IDLE_TIMEOUT", 60*time.Second); err != nil {
		return s, err
	}
	if s.RequestTimeout, err = getDuration("SERVER_REQUEST_TIMEOUT", 25*time.Second); err != nil {
		return s, err
	}
	s.AllowedOrigins = splitList(getEnv("CORS_ALLOWED_ORIGINS", "https://listhit.io,https://www.listhit.io"))
	if s.RequireHTTPS, err = getBool("REQUIRE_HTTPS", false); err != nil {
		return s, err
	}
	if s.TrustedProxies, err = getPrefixes("TRUSTED_PROXIES"); err != nil {
		return s, err
	}

	if s.EnableTLS, err = getBool("ENABLE_TLS", false); err != nil {
		return s, err
	}
	if s.TLSPort, err = getInt("TLS_PORT", 8443); err != nil {
		return s, err
	}
	if s.AutoCert, err = getBool("TLS_AUTOCERT", false); err != nil {
		return s, err
	}
	s.Domain = os.Getenv("TLS_DOMAIN")
	s.CertFile = os.Getenv("TLS_CERT_FILE")
	s.KeyFile = os.Getenv("TLS_KEY_FILE")
	s.AutoCertDir = getEnv("TLS_AUTOCERT_DIR", "/var/cache/marketing-api/certs")
	s.Email = os.Getenv("TLS_EMAIL")

	if s.EnableTLS && s.AutoCert && s.Domain == "" {
		return s, fmt.Errorf("TLS_AUTOCERT requires TLS_DOMAIN")
	}
	return s, nil
}

func buildTurnstileConfig() (TurnstileConfig, error) {
	timeout, err := getDuration("TURNSTILE_TIMEOUT", 5*time.Second)
	if err != nil {
		return TurnstileConfig{}, err
	}
	return TurnstileConfig{
		SecretKey: os.Getenv("TURNSTILE_SECRET_KEY"),
		VerifyURL: getEnv("TURNSTILE_VERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify"),
		Timeout:   timeout,
	}, nil
}

func buildStripeConfig() (StripeConfig, error) {
	trialDays, err := getInt("STRIPE_TRIAL_DAYS", 14)
	if err != nil {
		return StripeConfig{}, err
	}
	timeout, err := getDuration("STRIPE_TIMEOUT", 8*time.Second)
	if err != nil {
		return StripeConfig{}, err
	}
	return StripeConfig{
		SecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		PriceID:   os.Getenv("STRIPE_PRICE_ID_PRO"),
		TrialDays: int64(trialDays),
		Timeout:   timeout,
	}, nil
}

func buildRateLimitConfig() (RateLimitConfig, error) {
	rl := RateLimitConfig{Store: strings.ToLower(getEnv("RATE_LIMIT_STORE", "memory"))}
	if rl.Store != "memory" && rl.Store != "redis" {
		return rl, fmt.Errorf("invalid RATE_LIMIT_STORE: %q", rl.Store)
	}

	var err error
	if rl.JanitorPeriod, err = getDuration("RATE_LIMIT_JANITOR_PERIOD", time.Minute); err != nil {
		return rl, err
	}

	rules := []struct {
		dst    *Rule
		name   string
		max    int
		window time.Duration
	}{
		{&rl.ContactGlobal, "CONTACT_GLOBAL", 100, 10 * time.Minute},
		{&rl.ContactIP, "CONTACT_IP", 5, 10 * time.Minute},
		{&rl.ContactPendingIP, "CONTACT_PENDING_IP", 2, 10 * time.Minute},
		{&rl.RequestAccessGlobal, "REQUEST_ACCESS_GLOBAL", 100, 10 * time.Minute},
		{&rl.RequestAccessIP, "REQUEST_ACCESS_IP", 5, 10 * time.Minute},
		{&rl.RequestAccessPendIP, "REQUEST_ACCESS_PENDING_IP", 2, 10 * time.Minute},
		{&rl.SignupGlobal, "SIGNUP_GLOBAL", 50, 10 * time.Minute},
		{&rl.SignupIP, "SIGNUP_IP", 5, 10 * time.Minute},
		{&rl.SignupEmail, "SIGNUP_EMAIL", 3, 30 * time.Minute},
		{&rl.ResendGlobal, "RESEND_GLOBAL", 200, 10 * time.Minute},
		{&rl.ResendIP, "RESEND_IP", 3, 10 * time.Minute},
		{&rl.ResendEmail, "RESEND_EMAIL", 3, 30 * time.Minute},
		{&rl.CheckoutIP, "CHECKOUT_IP", 10, 10 * time.Minute},
	}
	for _, r := range rules {
		rule, err := buildRule(r.name, r.max, r.window)
		if err != nil {
			return rl, err
		}
		*r.dst = rule
	}
	return rl, nil
}

func buildRule(name string, defaultMax int, defaultWindow time.Duration) (Rule, error) {
	maxKey := "RATE_LIMIT_" + name + "_MAX"
	windowKey := "RATE_LIMIT_" + name + "_WINDOW"

	max, err := getInt(maxKey, defaultMax)
	if err != nil {
		return Rule{}, err
	}
	window, err := getDuration(windowKey, defaultWindow)
	if err != nil {
		return Rule{}, err
	}
	if max <= 0 {
		return Rule{}, fmt.Errorf("invalid %s: must be positive", maxKey)
	}
	if window <= 0 {
		return Rule{}, fmt.Errorf("invalid %s: must be positive", windowKey)
	}
	return Rule{Max: max, Window: window}, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// getPrefixes parses a comma-separated list of CIDRs. A bare address is
// taken as a single-host prefix.
func getPrefixes(key string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, item := range splitList(os.Getenv(key)) {
		if !strings.Contains(item, "/") {
			addr, err := netip.ParseAddr(item)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", key, err)
			}
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(item)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		out = append(out, prefix.Masked())
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
