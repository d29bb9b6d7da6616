package config

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("RATE_LIMIT_STORE", "")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("TRUSTED_PROXIES", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "memory", cfg.RateLimit.Store)
	assert.Equal(t, Rule{Max: 5, Window: 10 * time.Minute}, cfg.RateLimit.ContactIP)
	assert.Equal(t, Rule{Max: 2, Window: 10 * time.Minute}, cfg.RateLimit.ContactPendingIP)
	assert.Equal(t, Rule{Max: 3, Window: 30 * time.Minute}, cfg.RateLimit.ResendEmail)
	assert.Equal(t, Rule{Max: 200, Window: 10 * time.Minute}, cfg.RateLimit.ResendGlobal)
	assert.Equal(t, 5*time.Second, cfg.Turnstile.Timeout)
	assert.False(t, cfg.Supabase.Enabled())
	assert.False(t, cfg.Stripe.Enabled())
	assert.Empty(t, cfg.Server.TrustedProxies)
	assert.Same(t, cfg, Get())
}

func TestLoadConfig_RuleOverride(t *testing.T) {
	t.Setenv("RATE_LIMIT_CONTACT_IP_MAX", "9")
	t.Setenv("RATE_LIMIT_CONTACT_IP_WINDOW", "90s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, Rule{Max: 9, Window: 90 * time.Second}, cfg.RateLimit.ContactIP)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"RATE_LIMIT_SIGNUP_IP_MAX", "lots", "invalid RATE_LIMIT_SIGNUP_IP_MAX"},
		{"RATE_LIMIT_SIGNUP_IP_MAX", "0", "must be positive"},
		{"TURNSTILE_TIMEOUT", "soon", "invalid TURNSTILE_TIMEOUT"},
		{"RATE_LIMIT_STORE", "memcached", "invalid RATE_LIMIT_STORE"},
		{"TRUSTED_PROXIES", "10.0.0.0/33", "invalid TRUSTED_PROXIES"},
		{"TRUSTED_PROXIES", "gateway", "invalid TRUSTED_PROXIES"},
	}
	for _, tc := range tests {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadConfig_TrustedProxies(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.10 ,2001:db8::/32,10.1.2.3/16")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.0.2.10/32"),
		netip.MustParsePrefix("2001:db8::/32"),
		netip.MustParsePrefix("10.1.0.0/16"),
	}, cfg.Server.TrustedProxies)
}

func TestLoadConfig_RedisStoreNeedsURL(t *testing.T) {
	t.Setenv("RATE_LIMIT_STORE", "redis")
	t.Setenv("REDIS_URL", "")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestIntegrationToggles(t *testing.T) {
	assert.True(t, SupabaseConfig{URL: "https://x.supabase.co", ServiceRoleKey: "k"}.Enabled())
	assert.False(t, SESConfig{Region: "us-east-1", AccessKeyID: "a", SecretAccessKey: "b"}.Enabled())
	assert.True(t, KafkaConfig{Brokers: []string{"b:9092"}, Topic: "t"}.Enabled())
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
	assert.Equal(t, "mailto:help@example.com?subject=Support%20Request",
		SiteConfig{SupportEmail: "help@example.com"}.MailtoFallback())
}
