package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"marketing-api/internal/client"
	"marketing-api/internal/config"
	"marketing-api/internal/events"
	"marketing-api/internal/mailer"
	"marketing-api/internal/ratelimit"
	"marketing-api/internal/service"
	"marketing-api/internal/tls"
	"marketing-api/internal/util"
	"marketing-api/internal/verification"
)

// Integration names reported by Integrations and HealthCheck.
const (
	IntegrationTurnstile     = "turnstile"
	IntegrationSupabase      = "supabase"
	IntegrationSES           = "ses"
	IntegrationStripe        = "stripe"
	IntegrationSupportDesk   = "support_endpoint"
	IntegrationRedis         = "redis"
	IntegrationKafka         = "kafka"
	IntegrationElasticsearch = "elasticsearch"
	IntegrationClickhouse    = "clickhouse"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.Manager

	// Clients, nil when the integration is not configured
	redisClient      *client.RedisClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient
	supabaseClient   *client.SupabaseClient
	sesClient        *client.SESClient
	stripeClient     *client.StripeClient
	webhookClient    *client.WebhookClient

	store          ratelimit.Store
	verifier       *verification.TurnstileVerifier
	mailer         *mailer.Mailer
	recorder       *events.Recorder
	serviceFactory *service.ServiceFactory

	stopJanitor context.CancelFunc
	closeOnce   sync.Once
	closed      chan struct{}
}

// NewFactory loads configuration, initialises logging and builds every dependency.
func NewFactory() (*Factory, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	return NewFactoryWithConfig(cfg)
}

// NewFactoryWithConfig builds every dependency from an already loaded config.
func NewFactoryWithConfig(cfg *config.Config) (*Factory, error) {
	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		manager, err := tls.NewManager(cfg.Server, cfg.Environment, util.Named("tls"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize TLS: %w", err)
		}
		factory.tlsManager = manager
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeStore()
	factory.initializeCollaborators()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.String("rate_limit_store", cfg.RateLimit.Store),
		util.Any("integrations", factory.Integrations()),
	)

	return factory, nil
}

// initializeClients builds the configured integrations. Failures are fatal
// in production and downgrade to the documented fallbacks elsewhere.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := f.config
	var initErrors []error

	// Redis
	if cfg.Redis.Enabled() {
		if c, err := client.NewRedisClient(cfg); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			f.redisClient = c
		}
	}

	// Supabase
	if cfg.Supabase.Enabled() {
		if c, err := client.NewSupabaseClient(cfg, util.Named("supabase")); err != nil {
			initErrors = append(initErrors, fmt.Errorf("supabase: %w", err))
		} else {
			f.supabaseClient = c
		}
	}

	// SES
	if cfg.SES.Enabled() {
		if c, err := client.NewSESClient(ctx, cfg, util.Named("ses")); err != nil {
			initErrors = append(initErrors, fmt.Errorf("ses: %w", err))
		} else {
			f.sesClient = c
		}
	}

	// Stripe
	if cfg.Stripe.Enabled() {
		if c, err := client.NewStripeClient(cfg, util.Named("stripe")); err != nil {
			initErrors = append(initErrors, fmt.Errorf("stripe: %w", err))
		} else {
			f.stripeClient = c
		}
	}

	// Support desk webhook
	if cfg.Site.SupportContactEndpoint != "" {
		f.webhookClient = client.NewWebhookClient(cfg.Site.SupportContactEndpoint, util.Named("support_endpoint"))
	}

	// Kafka
	if cfg.Kafka.Enabled() {
		if producer, err := client.NewKafkaProducer(cfg, util.Named("kafka")); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
		}
	}

	// Elasticsearch
	if cfg.Elasticsearch.Enabled() {
		if c, err := client.NewElasticsearchClient(cfg, util.Named("elasticsearch")); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else {
			f.esClient = c
		}
	}

	// ClickHouse
	if cfg.Clickhouse.Enabled() {
		if c, err := client.NewClickHouseClient(cfg, util.Named("clickhouse")); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = c
		}
	}

	if len(initErrors) > 0 {
		if cfg.IsProduction() {
			f.closeClients()
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeStore picks the counter backend.
func (f *Factory) initializeStore() {
	if f.config.RateLimit.Store == "redis" {
		if f.redisClient != nil {
			f.store = ratelimit.NewRedisStore(f.redisClient.Client)
			return
		}
		util.Warn("Redis rate limit store unavailable - falling back to in-memory counters")
	}

	memory := ratelimit.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	memory.StartJanitor(ctx, f.config.RateLimit.JanitorPeriod)
	f.stopJanitor = cancel
	f.store = memory
}

// initializeCollaborators wires clients into the service layer. Absent
// clients are passed as untyped nils so services see a nil interface.
func (f *Factory) initializeCollaborators() {
	cfg := f.config

	f.verifier = verification.NewTurnstileVerifier(cfg.Turnstile, util.Named("turnstile"))

	var sender mailer.Sender
	if f.sesClient != nil {
		sender = f.sesClient
	}
	f.mailer = mailer.New(sender, cfg.SES.MaxSendRate, cfg.Site.SupportEmail, util.Named("mailer"))

	var sinks []events.Sink
	if f.kafkaProducer != nil {
		sinks = append(sinks, f.kafkaProducer)
	}
	if f.esClient != nil {
		sinks = append(sinks, f.esClient)
	}
	if f.clickhouseClient != nil {
		sinks = append(sinks, f.clickhouseClient)
	}
	f.recorder = events.NewRecorder(events.NewFanout(sinks...), util.Named("events"))

	deps := service.Collaborators{
		Verifier: f.verifier,
		Mailer:   f.mailer,
		Recorder: f.recorder,
	}
	if f.supabaseClient != nil {
		deps.Datastore = f.supabaseClient
	}
	if f.webhookClient != nil {
		deps.Forwarder = f.webhookClient
	}
	if f.stripeClient != nil {
		deps.Payments = f.stripeClient
	}

	f.serviceFactory = service.NewServiceFactory(cfg, f.store, deps, util.Named("service"))
}

// ==============================
// Service Factory
// ==============================
func (f *Factory) ServiceFactory() *service.ServiceFactory {
	return f.serviceFactory
}

// ==============================
// Health Checks
// ==============================

// Integrations reports which optional integrations are configured and live.
func (f *Factory) Integrations() map[string]bool {
	return map[string]bool{
		IntegrationTurnstile:     f.config.Turnstile.SecretKey != "",
		IntegrationSupabase:      f.supabaseClient != nil,
		IntegrationSES:           f.sesClient != nil,
		IntegrationStripe:        f.stripeClient != nil,
		IntegrationSupportDesk:   f.webhookClient != nil,
		IntegrationRedis:         f.redisClient != nil,
		IntegrationKafka:         f.kafkaProducer != nil,
		IntegrationElasticsearch: f.esClient != nil,
		IntegrationClickhouse:    f.clickhouseClient != nil,
	}
}

// HealthCheck pings every live client that supports it.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors[IntegrationRedis] = err
		}
	}
	if f.supabaseClient != nil {
		if err := f.supabaseClient.HealthCheck(ctx); err != nil {
			healthErrors[IntegrationSupabase] = err
		}
	}
	if f.sesClient != nil {
		if err := f.sesClient.HealthCheck(ctx); err != nil {
			healthErrors[IntegrationSES] = err
		}
	}
	if f.esClient != nil {
		if err := f.esClient.HealthCheck(ctx); err != nil {
			healthErrors[IntegrationElasticsearch] = err
		}
	}
	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors[IntegrationClickhouse] = err
		}
	}
	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors[IntegrationKafka] = err
		}
	}

	return healthErrors
}

// ==============================
// Other Utility Methods
// ==============================

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.stopJanitor != nil {
			f.stopJanitor()
		}
		// Drain queued events while the sink clients are still open.
		f.recorder.Close()
		f.closeClients()

		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) closeClients() {
	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.Close(); err != nil {
			util.Error("Failed to close ClickHouse client", util.ErrorField(err))
		} else {
			util.Info("ClickHouse client closed")
		}
	}

	if f.esClient != nil {
		f.esClient.Close()
		util.Info("Elasticsearch client closed")
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.Close(); err != nil {
			util.Error("Failed to close Kafka producer", util.ErrorField(err))
		} else {
			util.Info("Kafka producer closed")
		}
	}

	if f.redisClient != nil {
		if err := f.redisClient.Close(); err != nil {
			util.Error("Failed to close Redis client", util.ErrorField(err))
		} else {
			util.Info("Redis client closed")
		}
	}
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.Manager {
	return f.tlsManager
}

func (f *Factory) Store() ratelimit.Store {
	return f.store
}
