package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"portal-auth/internal/audit"
	"portal-auth/internal/bucketing"
	"portal-auth/internal/captcha"
	"portal-auth/internal/client"
	"portal-auth/internal/config"
	"portal-auth/internal/consent"
	"portal-auth/internal/customer"
	"portal-auth/internal/encryption"
	"portal-auth/internal/escalation"
	"portal-auth/internal/hashing"
	"portal-auth/internal/identity"
	"portal-auth/internal/metrics"
	"portal-auth/internal/otp"
	"portal-auth/internal/repository/memory"
	"portal-auth/internal/repository/redis"
	"portal-auth/internal/repository/scylla"
	"portal-auth/internal/service"
	"portal-auth/internal/sms"
	"portal-auth/internal/tls"
	"portal-auth/internal/token"
	"portal-auth/internal/util"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const healthTimeout = 3 * time.Second

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager
	registry   *prometheus.Registry
	metrics    *metrics.Metrics

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.EncryptionManager
	bucketingManager  *bucketing.BucketingManager

	publisher      *audit.Publisher
	serviceFactory *service.ServiceFactory

	background context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once
	closed     chan struct{}
}

// NewFactory loads configuration from the environment and builds every dependency.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()
	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	return New(cfg)
}

// New builds the dependency graph for cfg. Backends that are not configured
// are replaced by in-process implementations outside production.
func New(cfg *config.Config) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	background, cancel := context.WithCancel(context.Background())
	factory := &Factory{
		config:     cfg,
		registry:   prometheus.NewRegistry(),
		background: background,
		cancel:     cancel,
		closed:     make(chan struct{}),
	}
	factory.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory.metrics = metrics.New(factory.registry)

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewTLSManager(cfg.Server, cfg.IsProduction())
	}

	if err := factory.initializeClients(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := factory.initializeManagers(); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	factory.initializeAudit()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.Bool("redis_enabled", factory.redisClient != nil),
		util.String("otp_mode", cfg.Auth.OtpMode),
	)

	return factory, nil
}

// initializeClients connects the optional backends. Failures are fatal in
// production and downgrade to in-process fallbacks elsewhere.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	if f.config.Redis.Enabled() {
		if c, err := client.NewRedisClient(f.config.Redis); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			f.redisClient = c
			util.Info("Redis client initialized and healthy")
		}
	} else if f.config.IsProduction() {
		initErrors = append(initErrors, fmt.Errorf("redis: REDIS_URL is required in production"))
	}

	if f.config.Scylla.Enabled {
		if c, err := scylla.NewScyllaClient(f.config.Scylla); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
		} else {
			f.scyllaClient = c
			if err := f.scyllaClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
			} else {
				util.Info("ScyllaDB client initialized and healthy")
			}
		}
	}

	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config.Kafka); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	if f.config.Elasticsearch.Enabled {
		if c, err := client.NewElasticsearchClient(f.config.Elasticsearch, f.config.IsDevelopment()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else {
			f.esClient = c
			if err := f.esClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("elasticsearch health check: %w", err))
			} else {
				util.Info("Elasticsearch client initialized and healthy")
			}
		}
	}

	if f.config.Clickhouse.Enabled {
		if c, err := client.NewClickHouseClient(f.config.Clickhouse, f.config.IsProduction()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = c
			if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
			} else {
				util.Info("ClickHouse client initialized and healthy")
			}
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			f.closeClients()
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers initializes hashing, encryption, and bucketing managers
func (f *Factory) initializeManagers() error {
	f.hasher = hashing.NewHasher(f.config.Hashing)
	f.hasher.StartPepperRotation(f.background)

	var kmsAPI encryption.KMSAPI
	if f.config.KMS.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		kmsAPI = kms.NewFromConfig(awsCfg)
	}

	em, err := encryption.NewEncryptionManager(f.config.KMS, kmsAPI)
	if err != nil {
		return err
	}
	f.encryptionManager = em
	f.bucketingManager = bucketing.NewBucketingManager(f.config.Bucketing)

	util.Info("Managers initialized successfully",
		util.Bool("kms_enabled", f.config.KMS.Enabled),
		util.Int("lock_stripes", f.config.Bucketing.LockStripes),
	)
	return nil
}

func (f *Factory) initializeAudit() {
	logger := util.Named("audit")
	sinks := []audit.Sink{audit.NewLogSink(logger)}

	if f.kafkaProducer != nil {
		sinks = append(sinks, audit.NewKafkaSink(f.kafkaProducer, f.config.Kafka.AuditTopic))
	}
	if f.esClient != nil {
		sinks = append(sinks, audit.NewSearchSink(f.esClient, f.config.Elasticsearch.AuditIndex))
	}
	if f.clickhouseClient != nil {
		analytics := audit.NewAnalyticsSink(f.clickhouseClient, f.config.Clickhouse.Table)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := analytics.EnsureTable(ctx); err != nil {
			util.Warn("ClickHouse audit table unavailable - skipping analytics sink", util.ErrorField(err))
		} else {
			sinks = append(sinks, analytics)
		}
		cancel()
	}

	f.publisher = audit.NewPublisher(sinks, f.config.Audit.BufferSize, f.bucketingManager, logger, f.metrics.IncAuditDropped)
	f.publisher.Start()
}

// ==============================
// Stores
// ==============================

func (f *Factory) challengeStore() otp.ChallengeStore {
	if f.redisClient != nil {
		return redis.NewChallengeStore(f.redisClient)
	}
	return memory.NewChallengeStore()
}

func (f *Factory) sessionStore() service.SessionStore {
	if f.redisClient != nil {
		return redis.NewSessionStore(f.redisClient, f.encryptionManager, f.config.Auth.SessionIdleTTL)
	}
	return memory.NewSessionStore(f.config.Auth.SessionIdleTTL)
}

func (f *Factory) resendThrottle() service.ResendThrottle {
	if f.redisClient != nil {
		return redis.NewResendThrottle(f.redisClient)
	}
	return memory.NewResendThrottle()
}

func (f *Factory) consentStore() consent.Store {
	if f.scyllaClient != nil {
		return scylla.NewConsentRepository(f.scyllaClient)
	}
	return memory.NewConsentStore()
}

func (f *Factory) identityValidator() identity.Validator {
	if f.config.Identity.BaseURL == "" {
		util.Warn("IDENTITY_API_URL not set - accepting any well-formed national ID")
		return identity.DevValidator{}
	}
	return identity.NewRegistryClient(f.config.Identity, util.Named("identity"))
}

func (f *Factory) otpPair() (otp.Issuer, otp.Verifier) {
	if f.config.Auth.OtpMode == config.OtpModeAuthority {
		authority := otp.NewAuthorityClient(f.config.OtpAuthority, util.Named("otp"))
		return authority, authority
	}

	store := f.challengeStore()
	sender := sms.NewGateway(f.config.SMS, f.config.Auth.CountryCode, util.Named("sms"))
	issuer := otp.NewLocalIssuer(store, sender, f.hasher, f.config.Auth.OtpTTL, f.config.SMS.Template,
		util.Named("otp"), otp.WithEcho(f.config.Auth.OtpEchoEnabled))
	verifier := otp.NewLocalVerifier(store, f.hasher, util.Named("otp"))
	return issuer, verifier
}

// ==============================
// Service Factory
// ==============================

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		consentService := consent.NewService(f.consentStore(), f.config.Consent.FormID)
		issuer, verifier := f.otpPair()

		deps := service.AuthDeps{
			Sessions: f.sessionStore(),
			Throttle: f.resendThrottle(),
			Identity: f.identityValidator(),
			Issuer:   issuer,
			Verifier: verifier,
			Policy:   escalation.NewPolicy(f.config.Auth),
			Captcha:  captcha.NewGenerator(f.config.Auth.CaptchaLength),
			Tokens:   token.NewIssuer(f.config.Auth.TokenTTL),
			Consent:  consentService,
			Locks:    service.NewSessionLocks(f.bucketingManager),
			Events:   f.publisher,
			Metrics:  f.metrics,
			Logger:   util.Named("auth"),
			Cooldown: f.config.Auth.ResendCooldown,
			Country:  f.config.Auth.CountryCode,
		}

		customers := customer.NewClient(f.config.CustomerAPI, util.Named("customer"))
		f.serviceFactory = service.NewServiceFactory(deps, customers, consentService, util.Get())
	}
	return f.serviceFactory
}

// ==============================
// Health Checks
// ==============================

// HealthCheck probes every configured backend concurrently. Backends that are
// not configured are absent from the result.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	probes := map[string]func(context.Context) error{}
	if f.redisClient != nil {
		probes["redis"] = f.redisClient.HealthCheck
	}
	if f.scyllaClient != nil {
		probes["scylla"] = f.scyllaClient.HealthCheck
	}
	if f.kafkaProducer != nil {
		probes["kafka"] = f.kafkaProducer.HealthCheck
	}
	if f.esClient != nil {
		probes["elasticsearch"] = f.esClient.HealthCheck
	}
	if f.clickhouseClient != nil {
		probes["clickhouse"] = f.clickhouseClient.HealthCheck
	}

	var (
		mu     sync.Mutex
		result = make(map[string]error, len(probes))
	)
	var g errgroup.Group
	for name, probe := range probes {
		g.Go(func() error {
			err := probe(ctx)
			mu.Lock()
			result[name] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return result
}

// HealthStatus renders HealthCheck for the /health endpoint. Kafka is
// reported but never marks the service unhealthy.
func (f *Factory) HealthStatus(ctx context.Context) map[string]string {
	status := map[string]string{"sessions": "healthy"}
	for name, err := range f.HealthCheck(ctx) {
		switch {
		case err == nil:
			status[name] = "healthy"
		case name == "kafka":
			status[name] = "healthy"
			util.Warn("Kafka health check failed", util.ErrorField(err))
		default:
			status[name] = err.Error()
		}
	}
	return status
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	for _, err := range healthErrors {
		if err != nil {
			return false
		}
	}
	return true
}

// ==============================
// Shutdown
// ==============================

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")
		f.cancel()

		if f.publisher != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			if err := f.publisher.Close(ctx); err != nil {
				util.Error("Audit publisher did not drain", util.ErrorField(err))
			} else {
				util.Info("Audit publisher drained")
			}
			cancel()
		}

		f.closeClients()

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
			util.Info("Encryption manager cache cleared")
		}

		util.Info("Factory shutdown completed")
		util.Sync()
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

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.Close(); err != nil {
			util.Error("Failed to close Kafka producer", util.ErrorField(err))
		} else {
			util.Info("Kafka producer closed")
		}
	}

	if f.scyllaClient != nil {
		f.scyllaClient.Close()
		util.Info("ScyllaDB client closed")
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

// ==============================
// Getters
// ==============================

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

// Gatherer exposes the metrics registry for /metrics.
func (f *Factory) Gatherer() prometheus.Gatherer {
	return f.registry
}

func (f *Factory) Metrics() *metrics.Metrics {
	return f.metrics
}

func (f *Factory) Logger() *zap.Logger {
	return util.Get()
}
