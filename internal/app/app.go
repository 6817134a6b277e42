// Package app wires configuration into the running pipeline: store, token keys, notification
// channels, escalation policy, rate limiter, and telemetry. Shared by cmd/server and cmd/sweeper.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"attribute-change-control/backend/internal/audit"
	"attribute-change-control/backend/internal/config"
	"attribute-change-control/backend/internal/db"
	"attribute-change-control/backend/internal/devotp"
	"attribute-change-control/backend/internal/notify"
	"attribute-change-control/backend/internal/notify/email"
	"attribute-change-control/backend/internal/notify/sms"
	"attribute-change-control/backend/internal/policy/engine"
	"attribute-change-control/backend/internal/ratelimit"
	rlmetrics "attribute-change-control/backend/internal/ratelimit/metrics"
	"attribute-change-control/backend/internal/security"
	"attribute-change-control/backend/internal/store"
	"attribute-change-control/backend/internal/store/memory"
	"attribute-change-control/backend/internal/telemetry"
	otelsetup "attribute-change-control/backend/internal/telemetry/otel"
	"attribute-change-control/backend/internal/telemetry/producer"
	"attribute-change-control/backend/internal/workflow"
)

// storeTimeout bounds each Postgres transaction.
const storeTimeout = 10 * time.Second

// App holds the wired components. Fields not configured are nil.
type App struct {
	Config      *config.Config
	Workflow    *workflow.Service
	Store       store.UnitOfWork
	DB          *sql.DB
	AuditLogger *audit.Logger
	Policy      *engine.OPAEvaluator
	Registry    *prometheus.Registry
	Outbox      *devotp.MemoryStore
	Providers   *otelsetup.Providers

	closers []func(context.Context) error
}

// Build wires every component from cfg. Call Close on the result when done.
func Build(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{Config: cfg, Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	a.AuditLogger = audit.NewLogger(a.Store.Reader().Audit, audit.OriginIP)

	tokens, err := tokenProvider(cfg)
	if err != nil {
		return nil, err
	}

	policy, err := engine.LoadPolicyFile(cfg.EscalationPolicyPath)
	if err != nil {
		return nil, err
	}
	a.Policy, err = engine.NewOPAEvaluator(ctx, policy)
	if err != nil {
		return nil, err
	}

	a.Providers, err = otelsetup.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.OTLPInsecure)
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}
	a.Providers.SetGlobal()
	a.closers = append(a.closers, a.Providers.Shutdown)
	metrics, err := telemetry.NewMetrics(a.Providers.MeterProvider.Meter("attribute-change-control/workflow"))
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	svc, err := workflow.New(workflow.ConfigFrom(cfg), workflow.Deps{
		Store:      a.Store,
		Tokens:     tokens,
		Hasher:     security.NewHasher(cfg.OTPHashCost),
		Notifier:   a.notifier(),
		Escalation: a.Policy,
		Limiter:    a.limiter(),
		Events:     a.events(),
		Metrics:    metrics,
	})
	if err != nil {
		return nil, err
	}
	a.Workflow = svc
	return a, nil
}

// Close releases every resource opened by Build, newest first.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openStore(ctx context.Context) error {
	if a.Config.DatabaseURL == "" {
		log.Println("app: DATABASE_URL not set; using the in-memory store with demo subjects")
		mem := memory.New()
		if _, err := Seed(ctx, mem, DemoSubjects(time.Now().UTC())); err != nil {
			return err
		}
		a.Store = mem
		return nil
	}
	conn, err := db.Open(a.Config.DatabaseURL)
	if err != nil {
		return err
	}
	a.DB = conn
	a.closers = append(a.closers, func(context.Context) error { return conn.Close() })
	a.Store = store.NewPostgres(conn, storeTimeout)
	return nil
}

func tokenProvider(cfg *config.Config) (*security.ChangeTokenProvider, error) {
	if cfg.TokenPrivateKey != "" || cfg.TokenPublicKey != "" {
		priv, pub, err := security.LoadKeyPair(cfg.TokenPrivateKey, cfg.TokenPublicKey)
		if err != nil {
			return nil, fmt.Errorf("token keys: %w", err)
		}
		return security.NewChangeTokenProvider(priv, pub, cfg.TokenIssuer, cfg.TokenAudience, cfg.TokenTTL()), nil
	}
	if cfg.IsProduction() {
		return nil, errors.New("token keys: TOKEN_PRIVATE_KEY and TOKEN_PUBLIC_KEY are required when APP_ENV=production")
	}
	log.Println("app: no token keys configured; generated an ephemeral key (links do not survive a restart)")
	priv, pub, err := security.GenerateEphemeralKey()
	if err != nil {
		return nil, fmt.Errorf("token keys: %w", err)
	}
	return security.NewChangeTokenProvider(priv, pub, cfg.TokenIssuer, cfg.TokenAudience, cfg.TokenTTL()), nil
}

// notifier routes links and outcomes to SMTP and codes to SMS Local. With OTP_RETURN_TO_CLIENT every
// message is captured in the dev outbox instead.
func (a *App) notifier() notify.Notifier {
	cfg := a.Config
	if cfg.OTPReturnToClient {
		log.Println("app: OTP_RETURN_TO_CLIENT is set; messages are captured in the dev outbox and not sent")
		a.Outbox = devotp.NewMemoryStore()
		return a.Outbox
	}
	r := &notify.Router{}
	if cfg.SMTPAddr != "" {
		r.Email = email.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	} else {
		log.Println("app: SMTP_ADDR not set; confirmation links cannot be delivered")
	}
	if cfg.SMSLocalAPIKey != "" {
		r.SMS = sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender)
	} else {
		log.Println("app: SMS_LOCAL_API_KEY not set; one-time codes cannot be delivered")
	}
	return r
}

// limiter returns the submit rate limiter: Redis when REDIS_ADDR is set, in-process otherwise.
func (a *App) limiter() ratelimit.Limiter {
	cfg := a.Config
	m := rlmetrics.New(a.Registry)
	var l ratelimit.Limiter
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		rl := ratelimit.NewRedis(client, cfg.SubmitRateWindow())
		rl.Metrics = m
		l = rl
	} else {
		l = ratelimit.NewInMemory(cfg.SubmitRateWindow())
	}
	return &ratelimit.Observed{Limiter: l, Scope: "submit", Metrics: m}
}

// events fans workflow events out to OTel logs and, when KAFKA_BROKERS is set, to Kafka.
func (a *App) events() telemetry.EventEmitter {
	emitters := telemetry.Multi{otelsetup.NewEventEmitter(a.Providers.LoggerProvider)}
	if p := producer.NewKafkaProducer(a.Config.EventsKafkaBrokersList(), a.Config.EventsKafkaTopic); p != nil {
		a.closers = append(a.closers, func(context.Context) error { return p.Close() })
		emitters = append(emitters, p)
	}
	return emitters
}
