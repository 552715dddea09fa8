package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"sme-compliance/internal/config"
	"sme-compliance/internal/domain/ports/adapter"
	"sme-compliance/internal/domain/ports/repository"
	"sme-compliance/internal/infra/adapters/events"
	"sme-compliance/internal/infra/adapters/notify"
	payAdapters "sme-compliance/internal/infra/adapters/payment"
	"sme-compliance/internal/infra/adapters/telegram"
	"sme-compliance/internal/infra/adapters/webhook"
	pg "sme-compliance/internal/infra/db/postgres"
	"sme-compliance/internal/infra/logging"
	red "sme-compliance/internal/infra/redis"
	"sme-compliance/internal/infra/sched"
	"sme-compliance/internal/infra/worker"
	"sme-compliance/internal/usecase"
)

const productName = "SME Compliance"

// app holds every wired component; commands pick what they need.
type app struct {
	cfg    *config.Config
	log    *zerolog.Logger
	pool   *pgxpool.Pool
	redis  red.RedisClient
	outbox repository.OutboxRepository

	payments     usecase.PaymentUseCase
	reconcile    usecase.ReconcileUseCase
	credits      usecase.CreditUseCase
	entitlements usecase.EntitlementUseCase
	auditor      *usecase.Auditor
	verifier     *usecase.CallbackVerifier
	reminderJob  *sched.ReminderJob
	deliverers   worker.Deliverers

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func loadConfig(gf *globalFlags) (*config.Config, *zerolog.Logger, error) {
	cfg, err := config.LoadConfig(gf.configPath, gf.dev)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	return cfg, logging.New(cfg.Log, cfg.Runtime.Dev), nil
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: logger}

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)

	// ---- Redis ----
	rc, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.redis = rc
	a.closers = append(a.closers, func() { _ = rc.Close() })
	limiter := red.NewRateLimiter(rc)
	locker := red.NewLocker(rc)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	payRepo := pg.NewPaymentRepo(pool)
	profileRepo := pg.NewProfileRepoCacheDecorator(pg.NewProfileRepo(pool), rc, 0)
	creditRepo := pg.NewFeatureCreditRepo(pool)
	notifRepo := pg.NewNotificationRepo(pool)
	outboxRepo := pg.NewOutboxRepo(pool)
	auditRepo := pg.NewAuditRepo(pool)
	a.outbox = outboxRepo

	// ---- Adapters ----
	var gw adapter.MobileMoneyGateway
	if cfg.Mpesa.UseNoop {
		gw = payAdapters.NewNoopGateway()
		logger.Warn().Msg("mpesa.use_noop set; STK pushes are simulated")
	} else {
		d, err := payAdapters.NewDarajaGateway(cfg.Mpesa)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("daraja gateway: %w", err)
		}
		gw = d
	}

	var alerts adapter.OpsAlerter = telegram.NoopAlerter{}
	if cfg.Alerts.TelegramToken != "" {
		al, err := telegram.NewAlerter(cfg.Alerts)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram alerts disabled")
		} else {
			alerts = al
		}
	}

	if sms, err := notify.NewAfricasTalkingSMS(cfg.SMS); err == nil {
		a.deliverers.SMS = sms
	} else if cfg.Runtime.Dev {
		a.deliverers.SMS = notify.LogSMS{Log: logger}
	} else {
		logger.Warn().Err(err).Msg("sms delivery disabled")
	}
	if mailer, err := notify.NewResendMailer(cfg.Email); err == nil {
		a.deliverers.Mail = mailer
	} else if cfg.Runtime.Dev {
		a.deliverers.Mail = notify.LogMailer{Log: logger}
	} else {
		logger.Warn().Err(err).Msg("email delivery disabled")
	}
	if cfg.Webhook.URL != "" {
		pub, err := webhook.NewPublisher(cfg.Webhook)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("webhook: %w", err)
		}
		a.deliverers.Webhook = pub
	}
	publishEvents := false
	if cfg.AMQP.URL != "" {
		rp, err := events.NewRabbitPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("amqp: %w", err)
		}
		a.deliverers.Events = rp
		a.closers = append(a.closers, func() { _ = rp.Close() })
		publishEvents = true
	}

	// ---- Use cases ----
	a.auditor = usecase.NewAuditor(auditRepo, logger)
	a.verifier = usecase.NewCallbackVerifier(usecase.CallbackPolicy{
		Secret:     cfg.Mpesa.CallbackSecret,
		AllowedIPs: cfg.Mpesa.CallbackAllowedIPs,
		Strict:     cfg.Mpesa.CallbackStrict,
	})
	a.payments = usecase.NewPaymentUseCase(payRepo, gw, limiter, alerts, a.auditor,
		usecase.InitiateLimits{Limit: cfg.Mpesa.InitiateLimit, Window: cfg.Mpesa.InitiateWindow},
		cfg.Mpesa.AccountRef, logger)
	a.reconcile = usecase.NewReconcileUseCase(tm, payRepo, profileRepo, creditRepo, notifRepo, outboxRepo, alerts, a.auditor,
		usecase.ReconcileOptions{PublishEvents: publishEvents, ProductName: productName}, logger)
	a.credits = usecase.NewCreditUseCase(creditRepo, a.auditor, logger)
	a.entitlements = usecase.NewEntitlementUseCase(profileRepo, creditRepo, logger)
	reminders := usecase.NewReminderUseCase(tm, profileRepo, notifRepo, outboxRepo, productName, logger)
	a.reminderJob = sched.NewReminderJob(reminders, locker, 0, logger)

	return a, nil
}
