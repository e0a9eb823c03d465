package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/deathcert/registry/internal/auditlog"
	"github.com/deathcert/registry/internal/auth"
	"github.com/deathcert/registry/internal/chain"
	"github.com/deathcert/registry/internal/email"
	"github.com/deathcert/registry/internal/ethrpc"
	"github.com/deathcert/registry/internal/health"
	"github.com/deathcert/registry/internal/pending"
	"github.com/deathcert/registry/internal/pinning"
	"github.com/deathcert/registry/internal/registry/handler"
	"github.com/deathcert/registry/internal/registry/service"
	"github.com/deathcert/registry/internal/webhooks"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("registry failed", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	loadConfig(logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// ── Database (only when a backend needs it) ──────────────────────────────
	var db *pgxpool.Pool
	if needsDatabase() {
		var err error
		db, err = pgxpool.New(ctx, viper.GetString("database.url"))
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()

		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")
	}

	// ── Pending store ────────────────────────────────────────────────────────
	persister, closePersister, err := openPersister(db)
	if err != nil {
		return err
	}
	defer closePersister()

	store := pending.NewStore(ctx, persister, logger,
		pending.WithRecoverProcessing(viper.GetBool("pending.recover_processing")),
		pending.WithObserver(handler.ObservePending),
	)
	logger.Info("pending store ready",
		zap.String("backend", viper.GetString("pending.backend")),
		zap.Int("records", store.Len()),
	)

	// ── Audit log ─────────────────────────────────────────────────────────────
	var audit auditlog.Log = auditlog.NewMemoryLog()
	if viper.GetString("audit.backend") == "postgres" {
		audit = auditlog.NewPostgresLog(db, logger)
	}
	if err := audit.Verify(ctx); err != nil {
		logger.Warn("audit log integrity check FAILED", zap.Error(err))
	} else {
		n, _ := audit.Len(ctx)
		root, _ := audit.Root(ctx)
		logger.Info("audit log verified", zap.Int("entries", n), zap.String("root", root))
	}

	// ── Ledger RPC + wallet ──────────────────────────────────────────────────
	rpcURL := viper.GetString("chain.rpc_url")
	if rpcURL == "" {
		return errors.New("chain.rpc_url is required")
	}
	rpc := ethrpc.NewBackend(rpcURL, viper.GetDuration("chain.rpc_timeout"))

	w, stopWallet, err := openWallet(ctx, rpc, logger)
	if err != nil {
		return err
	}
	defer stopWallet()

	ledger, err := chain.NewClient(ctx, rpc, w, chain.Config{
		ContractAddress:     viper.GetString("chain.contract_address"),
		ReceiptPollInterval: viper.GetDuration("chain.receipt_poll_interval"),
		ConfirmTimeout:      viper.GetDuration("chain.confirm_timeout"),
	}, logger)
	if err != nil {
		return fmt.Errorf("ledger client: %w", err)
	}

	// ── Pinning ───────────────────────────────────────────────────────────────
	pinClient := pinning.New(pinning.Config{
		APIURL:     viper.GetString("pinning.api_url"),
		GatewayURL: viper.GetString("pinning.gateway_url"),
		JWT:        viper.GetString("pinning.jwt"),
		APIKey:     viper.GetString("pinning.api_key"),
		SecretKey:  viper.GetString("pinning.secret_key"),
		Timeout:    viper.GetDuration("pinning.timeout"),
	}, logger)
	pinner := handler.InstrumentPinner(pinClient)

	// ── Event fan-out: webhooks + email ──────────────────────────────────────
	var dispatchers []service.EventDispatcher

	var hooks *webhooks.Dispatcher
	var hookRepo *webhooks.Repository
	if urls := viper.GetStringSlice("webhooks.urls"); len(urls) > 0 {
		hooks = webhooks.NewDispatcher(webhooks.Config{
			URLs:   urls,
			Events: viper.GetStringSlice("webhooks.events"),
			Secret: viper.GetString("webhooks.secret"),
		}, logger)
		hooks.SetMetricsRecorder(handler.RecordWebhookDelivery)
		if viper.GetBool("webhooks.store_deliveries") {
			hookRepo = webhooks.NewRepository(db)
			hooks.SetDeliveryRecorder(hookRepo)
		}
		dispatchers = append(dispatchers, hooks)
		logger.Info("webhooks enabled", zap.Int("subscriptions", len(urls)))
	}

	var notifier *email.Notifier
	if recipients := viper.GetStringSlice("email.recipients"); len(recipients) > 0 {
		var sender email.EmailSender
		if host := viper.GetString("email.smtp_host"); host != "" {
			sender = email.NewSMTPSender(
				host,
				viper.GetInt("email.smtp_port"),
				viper.GetString("email.smtp_username"),
				viper.GetString("email.smtp_password"),
				viper.GetString("email.from_address"),
			)
			logger.Info("email notifications via SMTP", zap.String("host", host))
		} else {
			sender = email.NewNoopSender(logger)
			logger.Info("email notifications logged only (no SMTP host)")
		}
		notifier = email.NewNotifier(sender, recipients, logger)
		notifier.SetTimeout(viper.GetDuration("email.send_timeout"))
		dispatchers = append(dispatchers, notifier)
	}

	// ── Services ─────────────────────────────────────────────────────────────
	lookup := service.NewLookupService(ledger, store, pinner, viper.GetDuration("lookup.cache_ttl"), logger)
	unwatch := lookup.WatchAccounts(w)
	defer unwatch()

	submissions := service.NewSubmissionService(store, lookup, pinner, w, logger)
	if tz := viper.GetString("submission.time_zone"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("submission.time_zone: %w", err)
		}
		submissions.SetLocation(loc)
	}
	approvals := service.NewApprovalService(store, ledger, w, lookup, logger)
	approvals.SetGateway(pinner.GatewayURL)
	roles := service.NewRoleService(ledger, w, logger)

	submissions.SetAuditLog(audit)
	approvals.SetAuditLog(audit)
	roles.SetAuditLog(audit)
	for _, d := range dispatchers {
		submissions.AddDispatcher(d)
		approvals.AddDispatcher(d)
		roles.AddDispatcher(d)
	}

	// ── Operator auth ────────────────────────────────────────────────────────
	authn, err := auth.NewAuthenticator(viper.GetString("auth.operator_secret_hash"))
	if err != nil {
		return err
	}
	if err := checkOpenMode(authn.Open(), viper.GetString("wallet.mode"), viper.GetBool("auth.allow_open")); err != nil {
		return err
	}
	var tokens *auth.TokenIssuer
	if authn.Open() {
		logger.Warn("auth.operator_secret_hash is empty: operator routes are OPEN")
	} else {
		key, err := auth.LoadOrCreateKey(viper.GetString("auth.signing_key_file"))
		if err != nil {
			return fmt.Errorf("operator signing key: %w", err)
		}
		tokens = auth.NewTokenIssuer(key, viper.GetString("auth.issuer"), viper.GetDuration("auth.token_ttl"))
	}

	// ── Dependency health ────────────────────────────────────────────────────
	probes := []health.Probe{{
		Name: "ledger_rpc",
		Check: func(ctx context.Context) error {
			var block string
			return ethrpc.Call(ctx, rpc, &block, "eth_blockNumber")
		},
	}}
	if viper.GetString("pinning.jwt") != "" || viper.GetString("pinning.api_key") != "" {
		probes = append(probes, health.Probe{Name: "pinning", Check: pinClient.Ping})
	}
	if db != nil {
		probes = append(probes, health.Probe{Name: "database", Check: db.Ping})
	}
	checker := health.New(health.Config{
		CheckInterval: viper.GetDuration("health.interval"),
		FailThreshold: viper.GetInt("health.fail_threshold"),
	}, logger, probes...)
	checker.SetMetricsRecord(handler.RecordDependencyCheck)
	checker.SetWebhookDispatch(func(ctx context.Context, eventType string, payload map[string]string) {
		for _, d := range dispatchers {
			d.Dispatch(ctx, eventType, payload)
		}
	})

	// ── Background jobs ──────────────────────────────────────────────────────
	scheduler, err := startJobs(ctx, lookup, checker, logger)
	if err != nil {
		return err
	}

	// ── HTTP ─────────────────────────────────────────────────────────────────
	router := newRouter(ctx, logger)
	handler.NewHealthHandler(checker).Register(router)
	router.GET("/metrics", handler.MetricsHandler())

	v1 := router.Group("/api/v1")
	handler.NewCertificateHandler(submissions, lookup, logger).Register(v1)
	handler.NewPendingHandler(approvals, tokens, logger).Register(v1)
	handler.NewRoleHandler(roles, tokens, logger).Register(v1)
	handler.NewWalletHandler(w, logger).Register(v1)
	handler.NewOperatorHandler(authn, tokens, logger).Register(v1)
	handler.NewAuditHandler(audit, logger).Register(v1)
	if hooks != nil {
		webhooks.NewHandler(hooks, hookRepo, logger).Register(v1.Group("", auth.RequireOperator(tokens)))
	}

	httpPort := viper.GetInt("server.port")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("registry HTTP listening", zap.Int("port", httpPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	<-quit
	logger.Info("shutting down registry...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	if err := scheduler.Shutdown(); err != nil {
		logger.Error("scheduler shutdown error", zap.Error(err))
	}
	if hooks != nil {
		if err := hooks.Close(shutdownCtx); err != nil {
			logger.Warn("webhook deliveries still in flight at shutdown", zap.Error(err))
		}
	}
	if notifier != nil {
		if err := notifier.Close(shutdownCtx); err != nil {
			logger.Warn("email notifications still in flight at shutdown", zap.Error(err))
		}
	}

	logger.Info("registry stopped")
	return nil
}

func needsDatabase() bool {
	return viper.GetString("pending.backend") == "postgres" ||
		viper.GetString("audit.backend") == "postgres" ||
		(viper.GetBool("webhooks.store_deliveries") && len(viper.GetStringSlice("webhooks.urls")) > 0)
}

// startJobs schedules cache eviction and dependency probes.
func startJobs(ctx context.Context, lookup *service.LookupService, checker *health.HealthChecker, logger *zap.Logger) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	if ttl := viper.GetDuration("lookup.cache_ttl"); ttl > 0 {
		_, err = s.NewJob(
			gocron.DurationJob(ttl),
			gocron.NewTask(func() {
				if n := lookup.EvictExpired(); n > 0 {
					logger.Debug("evicted expired lookups", zap.Int("count", n))
				}
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("schedule cache eviction: %w", err)
		}
	}

	_, err = s.NewJob(
		gocron.DurationJob(checker.Interval()),
		gocron.NewTask(func() { checker.CheckAll(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule health checks: %w", err)
	}

	s.Start()
	return s, nil
}

func newRouter(ctx context.Context, logger *zap.Logger) *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS
	corsOrigins := viper.GetStringSlice("server.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit
	maxBody := viper.GetInt64("server.max_body_bytes")
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
		c.Next()
	})

	// Per-IP rate limiting
	if rps := viper.GetInt("server.rate_limit_rps"); rps > 0 {
		router.Use(handler.RateLimiter(ctx, rps, rps*2))
	}

	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))
	return router
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
