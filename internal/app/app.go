package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/nordmarkt/storefront/internal/checkout"
	"github.com/nordmarkt/storefront/internal/currency"
	"github.com/nordmarkt/storefront/internal/gateway/cardpay"
	"github.com/nordmarkt/storefront/internal/gateway/invoicer"
	"github.com/nordmarkt/storefront/internal/handler"
	"github.com/nordmarkt/storefront/internal/notify"
	"github.com/nordmarkt/storefront/internal/settlement"
	"github.com/nordmarkt/storefront/internal/storage/postgres"
	"github.com/nordmarkt/storefront/pkg/health"
	"github.com/nordmarkt/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Exchange rates: live feed when configured, static table otherwise.
	var rateSource currency.Source = currency.StaticSource{}
	if cfg.Rates.BaseURL != "" {
		rateSource = currency.NewFeedSource(cfg.Rates.BaseURL)
	}
	converter := currency.NewConverter(rateSource,
		currency.WithRefreshInterval(cfg.Rates.Refresh),
		currency.WithLogger(lg.Named("rates")),
	)

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.DatabasePingCheck(pool))
	healthSvc.AddReadinessCheck("rates", time.Second, health.FreshnessCheck("rate table", converter.Fresh))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	brandRepo := postgres.NewBrandRepository(pool)
	notificationRepo := postgres.NewNotificationRepository(pool)
	settlementStore := postgres.NewSettlementStore(pool)

	// Seller notifications: real SMTP relay when configured, log sink otherwise.
	var mailer notify.Mailer = notify.NewLogMailer(lg.Named("mail"))
	if cfg.SMTP.Addr != "" {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Addr:     cfg.SMTP.Addr,
			From:     cfg.SMTP.From,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		})
	}
	dispatcher := notify.NewDispatcher(notificationRepo, brandRepo, mailer, lg.Named("notify"))

	// Domain services.
	validator := checkout.NewValidator(productRepo, converter)
	engine := settlement.NewEngine(settlementStore, converter, dispatcher,
		settlement.WithTelemetry(m.TracerProvider(), m.MeterProvider()),
	)

	// External payment collaborators.
	gateway := cardpay.NewClient(cardpay.Config{
		BaseURL:       cfg.Gateway.BaseURL,
		APIKey:        cfg.Gateway.APIKey,
		WebhookSecret: cfg.Gateway.WebhookSecret,
	})
	invoices := invoicer.NewClient(invoicer.Config{
		BaseURL: cfg.Invoicer.BaseURL,
		APIKey:  cfg.Invoicer.APIKey,
	})

	// HTTP handlers.
	h := handler.New(
		handler.Config{ImageBaseURL: cfg.ImageBaseURL},
		productRepo,
		validator,
		engine,
		gateway,
		invoices,
		brandRepo,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", cardpay.SignatureHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
