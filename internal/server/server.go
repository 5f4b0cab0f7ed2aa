package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuencadelplata/ticketeate-sub002/config"
	"github.com/cuencadelplata/ticketeate-sub002/internal/handlers"
	"github.com/cuencadelplata/ticketeate-sub002/internal/helpers"
	"github.com/cuencadelplata/ticketeate-sub002/internal/issuance"
	"github.com/cuencadelplata/ticketeate-sub002/internal/logger"
	"github.com/cuencadelplata/ticketeate-sub002/internal/mercadopago"
	"github.com/cuencadelplata/ticketeate-sub002/internal/middleware"
	"github.com/cuencadelplata/ticketeate-sub002/internal/notifier"
	"github.com/cuencadelplata/ticketeate-sub002/internal/payments"
	"github.com/cuencadelplata/ticketeate-sub002/internal/repository"
	"github.com/cuencadelplata/ticketeate-sub002/internal/wallet"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// App holds every long lived dependency of the service.
type App struct {
	Config      *config.Config
	DB          *gorm.DB
	Redis       *redis.Client
	Provider    *mercadopago.Client
	Sender      notifier.Sender
	DeadLetters *notifier.DeadLetterStore
	Dispatcher  notifier.Dispatcher
	Processor   *payments.Processor
	Wallets     *wallet.Service

	closers []func()
}

// Bootstrap connects storage and builds the payment pipeline. The caller
// owns the returned App and must Close it.
func Bootstrap(cfg *config.Config) (*App, error) {
	db, err := config.InitDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}
	app := &App{Config: cfg, DB: db}
	app.onClose(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	app.DeadLetters, err = notifier.OpenDeadLetterStore(cfg.Notify.DeadLetterPath)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to open dead letter store: %v", err)
	}

	var mailer notifier.Mailer = notifier.LogMailer{}
	if cfg.Mail.ResendAPIKey != "" {
		mailer = notifier.NewResendMailer(cfg.Mail.ResendAPIKey, cfg.Mail.From)
	} else {
		logger.Warnf("RESEND_API_KEY not set, ticket emails will only be logged")
	}
	app.Sender = notifier.NewTicketSender(mailer, cfg.Mail.Timeout)

	app.Provider = mercadopago.NewClient(
		cfg.MercadoPago.BaseURL,
		cfg.MercadoPago.PlatformAccessToken,
		cfg.MercadoPago.Timeout,
		mercadopago.WithOAuthApp(cfg.MercadoPago.ClientID, cfg.MercadoPago.ClientSecret),
	)
	app.Wallets = wallet.NewService(repository.NewSellerAccountRepo(db), app.Provider)
	return app, nil
}

// StartDispatcher selects the notification backend. With rabbitmq the
// returned consumer must be run by the caller; it is nil otherwise.
func (a *App) StartDispatcher() (*notifier.Consumer, error) {
	switch a.Config.Notify.Backend {
	case "rabbitmq", "amqp":
		publisher := notifier.NewAMQPPublisher(a.Config.Notify.RabbitMQURL, a.DeadLetters)
		a.Dispatcher = publisher
		a.onClose(publisher.Close)
		return notifier.NewConsumer(a.Config.Notify.RabbitMQURL, a.Sender, a.DeadLetters, a.Config.Notify.Workers), nil
	case "memory", "":
		pool := notifier.NewPool(a.Sender, a.DeadLetters, a.Config.Notify.Workers, a.Config.Notify.QueueSize)
		a.Dispatcher = pool
		a.onClose(pool.Close)
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported NOTIFY_BACKEND %q", a.Config.Notify.Backend)
	}
}

// BuildProcessor wires the payment pipeline against the current dispatcher.
func (a *App) BuildProcessor() *payments.Processor {
	a.Processor = payments.NewProcessor(
		repository.NewOrderRepo(a.DB),
		a.Provider,
		issuance.NewIssuer(issuance.GormCatalog{}),
		a.Dispatcher,
	)
	return a.Processor
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func Start() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	app, err := Bootstrap(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer, err := app.StartDispatcher()
	if err != nil {
		return err
	}
	if consumer != nil {
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("[CONSUMER] stopped: %v", err)
			}
		}()
	}
	app.BuildProcessor()

	app.Redis = config.NewRedisClient()
	if app.Redis == nil {
		logger.Warnf("redis unavailable, rate limiting disabled")
	} else {
		app.onClose(func() { app.Redis.Close() })
	}

	if !cfg.Local() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	setupRoutes(r, app)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("server listening on %s (env=%s, notify=%s)", httpServer.Addr, cfg.AppEnv, cfg.Notify.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %v", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Infof("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %v", err)
	}
	logger.Infof("server stopped")
	return nil
}

func setupRoutes(r *gin.Engine, app *App) {
	cfg := app.Config
	r.Use(middleware.DatabaseMiddleware(app.DB))

	verifier := helpers.NewSignatureVerifier(cfg.MercadoPago.WebhookSecret, cfg.MercadoPago.SkipSignature)
	verifier.Tolerance = cfg.MercadoPago.SignatureTolerance
	webhook := handlers.NewWebhookHandler(verifier, app.Processor)
	checkout := handlers.NewCheckoutHandler(
		app.Provider,
		repository.NewOrderRepo(app.DB),
		repository.NewEventRepo(app.DB),
		app.Wallets,
		handlers.CheckoutOptions{
			FeePercent:      cfg.MercadoPago.FeePercent,
			Currency:        cfg.MercadoPago.DefaultCurrency,
			NotificationURL: cfg.MercadoPago.NotificationURL,
			BackURLs: mercadopago.BackURLs{
				Success: cfg.MercadoPago.BackURLSuccess,
				Failure: cfg.MercadoPago.BackURLFailure,
				Pending: cfg.MercadoPago.BackURLPending,
			},
		},
	)
	wallets := handlers.NewWalletHandler(app.Wallets)

	r.GET("/healthz", handlers.Health)

	public := r.Group("/v1")
	{
		public.POST("/webhooks/mercadopago", webhook.Receive)
		public.GET("/webhooks/mercadopago", webhook.Status)
	}

	protected := r.Group("/v1")
	protected.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	{
		protected.POST("/checkout/preferences", middleware.RateLimit(cfg.RateLimit, app.Redis), checkout.CreatePreference)
		protected.POST("/checkout/validate", checkout.ValidateCheckout)
		protected.POST("/wallet/refresh", wallets.Refresh)

		me := protected.Group("/me")
		{
			me.GET("/orders", handlers.ListMyOrders)
			me.GET("/tickets", handlers.ListMyTickets)
		}

		orders := protected.Group("/orders")
		{
			orders.GET("", handlers.ListOrders)
			orders.GET("/:reference", handlers.GetOrder)
		}

		tickets := protected.Group("/tickets")
		{
			tickets.GET("/:code/qr", handlers.GetTicketQR)
			tickets.POST("/validate", handlers.ValidateTicket)
		}
	}
}
