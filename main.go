package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appcart "github.com/Zhima-Mochi/minishop-storefront/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-storefront/internal/application/catalog"
	"github.com/Zhima-Mochi/minishop-storefront/internal/application/checkout"
	appinventory "github.com/Zhima-Mochi/minishop-storefront/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/minishop-storefront/internal/application/order"
	apppay "github.com/Zhima-Mochi/minishop-storefront/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/config"
	domcart "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	dominv "github.com/Zhima-Mochi/minishop-storefront/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-storefront/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/memory"
	mongostore "github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/mongo"
	infraobs "github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/stripe"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/Zhima-Mochi/minishop-storefront/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/minishop-storefront/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/minishop-storefront/internal/presentation/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout  = 10 * time.Second
	bootstrapTimeout = 30 * time.Second
	shortfallBuffer  = 500
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	baseLogger := logging.MustNewLogger(logging.Options{
		Service: cfg.Service,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
	})
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	systemLogger := logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID)
	if err := run(cfg, baseLogger, systemLogger); err != nil {
		systemLogger.Error("storefront_exit", zap.Error(err))
		os.Exit(1)
	}
}

type stores struct {
	inventory  dominv.Repository
	orders     domorder.Repository
	carts      domcart.Store
	shortfalls dominv.ShortfallLog
	close      func(context.Context) error
}

func run(cfg *config.Config, baseLogger, systemLogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	counters, histograms := prometrics.Instruments(prometrics.New("", "", registry))

	logger := zaplogger.New(baseLogger)
	sysLogger := zaplogger.New(systemLogger)
	tel := infraobs.New(infraobs.Options{
		Tracer:     oteltrace.New(cfg.Service),
		Logger:     logger,
		Counters:   counters,
		Histograms: histograms,
	})

	st, err := openStores(ctx, cfg, sysLogger)
	if err != nil {
		return err
	}

	gateway, localPayments, err := newGateway(cfg, tel, sysLogger)
	if err != nil {
		return err
	}

	// In-process outbox: stock shortfalls are recorded off the request path.
	bus := outbox.NewBus(logger, tel, outbox.Options{})
	bus.Start(context.Background())

	shortfallWorker := appinventory.NewWorker(bus, appinventory.NewRecordShortfallUseCase(st.shortfalls, tel), tel)
	shortfallWorker.Start(workerpresentation.EventLogging(logger, tel))

	ids := id.UUIDGenerator{}
	byOrder := apporder.NewFinalizeOrderUseCase(st.orders, st.inventory, bus, tel)
	bySession := apporder.NewFinalizeSessionUseCase(st.orders, st.inventory, gateway, bus, tel)

	handler := httppresentation.NewHandler(httppresentation.Deps{
		Catalog:         catalog.NewService(st.inventory, st.shortfalls, ids, logger),
		Cart:            appcart.NewService(st.carts, st.inventory, appcart.NewValidateCartUseCase(st.inventory, tel), ids, logger),
		Orders:          apporder.NewService(st.orders, logger),
		Checkout:        checkout.NewStartCheckoutUseCase(st.inventory, st.orders, gateway, ids, checkout.Config{PublicURL: cfg.PublicURL}, tel),
		FinalizeOrder:   apporder.NewFinalizeCallbackUseCase(gateway, byOrder, tel),
		FinalizeSession: bySession,
		Webhook:         apppay.NewHandleWebhookUseCase(gateway, st.orders, byOrder, bySession, tel),
		AdminPassword:   cfg.AdminPassword,
		MetricsHandler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		LocalPayments:   localPayments,
	}, logger, tel)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		systemLogger.Info("http_server_start",
			zap.String("addr", server.Addr),
			zap.String("store", cfg.Store),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			systemLogger.Error("http_server_shutdown_error", zap.Error(err))
			errs = append(errs, err)
		} else {
			systemLogger.Info("http_server_stopped")
		}
		bus.Stop(shutdownCtx)
		if err := st.close(shutdownCtx); err != nil {
			systemLogger.Error("store_close_error", zap.Error(err))
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

func openStores(ctx context.Context, cfg *config.Config, logger observability.Logger) (*stores, error) {
	ctx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
	defer cancel()

	if cfg.Store != config.StoreMongo {
		inv := memory.NewInventoryRepository()
		if err := seedProducts(ctx, inv, cfg.SeedProducts, logger); err != nil {
			return nil, err
		}
		return &stores{
			inventory:  inv,
			orders:     memory.NewOrderRepository(),
			carts:      memory.NewCartStore(),
			shortfalls: memory.NewShortfallLog(shortfallBuffer),
			close:      func(context.Context) error { return nil },
		}, nil
	}

	db, disconnect, err := mongostore.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return nil, err
	}
	products := mongostore.NewProductStore(db)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mongostore.EnsureIndexes(gctx, db) })
	g.Go(func() error { return seedProducts(gctx, products, cfg.SeedProducts, logger) })
	if err := g.Wait(); err != nil {
		_ = disconnect(context.Background())
		return nil, fmt.Errorf("mongo bootstrap: %w", err)
	}

	return &stores{
		inventory:  products,
		orders:     mongostore.NewOrderStore(db),
		carts:      mongostore.NewCartStore(db),
		shortfalls: mongostore.NewShortfallLog(db),
		close:      disconnect,
	}, nil
}

// seedProducts inserts configured products, leaving existing ids untouched.
func seedProducts(ctx context.Context, repo dominv.Repository, seeds []config.SeedProduct, logger observability.Logger) error {
	inserted := 0
	for _, s := range seeds {
		price, err := s.Amount()
		if err != nil {
			return err
		}
		productID := s.ID
		if productID == "" {
			productID = id.UUIDGenerator{}.NewID()
		}
		p, err := dominv.NewProduct(productID, s.Name, price, s.Stock)
		if err != nil {
			return fmt.Errorf("seed %q: %w", s.Name, err)
		}
		p.Category, p.Description, p.ImageURL = s.Category, s.Description, s.ImageURL

		if err := repo.Insert(ctx, p); err != nil {
			if errors.Is(err, dominv.ErrConflict) {
				continue
			}
			return fmt.Errorf("seed %q: %w", s.Name, err)
		}
		inserted++
	}
	if len(seeds) > 0 {
		logger.Info("catalog_seeded",
			observability.F("configured", len(seeds)),
			observability.F("inserted", inserted),
		)
	}
	return nil
}

func newGateway(cfg *config.Config, tel observability.Observability, logger observability.Logger) (dompay.Gateway, httppresentation.LocalPayments, error) {
	if cfg.Stripe.SecretKey != "" {
		gw, err := stripe.New(stripe.Config{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			Currency:      cfg.Stripe.Currency,
		}, tel)
		if err != nil {
			return nil, nil, err
		}
		return gw, nil, nil
	}

	secret := cfg.Stripe.WebhookSecret
	if secret == "" {
		secret = "whsec_local"
	}
	logger.Warn("payment_gateway_local",
		observability.F("reason", "STRIPE_SECRET_KEY not set"),
		observability.F("pay_url", cfg.PublicURL+"/pay/{session_id}"),
	)
	gw := memory.NewGateway(cfg.PublicURL, secret)
	return gw, gw, nil
}
