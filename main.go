package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	appinv "github.com/openmall/marketcore/internal/application/inventory"
	apporder "github.com/openmall/marketcore/internal/application/order"
	apppay "github.com/openmall/marketcore/internal/application/payment"
	"github.com/openmall/marketcore/internal/domain/cart"
	dominv "github.com/openmall/marketcore/internal/domain/inventory"
	domorder "github.com/openmall/marketcore/internal/domain/order"
	dompay "github.com/openmall/marketcore/internal/domain/payment"
	"github.com/openmall/marketcore/internal/infrastructure/config"
	"github.com/openmall/marketcore/internal/infrastructure/gateway/sandbox"
	"github.com/openmall/marketcore/internal/infrastructure/id"
	"github.com/openmall/marketcore/internal/infrastructure/memory"
	"github.com/openmall/marketcore/internal/infrastructure/observability/oteltrace"
	"github.com/openmall/marketcore/internal/infrastructure/observability/prometrics"
	"github.com/openmall/marketcore/internal/infrastructure/observability/telemetry"
	"github.com/openmall/marketcore/internal/infrastructure/observability/zaplogger"
	"github.com/openmall/marketcore/internal/infrastructure/outbox"
	"github.com/openmall/marketcore/internal/infrastructure/postgres"
	"github.com/openmall/marketcore/internal/infrastructure/timer"
	"github.com/openmall/marketcore/internal/observability"
	httppresentation "github.com/openmall/marketcore/internal/presentation/http"
)

func main() {
	cfg := config.Load()

	logger := zaplogger.New(
		observability.F("service", cfg.ServiceName),
		observability.F("env", cfg.Env),
	)
	defer func() {
		if s, ok := logger.(interface{ Sync() error }); ok {
			_ = s.Sync()
		}
	}()

	counters, histograms := instruments(prometrics.New(cfg.ServiceName, ""))
	tel := telemetry.New(oteltrace.New(cfg.ServiceName), logger, counters, histograms)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		inventoryRepo dominv.Repository
		orderRepo     domorder.Repository
		paymentRepo   dompay.Repository
		carts         cart.Store
	)
	switch cfg.StorageDriver {
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Error("postgres_connect_failed", observability.F("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			logger.Error("postgres_schema_failed", observability.F("error", err.Error()))
			os.Exit(1)
		}
		inventoryRepo = postgres.NewInventoryRepository(pool)
		orderRepo = postgres.NewOrderRepository(pool)
		paymentRepo = postgres.NewPaymentRepository(pool)
		carts = postgres.NewCartStore(pool)
	default:
		inventoryRepo = memory.NewInventoryRepository()
		orderRepo = memory.NewOrderRepository()
		paymentRepo = memory.NewPaymentRepository()
		carts = memory.NewCartStore()
	}

	// catalog and store permissions are owned by other services upstream;
	// the core keeps an in-process projection of both
	cat := memory.NewCatalog()
	perms := memory.NewStaticPermissions()

	bus := outbox.NewBus(tel)
	bus.Start(ctx)
	defer bus.Stop(context.Background())

	timers := timer.New()
	defer timers.Stop()

	gateways := dompay.NewRegistry(sandbox.New(dompay.MethodAlipay, cfg.GatewaySecret))
	idgen := id.NewUUIDGenerator()

	inventoryService := appinv.NewService(inventoryRepo, cat, bus, tel)
	orderService := apporder.NewService(orderRepo, paymentRepo, carts, cat, inventoryService, perms, idgen, bus, tel)
	paymentService := apppay.NewService(paymentRepo, gateways, timers, idgen, bus, tel,
		apppay.WithTimeout(cfg.PaymentTimeout),
		apppay.WithSweepInterval(cfg.SweepInterval),
	)

	apporder.NewWorker(orderRepo, inventoryService, tel).Start(bus)
	apporder.NewNotifyWorker(&logNotifier{log: logger.With(observability.F("component", "notifier"))}, tel).Start(bus)
	apppay.NewWorker(paymentService, tel).Start(bus)

	go paymentService.StartSweep(ctx)

	if cfg.Env == "dev" && cfg.StorageDriver == "memory" {
		seedDemo(ctx, cat, perms, inventoryService, logger)
	}

	handler := httppresentation.NewHandler(inventoryService, orderService, paymentService, carts, tel)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		logger.Info("http_server_start", observability.F("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_error", observability.F("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_server_shutdown_error", observability.F("error", err.Error()))
	} else {
		logger.Info("http_server_stopped")
	}
}

func instruments(reg prometrics.Registry) (map[string]observability.Counter, map[string]observability.Histogram) {
	counters := map[string]observability.Counter{
		observability.MetricHTTPRequests: reg.Counter(
			observability.MetricHTTPRequests, "Total HTTP requests.", "method", "route", "status"),
		observability.MetricInventoryOps: reg.Counter(
			observability.MetricInventoryOps, "Total inventory ledger operations.", "op"),
		observability.MetricInventoryConflicts: reg.Counter(
			observability.MetricInventoryConflicts, "Inventory writes retried after a version conflict.", "op"),
		observability.MetricOrdersCreated: reg.Counter(
			observability.MetricOrdersCreated, "Orders created."),
		observability.MetricOrderTransitions: reg.Counter(
			observability.MetricOrderTransitions, "Order state transitions.", "event"),
		observability.MetricPaymentsCompleted: reg.Counter(
			observability.MetricPaymentsCompleted, "Payments reaching a terminal state.", "outcome"),
		observability.MetricRefundAttempts: reg.Counter(
			observability.MetricRefundAttempts, "Refund attempts against the gateway."),
		observability.MetricEventsPublished: reg.Counter(
			observability.MetricEventsPublished, "Domain events published on the bus.", "event"),
		observability.MetricEventsHandled: reg.Counter(
			observability.MetricEventsHandled, "Domain events handled by workers.", "event"),
	}
	histograms := map[string]observability.Histogram{
		observability.MetricHTTPRequestDuration: reg.Histogram(
			observability.MetricHTTPRequestDuration, "HTTP request latency in seconds.",
			prometheus.DefBuckets, "method", "route", "status"),
	}
	return counters, histograms
}

// logNotifier stands in for a real notification channel; deliveries are
// visible in the service log.
type logNotifier struct {
	log observability.Logger
}

func (n *logNotifier) Notify(_ context.Context, userID, title, body string) error {
	n.log.Info("user_notification",
		observability.F("user_id", userID),
		observability.F("title", title),
		observability.F("body", body),
	)
	return nil
}

// seedDemo loads a small catalog so the API is exercisable out of the box.
func seedDemo(ctx context.Context, cat *memory.Catalog, perms *memory.StaticPermissions, inv appinv.Usecase, logger observability.Logger) {
	products := []struct {
		id      string
		storeID string
		price   string
		stock   int
	}{
		{"prod-espresso", "store-coffee", "3.50", 100},
		{"prod-grinder", "store-coffee", "129.90", 25},
		{"prod-notebook", "store-paper", "8.00", 200},
	}
	for _, p := range products {
		price, err := decimal.NewFromString(p.price)
		if err != nil {
			continue
		}
		cat.AddProduct(p.id, p.storeID, price)
		if _, err := inv.Init(ctx, p.id, p.stock); err != nil {
			logger.Warn("seed_inventory_failed",
				observability.F("product_id", p.id),
				observability.F("error", err.Error()),
			)
		}
	}
	perms.Grant("merchant-coffee", "store-coffee")
	perms.Grant("merchant-paper", "store-paper")
	logger.Info("demo_catalog_seeded", observability.F("products", len(products)))
}
