// Command tiktokshop runs the authorization and webhook endpoints of a
// multi-tenant TikTok Shop connection service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gocmd "github.com/goliatone/go-command"
	glog "github.com/goliatone/go-logger/glog"
	tiktokshop "github.com/goliatone/go-tiktokshop"
	"github.com/goliatone/go-tiktokshop/adapters/gocommand"
	"github.com/goliatone/go-tiktokshop/adapters/gojob"
	"github.com/goliatone/go-tiktokshop/adapters/gologger"
	promadapter "github.com/goliatone/go-tiktokshop/adapters/prometheus"
	"github.com/goliatone/go-tiktokshop/core"
	"github.com/goliatone/go-tiktokshop/httpapi"
	"github.com/goliatone/go-tiktokshop/webhooks"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	_ = godotenv.Load()
	provider, logger := gologger.Resolve("", nil, nil)
	logger = glog.Ensure(logger)

	s, err := parseSettings(os.Args[1:], os.Getenv)
	if err != nil {
		logger.Error("invalid flags", "error", err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, s, provider, logger); err != nil {
		logger.Error("tiktokshop stopped", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, s settings, provider glog.LoggerProvider, logger glog.Logger) error {
	client, err := openPersistence(ctx, s.DatabaseURL)
	if err != nil {
		return err
	}
	defer client.Close()

	st, err := buildStores(client, s)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	jobs := gojob.NewMemoryQueue(0)
	defer jobs.Close()

	loaded, err := core.NewCfgxConfigProvider(fileConfigLoader{path: s.ConfigFile, getenv: os.Getenv}).Load(ctx, core.DefaultConfig())
	if err != nil {
		return err
	}
	service, err := core.NewService(loaded,
		core.WithLoggerProvider(provider),
		core.WithLogger(logger),
		core.WithMetricsRecorder(promadapter.NewRecorder(registry)),
		core.WithCredentialStore(st.credentials),
		core.WithAuthStateStore(st.states),
		core.WithWebhookDispatcher(gojob.NewDispatcher(jobs, loaded.Webhook.Queue)),
	)
	if err != nil {
		return err
	}
	manager, err := tiktokshop.NewManager(service,
		tiktokshop.WithDeliveryLedger(st.factory.WebhookDeliveryStore()),
		tiktokshop.WithBurstController(webhooks.NewBurstController(webhooks.BurstOptions{Mode: webhooks.BurstModeCoalesce})),
	)
	if err != nil {
		return err
	}
	cfg := manager.Service().Config()

	adapter := gocommand.NewRegistryAdapter(gocmd.NewRegistry())
	bindings, err := gocommand.Bind(adapter, gocommand.Dependencies{
		Service:     manager,
		Credentials: manager,
		Deliveries:  st.factory.WebhookDeliveryStore(),
	})
	if err != nil {
		return err
	}
	defer bindings.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		return err
	}

	consumer := gojob.NewConsumer(jobs, logDispatcher(logger), gojob.WithWorkerHook(gologger.NewJobLogHook(logger)))
	go func() {
		if err := consumer.Run(ctx); err != nil {
			logger.Error("webhook worker stopped", "error", err.Error())
		}
	}()
	go pruneDeliveries(ctx, st.factory.WebhookDeliveryStore(), s.DeliveryTTL, logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	httpapi.New(manager,
		httpapi.WithLogger(logger),
		httpapi.WithWebhookPath(cfg.Webhook.Path),
		httpapi.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
	).Mount(router)

	server := &http.Server{Addr: s.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("tiktokshop listening", "addr", s.Addr, "webhook_path", cfg.Webhook.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// logDispatcher is the default webhook handler. Applications replace it
// with their own order and product sync logic.
func logDispatcher(logger glog.Logger) core.WebhookDispatcher {
	return core.WebhookDispatcherFunc(func(_ context.Context, event core.WebhookEvent) error {
		logger.Info("webhook received",
			"type", event.Type,
			"notification_id", event.NotificationID,
			"shop_id", event.ShopID,
		)
		return nil
	})
}

type deliveryPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

func pruneDeliveries(ctx context.Context, store deliveryPruner, ttl time.Duration, logger glog.Logger) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Prune(ctx, time.Now().Add(-ttl))
			if err != nil {
				logger.Warn("prune webhook deliveries failed", "error", err.Error())
				continue
			}
			if removed > 0 {
				logger.Debug("pruned webhook deliveries", "removed", removed)
			}
		}
	}
}
