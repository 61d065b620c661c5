package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/orders/cache"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/orders/cart"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/orders/config"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/orders/httpapi"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/orders/order"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/orders/storage"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/orders/websocket"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/pkg/messaging"
)

type App struct {
	cfg        config.Config
	logger     *slog.Logger
	store      *storage.Store
	orderCache *cache.OrderCache
	wsHub      *websocket.Hub
	dispatcher *messaging.Dispatcher
	httpSrv    *http.Server
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	store, err := storage.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	orderCache := cache.New(cfg.RedisAddr, logger)
	wsHub := websocket.NewHub()

	orderSvc := order.NewService(store.Pool(), logger)
	cartSvc := cart.NewService(store.Pool())

	dispatcher := messaging.NewDispatcher(logger)
	order.RegisterSagaHandlers(dispatcher, orderSvc, wsHub, orderCache)

	api := httpapi.NewServer(orderSvc, cartSvc, orderCache, logger)
	wsHandler := websocket.NewHandler(wsHub, orderSvc, logger)
	api.HandleFunc("GET /orders/{orderID}/ws", wsHandler.ServeWS)

	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api,
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		orderCache: orderCache,
		wsHub:      wsHub,
		dispatcher: dispatcher,
		httpSrv:    httpSrv,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)

	go a.wsHub.Run(ctx)

	// Orders taken while the broker is down sit in the outbox, so HTTP
	// serving starts without waiting for the bus.
	go func() {
		errCh <- a.runBus(ctx)
	}()

	go func() {
		a.logger.Info("orders http server listening", "addr", a.cfg.HTTPAddr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// runBus owns the broker connection: it drains the outbox into the
// exchange and consumes the saga events this service reacts to.
func (a *App) runBus(ctx context.Context) error {
	conn, err := messaging.Dial(ctx, a.cfg.RabbitURL, a.cfg.RabbitDialAttempts, a.logger)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	defer conn.Close()

	publisher, err := messaging.NewRabbitPublisher(conn, a.cfg.EventsExchange)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	defer publisher.Close()

	outbox := messaging.NewOutboxDispatcher(
		a.store.Pool(), publisher, "order_outbox",
		a.cfg.OutboxInterval, a.cfg.OutboxBatch, a.logger,
	)
	outbox.Start(ctx)

	consumer, err := messaging.NewRabbitConsumer(conn, a.cfg.EventsExchange, a.cfg.EventsQueue, a.cfg.MaxRedeliveries, a.logger)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}

	a.logger.Info("order saga consumer started", "queue", a.cfg.EventsQueue)
	return consumer.Start(ctx, a.dispatcher.Handle)
}

func (a *App) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownGracePeriod)
	defer cancel()
	_ = a.httpSrv.Shutdown(shutdownCtx)
	_ = a.orderCache.Close()
	a.store.Close()
}

func Run() error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer app.Close(ctx)

	return app.Run(ctx)
}
