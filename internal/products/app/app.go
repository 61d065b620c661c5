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

	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/products/catalog"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/products/config"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/products/httpapi"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/products/inventory"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/products/storage"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/pkg/messaging"
)

type App struct {
	cfg        config.Config
	logger     *slog.Logger
	store      *storage.Store
	dispatcher *messaging.Dispatcher
	httpSrv    *http.Server
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	store, err := storage.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	products := catalog.NewService(store.Pool())
	ledger := inventory.NewPostgresLedger(store.Pool(), logger)

	dispatcher := messaging.NewDispatcher(logger)
	inventory.RegisterLedgerHandlers(dispatcher, ledger)

	api := httpapi.NewServer(products, logger)
	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api,
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		dispatcher: dispatcher,
		httpSrv:    httpSrv,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)

	// The bus comes up in the background; catalog reads must not wait on
	// the broker.
	go func() {
		errCh <- a.consumeEvents(ctx)
	}()

	go func() {
		a.logger.Info("products http server listening", "addr", a.cfg.HTTPAddr)
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

func (a *App) consumeEvents(ctx context.Context) error {
	conn, err := messaging.Dial(ctx, a.cfg.RabbitURL, a.cfg.RabbitDialAttempts, a.logger)
	if err != nil {
		return fmt.Errorf("saga consumer: %w", err)
	}
	defer conn.Close()

	consumer, err := messaging.NewRabbitConsumer(conn, a.cfg.EventsExchange, a.cfg.EventsQueue, a.cfg.MaxRedeliveries, a.logger)
	if err != nil {
		return fmt.Errorf("saga consumer: %w", err)
	}

	a.logger.Info("saga consumer started", "queue", a.cfg.EventsQueue)
	return consumer.Start(ctx, a.dispatcher.Handle)
}

func (a *App) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownGracePeriod)
	defer cancel()
	_ = a.httpSrv.Shutdown(shutdownCtx)
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
