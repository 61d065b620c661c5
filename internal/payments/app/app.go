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

	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/payments/chain"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/payments/config"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/payments/httpapi"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/payments/payment"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/payments/storage"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/pkg/messaging"
)

type App struct {
	cfg     config.Config
	logger  *slog.Logger
	store   *storage.Store
	httpSrv *http.Server
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	store, err := storage.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	verifier := chain.NewIndexerVerifier(cfg.ChainIndexerURL)
	coordinator := payment.NewCoordinator(
		payment.NewPostgresStore(store.Pool()),
		verifier,
		cfg.ShopWalletAddress,
		logger,
	)

	api := httpapi.NewServer(coordinator, logger)
	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api,
	}

	return &App{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		httpSrv: httpSrv,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)

	// OrderPaid events sit in the outbox until the bus is reachable, so
	// charge and verify requests never wait on the broker.
	go func() {
		errCh <- a.drainOutbox(ctx)
	}()

	go func() {
		a.logger.Info("payments http server listening", "addr", a.cfg.HTTPAddr)
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

func (a *App) drainOutbox(ctx context.Context) error {
	conn, err := messaging.Dial(ctx, a.cfg.RabbitURL, a.cfg.RabbitDialAttempts, a.logger)
	if err != nil {
		return fmt.Errorf("outbox publisher: %w", err)
	}
	defer conn.Close()

	publisher, err := messaging.NewRabbitPublisher(conn, a.cfg.EventsExchange)
	if err != nil {
		return fmt.Errorf("outbox publisher: %w", err)
	}
	defer publisher.Close()

	dispatcher := messaging.NewOutboxDispatcher(
		a.store.Pool(), publisher, "payment_outbox",
		a.cfg.OutboxInterval, a.cfg.OutboxBatch, a.logger,
	)
	dispatcher.Start(ctx)
	a.logger.Info("payment outbox dispatcher started")

	<-ctx.Done()
	return nil
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
