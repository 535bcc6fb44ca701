package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/overbid/live-auction-backend/internal/config"
	"github.com/overbid/live-auction-backend/internal/httpapi"
	"github.com/overbid/live-auction-backend/internal/product"
	"github.com/overbid/live-auction-backend/internal/registry"
	"github.com/overbid/live-auction-backend/internal/rtc"
	"github.com/overbid/live-auction-backend/internal/session"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Load()

	store, err := product.Open(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("connect product db", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := registry.New(ctx, store, rtc.NewPionFactory(logger), session.Timing{
		Tick:        cfg.TickPeriod,
		Description: cfg.DescriptionTime,
		Grace:       cfg.GraceTime,
	}, logger)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(reg, logger),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		reg.Inbox() <- registry.Shutdown{}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
