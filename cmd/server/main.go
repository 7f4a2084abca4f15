package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/limited-drops/internal/clock"
	"github.com/iliyamo/limited-drops/internal/config"
	"github.com/iliyamo/limited-drops/internal/database"
	"github.com/iliyamo/limited-drops/internal/handler"
	"github.com/iliyamo/limited-drops/internal/lock"
	"github.com/iliyamo/limited-drops/internal/logger"
	"github.com/iliyamo/limited-drops/internal/membership"
	"github.com/iliyamo/limited-drops/internal/middleware"
	"github.com/iliyamo/limited-drops/internal/queue"
	"github.com/iliyamo/limited-drops/internal/repository"
	"github.com/iliyamo/limited-drops/internal/router"
	"github.com/iliyamo/limited-drops/internal/service"
	"github.com/iliyamo/limited-drops/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Str("evt.name", "app.start").Msg("invalid configuration")
	}
	logger.Configure(cfg.LogPath, cfg.DevMode())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal().Err(err).Str("evt.name", "app.start").Msg("database connection failed")
	}
	defer db.Close()
	if cfg.EnsureSchema {
		if err := database.EnsureSchema(ctx, db); err != nil {
			log.Fatal().Err(err).Str("evt.name", "app.start").Msg("schema setup failed")
		}
	}

	// nil when Redis is unreachable; cache and limiter then pass through
	rdb := config.NewRedisClient(cfg.Redis)

	var locker service.Locker = lock.NewLocalLocker()
	if rdb != nil {
		locker = lock.NewRedisLocker(rdb, cfg.DrawLockExpiry, cfg.DrawLockTries)
	}

	var events service.EventPublisher = queue.LogPublisher{}
	if cfg.AMQPURL != "" {
		events = queue.NewPublisher(cfg.AMQPURL)
		sink := logger.RotatingFile(cfg.NotificationLogPath)
		defer sink.Close()
		go func() {
			if err := queue.StartConsumer(ctx, cfg.AMQPURL, queue.DropLiveQueue, queue.NotificationLogHandler(sink)); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("evt.name", "queue.consumer").Msg("consumer stopped")
			}
		}()
	} else {
		log.Warn().Str("evt.name", "app.start").Msg("AMQP_URL not set, go-live notifications stay pending")
	}

	dropRepo := repository.NewDropRepo(db)
	entryRepo := repository.NewEntryRepo(db)
	subRepo := repository.NewSubscriptionRepo(db)
	members := membership.NewCachedLookup(repository.NewMembershipRepo(db), rdb, cfg.MembershipCacheTTL)

	clk := clock.Real()
	drops := service.NewDropService(dropRepo, members, clk)
	draws := service.NewDrawService(dropRepo, entryRepo, locker, events, clk)
	notify := service.NewNotificationService(dropRepo, subRepo, events, clk)

	cache := middleware.NewResponseCache(cfg.Cache, rdb)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLogger())

	router.RegisterRoutes(e, db)
	router.RegisterPublic(e, handler.NewPublicHandler(drops), cache, cfg.JWTSecret)
	router.RegisterCustomer(e, handler.NewCustomerHandler(drops, draws, notify), cfg.JWTSecret,
		middleware.NewTokenBucket(cfg.RateLimit, rdb))
	router.RegisterAdmin(e, handler.NewAdminHandler(drops, draws, notify, cache, members), cfg.JWTSecret)

	sweeperDone := worker.NewSweeper(cfg.SweepInterval, cfg.AutoDraw, worker.Deps{
		Drops:  drops,
		Draws:  draws,
		Notify: notify,
	}).Start(ctx)

	go func() {
		addr := ":" + cfg.Port
		log.Info().Str("evt.name", "app.start").Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Str("evt.name", "app.start").Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Str("evt.name", "app.stop").Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Str("evt.name", "app.stop").Msg("graceful shutdown failed")
	}
	select {
	case <-sweeperDone:
	case <-time.After(cfg.ShutdownTimeout):
		log.Warn().Str("evt.name", "app.stop").Msg("sweeper did not stop in time")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}
