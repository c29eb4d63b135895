package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jameshartig/enever/pkg/common"
	"github.com/jameshartig/enever/pkg/coordinator"
	"github.com/jameshartig/enever/pkg/enever"
	"github.com/jameshartig/enever/pkg/log"
	"github.com/jameshartig/enever/pkg/policy"
	"github.com/jameshartig/enever/pkg/quota"
	"github.com/jameshartig/enever/pkg/server"
	"github.com/jameshartig/enever/pkg/storage"
	"github.com/jameshartig/enever/pkg/view"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
	"github.com/robfig/cron/v3"
)

func main() {
	// init packages
	clock := common.ConfiguredClock()
	s := storage.Configured()
	counter := quota.NewCounter(s, clock)
	client := enever.Configured(counter, clock)
	p := policy.Configured(clock)
	c := coordinator.Configured(client, p, clock, counter)
	v := view.Configured(c, counter, clock)

	// init server
	srv := server.Configured(v, c, clock)

	tickInterval := lflag.Duration("tick-interval", 5*time.Minute, "How often to check whether feeds are due (0 to rely on POST /api/update)")

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	log.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()

	if err := counter.Load(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to load request counter", "error", err)
		os.Exit(1)
	}

	c.Subscribe(func(u coordinator.Update) {
		log.Ctx(ctx).DebugContext(ctx, "feeds updated", slog.Any("feeds", u.Feeds))
	})

	if *tickInterval > 0 {
		cr := cron.New(
			cron.WithLocation(clock.Location()),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		)
		if _, err := cr.AddFunc("@every "+tickInterval.String(), func() { c.Tick(ctx) }); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "invalid tick interval", "error", err)
			os.Exit(1)
		}
		cr.Start()
		defer func() {
			<-cr.Stop().Done()
		}()

		// every feed is due on a cold start
		go c.Tick(ctx)
	}

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
