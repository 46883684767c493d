package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"transformerbot/api"
	"transformerbot/config"
	"transformerbot/logger"
	"transformerbot/market"
	"transformerbot/mcp"
	"transformerbot/retry"
	"transformerbot/scheduler"
	"transformerbot/store"
	"transformerbot/strategy"
)

func main() {
	fmt.Println("╔════════════════════════════════════════════════════════════╗")
	fmt.Println("║         🤖 AI-Driven Market Analysis & Trading Loop        ║")
	fmt.Println("╚════════════════════════════════════════════════════════════╝")
	fmt.Println()

	// Load .env if present; OS environment alone is fine too.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load .env file: %v\n", err)
	}

	configFile := "config.json"
	if len(os.Args) > 1 {
		configFile = os.Args[1]
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration %s: %v\n", configFile, err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.Info().
		Str("config", configFile).
		Str("symbol", cfg.Exchange.Symbol).
		Str("timeframe", cfg.Exchange.Timeframe).
		Str("model", cfg.Model.Name).
		Msg("configuration loaded")

	st, err := store.New(cfg.DataDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize data store")
	}
	if cfg.Recorder.Enabled {
		rec, err := store.NewRecorder(cfg.Recorder.DatabaseURL, cfg.Recorder.SQLitePath, log)
		if err != nil {
			log.Warn().Err(err).Msg("trade recorder unavailable, continuing with files only")
		} else {
			defer rec.Close()
			st.SetRecorder(rec)
		}
	}

	strat, err := strategy.New(cfg.Trading, st, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize strategy")
	}

	timing := retry.NewTimingManager(log)
	exchange := market.NewExchange(log, timing)
	sentiment := market.NewSentimentClient(log)
	client := mcp.New(cfg.Model, cfg.ModelFallback, log)

	analyzer := scheduler.NewAnalyzer(
		cfg, exchange, sentiment, st, strat, client,
		logger.NewStreamSink(os.Stdout), log,
	)
	sched := scheduler.New(scheduler.Config{
		Interval:   cfg.Interval(),
		FixedDelay: time.Duration(cfg.Trading.FixedDelaySeconds) * time.Second,
		Cooldown:   time.Duration(cfg.Trading.CooldownAfterErrorSecond) * time.Second,
	}, exchange, log, analyzer.RunCycle)

	apiServer := api.NewServer(cfg, st, timing, log)
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Error().Err(err).Msg("API server stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("starting analysis loop, press Ctrl+C to stop")
	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("analysis loop terminated")
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}
