package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"snowbanker/internal/api"
	"snowbanker/internal/logger"
	"snowbanker/internal/store"
	"snowbanker/internal/strategy"

	_ "snowbanker/internal/strategy/perbal"
	_ "snowbanker/internal/strategy/thresh"

	"github.com/joho/godotenv"
)

func usage() {
	fmt.Println("Snowbanker: the automated stock trading system.")
	fmt.Printf("Usage: %s -c /path/to/config.json\n", os.Args[0])
	fmt.Println("Available strategies:", strings.Join(strategy.Names(), ", "))
}

func main() {
	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}

	if len(os.Args) < 2 {
		usage()
		return
	}

	cfgPath := flag.String("c", "", "path to a snowbanker configuration file")
	flag.Usage = usage
	flag.Parse()

	if *cfgPath == "" {
		fmt.Println("No configuration file specified. Exiting.")
		os.Exit(1)
	}

	cfg, err := store.LoadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configurations:", err)
		os.Exit(1)
	}

	factory, ok := strategy.Lookup(cfg.Strat.Name)
	if !ok {
		fmt.Printf("Invalid strategy name: %s. Available strategies:\n", cfg.Strat.Name)
		for _, name := range strategy.Names() {
			fmt.Println("  " + name)
		}
		os.Exit(1)
	}
	fmt.Printf("Selected strategy: %s.\n", cfg.Strat.Name)

	trade := api.NewTradeAPI(cfg.API.URL)
	if err := trade.LoadKeys(cfg.APIKeyPath(), cfg.SecretKeyPath()); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load API keys:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer logger.Shutdown(context.Background())

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		logger.Info(ctx, "Shutting down...")
		cancel()
	}()

	name := fmt.Sprintf("%s-%d", cfg.Strat.Name, cfg.Strat.TickSeconds)
	strat := factory(name, strategy.Deps{
		Trade:      trade,
		HistoryCap: cfg.Assets.HistoryLength,
	})
	if err := strat.Init(ctx, cfg.Strat.WorkDir, cfg.Strat.ConfigPath); err != nil {
		logger.ErrorWithErr(ctx, "Strategy init failed", err, "strategy", strat.Name())
		os.Exit(1)
	}

	tickRate := time.Duration(cfg.Strat.TickSeconds) * time.Second
	tick := time.NewTicker(tickRate)
	defer tick.Stop()

	logger.Info(ctx, "Snowbanker started", "strategy", strat.Name(), "tick_rate", tickRate)
	for {
		if err := strat.Tick(ctx); err != nil {
			logger.ErrorWithErr(ctx, "Tick failed", err, "strategy", strat.Name())
		}
		select {
		case <-tick.C:
		case <-ctx.Done():
			return
		}
	}
}
