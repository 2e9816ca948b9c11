package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"snowbanker/internal/logger"
	"snowbanker/internal/mirror"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}

	interval := flag.Int("interval", int(mirror.DefaultInterval/time.Second),
		"seconds to sleep between mirror cycles")
	flag.Parse()

	if flag.NArg() < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-interval SECONDS] SOURCE_DIR DEST_DIR\n", os.Args[0])
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		cancel()
	}()

	runner := mirror.NewRunner(mirror.Job{
		Source:   flag.Arg(0),
		Dest:     flag.Arg(1),
		Interval: time.Duration(*interval) * time.Second,
	})

	err := runner.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
	case err != nil:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
