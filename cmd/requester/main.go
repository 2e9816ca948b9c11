package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"snowbanker/internal/logger"
	"snowbanker/internal/requester"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}

	err := requester.Run(context.Background(), os.Args[1:], requester.Options{})
	switch {
	case err == nil:
	case errors.Is(err, requester.ErrUsage):
		// bad or missing profile token: show usage and exit cleanly
		fmt.Println(requester.Usage())
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
