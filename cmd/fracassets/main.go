package main

import (
	"context"
	"fmt"
	"os"

	"snowbanker/internal/api"
	"snowbanker/internal/logger"

	"github.com/joho/godotenv"
)

// fracassets lists the symbols of every fractionable asset in the
// brokerage's catalog.
func main() {
	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}

	token := "paper"
	if len(os.Args) > 1 {
		token = os.Args[1]
	}
	profile, ok := api.ResolveProfile(token)
	if !ok {
		fmt.Fprintf(os.Stderr, "Usage: %s [paper|live]\n", os.Args[0])
		os.Exit(1)
	}

	trade := api.NewTradeAPI(profile.BaseURL)
	if err := trade.LoadKeys(profile.KeyIDPath, profile.KeySecretPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	assets, err := trade.ListAssets(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	for _, a := range assets {
		if a.Fractionable {
			fmt.Println(a.Symbol)
		}
	}
}
