package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"vshort-bypass/client"
)

const defaultTarget = "https://vshort.xyz/AieQ7fET"

func main() {
	target := defaultTarget
	if len(os.Args) > 1 {
		target = os.Args[1]
	}

	_ = godotenv.Load()

	cfg, err := client.ConfigFromEnv()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	bypasser, err := client.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create bypasser: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// The outcome is reported on the console; the exit status stays 0.
	bypasser.Run(ctx, target)
}
