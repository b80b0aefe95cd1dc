package main

import (
	"context"
	"log"
	"os"

	"cutline/internal/config"
	"cutline/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load(os.Getenv("CUTLINE_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: os.Getenv("CUTLINE_LOG_LEVEL")}); err != nil {
		log.Fatalf("cutlined: %v", err)
	}
}
