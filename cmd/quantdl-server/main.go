package main

import (
	"flag"
	"log/slog"
	"os"

	"quantdl/internal/app"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	application, err := app.NewApplication(*configPath)
	if err != nil {
		slog.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
