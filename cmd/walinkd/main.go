package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ticlin/walink/internal/config"
	"github.com/ticlin/walink/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "path to config.toml (default: <data_dir>/config.toml)")
	flag.Parse()

	path := *configFlag
	if path == "" {
		path = config.ConfigPath(config.Default().DataDir)
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Gateway.BaseURL == "" {
		fmt.Fprintln(os.Stderr, "error: gateway base URL is not configured (set gateway.base_url or WALINK_GATEWAY_URL)")
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(cfg),
	)

	app.Run()
}
