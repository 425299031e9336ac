package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parlohq/syncd/internal/config"
	"github.com/parlohq/syncd/internal/daemon"
	"go.uber.org/fx"
)

func defaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".syncd", "config.toml")
}

func main() {
	configFlag := flag.String("config", defaultConfigPath(), "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(cfg),
	)

	app.Run()
}
