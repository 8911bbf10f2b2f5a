// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/devgenius/internal/config"
	"github.com/jeranaias/devgenius/internal/server"
)

// HandleServe runs the HTTP API until SIGINT or SIGTERM. Edits to the config
// file are applied without a restart; listener settings need one.
func HandleServe(args Args) error {
	log.SetOutput(stderr)
	cfg, err := loadConfig(args.ConfigPath)
	if err != nil {
		return err
	}
	if args.Port != 0 {
		cfg.Server.Port = args.Port
	}
	app, err := NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := args.ConfigPath
	if path == "" {
		path, _ = config.ConfigPath()
	}
	if path != "" {
		go func() {
			if err := config.Watch(ctx, path, config.DefaultWatchDebounce, app.Apply); err != nil {
				log.Printf("CONFIG_WATCH_FAILED | path=%s error=%v", path, err)
			}
		}()
	}

	srv := server.New(app.Service, app.Sessions, serverOptions(cfg))
	if !args.Quiet {
		fmt.Fprintln(stderr, TitleStyle.Render("DevGenius API")+" "+DimStyle.Render("http://"+srv.Addr()))
	}
	return srv.Run(ctx)
}

func serverOptions(cfg *config.Config) server.Options {
	return server.Options{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		AuthToken:       cfg.Server.AuthToken,
		RateLimit:       cfg.Server.RateLimit,
		RateBurst:       cfg.Server.RateBurst,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration,
		Version:         Version,
		Logger:          log.Default(),
	}
}
