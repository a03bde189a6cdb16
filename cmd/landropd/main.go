// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command landropd is the daemon entrypoint: it wires together the
// wire codec, the UDP beacon, the discovery engine, the transfer
// server, and the state controller into one running node. This binary
// only hosts the node itself; it has no interactive shell.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/thejerf/suture/v4"

	"github.com/landrop/landrop/internal/config"
	"github.com/landrop/landrop/internal/filestate"
	"github.com/landrop/landrop/internal/metrics"
	"github.com/landrop/landrop/lib/events"
)

const metricsPollInterval = 10 * time.Second

// CLI is the daemon's startup-flag surface.
type CLI struct {
	Config        string `default:"" help:"Path to a YAML configuration file overlaying the defaults"`
	StorageDir    string `default:"./landrop-data" help:"Directory holding shared files and the .meta metadata store"`
	BindIP        string `help:"Bind address for all sockets (overrides the config file)"`
	TCPPort       int    `help:"Transfer protocol listen port (overrides the config file)"`
	UDPPort       int    `help:"Discovery unicast listen port (overrides the config file)"`
	BroadcastPort int    `help:"Discovery broadcast port (overrides the config file)"`
	MetricsListen string `help:"Address to serve /metrics on; empty disables it (overrides the config file)"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli, kong.Description("A local-network peer-to-peer file sharing daemon."))
	if err := kctx.Run(); err != nil {
		log.Fatalln("landropd:", err)
	}
}

func (cli *CLI) Run() error {
	cfg := config.Defaults()
	if cli.Config != "" {
		loaded, err := config.Load(cli.Config)
		if err != nil {
			return fmt.Errorf("loading config %q: %w", cli.Config, err)
		}
		cfg = loaded
	}
	applyOverrides(&cfg, *cli)
	cfg.StorageDir = cli.StorageDir

	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		return fmt.Errorf("creating storage dir: %w", err)
	}

	evt := events.NewLogger()
	controller, err := filestate.New(cfg, cfg.StorageDir, evt)
	if err != nil {
		return fmt.Errorf("starting node: %w", err)
	}
	if err := controller.LoadPersisted(); err != nil {
		return fmt.Errorf("loading persisted metadata: %w", err)
	}

	main := suture.New("landropd", suture.Spec{PassThroughPanics: true})
	for _, svc := range controller.Services() {
		main.Add(svc)
	}
	main.Add(metrics.NewPoller(controller, metricsPollInterval))

	if cfg.MetricsListenAddr != "" {
		go serveMetrics(cfg.MetricsListenAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		controller.Stop()
	}()

	if err := controller.Bootstrap(); err != nil {
		l.Warnf("landropd: initial HELLO broadcast failed: %v", err)
	}

	log.Printf("landropd: listening on %s udp=%d tcp=%d broadcast=%d, storage=%s",
		cfg.BindIP, cfg.UDPPort, cfg.TCPPort, cfg.BroadcastPort, cfg.StorageDir)

	return main.Serve(ctx)
}

func applyOverrides(cfg *config.Config, cli CLI) {
	if cli.BindIP != "" {
		cfg.BindIP = cli.BindIP
	}
	if cli.TCPPort != 0 {
		cfg.TCPPort = cli.TCPPort
	}
	if cli.UDPPort != 0 {
		cfg.UDPPort = cli.UDPPort
	}
	if cli.BroadcastPort != 0 {
		cfg.BroadcastPort = cli.BroadcastPort
	}
	if cli.MetricsListen != "" {
		cfg.MetricsListenAddr = cli.MetricsListen
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		l.Warnf("landropd: metrics listener stopped: %v", err)
	}
}
