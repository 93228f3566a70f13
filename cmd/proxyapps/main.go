package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"jupyter-proxy-apps/internal/bootstrap"
	"jupyter-proxy-apps/internal/cli"
	"jupyter-proxy-apps/internal/config"
	"jupyter-proxy-apps/internal/launcher"
	"jupyter-proxy-apps/internal/listener"
	"jupyter-proxy-apps/internal/logging"
	httptransport "jupyter-proxy-apps/internal/transport/http"
)

func main() {
	opts, err := cli.ParseCommandArgs(os.Args[1:], true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "proxyapps %s: %v\n", opts.Service, err)
		os.Exit(1)
	}
}

func run(opts cli.Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}

	if opts.Service == "launcher-config" {
		return printLauncherConfig(opts, cfg)
	}

	logCfg := cfg.Log
	if opts.Service == bootstrap.ServiceTypewords && cfg.Proxy.Debug {
		logCfg.Level = "debug"
	}
	log, err := logging.New(logCfg, opts.Service)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, log, opts.Service, opts.Address)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.WithError(err).Warn("close resources failed")
		}
	}()

	router, err := httptransport.NewRouter(app)
	if err != nil {
		return err
	}

	ln, err := listener.Listen(opts.Address)
	if err != nil {
		return err
	}
	return httptransport.Serve(ctx, ln, router, log)
}

func printLauncherConfig(opts cli.Options, cfg *config.Config) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable failed: %w", err)
	}
	servers, err := launcher.Servers(opts.Services, exe, cfg)
	if err != nil {
		return err
	}
	return launcher.Render(os.Stdout, servers, opts.Format)
}
