package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/izikwen-client/api"
	"github.com/jrsteele09/izikwen-client/auth"
	"github.com/jrsteele09/izikwen-client/internal/config"
	"github.com/jrsteele09/izikwen-client/orders"
	"github.com/jrsteele09/izikwen-client/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type app struct {
	cfg      config.Config
	store    *token.Store
	client   *api.Client
	auth     *auth.Service
	orders   *orders.Service
	admin    *orders.AdminService
	registry *prometheus.Registry
	metrics  string
	device   auth.Device
}

func main() {
	metricsAddr := flag.String("metrics", "", "serve prometheus metrics on this address while watching (e.g. :9090)")
	deviceName := flag.String("device-name", "", "device name sent with 2FA verification (defaults to the hostname)")
	quiet := flag.Bool("quiet", false, "skip the banner")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	if err := run(*metricsAddr, *deviceName, *quiet, flag.Args()); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func run(metricsAddr, deviceName string, quiet bool, args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg := config.New()
	setupLogging(cfg)
	if !quiet {
		displayAppname(cfg.GetAppName())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.store.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to close token store")
		}
	}()

	a.metrics = metricsAddr
	a.device = auth.LocalDevice()
	if deviceName != "" {
		a.device.Name = deviceName
	}

	cmd, ok := commands[args[0]]
	if !ok {
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
	if len(args)-1 < cmd.args {
		return fmt.Errorf("usage: izikwen %s %s", args[0], cmd.usage)
	}
	return cmd.run(ctx, a, args[1:])
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	repo, err := token.NewRepo(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open token store: %w", err)
	}
	store := token.NewStore(repo)

	reg := prometheus.NewRegistry()
	client, err := api.New(cfg.GetBaseURL(), store,
		api.WithTimeout(cfg.GetRequestTimeout()),
		api.WithMetrics(api.NewMetrics(reg)),
	)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		store:    store,
		client:   client,
		auth:     auth.NewService(client, store),
		orders:   orders.NewService(client),
		admin:    orders.NewAdminService(client),
		registry: reg,
	}, nil
}

func setupLogging(cfg config.EnvConfig) {
	level, err := zerolog.ParseLevel(cfg.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: izikwen [flags] <command> [args]\n\ncommands:\n")
	for _, name := range commandOrder {
		fmt.Fprintf(os.Stderr, "  %-18s %s\n", name, commands[name].usage)
	}
	fmt.Fprintf(os.Stderr, "\nflags:\n")
	flag.PrintDefaults()
}
