package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/BertoldVdb/battid/battchip/chipopen"
	"github.com/BertoldVdb/battid/battserver/battclient"
	"github.com/BertoldVdb/battid/internal/config"
	"github.com/BertoldVdb/battid/internal/observability"
	"github.com/BertoldVdb/go-misc/httplog"
	"github.com/grandcat/zeroconf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

func main() {
	configFile := flag.String("config", "", "TOML configuration file")
	apiKey := flag.String("apikey", "", "API key to use")
	address := flag.String("addr", ":8066", "Address to listen on")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	advertise := flag.String("advertise", "", "Advertise the server over mDNS with this instance name")

	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile, cfg); err != nil {
			observability.InitLogger("battserver", false).Fatal().Err(err).Msg("Bad configuration")
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "apikey":
			cfg.APIKey = *apiKey
		case "addr":
			cfg.Addr = *address
		case "verbose":
			cfg.Verbose = *verbose
		case "advertise":
			cfg.Advertise = *advertise
		}
	})
	for _, m := range flag.Args() {
		cfg.Chips = append(cfg.Chips, config.Chip{Path: m})
	}

	logger := observability.InitLogger("battserver", cfg.Verbose)

	if err := run(logger, cfg); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func run(logger zerolog.Logger, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	closeChan := make(chan os.Signal, 1)
	signal.Notify(closeChan, os.Interrupt)

	served := openChips(logger, cfg.Chips, chipopen.OpenChip)
	for _, m := range served {
		defer m.chip.Close()
	}

	if len(served) == 0 {
		return errors.New("no devices available")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	mux, err := buildMux(logger, served, reg)
	if err != nil {
		return err
	}

	names := chipNames(served)
	if cfg.APIKey != "" {
		expiry := time.Now().AddDate(10, 0, 0)

		user, pass := authCalculate(cfg.APIKey, "", expiry)
		logger.Info().Str("user", user).Str("password", pass).Msg("Credentials for all chips")

		for _, m := range names {
			user, pass := authCalculate(cfg.APIKey, m, expiry)
			logger.Debug().Str("chip", m).Str("user", user).Str("password", pass).Msg("Credentials for one chip")
		}
	}

	httpLogger := logger.With().Str("component", "http").Logger()
	logHTTP := httplog.HTTPLog{
		LogOut: func(format string, v ...interface{}) {
			httpLogger.Info().Msgf(format, v...)
		},
		ServerName: "BattID",
	}

	server := &http.Server{
		Handler: logHTTP.GetHandler(authProcess(mux.ServeHTTP, cfg.APIKey, newChipRoutes(names))),

		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
		ReadHeaderTimeout: 30 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}

	if cfg.Advertise != "" {
		port := ln.Addr().(*net.TCPAddr).Port
		txt := []string{"txtvers=1", "chips=" + strings.Join(names, ",")}

		mdns, err := zeroconf.Register(cfg.Advertise, battclient.ServiceType, "local.", port, txt, nil)
		if err != nil {
			ln.Close()
			return err
		}
		defer mdns.Shutdown()

		logger.Info().Str("instance", cfg.Advertise).Int("port", port).Msg("Advertising over mDNS")
	}

	go func() {
		logger.Info().Msgf("Starting server on: http://%s", ln.Addr())
		err := server.Serve(ln)
		logger.Info().Err(err).Msg("Server stopped")

		select {
		case closeChan <- nil:
		default:
		}
	}()

	<-closeChan
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	return server.Shutdown(ctx)
}
