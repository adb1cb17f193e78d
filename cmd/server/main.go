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
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ledgerops/go-token-broker/internal/config"
	"github.com/ledgerops/go-token-broker/internal/sealbox"
	"github.com/ledgerops/go-token-broker/providers"
	"github.com/ledgerops/go-token-broker/server"
	"github.com/ledgerops/go-token-broker/sessions"
)

const appName = "token broker"

func main() {
	configPath := flag.String("config", "broker.conf", "path to KEY=value configuration file")
	addr := flag.String("addr", ":8080", "listen address")
	dbPath := flag.String("db", "broker.db", "path to the sqlite session database")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if err := run(*configPath, *addr, *dbPath); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func run(configPath, addr, dbPath string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	displayAppname(appName)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	store, err := sessions.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	box, err := sealbox.New(cfg.MasterKey)
	if err != nil {
		return fmt.Errorf("init sealbox: %w", err)
	}
	if !box.Enabled() {
		log.Warn().Msg("BROKER_MASTER_KEY not set, session results stored unsealed")
	}

	registry := providers.NewRegistry(cfg, &http.Client{Timeout: 30 * time.Second})
	broker := server.New(cfg, store, registry, box)

	httpServer := &http.Server{Addr: addr, Handler: broker}
	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
