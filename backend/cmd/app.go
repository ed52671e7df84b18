package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/webwatch/backend/janitor"
	"github.com/webwatch/backend/registry"
	httpServer "github.com/webwatch/backend/server/http"
	websocketServer "github.com/webwatch/backend/server/websocket"
	"github.com/webwatch/backend/service"
	memStore "github.com/webwatch/backend/storage/memory"
	sqliteStore "github.com/webwatch/backend/storage/sqlite"
)

type config struct {
	APIListenAddr  string        `envconfig:"API_LISTEN_ADDR" default:":8080"`
	WSListenAddr   string        `envconfig:"WS_LISTEN_ADDR" default:":8888"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"debug"`
	DatabasePath   string        `envconfig:"DATABASE_PATH"`
	SweepInterval  time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	PartyRetention time.Duration `envconfig:"PARTY_RETENTION" default:"10m"`
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	var cfg config
	if err := envconfig.Process("webwatch", &cfg); err != nil {
		logger.Fatal().Err(err).Msg("failed to read environment config")
	}

	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)
	fs.StringVarP(&cfg.APIListenAddr, "api-listen-addr", "a", cfg.APIListenAddr, "api listen address")
	fs.StringVarP(&cfg.WSListenAddr, "ws-listen-addr", "w", cfg.WSListenAddr, "websocket party listen address")
	fs.StringVarP(&cfg.LogLevel, "log-level", "l", cfg.LogLevel, "log level")
	fs.StringVarP(&cfg.DatabasePath, "database", "d", cfg.DatabasePath, "sqlite database path (empty for in-memory store)")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "janitor sweep interval")
	fs.DurationVar(&cfg.PartyRetention, "party-retention", cfg.PartyRetention, "how long empty parties are kept")
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	var (
		store service.PartyStore
		sweep janitor.Store
	)
	if cfg.DatabasePath != "" {
		s, errDB := sqliteStore.New(cfg.DatabasePath)
		if errDB != nil {
			logger.Fatal().Err(errDB).Msg("failed to open party database")
		}
		defer func() {
			_ = s.Close()
		}()
		store, sweep = s, s
	} else {
		m := memStore.NewMemStore()
		store, sweep = m, m
	}

	coord := service.NewCoordinator(service.Config{
		Store:    store,
		Registry: registry.New(&logger),
		Logger:   &logger,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:       &logger,
		PartyService: coord,
		ListenAddr:   cfg.APIListenAddr,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:       &logger,
		PartyService: coord,
		ListenAddr:   cfg.WSListenAddr,
	})
	jan := janitor.New(janitor.Config{
		Logger:        &logger,
		Store:         sweep,
		SweepInterval: cfg.SweepInterval,
		Retention:     cfg.PartyRetention,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(3)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)
	go jan.Run(ctx, wg)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
