package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cinder-labs/cinder/config"
	"github.com/cinder-labs/cinder/crypto"
	"github.com/cinder-labs/cinder/eventlog"
	"github.com/cinder-labs/cinder/ledger"
	"github.com/cinder-labs/cinder/network"
	"github.com/cinder-labs/cinder/store"
)

const (
	snapshotInterval  = 5 * time.Minute
	recoveryCacheSize = 4096
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	envPath := flag.String("env", "", "path to a .env file loaded before the config")
	flag.Parse()

	if *envPath != "" {
		if err := godotenv.Load(*envPath); err != nil {
			log.Fatalf("Error loading .env file from %s: %v", *envPath, err)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	st, err := store.Open(cfg.DataDir, logger)
	if err != nil {
		log.Fatalf("Failed to open the store at %s: %v", cfg.DataDir, err)
	}
	defer st.Close()

	journal := eventlog.New(eventlog.Config{
		Retained: cfg.RetainedEvents,
		Archive:  st,
		Log:      logger,
	})

	lcfg, err := cfg.LedgerConfig()
	if err != nil {
		log.Fatalf("Invalid ledger configuration: %v", err)
	}
	lcfg.Events = journal

	recoverer, err := crypto.NewCachingRecoverer(crypto.NewRecoverer(), recoveryCacheSize)
	if err != nil {
		log.Fatalf("Failed to build the signature recovery cache: %v", err)
	}
	lcfg.Recoverer = recoverer

	snap, found, err := st.LoadSnapshot()
	if err != nil {
		log.Fatalf("Failed to load the ledger snapshot: %v", err)
	}

	// Archived records predate this process; replay them before the
	// ledger can append new ones.
	if err := st.EachRecord(func(rec eventlog.Record) error {
		journal.Restore(rec)
		return nil
	}); err != nil {
		log.Fatalf("Failed to replay the event archive: %v", err)
	}

	var token *ledger.Token
	if found {
		token, err = ledger.NewFromSnapshot(lcfg, snap)
	} else {
		token, err = ledger.New(lcfg)
	}
	if err != nil {
		log.Fatalf("Failed to initialize the ledger: %v", err)
	}

	if found {
		logger.Info("ledger restored from snapshot",
			"owner", token.Owner(),
			"last_seq", journal.LastSeq(),
		)
	} else {
		logger.Info("ledger initialized",
			"name", cfg.TokenName,
			"symbol", cfg.TokenSymbol,
			"variant", cfg.PolicyVariant,
		)
	}

	router := network.NewRouter(network.Config{
		Token:       token,
		Journal:     journal,
		AdminSecret: []byte(cfg.AdminSecret),
		Operator:    cfg.OperatorAddress,
		Log:         logger,
	})

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router.SetupRoutes(),
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		logger.Info("shutdown requested")
		cancel()
	}()

	go func() {
		var err error
		if cfg.UseTLS() {
			logger.Info("starting HTTPS server", "addr", cfg.ListenAddr)
			err = server.ListenAndServeTLS(cfg.CertPath, cfg.KeyPath)
		} else {
			logger.Info("starting HTTP server", "addr", cfg.ListenAddr)
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start the server on %s: %v", cfg.ListenAddr, err)
		}
	}()

	go func() {
		ticker := time.NewTicker(snapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := st.SaveSnapshot(token.Snapshot()); err != nil {
					logger.Error("periodic snapshot failed", "error", err)
				}
			}
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	router.EventFeed().Close()
	journal.Close()

	if err := st.SaveSnapshot(token.Snapshot()); err != nil {
		log.Fatalf("Failed to save the final snapshot: %v", err)
	}
	logger.Info("ledger saved", "last_seq", journal.LastSeq())
}
