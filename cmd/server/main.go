package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	apihttp "fenrir/api/http"
	"fenrir/config"
	"fenrir/history"
	"fenrir/infra/kafka"
	"fenrir/infra/outbox"
	"fenrir/jobs/broadcaster"
	"fenrir/service"
	"fenrir/settlement"
	"fenrir/snapshot"
)

func main() {
	cfgPath := flag.String("config", "", "path to config file")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init failed:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}
	if !cfg.Enable {
		log.Info("matcher disabled, exiting")
		return
	}

	// ---------------- Directories ----------------

	for _, dir := range []string{cfg.JournalDataDir, cfg.SnapshotsDataDir, cfg.PairsLogDir, cfg.OutboxDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal("mkdir", zap.String("dir", dir), zap.Error(err))
		}
	}

	// ---------------- Matcher identity ----------------

	seed, err := hex.DecodeString(cfg.Account)
	if err != nil || len(seed) != ed25519.SeedSize {
		log.Fatal("account must be a hex-encoded ed25519 seed")
	}
	signer := settlement.NewSigner(ed25519.NewKeyFromSeed(seed))

	// ---------------- Settlement ledger ----------------

	var ledger settlement.Ledger
	switch cfg.Settlement.Mode {
	case "node":
		ledger = settlement.NewNodeClient(cfg.Settlement.NodeURL)
	default:
		ledger = settlement.NewMemLedger()
	}

	// ---------------- History projection ----------------

	store, err := history.OpenStore(cfg.OrderHistoryFile, cfg.MaxOpenOrders)
	if err != nil {
		log.Fatal("history store", zap.Error(err))
	}
	defer store.Close()

	blacklist, err := cfg.BlacklistedAssetList()
	if err != nil {
		log.Fatal("blacklisted_assets", zap.Error(err))
	}

	hist := history.NewService(log, store, ledger, history.Config{
		Validation: history.ValidationConfig{
			MinOrderFee:      cfg.MinOrderFee,
			MaxTimestampDiff: cfg.MaxTimestampDiff,
			MaxOrderTTL:      cfg.MaxOrderTTL,
			Blacklisted:      blacklist,
		},
		RequestTTL:   cfg.RequestTTL,
		ReleaseDelay: cfg.ReleaseDelay,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hist.Run(ctx.Done())

	// ---------------- Outbox & event stream ----------------

	relay, err := outbox.Open(cfg.OutboxDir)
	if err != nil {
		log.Fatal("outbox", zap.Error(err))
	}
	defer relay.Close()

	var events service.Publisher
	if cfg.Kafka.Enable {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		defer producer.Close()
		events = producer

		bc, err := broadcaster.New(relay, cfg.Kafka.Brokers, cfg.Kafka.TxTopic, time.Second, log)
		if err != nil {
			log.Fatal("broadcaster", zap.Error(err))
		}
		bc.Start(ctx)
	}

	// ---------------- Dispatcher ----------------

	priceAssets, err := cfg.PriceAssetList()
	if err != nil {
		log.Fatal("price_assets", zap.Error(err))
	}
	predefined, err := cfg.PredefinedPairList()
	if err != nil {
		log.Fatal("predefined_pairs", zap.Error(err))
	}

	snaps := &snapshot.Store{Root: cfg.SnapshotsDataDir}
	dispatcher, err := service.NewDispatcher(ctx, service.DispatcherConfig{
		PriceAssets:     priceAssets,
		PredefinedPairs: predefined,
		JournalRoot:     cfg.JournalDataDir,
		PairsLogDir:     cfg.PairsLogDir,
		Controller: service.ControllerConfig{
			ValidationTimeout: cfg.ValidationTimeout,
			SnapshotInterval:  cfg.SnapshotsInterval,
			OrderMatchTxFee:   cfg.OrderMatchTxFee,
		},
	}, log, snaps, hist, ledger, signer, relay, events)
	if err != nil {
		log.Fatal("dispatcher", zap.Error(err))
	}
	go dispatcher.Run()

	// ---------------- HTTP ----------------

	srv := apihttp.NewServer(dispatcher, hist, ledger, log)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		cancel()
		os.Exit(0)
	}()

	fmt.Printf("🚀 Fenrir matcher listening on %s\n", cfg.ListenAddr())
	if err := srv.Run(cfg.ListenAddr()); err != nil {
		log.Fatal("http server exited", zap.Error(err))
	}
}
