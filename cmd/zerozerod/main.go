package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"zerozero/internal/app"
	"zerozero/internal/gateway"
	"zerozero/internal/retention"
	"zerozero/pkg/banner"
	"zerozero/pkg/config"
	"zerozero/pkg/events"
	"zerozero/pkg/logger"
	"zerozero/pkg/notify"
	"zerozero/pkg/security"
	"zerozero/pkg/shutdown"
	"zerozero/pkg/state"
	"zerozero/pkg/store"
	"zerozero/pkg/transport"
	"zerozero/pkg/validation"
)

// build metadata - set via ldflags during build/release
var version = "dev"

const defaultRelayURL = "wss://relay.zerozero.chat"

func main() {
	_ = godotenv.Load(".env")
	flags := config.ParseConfigFlags()

	fileCfg, fileExists, err := config.ParseConfigFile(flags)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	envCfg, _ := config.ParseConfigEnvs()
	eff, err := config.LoadEffectiveConfig(flags, fileCfg, fileExists, envCfg)
	if err != nil {
		log.Fatalf("failed to resolve config: %v", err)
	}
	cfg := eff.Config

	logger.InitWithLevel(cfg.Logging.Level)

	if err := state.EnsureStateDirs(eff.DataPath); err != nil {
		shutdown.Abort("data path is not usable", err, eff.DataPath)
	}

	validation.SetLimits(validation.Limits{
		MaxContentLen:  cfg.Limits.MaxContentLen,
		MaxLabelLen:    cfg.Limits.MaxLabelLen,
		MaxFilenameLen: cfg.Limits.MaxFilenameLen,
	})

	if cfg.Security.Encryption.Use {
		if err := security.SetKeyHex(cfg.Security.Encryption.KeyHex); err != nil {
			log.Fatalf("invalid at-rest encryption key: %v", err)
		}
	}

	st, err := store.Open(state.StorePath(eff.DataPath))
	if err != nil {
		shutdown.Abort("failed to open store", err, eff.DataPath)
	}
	defer st.Close()

	deviceKey, err := transport.LoadOrCreateDeviceKey(eff.DataPath)
	if err != nil {
		shutdown.Abort("failed to load device key", err, eff.DataPath)
	}
	relayURL := cfg.Relay.URL
	if relayURL == "" {
		relayURL = defaultRelayURL
	}
	tr := transport.NewRelay(relayURL, deviceKey)
	defer tr.Close()

	bus := events.NewFanOut()
	a, err := app.New(app.Options{
		Config:    cfg,
		DataPath:  eff.DataPath,
		Store:     st,
		Transport: tr,
		Bus:       bus,
		Notifier:  notify.New(cfg.Notify.URL, cfg.Notify.Token),
	})
	if err != nil {
		shutdown.Abort("failed to build core", err, eff.DataPath)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		shutdown.Abort("failed to start core", err, eff.DataPath)
	}
	defer a.Stop()

	stopRetention, err := retention.Start(ctx, cfg.Retention, retention.Deps{
		Queue: a.Queue,
		Pins:  a.Pins,
	}, eff.DataPath)
	if err != nil {
		shutdown.Abort("invalid retention config", err, eff.DataPath)
	}
	defer stopRetention()

	banner.Print(eff.Addr, eff.DataPath, a.Number(), eff.Source, version)

	if err := gateway.New(a, bus, cfg, eff.Addr, eff.DataPath).Serve(ctx); err != nil {
		logger.Error("gateway_failed", "error", err.Error())
	}
	logger.Info("shutdown_complete")
}
