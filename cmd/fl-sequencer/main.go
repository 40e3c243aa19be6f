package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Go2FlowLabel/internal/api"
	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/emulator/natsemu"
	"Go2FlowLabel/internal/emulator/sim"
	"Go2FlowLabel/internal/engine/stream"
	"Go2FlowLabel/internal/factory"
	"Go2FlowLabel/internal/health"
	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/sequencer"
	"Go2FlowLabel/internal/switchlink"
	"Go2FlowLabel/internal/traffic/ipclauncher"
	"Go2FlowLabel/internal/window"

	// Register all record writer implementations.
	_ "Go2FlowLabel/internal/writer/clickhouse"
	_ "Go2FlowLabel/internal/writer/csvfile"
	_ "Go2FlowLabel/internal/writer/gobfile"
	_ "Go2FlowLabel/internal/writer/natspub"
	_ "Go2FlowLabel/internal/writer/postgres"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the configuration file")
	flag.Parse()

	logger.MainLog.Info("Starting fl-sequencer...")

	// 1. Load and validate configuration
	cfg, err := config.LoadConfig(config.ResolvePath(*configPath, defaultConfigPath))
	if err != nil {
		logger.MainLog.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Configure(cfg.Log.Level, cfg.Log.ReportCaller); err != nil {
		logger.MainLog.Fatalf("Invalid log config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.MainLog.Fatalf("Invalid configuration: %v", err)
	}
	if err := factory.CheckTypes(cfg.Writers); err != nil {
		logger.MainLog.Fatalf("Invalid writers: %v", err)
	}
	logger.MainLog.Info("Configuration loaded successfully.")

	// 2. Connect the emulator, switch links and traffic generator
	env, closeEnv, err := buildEnvironment(cfg)
	if err != nil {
		logger.MainLog.Fatalf("Failed to set up environment: %v", err)
	}
	defer closeEnv()

	opts := []sequencer.Option{
		sequencer.WithWriters(func(topology string) ([]stream.NamedWriter, error) {
			return factory.Open(cfg.Writers, topology)
		}),
	}

	// 3. Optional outer surfaces
	if cfg.WindowMirror.Enabled {
		mirror, err := window.NewRedisMirror(cfg.WindowMirror)
		if err != nil {
			logger.MainLog.Fatalf("Failed to connect window mirror: %v", err)
		}
		defer mirror.Close()
		opts = append(opts, sequencer.WithWindowObservers(mirror))
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		status, feed := api.NewStatus(), api.NewFeed()
		apiServer = api.NewServer(cfg.API.ListenAddr, status, feed)
		apiServer.Start()
		opts = append(opts,
			sequencer.WithObservers(status),
			sequencer.WithWindowObservers(status),
			sequencer.WithTaps(feed))
	}

	if cfg.Health.Enabled {
		hs := health.NewServer()
		if err := hs.Serve(cfg.Health.ListenAddr); err != nil {
			logger.MainLog.Fatalf("Failed to listen on %s: %v", cfg.Health.ListenAddr, err)
		}
		defer hs.Stop()
		opts = append(opts, sequencer.WithObservers(hs))
	}

	seq, err := sequencer.New(cfg, env, opts...)
	if err != nil {
		logger.MainLog.Fatalf("Failed to create sequencer: %v", err)
	}

	// 4. An interrupt drains the current topology and ends the sequence
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := seq.Run(ctx)
	for _, res := range results {
		entry := logger.MainLog.WithField("topology", res.Topology)
		switch {
		case res.SetupFailed:
			entry.Warnf("Skipped: %v", res.Err)
		case res.Err != nil:
			entry.Errorf("Finished with errors after %s: %v", res.Finished.Sub(res.Started).Round(time.Second), res.Err)
		default:
			entry.Infof("%d records (%d positive) in %s", res.Counts.Records, res.Counts.Positives, res.Finished.Sub(res.Started).Round(time.Second))
		}
	}
	if err != nil {
		logger.MainLog.Warnf("Sequence stopped: %v", err)
	}

	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.MainLog.Errorf("API server forced to shutdown: %v", err)
		}
	}
	logger.MainLog.Info("Shutdown complete.")
}

// buildEnvironment connects the configured backends. The returned func closes them.
func buildEnvironment(cfg *config.Config) (sequencer.Environment, func(), error) {
	var (
		env     sequencer.Environment
		closers []func()
		network *sim.Network
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	simNetwork := func() *sim.Network {
		if network == nil {
			network = sim.New()
		}
		return network
	}

	switch cfg.Emulator.Type {
	case "nats":
		c, err := natsemu.NewClient(cfg.Emulator.NATS)
		if err != nil {
			return env, func() {}, err
		}
		closers = append(closers, c.Close)
		env.Emulator = c
	default:
		env.Emulator = simNetwork()
	}

	switch cfg.SwitchLink.Type {
	case "rest":
		p, err := switchlink.NewRESTProvider(cfg.SwitchLink.REST)
		if err != nil {
			closeAll()
			return env, func() {}, err
		}
		env.Links = p
	case "nats":
		p, err := switchlink.NewNATSProvider(cfg.SwitchLink.NATS)
		if err != nil {
			closeAll()
			return env, func() {}, err
		}
		closers = append(closers, p.Close)
		env.Links = p
	default:
		env.Links = simNetwork()
	}

	switch cfg.Traffic.Type {
	case "ipc":
		l, err := ipclauncher.New(cfg.Traffic.IPC)
		if err != nil {
			closeAll()
			return env, func() {}, err
		}
		closers = append(closers, l.Close)
		env.Traffic = l
	default:
		env.Traffic = simNetwork()
	}

	logger.MainLog.Infof("Environment: emulator=%s switch_link=%s traffic=%s",
		orSim(cfg.Emulator.Type), orSim(cfg.SwitchLink.Type), orSim(cfg.Traffic.Type))
	return env, closeAll, nil
}

func orSim(t string) string {
	if t == "" {
		return "sim"
	}
	return t
}
