package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/model"
	"Go2FlowLabel/internal/writer/natspub"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the configuration file")
	topology := flag.String("topology", "", "only follow this topology")
	attacksOnly := flag.Bool("attacks", false, "only print positive records")
	raw := flag.Bool("json", false, "print records as JSON")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolvePath(*configPath, defaultConfigPath))
	if err != nil {
		logger.MainLog.Fatalf("Failed to load config: %v", err)
	}
	natsCfg, ok := natsWriter(cfg)
	if !ok {
		logger.MainLog.Fatal("No nats writer configured; nothing to watch.")
	}

	sub, err := natspub.NewSubscriber(natsCfg.URL, natsCfg.SubjectPrefix, *topology)
	if err != nil {
		logger.MainLog.Fatalf("Failed to create subscriber: %v", err)
	}
	defer sub.Close()

	err = sub.Start(func(r model.LabeledRecord, st *structpb.Struct) {
		if *attacksOnly && r.Label == 0 {
			return
		}
		if *raw {
			out, err := protojson.Marshal(st)
			if err != nil {
				logger.MainLog.Warnf("Failed to render record: %v", err)
				return
			}
			fmt.Println(string(out))
			return
		}
		fmt.Printf("%s %-10s %-45s label=%d rule=%d pps=%.1f bps=%.1f terminal=%t\n",
			r.Snapshot.Timestamp.Format("15:04:05"), r.Topology, r.Identity.Key(),
			r.Label, r.Rule, r.Features.PacketRate, r.Features.ByteRate, r.Terminal)
	})
	if err != nil {
		logger.MainLog.Fatalf("Failed to subscribe: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.MainLog.Info("Watcher shutting down...")
}

func natsWriter(cfg *config.Config) (config.NATSConfig, bool) {
	for _, w := range cfg.Writers {
		if w.Type == "nats" {
			return w.NATS, true
		}
	}
	return config.NATSConfig{}, false
}
