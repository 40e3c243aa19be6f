package main

import (
	"flag"
	"fmt"
	"os"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/model"
	"Go2FlowLabel/internal/topology"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the configuration file")
	out := flag.String("out", "", "write the descriptions to this file instead of stdout")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolvePath(*configPath, defaultConfigPath))
	if err != nil {
		logger.MainLog.Fatalf("Failed to load config: %v", err)
	}

	var descs []model.TopologyDesc
	for _, def := range cfg.Topologies {
		desc, err := topology.Build(def)
		if err != nil {
			logger.MainLog.Fatalf("Failed to build topology %s: %v", def.Name, err)
		}
		logger.MainLog.Infof("%s: %d switches, %d hosts, %d links", desc.Name, len(desc.Switches), len(desc.Hosts), len(desc.Links))
		descs = append(descs, desc)
	}

	data, err := topology.Render(descs...)
	if err != nil {
		logger.MainLog.Fatalf("Failed to render topologies: %v", err)
	}
	if *out == "" {
		fmt.Print(string(data))
		return
	}
	if err := os.WriteFile(*out, data, 0644); err != nil {
		logger.MainLog.Fatalf("Failed to write %s: %v", *out, err)
	}
	logger.MainLog.Infof("Wrote %d topologies to %s", len(descs), *out)
}
