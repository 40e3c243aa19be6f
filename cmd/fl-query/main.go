package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"strings"
	"time"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/query"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the configuration file")
	mode := flag.String("mode", "balance", "query mode: 'balance' for class counts, 'trace' for one flow")
	topology := flag.String("topology", "", "topology name (required for trace)")
	endTimeStr := flag.String("end", "", "only count records up to this RFC3339 time")
	keys := flag.String("keys", "", "flow keys for trace, e.g. DatapathID=1,SrcIP=10.0.0.1,DstPort=80")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolvePath(*configPath, defaultConfigPath))
	if err != nil {
		logger.MainLog.Fatalf("Failed to load config: %v", err)
	}
	var chCfg *config.ClickHouseConfig
	for i := range cfg.Writers {
		if cfg.Writers[i].Type == "clickhouse" {
			chCfg = &cfg.Writers[i].ClickHouse
			break
		}
	}
	if chCfg == nil {
		logger.MainLog.Fatal("No clickhouse writer configured.")
	}

	q, err := query.NewClickHouseQuerier(*chCfg)
	if err != nil {
		logger.MainLog.Fatalf("Failed to create querier: %v", err)
	}
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var result any
	switch *mode {
	case "balance":
		var until time.Time
		if *endTimeStr != "" {
			if until, err = time.Parse(time.RFC3339, *endTimeStr); err != nil {
				logger.MainLog.Fatalf("Invalid end time: %v", err)
			}
		}
		result, err = q.ClassBalance(ctx, *topology, until)
	case "trace":
		result, err = q.TraceFlow(ctx, *topology, parseKeys(*keys))
	default:
		logger.MainLog.Fatalf("Invalid mode: %s. Use 'balance' or 'trace'.", *mode)
	}
	if err != nil {
		logger.MainLog.Fatalf("Query failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(result)
}

func parseKeys(s string) map[string]string {
	keys := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok {
			keys[k] = v
		}
	}
	return keys
}
