package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LogConfig controls the logrus logger.
type LogConfig struct {
	Level        string `yaml:"level"`
	ReportCaller bool   `yaml:"report_caller"`
}

// CollectorConfig holds the poll loop settings.
type CollectorConfig struct {
	PollInterval   string `yaml:"poll_interval"`
	RequestTimeout string `yaml:"request_timeout"`
	DrainTimeout   string `yaml:"drain_timeout"`
	SkipTableMiss  *bool  `yaml:"skip_table_miss"`
	WindowBuffer   int    `yaml:"window_buffer"`
}

// LabelerConfig holds the heuristic thresholds. Zero values fall back to the defaults.
type LabelerConfig struct {
	PacketRateThreshold     float64 `yaml:"packet_rate_threshold"`
	RateSizeThreshold       float64 `yaml:"rate_size_threshold"`
	SizeThreshold           float64 `yaml:"size_threshold"`
	SustainedRateThreshold  float64 `yaml:"sustained_rate_threshold"`
	SustainedCountThreshold uint64  `yaml:"sustained_count_threshold"`
}

// SchedulerConfig defines how a topology run is split into phases.
type SchedulerConfig struct {
	Runtime        string   `yaml:"runtime"`
	Warmup         string   `yaml:"warmup"`
	Cooldown       string   `yaml:"cooldown"`
	AttackShare    float64  `yaml:"attack_share"`
	AttackPhases   int      `yaml:"attack_phases"`
	AttackFraction float64  `yaml:"attack_fraction"`
	IperfFraction  float64  `yaml:"iperf_fraction"`
	MaxVictims     int      `yaml:"max_victims"`
	Seed           uint64   `yaml:"seed"`
	Attackers      []string `yaml:"attackers"`
	// TrafficTimeout bounds each batch of traffic start or stop commands.
	TrafficTimeout string   `yaml:"traffic_timeout"`
}

// SequencerConfig controls the run over all topologies.
type SequencerConfig struct {
	PauseBetween string `yaml:"pause_between"`
	SetupTimeout string `yaml:"setup_timeout"`
}

// TopologyDef defines one topology to run.
type TopologyDef struct {
	Name           string  `yaml:"name"`
	Kind           string  `yaml:"kind"`
	NumSwitches    int     `yaml:"num_switches"`
	HostsPerSwitch int     `yaml:"hosts_per_switch"`
	Bandwidth      float64 `yaml:"bandwidth"`
	Delay          string  `yaml:"delay"`
	Loss           float64 `yaml:"loss"`
	// Scheduler overrides the global scheduler block for this topology when set.
	Scheduler *SchedulerConfig `yaml:"scheduler"`
}

// NATSConfig holds NATS connection details.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// RESTConfig holds the address of a controller REST API.
type RESTConfig struct {
	BaseURL string `yaml:"base_url"`
}

// SwitchLinkConfig selects how flow tables are read.
type SwitchLinkConfig struct {
	Type string     `yaml:"type"` // "rest", "nats" or "sim"
	REST RESTConfig `yaml:"rest"`
	NATS NATSConfig `yaml:"nats"`
}

// EmulatorConfig selects the network emulation backend.
type EmulatorConfig struct {
	Type string     `yaml:"type"` // "nats" or "sim"
	NATS NATSConfig `yaml:"nats"`
}

// IPCConfig holds the pipe name of the traffic launcher.
type IPCConfig struct {
	PipeName string `yaml:"pipe_name"`
}

// TrafficConfig selects the traffic generation backend.
type TrafficConfig struct {
	Type string    `yaml:"type"` // "ipc" or "sim"
	IPC  IPCConfig `yaml:"ipc"`
}

// ClickHouseConfig holds the configuration for the ClickHouse connection.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// PostgresConfig holds the PostgreSQL connection URL.
type PostgresConfig struct {
	URL string `yaml:"url"`
}

// FileConfig holds the output directory of a file writer.
type FileConfig struct {
	RootPath string `yaml:"root_path"`
}

// WriterDef defines one record writer.
type WriterDef struct {
	Type       string           `yaml:"type"`
	Enabled    bool             `yaml:"enabled"`
	CSV        FileConfig       `yaml:"csv"`
	Gob        FileConfig       `yaml:"gob"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	NATS       NATSConfig       `yaml:"nats"`
}

// WindowMirrorConfig configures the redis mirror of the current attack window.
type WindowMirrorConfig struct {
	Enabled  bool   `yaml:"enabled"`
	RedisURL string `yaml:"redis_url"`
	Key      string `yaml:"key"`
	Channel  string `yaml:"channel"`
}

// APIConfig holds the status API settings.
type APIConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// HealthConfig holds the gRPC health service settings.
type HealthConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// SummaryConfig controls the per-topology summary.json.
type SummaryConfig struct {
	RootPath string `yaml:"root_path"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Log          LogConfig          `yaml:"log"`
	Collector    CollectorConfig    `yaml:"collector"`
	Labeler      LabelerConfig      `yaml:"labeler"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Sequencer    SequencerConfig    `yaml:"sequencer"`
	Topologies   []TopologyDef      `yaml:"topologies"`
	SwitchLink   SwitchLinkConfig   `yaml:"switch_link"`
	Emulator     EmulatorConfig     `yaml:"emulator"`
	Traffic      TrafficConfig      `yaml:"traffic"`
	Writers      []WriterDef        `yaml:"writers"`
	Summary      SummaryConfig      `yaml:"summary"`
	WindowMirror WindowMirrorConfig `yaml:"window_mirror"`
	API          APIConfig          `yaml:"api"`
	Health       HealthConfig       `yaml:"health"`
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML document into a Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	return &cfg, nil
}

// SchedulerFor returns the scheduler block that applies to a topology.
func (c *Config) SchedulerFor(def TopologyDef) SchedulerConfig {
	if def.Scheduler != nil {
		return *def.Scheduler
	}
	return c.Scheduler
}

// Duration parses s, returning def when s is empty.
func Duration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
