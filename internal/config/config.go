package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultGateDir is the workspace-relative directory holding every gate artifact.
const DefaultGateDir = ".gate"

// Config holds all gatecheck configuration.
type Config struct {
	// GateDir is the artifact directory, relative to the workspace unless absolute.
	GateDir string `yaml:"gate_dir"`

	Mailbox   MailboxConfig   `yaml:"mailbox"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Alignment AlignmentConfig `yaml:"alignment"`
	Approval  ApprovalConfig  `yaml:"approval"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MailboxConfig names the two mailbox slots.
type MailboxConfig struct {
	RequestFile  string `yaml:"request_file"`
	ResponseFile string `yaml:"response_file"`

	// WaitRecheck is how often WaitForResponse re-reads the slot even without fs events.
	WaitRecheck string `yaml:"wait_recheck"`
}

// LedgerConfig configures the vision ledger.
type LedgerConfig struct {
	File         string `yaml:"file"`
	InitialPhase string `yaml:"initial_phase"`
}

// AlignmentConfig configures the alignment gate.
type AlignmentConfig struct {
	CharterFile string `yaml:"charter_file"`
	LogFile     string `yaml:"log_file"`
	HistorySize int    `yaml:"history_size"`

	// HistoryDB enables the SQLite history store when non-empty.
	HistoryDB string `yaml:"history_db"`

	// RestoreHistory reloads recent checks from the log on startup.
	RestoreHistory bool `yaml:"restore_history"`
}

// ApprovalConfig configures the loopback approval server.
type ApprovalConfig struct {
	PreferredAddr  string `yaml:"preferred_addr"`
	Timeout        string `yaml:"timeout"`
	ShutdownGrace  string `yaml:"shutdown_grace"`
	MaxConnections int    `yaml:"max_connections"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		GateDir: DefaultGateDir,

		Mailbox: MailboxConfig{
			RequestFile:  "gate_request.md",
			ResponseFile: "gate_response.json",
			WaitRecheck:  "2s",
		},

		Ledger: LedgerConfig{
			File:         "vision_ledger.json",
			InitialPhase: "vision_gathering",
		},

		Alignment: AlignmentConfig{
			CharterFile:    "vision_charter.json",
			LogFile:        "alignment_log.jsonl",
			HistorySize:    50,
			RestoreHistory: true,
		},

		Approval: ApprovalConfig{
			PreferredAddr:  "127.0.0.1:8765",
			Timeout:        "300s",
			ShutdownGrace:  "2s",
			MaxConnections: 8,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults; env overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("GATE_DIR"); dir != "" {
		c.GateDir = dir
	}
	if addr := os.Getenv("GATE_APPROVAL_ADDR"); addr != "" {
		c.Approval.PreferredAddr = addr
	}
	if timeout := os.Getenv("GATE_APPROVAL_TIMEOUT"); timeout != "" {
		c.Approval.Timeout = timeout
	}
	if level := os.Getenv("GATE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if debug := os.Getenv("GATE_DEBUG"); debug != "" {
		if v, err := strconv.ParseBool(debug); err == nil {
			c.Logging.DebugMode = v
		}
	}
}

// Dir resolves the gate directory against the workspace.
func (c *Config) Dir(workspace string) string {
	if filepath.IsAbs(c.GateDir) {
		return c.GateDir
	}
	return filepath.Join(workspace, c.GateDir)
}

// Path resolves a file name inside the gate directory.
// Absolute names are returned unchanged.
func (c *Config) Path(workspace, name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Dir(workspace), name)
}

// ConfigPath returns the conventional config file location for a workspace.
func ConfigPath(workspace string) string {
	return filepath.Join(workspace, DefaultGateDir, "config.yaml")
}

// GetApprovalTimeout returns the approval timeout as a duration.
func (c *Config) GetApprovalTimeout() time.Duration {
	d, err := time.ParseDuration(c.Approval.Timeout)
	if err != nil || d <= 0 {
		return 300 * time.Second
	}
	return d
}

// GetShutdownGrace returns how long the approval server may drain connections.
func (c *Config) GetShutdownGrace() time.Duration {
	d, err := time.ParseDuration(c.Approval.ShutdownGrace)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// GetWaitRecheck returns the mailbox re-check interval as a duration.
func (c *Config) GetWaitRecheck() time.Duration {
	d, err := time.ParseDuration(c.Mailbox.WaitRecheck)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.GateDir == "" {
		return fmt.Errorf("gate_dir must not be empty")
	}
	if c.Mailbox.RequestFile == "" || c.Mailbox.ResponseFile == "" {
		return fmt.Errorf("mailbox request_file and response_file are required")
	}
	if c.Mailbox.RequestFile == c.Mailbox.ResponseFile {
		return fmt.Errorf("mailbox request_file and response_file must differ: %s", c.Mailbox.RequestFile)
	}
	if c.Ledger.File == "" {
		return fmt.Errorf("ledger file is required")
	}
	if c.Alignment.HistorySize <= 0 {
		return fmt.Errorf("alignment history_size must be positive, got %d", c.Alignment.HistorySize)
	}
	host, _, err := net.SplitHostPort(c.Approval.PreferredAddr)
	if err != nil {
		return fmt.Errorf("invalid approval preferred_addr %q: %w", c.Approval.PreferredAddr, err)
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return fmt.Errorf("approval preferred_addr must be loopback, got %s", host)
	}
	if c.Approval.MaxConnections < 0 {
		return fmt.Errorf("approval max_connections must not be negative")
	}
	return nil
}
